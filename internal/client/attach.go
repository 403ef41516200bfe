package client

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// maxDialAttempts and dialRetryDelay ground spec.md §4.3's attach sequence:
// "retry up to 5 attempts with a ~1s delay between attempts."
const (
	maxDialAttempts = 5
	dialRetryDelay  = time.Second
)

// ParseSlotID extracts the numeric slot id from a socket basename of the
// form "slot-<N>". A non-positive or unparsable id is rejected per spec.md
// §4.3 step 1 ("if non-positive, reject").
func ParseSlotID(name string) (int, error) {
	const prefix = "slot-"
	if !strings.HasPrefix(name, prefix) {
		return 0, fmt.Errorf("name %q does not match slot prefix", name)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(name, prefix))
	if err != nil {
		return 0, fmt.Errorf("parse slot id from %q: %w", name, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("slot id %d is not positive", n)
	}
	return n, nil
}

// dialWithRetry dials a unix stream socket at path, retrying on failure up
// to maxDialAttempts times with dialRetryDelay between attempts.
func dialWithRetry(ctx context.Context, path string) (net.Conn, error) {
	var lastErr error
	var d net.Dialer
	for attempt := 1; attempt <= maxDialAttempts; attempt++ {
		conn, err := d.DialContext(ctx, "unix", path)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if attempt < maxDialAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(dialRetryDelay):
			}
		}
	}
	return nil, fmt.Errorf("dial %s: %d attempts failed, last error: %w", path, maxDialAttempts, lastErr)
}

// Dial opens a connection to a guest endpoint's socket, retrying per
// spec.md §4.3 step 2. On success it constructs and returns an Endpoint
// whose regulator and reader goroutines are already running; the caller is
// responsible for inserting it into the registry (spec.md §4.3 step 4) and
// for enqueuing the initial handshake (step 6).
func Dial(ctx context.Context, slotID int, socketPath string, idCounter *int64, opts ...Option) (*Endpoint, error) {
	conn, err := dialWithRetry(ctx, socketPath)
	if err != nil {
		return nil, err
	}
	return New(slotID, socketPath, conn, idCounter, opts...), nil
}
