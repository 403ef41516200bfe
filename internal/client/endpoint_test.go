package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xfeldman/qips/internal/protocol"
)

// newTestEndpoint wires an Endpoint to one end of a net.Pipe, with the
// other end available to the test as a fake guest.
func newTestEndpoint(t *testing.T, opts ...Option) (*Endpoint, net.Conn) {
	t.Helper()
	client, guest := net.Pipe()
	var idCounter int64
	ep := New(3, "slot-3", client, &idCounter, opts...)
	t.Cleanup(func() { ep.Close(nil) })
	return ep, guest
}

func TestHandshake_PopulatesCache(t *testing.T) {
	ep, guest := newTestEndpoint(t)
	defer guest.Close()

	go func() {
		dec := protocol.NewDecoder(guest)
		enc := protocol.NewEncoder(guest)
		for i := int64(1); i <= 4; i++ {
			f, err := dec.Decode()
			if err != nil {
				return
			}
			switch f.ID {
			case 1:
				enc.Encode(protocol.Frame{ID: f.ID, Return: []byte(`{}`)})
			case 2:
				enc.Encode(protocol.Frame{ID: f.ID, Return: []byte(`{"domain":7}`)})
			case 3:
				enc.Encode(protocol.Frame{ID: f.ID, Return: []byte(`{"pid":4242}`)})
			case 4:
				enc.Encode(protocol.Frame{ID: f.ID, Return: []byte(`{"caps":false,"num":true,"scroll":false}`)})
			}
		}
	}()

	require.NoError(t, ep.Handshake())

	require.Eventually(t, func() bool {
		return ep.DomainID() == 7 && ep.ProcessID() == 4242
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, uint8(2) /* LedNum bit */, uint8(ep.LedState()))
}

func TestCall_ReturnsResponse(t *testing.T) {
	ep, guest := newTestEndpoint(t)
	defer guest.Close()

	go func() {
		dec := protocol.NewDecoder(guest)
		enc := protocol.NewEncoder(guest)
		f, err := dec.Decode()
		if err != nil {
			return
		}
		enc.Encode(protocol.Frame{ID: f.ID, Return: []byte(`{"pid":99}`)})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := ep.Call(ctx, protocol.CmdQueryProcessPid, nil)
	require.NoError(t, err)

	var pi protocol.ProcessInfoReturn
	require.NoError(t, (protocol.Frame{Return: resp}).DecodeReturn(&pi))
	assert.Equal(t, 99, pi.Pid)
}

func TestOneInFlightAtATime(t *testing.T) {
	ep, guest := newTestEndpoint(t)
	defer guest.Close()

	seen := make(chan int64, 8)
	go func() {
		dec := protocol.NewDecoder(guest)
		enc := protocol.NewEncoder(guest)
		for i := 0; i < 3; i++ {
			f, err := dec.Decode()
			if err != nil {
				return
			}
			seen <- f.ID
			// Deliberately slow to prove the regulator waits.
			time.Sleep(20 * time.Millisecond)
			enc.Encode(protocol.Frame{ID: f.ID, Return: []byte(`{}`)})
		}
	}()

	pm1, err := ep.Enqueue(protocol.CmdSendKbdReset, nil)
	require.NoError(t, err)
	pm2, err := ep.Enqueue(protocol.CmdSendKbdReset, nil)
	require.NoError(t, err)
	pm3, err := ep.Enqueue(protocol.CmdSendKbdReset, nil)
	require.NoError(t, err)

	first := <-seen
	assert.Equal(t, pm1.ID, first)
	// Before the first response arrives, nothing else should have been sent.
	select {
	case id := <-seen:
		t.Fatalf("second request %d sent before first resolved", id)
	case <-time.After(5 * time.Millisecond):
	}

	_, err1 := pm1.Wait()
	require.NoError(t, err1)
	second := <-seen
	assert.Equal(t, pm2.ID, second)

	_, err2 := pm2.Wait()
	require.NoError(t, err2)
	third := <-seen
	assert.Equal(t, pm3.ID, third)
	_, err3 := pm3.Wait()
	require.NoError(t, err3)
}

func TestDetachFailsPendingSenders(t *testing.T) {
	ep, guest := newTestEndpoint(t)

	pm, err := ep.Enqueue(protocol.CmdQueryKbdLeds, nil)
	require.NoError(t, err)

	guest.Close() // simulate remote close -> reader sees EOF

	_, waitErr := pm.Wait()
	assert.Error(t, waitErr)

	require.Eventually(t, func() bool { return !ep.IsActive() }, time.Second, 5*time.Millisecond)
}

func TestResponseIDMismatchIsDropped(t *testing.T) {
	ep, guest := newTestEndpoint(t)
	defer guest.Close()

	enc := protocol.NewEncoder(guest)
	dec := protocol.NewDecoder(guest)

	pm1, err := ep.Enqueue(protocol.CmdQueryKbdLeds, nil)
	require.NoError(t, err)
	_, err = ep.Enqueue(protocol.CmdQueryMouse, nil)
	require.NoError(t, err)

	f, err := dec.Decode()
	require.NoError(t, err)
	require.Equal(t, pm1.ID, f.ID)

	// Reply with the WRONG id (simulating S5 in spec.md §8): must not
	// resolve pm1.
	require.NoError(t, enc.Encode(protocol.Frame{ID: pm1.ID + 1, Return: []byte(`{}`)}))

	select {
	case <-pm1.done:
		t.Fatal("pm1 resolved despite id mismatch")
	case <-time.After(50 * time.Millisecond):
	}
}
