package lifecycle

import (
	"net"

	"github.com/xfeldman/qips/internal/protocol"
)

// newHostConn returns one end of a net.Pipe whose other end is serviced by
// a goroutine that immediately acknowledges every request with an empty
// return frame. The privileged host client (slot 0) is synthetic — spec.md
// §6 gives it no backing socket — but internal/client's regulator and
// reader still expect a real net.Conn; this keeps slot 0 protocol-
// conformant (every request it sends gets a prompt, empty response)
// without requiring the rest of the core to special-case it.
func newHostConn() net.Conn {
	local, loopback := net.Pipe()
	go serveLoopback(loopback)
	return local
}

// serveLoopback is the loopback side of newHostConn: it decodes whatever
// the host endpoint enqueues and answers immediately, forever, until the
// pipe is closed by Endpoint.Close.
func serveLoopback(conn net.Conn) {
	defer conn.Close()
	dec := protocol.NewDecoder(conn)
	enc := protocol.NewEncoder(conn)
	for {
		frame, err := dec.Decode()
		if err != nil {
			return
		}
		if err := enc.Encode(protocol.Frame{ID: frame.ID, Return: []byte(`{}`)}); err != nil {
			return
		}
	}
}
