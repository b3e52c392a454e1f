// Package transport is the node's network boundary: an outbound sender
// satisfying raft.Transport, and an inbound gateway that classifies each
// connection's lines as peer RPCs or client commands.
package transport

import (
	"bufio"
	"net"
	"time"

	"github.com/krantius/raftkv/internal/logging"
	"github.com/krantius/raftkv/internal/raft"
)

// TCP is the default raft.Transport: one connection per request, a single
// line written, a single line read back.
type TCP struct {
	DialTimeout time.Duration
}

var _ raft.Transport = (*TCP)(nil)

// Send dials address, writes requestLine, reads one line of response, and
// invokes callback with it. Any failure along the way synthesizes
// raft.RPCFailed instead of propagating an error. The whole operation
// runs on a freshly spawned goroutine so Send never blocks its caller.
func (t *TCP) Send(address, requestLine string, callback func(response string)) {
	go func() {
		callback(t.roundTrip(address, requestLine))
	}()
}

func (t *TCP) roundTrip(address, requestLine string) string {
	timeout := t.DialTimeout
	if timeout == 0 {
		timeout = 2 * time.Second
	}

	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		logging.WithField("addr", address).Debugf("dial failed: %v", err)
		return raft.RPCFailed
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(requestLine + "\n")); err != nil {
		logging.WithField("addr", address).Debugf("write failed: %v", err)
		return raft.RPCFailed
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		logging.WithField("addr", address).Debugf("read failed: %v", err)
		return raft.RPCFailed
	}

	return line
}
