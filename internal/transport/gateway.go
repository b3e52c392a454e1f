package transport

import (
	"bufio"
	"fmt"
	"net"
	"strings"

	"github.com/krantius/raftkv/internal/logging"
	"github.com/krantius/raftkv/internal/raft"
)

// Node is the subset of *raft.Node the gateway needs to dispatch on.
type Node interface {
	HandleRPC(line string) string
	Submit(command string, callback raft.Callback)
}

// Gateway accepts client and peer connections and classifies each line by
// its first token: RequestVote/AppendEntries are peer RPCs, handled
// synchronously and one-shot per connection; anything else is a client
// command, submitted and kept alive for further commands on the same
// connection.
type Gateway struct {
	Node Node
}

// Listen blocks serving connections on addr until Accept returns an
// error, including when the listener is closed. Temporary Accept errors
// are not retried; any error ends Listen.
func (g *Gateway) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	logging.WithField("addr", addr).Info("gateway listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("accept on %s: %w", addr, err)
		}
		go g.handleConn(conn)
	}
}

func (g *Gateway) handleConn(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		first, _, _ := strings.Cut(line, " ")
		switch first {
		case "RequestVote", "AppendEntries":
			response := g.Node.HandleRPC(line)
			if _, err := conn.Write([]byte(response)); err != nil {
				return
			}
			// Peer RPC connections are one-shot.
			return
		default:
			done := make(chan struct{})
			g.Node.Submit(line, func(response string) {
				if _, err := conn.Write([]byte(response)); err != nil {
					logging.Debugf("client write failed: %v", err)
				}
				close(done)
			})
			<-done
		}
	}
}
