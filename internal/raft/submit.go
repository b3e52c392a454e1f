package raft

import (
	"fmt"
	"strings"
)

// Submit is the client-facing entry point: append command to the log if
// this node is Leader and register callback to fire once it commits and
// applies; otherwise immediately redirect with a not-leader response. It
// never blocks on the network; the next heartbeat (or an eager broadcast,
// which this implementation performs) carries the new entry.
func (n *Node) Submit(command string, callback Callback) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.role != Leader {
		if n.currentLeaderID >= 0 && n.currentLeaderID < len(n.peers) {
			resp := fmt.Sprintf("NOT_LEADER %s\n", n.peers[n.currentLeaderID])
			go callback(resp)
		} else {
			go callback("NOT_LEADER\n")
		}
		return
	}

	n.log = append(n.log, LogEntry{Term: n.currentTerm, Command: command})
	idx := n.lastLogIndex()
	n.callbacks[idx] = callback

	n.broadcastAppendEntriesLocked()
}

// HandleRPC classifies and dispatches one inbound peer RPC line (without
// its trailing newline) and returns the response line, newline included.
// It is the only entry point the transport's RPC-handling path needs.
func (n *Node) HandleRPC(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "UnknownRPC\n"
	}

	switch fields[0] {
	case "RequestVote":
		args, err := decodeRequestVote(fields[1:])
		if err != nil {
			return "UnknownRPC\n"
		}
		return n.requestVote(args) + "\n"
	case "AppendEntries":
		args, err := decodeAppendEntries(fields[1:])
		if err != nil {
			return "UnknownRPC\n"
		}
		return n.appendEntries(args) + "\n"
	default:
		return "UnknownRPC\n"
	}
}
