package raft

import (
	"github.com/krantius/raftkv/internal/logging"
)

// onHeartbeatTimer fires every cfg.HeartbeatInterval while the node is a
// leader, carrying a fresh round of AppendEntries (empty or not) to every
// follower and rearming itself.
func (n *Node) onHeartbeatTimer() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.started || n.stopped || n.role != Leader {
		return
	}

	n.broadcastAppendEntriesLocked()
}

// broadcastAppendEntriesLocked runs with n.mu held and must only be called
// while the node is Leader. It sends each follower whatever entries it is
// behind on and rearms the heartbeat timer.
func (n *Node) broadcastAppendEntriesLocked() {
	if n.role != Leader {
		return
	}

	for i := range n.peers {
		if i == n.id {
			continue
		}
		n.sendAppendEntriesLocked(i)
	}

	n.heartbeatTimer.Stop()
	n.heartbeatTimer.Reset(n.cfg.HeartbeatInterval)
}

// sendAppendEntriesLocked must be called with n.mu held and the node in
// the Leader role.
func (n *Node) sendAppendEntriesLocked(peerIndex int) {
	term := n.currentTerm
	prevLogIndex := n.nextIndex[peerIndex] - 1
	if prevLogIndex < 0 {
		prevLogIndex = 0
	}
	prevLogTerm := n.log[prevLogIndex].Term

	entries := append([]LogEntry(nil), n.log[n.nextIndex[peerIndex]:]...)
	line := encodeAppendEntries(term, n.id, prevLogIndex, prevLogTerm, n.commitIndex, entries)

	addr := n.peers[peerIndex]
	n.transport.Send(addr, line, func(response string) {
		n.handleAppendEntriesReply(term, peerIndex, response)
	})
}

// handleAppendEntriesReply is delivered on its own goroutine; it
// re-acquires the lock before touching node state.
func (n *Node) handleAppendEntriesReply(sentTerm, peerIndex int, response string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.stopped || response == RPCFailed {
		return
	}
	if n.role != Leader || n.currentTerm != sentTerm {
		return
	}

	result, term, ok := parseReplyTermResult(response)
	if !ok {
		return
	}

	if term > n.currentTerm {
		n.stepDownLocked(term)
		return
	}

	switch result {
	case "Success":
		n.nextIndex[peerIndex] = len(n.log)
		n.matchIndex[peerIndex] = n.nextIndex[peerIndex] - 1
		n.advanceCommitIndexLocked()
	case "Fail":
		if n.nextIndex[peerIndex] > 1 {
			n.nextIndex[peerIndex]--
		}
	}
}

// advanceCommitIndexLocked scans down from the log tail for the highest
// index replicated on a quorum in the current term, per the usual raft
// commit rule: only a current-term entry can move the commit index
// directly, earlier terms ride along transitively.
func (n *Node) advanceCommitIndexLocked() {
	for idx := n.lastLogIndex(); idx > n.commitIndex; idx-- {
		if n.log[idx].Term != n.currentTerm {
			continue
		}

		count := 1 // self
		for i := range n.peers {
			if i != n.id && n.matchIndex[i] >= idx {
				count++
			}
		}

		if count >= n.quorum() {
			n.commitIndex = idx
			break
		}
	}

	n.applyCommittedLocked()
}

// applyCommittedLocked drives last_applied up to commit_index, applying
// each entry through the KVSM in order and firing any registered client
// callback. It runs with n.mu held; the KVSM's own mutex nests inside it,
// never the other way around.
func (n *Node) applyCommittedLocked() {
	for n.lastApplied < n.commitIndex {
		n.lastApplied++
		idx := n.lastApplied

		result := n.fsm.Apply(n.log[idx].Command)

		if cb, ok := n.callbacks[idx]; ok {
			delete(n.callbacks, idx)
			go cb(result)
		}
	}
}

// failAllCallbacksLocked fulfills every pending client callback with a
// not-leader failure so callers never hang when a leader steps down with
// unapplied entries still outstanding.
func (n *Node) failAllCallbacksLocked() {
	for idx, cb := range n.callbacks {
		delete(n.callbacks, idx)
		go cb("NOT_LEADER\n")
	}
}

// appendEntries handles an inbound AppendEntries RPC and returns the
// response line. Called from the transport's dispatch goroutine; it
// acquires the lock itself.
func (n *Node) appendEntries(args appendEntriesArgs) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	if args.Term > n.currentTerm {
		n.stepDownLocked(args.Term)
	}
	if args.Term < n.currentTerm {
		return encodeFail(n.currentTerm)
	}

	n.resetElectionTimerLocked()

	if n.currentLeaderID != args.LeaderID {
		logging.WithFields(logging.Fields{"id": n.id, "leader": args.LeaderID}).Info("acknowledging new leader")
	}
	n.currentLeaderID = args.LeaderID
	if n.role == Candidate {
		n.role = Follower
	}

	if len(n.log) <= args.PrevLogIndex || n.log[args.PrevLogIndex].Term != args.PrevLogTerm {
		return encodeFail(n.currentTerm)
	}

	n.log = append(n.log[:args.PrevLogIndex+1], args.Entries...)

	if args.LeaderCommit > n.commitIndex {
		n.commitIndex = min(args.LeaderCommit, n.lastLogIndex())
	}

	n.applyCommittedLocked()

	return encodeSuccess(n.currentTerm)
}
