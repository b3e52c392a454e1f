package raft

import (
	"github.com/krantius/raftkv/internal/logging"
)

// onElectionTimer fires when the election timer expires without having
// been reset by a valid AppendEntries or vote grant. It is a goroutine
// dispatched by time.AfterFunc, so it must acquire the lock itself before
// touching node state.
func (n *Node) onElectionTimer() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.started || n.stopped || n.role == Leader {
		return
	}

	n.startElectionLocked()
}

// startElectionLocked runs with n.mu held. It never blocks: every
// transport.Send call is async by contract.
func (n *Node) startElectionLocked() {
	n.role = Candidate
	n.currentTerm++
	n.votedFor = n.id
	n.currentLeaderID = -1
	n.votes = 1

	term := n.currentTerm
	logging.WithFields(logging.Fields{"id": n.id, "term": term}).Info("starting election")

	line := encodeRequestVote(term, n.id, n.lastLogIndex(), n.lastLogTerm())

	for i, addr := range n.peers {
		if i == n.id {
			continue
		}
		addr := addr
		n.transport.Send(addr, line, func(response string) {
			n.handleVoteReply(term, response)
		})
	}

	n.resetElectionTimerLocked()
}

// handleVoteReply is delivered on its own goroutine by the transport; it
// re-acquires the lock before touching node state.
func (n *Node) handleVoteReply(electionTerm int, response string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.stopped || response == RPCFailed {
		return
	}
	if n.role != Candidate || n.currentTerm != electionTerm {
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

	if result == "VoteGranted" {
		n.votes++
		if n.votes > n.quorum()-1 {
			n.becomeLeaderLocked()
		}
	}
}

// becomeLeaderLocked must only be called from Candidate, with n.mu held.
func (n *Node) becomeLeaderLocked() {
	if n.role != Candidate {
		return
	}

	n.role = Leader
	n.currentLeaderID = n.id
	n.electionTimer.Stop()

	for i := range n.peers {
		n.nextIndex[i] = len(n.log)
		n.matchIndex[i] = 0
	}

	logging.WithFields(logging.Fields{"id": n.id, "term": n.currentTerm}).Info("became leader")

	n.broadcastAppendEntriesLocked()
}

// requestVote handles an inbound RequestVote RPC and returns the response
// line. Called from the transport's dispatch goroutine; it acquires the
// lock itself.
func (n *Node) requestVote(args requestVoteArgs) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	if args.Term > n.currentTerm {
		n.stepDownLocked(args.Term)
	}

	if args.Term < n.currentTerm {
		return encodeVoteDenied(n.currentTerm)
	}

	logOK := args.LastLogTerm > n.lastLogTerm() ||
		(args.LastLogTerm == n.lastLogTerm() && args.LastLogIndex >= n.lastLogIndex())

	if args.Term == n.currentTerm && logOK && (n.votedFor == -1 || n.votedFor == args.CandidateID) {
		n.votedFor = args.CandidateID
		n.resetElectionTimerLocked()
		return encodeVoteGranted(n.currentTerm)
	}

	return encodeVoteDenied(n.currentTerm)
}

// stepDownLocked must be called with n.mu held.
func (n *Node) stepDownLocked(term int) {
	wasLeader := n.role == Leader

	n.currentTerm = term
	n.votedFor = -1
	n.currentLeaderID = -1
	n.role = Follower

	n.heartbeatTimer.Stop()
	n.resetElectionTimerLocked()

	if wasLeader {
		n.failAllCallbacksLocked()
	}
}
