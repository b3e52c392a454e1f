// Package raft implements the leader-based log-replication consensus
// module: election with randomized timeouts, log replication with
// per-follower indices and linear backoff, commit-index advancement under
// quorum, safe step-down on stale terms, and callback hand-off to the
// client gateway once an entry is applied through the KVSM.
//
// One coarse mutex (Node.mu) protects every field below. The functions
// that run with it held never perform network I/O; network calls and
// callback delivery are always dispatched on their own goroutine, which
// re-acquires the mutex on entry. The KVSM's own mutex nests inside the
// node mutex during apply, never the other way around, so the KVSM's
// journal write and fsync happen while the node mutex is held.
package raft

import (
	"math/rand"
	"sync"
	"time"

	"github.com/krantius/raftkv/internal/logging"
)

// Store is the KVSM contract a Node applies committed entries through.
type Store interface {
	Apply(command string) string
}

// Node is one raft peer. It owns the term, vote, role, log, per-follower
// indices, commit index, applied index, pending client callbacks, and the
// election/heartbeat timers.
type Node struct {
	mu sync.Mutex

	id    int
	peers []string // address of every peer, including self at id
	cfg   Config

	currentTerm     int
	votedFor        int // -1 for none
	currentLeaderID int // -1 for none

	role Role
	log  []LogEntry // index 0 is the sentinel

	commitIndex int
	lastApplied int

	nextIndex  []int
	matchIndex []int
	votes      int

	callbacks map[int]Callback

	electionTimer  *time.Timer
	heartbeatTimer *time.Timer

	rng *rand.Rand

	transport Transport
	fsm       Store

	started bool
	stopped bool
}

// New creates a node in the Follower role with an empty log (just the
// sentinel). Start must be called to arm the election timer and begin
// serving.
func New(cfg Config, transport Transport, fsm Store) *Node {
	cfg = cfg.withDefaults()

	n := &Node{
		id:              cfg.ID,
		peers:           cfg.Peers,
		cfg:             cfg,
		votedFor:        -1,
		currentLeaderID: -1,
		role:            Follower,
		log:             []LogEntry{{Term: 0, Command: ""}},
		nextIndex:       make([]int, len(cfg.Peers)),
		matchIndex:      make([]int, len(cfg.Peers)),
		callbacks:       make(map[int]Callback),
		rng:             rand.New(rand.NewSource(time.Now().UnixNano() + int64(cfg.ID))),
		transport:       transport,
		fsm:             fsm,
	}

	n.electionTimer = time.AfterFunc(n.randomElectionTimeout(), n.onElectionTimer)
	n.electionTimer.Stop()
	n.heartbeatTimer = time.AfterFunc(cfg.HeartbeatInterval, n.onHeartbeatTimer)
	n.heartbeatTimer.Stop()

	return n
}

// Start arms the election timer. The node begins as a Follower and will
// call an election once the timer fires without a heartbeat resetting it.
func (n *Node) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()

	logging.WithField("id", n.id).Info("node starting")
	n.started = true
	n.resetElectionTimerLocked()
}

// Stop disarms both timers. A stopped node no longer starts elections or
// sends heartbeats; in-flight RPCs may still complete and will be
// ignored once their handlers observe n.stopped.
func (n *Node) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.stopped = true
	n.electionTimer.Stop()
	n.heartbeatTimer.Stop()

	logging.WithField("id", n.id).Info("node stopped")
}

// Status returns a snapshot of the node's state for the introspection API
// and tests. It only ever reads fields under the lock; it never issues
// RPCs.
func (n *Node) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()

	leaderHint := ""
	if n.currentLeaderID >= 0 && n.currentLeaderID < len(n.peers) {
		leaderHint = n.peers[n.currentLeaderID]
	}

	return Status{
		ID:          n.id,
		Role:        n.role,
		Term:        n.currentTerm,
		CommitIndex: n.commitIndex,
		LastApplied: n.lastApplied,
		LogLength:   len(n.log),
		LeaderHint:  leaderHint,
		NextIndex:   append([]int(nil), n.nextIndex...),
		MatchIndex:  append([]int(nil), n.matchIndex...),
	}
}

func (n *Node) randomElectionTimeout() time.Duration {
	lo, hi := n.cfg.ElectionTimeoutMin, n.cfg.ElectionTimeoutMax
	span := int64(hi - lo)
	if span <= 0 {
		return lo
	}
	return lo + time.Duration(n.rng.Int63n(span))
}

// resetElectionTimerLocked must be called with n.mu held. It never
// performs blocking I/O.
func (n *Node) resetElectionTimerLocked() {
	n.electionTimer.Stop()
	n.electionTimer.Reset(n.randomElectionTimeout())
}

func (n *Node) lastLogIndex() int { return len(n.log) - 1 }
func (n *Node) lastLogTerm() int  { return n.log[n.lastLogIndex()].Term }

func (n *Node) quorum() int { return len(n.peers)/2 + 1 }
