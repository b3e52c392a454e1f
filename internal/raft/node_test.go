package raft

import (
	"testing"
	"time"
)

// fakeTransport never actually dials anything; tests call the node's RPC
// handlers directly instead of driving real sockets.
type fakeTransport struct{}

func (fakeTransport) Send(address, requestLine string, callback func(response string)) {}

// fakeStore is a minimal in-memory Store for tests that don't care about
// journaling.
type fakeStore struct {
	applied []string
}

func (f *fakeStore) Apply(command string) string {
	f.applied = append(f.applied, command)
	return "OK\n"
}

func newTestNode(id int, peers []string) (*Node, *fakeStore) {
	store := &fakeStore{}
	n := New(Config{ID: id, Peers: peers}, fakeTransport{}, store)
	return n, store
}

func TestRequestVoteGrantsOnFreshTerm(t *testing.T) {
	n, _ := newTestNode(0, []string{"a", "b", "c"})

	resp := n.HandleRPC("RequestVote 1 1 0 0")
	if resp != "VoteGranted 1\n" {
		t.Errorf("RequestVote = %q, want VoteGranted 1", resp)
	}
}

func TestRequestVoteDeniedOnStaleTerm(t *testing.T) {
	n, _ := newTestNode(0, []string{"a", "b", "c"})
	n.mu.Lock()
	n.currentTerm = 5
	n.mu.Unlock()

	resp := n.HandleRPC("RequestVote 2 1 0 0")
	if resp != "VoteDenied 5\n" {
		t.Errorf("RequestVote = %q, want VoteDenied 5", resp)
	}
}

func TestRequestVoteDeniedWhenAlreadyVotedForOther(t *testing.T) {
	n, _ := newTestNode(0, []string{"a", "b", "c"})

	first := n.HandleRPC("RequestVote 1 1 0 0")
	if first != "VoteGranted 1\n" {
		t.Fatalf("first RequestVote = %q", first)
	}

	second := n.HandleRPC("RequestVote 1 2 0 0")
	if second != "VoteDenied 1\n" {
		t.Errorf("second RequestVote = %q, want VoteDenied 1", second)
	}
}

func TestAppendEntriesRejectsLogMismatch(t *testing.T) {
	n, _ := newTestNode(0, []string{"a", "b", "c"})

	// prevLogIndex=5 doesn't exist yet in a brand-new log.
	resp := n.HandleRPC("AppendEntries 1 1 5 1 0")
	if resp != "Fail 1\n" {
		t.Errorf("AppendEntries = %q, want Fail 1", resp)
	}
}

func TestAppendEntriesAppliesCommittedEntries(t *testing.T) {
	n, store := newTestNode(1, []string{"a", "b", "c"})

	line := encodeAppendEntries(1, 0, 0, 0, 1, []LogEntry{{Term: 1, Command: "SET x 1"}})
	resp := n.HandleRPC(line)
	if resp != "Success 1\n" {
		t.Fatalf("AppendEntries = %q, want Success 1", resp)
	}

	n.mu.Lock()
	applied := n.lastApplied
	n.mu.Unlock()

	if applied != 1 {
		t.Errorf("lastApplied = %d, want 1", applied)
	}
	if len(store.applied) != 1 || store.applied[0] != "SET x 1" {
		t.Errorf("store.applied = %v, want [SET x 1]", store.applied)
	}
}

func TestAppendEntriesTruncatesDivergentTail(t *testing.T) {
	n, _ := newTestNode(0, []string{"a", "b"})

	n.mu.Lock()
	n.log = append(n.log, LogEntry{Term: 1, Command: "SET a 1"}, LogEntry{Term: 1, Command: "SET b 2"})
	n.mu.Unlock()

	line := encodeAppendEntries(2, 1, 1, 1, 0, []LogEntry{{Term: 2, Command: "SET c 3"}})
	resp := n.HandleRPC(line)
	if resp != "Success 2\n" {
		t.Fatalf("AppendEntries = %q, want Success 2", resp)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.log) != 3 {
		t.Fatalf("log length = %d, want 3", len(n.log))
	}
	if n.log[2].Command != "SET c 3" {
		t.Errorf("log[2].Command = %q, want SET c 3", n.log[2].Command)
	}
}

func TestSubmitRedirectsWhenNotLeader(t *testing.T) {
	n, _ := newTestNode(0, []string{"a", "b", "c"})

	done := make(chan string, 1)
	n.Submit("SET x 1", func(response string) { done <- response })

	select {
	case resp := <-done:
		if resp != "NOT_LEADER\n" {
			t.Errorf("Submit on follower = %q, want NOT_LEADER\\n", resp)
		}
	case <-time.After(time.Second):
		t.Fatal("callback never fired")
	}
}

func TestSubmitRedirectsWithLeaderHint(t *testing.T) {
	n, _ := newTestNode(0, []string{"a", "b", "c"})
	n.mu.Lock()
	n.currentLeaderID = 1
	n.mu.Unlock()

	done := make(chan string, 1)
	n.Submit("SET x 1", func(response string) { done <- response })

	resp := <-done
	if resp != "NOT_LEADER b\n" {
		t.Errorf("Submit with leader hint = %q, want NOT_LEADER b\\n", resp)
	}
}

func TestSubmitAsLeaderAppendsAndRegistersCallback(t *testing.T) {
	n, _ := newTestNode(0, []string{"a", "b", "c"})
	n.mu.Lock()
	n.role = Leader
	n.currentTerm = 1
	n.currentLeaderID = 0
	for i := range n.peers {
		n.nextIndex[i] = len(n.log)
	}
	n.mu.Unlock()

	n.Submit("SET x 1", func(response string) {})

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.log) != 2 {
		t.Fatalf("log length = %d, want 2", len(n.log))
	}
	if _, ok := n.callbacks[1]; !ok {
		t.Errorf("callback for index 1 not registered")
	}
}

func TestStepDownFailsPendingCallbacks(t *testing.T) {
	n, _ := newTestNode(0, []string{"a", "b", "c"})

	n.mu.Lock()
	n.role = Leader
	n.currentTerm = 1
	n.log = append(n.log, LogEntry{Term: 1, Command: "SET x 1"})
	done := make(chan string, 1)
	n.callbacks[1] = func(response string) { done <- response }
	n.stepDownLocked(2)
	n.mu.Unlock()

	select {
	case resp := <-done:
		if resp != "NOT_LEADER\n" {
			t.Errorf("orphaned callback = %q, want NOT_LEADER\\n", resp)
		}
	case <-time.After(time.Second):
		t.Fatal("orphaned callback never fired")
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.role != Follower {
		t.Errorf("role after step down = %v, want Follower", n.role)
	}
	if n.currentTerm != 2 {
		t.Errorf("term after step down = %d, want 2", n.currentTerm)
	}
}

func TestAdvanceCommitIndexRequiresCurrentTermEntry(t *testing.T) {
	n, _ := newTestNode(0, []string{"a", "b", "c"})

	n.mu.Lock()
	n.role = Leader
	n.currentTerm = 2
	n.log = append(n.log,
		LogEntry{Term: 1, Command: "SET x 1"}, // index 1, old term
		LogEntry{Term: 2, Command: "SET y 2"}, // index 2, current term
	)
	n.matchIndex[1] = 2
	n.matchIndex[2] = 2
	n.advanceCommitIndexLocked()
	commit := n.commitIndex
	n.mu.Unlock()

	if commit != 2 {
		t.Errorf("commitIndex = %d, want 2", commit)
	}
}

func TestAdvanceCommitIndexDoesNotCommitOldTermAlone(t *testing.T) {
	n, _ := newTestNode(0, []string{"a", "b", "c"})

	n.mu.Lock()
	n.role = Leader
	n.currentTerm = 2
	n.log = append(n.log, LogEntry{Term: 1, Command: "SET x 1"})
	n.matchIndex[1] = 1
	n.matchIndex[2] = 1
	n.advanceCommitIndexLocked()
	commit := n.commitIndex
	n.mu.Unlock()

	if commit != 0 {
		t.Errorf("commitIndex = %d, want 0 (an old-term entry must not commit alone)", commit)
	}
}
