// Command raftkv starts one node of a fixed-size raft-replicated
// key-value cluster. Usage: raftkv <my_id> <peer0_addr> [peer1_addr] ...
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/krantius/raftkv/internal/kvstore"
	"github.com/krantius/raftkv/internal/logging"
	"github.com/krantius/raftkv/internal/raft"
	"github.com/krantius/raftkv/internal/statusapi"
	"github.com/krantius/raftkv/internal/transport"
)

const journalDir = "AOFs"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	myID, peers, err := parseArgs(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintf(os.Stderr, "usage: raftkv <my_id> <peer0_addr> [peer1_addr] ...\n")
		return 1
	}

	journalPath := fmt.Sprintf("%s/kv_store_%d.aof", journalDir, myID)
	store, err := kvstore.Open(journalPath)
	if err != nil {
		logging.Errorf("failed to open journal: %v", err)
		return 1
	}
	defer store.Close()

	tr := &transport.TCP{}
	node := raft.New(raft.Config{ID: myID, Peers: peers}, tr, store)

	gw := &transport.Gateway{Node: node}

	myAddr := peers[myID]
	go serveStatusAPI(node, myAddr)

	node.Start()
	logging.WithFields(logging.Fields{"id": myID, "addr": myAddr}).Info("raftkv node up")

	// Listen runs synchronously and for the life of the process: it only
	// returns once the acceptor itself fails (e.g. the address is already
	// bound), which per spec.md §7 is a fatal bootstrap error, not a
	// background condition to log and keep running past.
	if err := gw.Listen(myAddr); err != nil {
		logging.Errorf("gateway listener stopped: %v", err)
		return 1
	}
	return 0
}

// parseArgs validates the fixed bootstrap contract: a 0-based node id
// followed by one host:port per cluster member, self included.
func parseArgs(args []string) (int, []string, error) {
	if len(args) < 2 {
		return 0, nil, fmt.Errorf("expected <my_id> and at least one peer address")
	}

	id, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, nil, fmt.Errorf("invalid my_id %q: %w", args[0], err)
	}

	peers := args[1:]
	if id < 0 || id >= len(peers) {
		return 0, nil, fmt.Errorf("my_id %d out of range for %d peers", id, len(peers))
	}

	return id, peers, nil
}

// serveStatusAPI runs the read-only introspection HTTP endpoint on the
// node's own port plus 1000, purely for operational visibility.
func serveStatusAPI(node *raft.Node, myAddr string) {
	port, err := statusPort(myAddr)
	if err != nil {
		logging.Errorf("status API disabled, bad address %q: %v", myAddr, err)
		return
	}

	addr := fmt.Sprintf(":%d", port+1000)
	router := statusapi.NewRouter(node)
	logging.WithField("addr", addr).Info("status API listening")
	if err := http.ListenAndServe(addr, router); err != nil {
		logging.Errorf("status API stopped: %v", err)
	}
}

func statusPort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}
