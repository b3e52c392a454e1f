// Package statusapi exposes a node's Status snapshot over HTTP for
// operational visibility. It never touches the consensus hot path: it
// takes the node's lock only to copy out a snapshot, and issues no RPCs.
package statusapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/krantius/raftkv/internal/raft"
)

// Node is the subset of *raft.Node the status API needs.
type Node interface {
	Status() raft.Status
}

// NewRouter builds the status API's routes. GET /status returns the
// node's current Status as JSON.
func NewRouter(node Node) *mux.Router {
	r := mux.NewRouter()
	r.Path("/status").Methods(http.MethodGet).HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(node.Status())
	})
	return r
}
