package raft

// Transport is the node's only dependency on the network. It establishes
// a connection to address, writes requestLine terminated by a newline,
// reads one line of response, and invokes callback with it (including the
// trailing newline). Any connect/write/read failure invokes callback with
// the sentinel "RPC_FAILED\n" exactly once. The callback must be delivered
// on a goroutine, never inline from within Send, so Send itself never
// blocks its caller beyond issuing the request.
type Transport interface {
	Send(address, requestLine string, callback func(response string))
}
