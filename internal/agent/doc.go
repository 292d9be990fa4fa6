// Package agent owns the remote side of relayctl.
//
// Ownership boundary:
// - dialing the hub and announcing an alias
// - the receive loop and its per-kind handling
// - running COMMAND payloads on a bounded worker pool
// - best-effort DISCONNECT on every exit path
//
// Command results are sent from worker goroutines through the same
// session.Conn as the receive loop; Conn serializes writers so frames
// never interleave.
package agent
