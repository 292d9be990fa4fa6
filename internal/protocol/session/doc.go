// Package session owns framed hub<->agent connections.
//
// Ownership boundary:
// - one Conn per TCP connection, shared by every goroutine that sends on it
// - serialized writes so frames never interleave
// - transport timeouts and frame limits
//
// A Conn has a single reader. Hub connection handlers and the agent receive
// loop are that reader; everything else only sends.
package session
