// Package hub owns the coordinating side of relayctl.
//
// Ownership boundary:
// - accepting agent connections (one handler goroutine per connection)
// - the alias-indexed session registry shared by every handler
// - translating operator lines into outbound messages
// - surfacing agent output to the operator
//
// Connection lifecycle:
// - accepted -> identified (ALIAS) -> closed (DISCONNECT or connection loss)
//
// Registry operations are mutually exclusive; snapshots are copies taken
// under the same lock. Broadcasts are not atomic across sessions.
package hub
