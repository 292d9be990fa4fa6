// Package tools provides host command execution for the agent.
//
// Ownership boundary:
// - running one external program and capturing its output
// - mapping exit status and launch failures to exit codes
//
// Callers decide what a failure means on the wire.
package tools
