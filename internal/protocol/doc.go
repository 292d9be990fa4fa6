// Package protocol owns the hub<->agent wire contract.
//
// Ownership boundary:
// - Message and its closed Kind set
// - message payload encoding (tlv fields validated by schema)
// - framing through the frame package
//
// One frame carries exactly one Message. Both ends share the same header
// width and text encoding; a mismatch is not recoverable mid-stream.
package protocol
