// Package protocol owns the wire contract shared by both connection roles.
//
// Ownership boundary:
// - message type tags (msgtypes.go)
// - datagram codec primitives (datagram/)
// - length-prefixed framing and the routing prefix (frame/)
// - class and field descriptions plus argument packing (schema/)
// - connection transport (session/)
package protocol
