// Package session owns the framed peer link used by both repository roles.
//
// Ownership boundary:
// - dialing with retry/backoff and optional TLS
// - the sequential frame read loop and its single lost notification
// - serialized frame writes
package session
