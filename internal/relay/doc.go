// Package relay implements the per-connection stream relay: each
// accepted WebSocket connection is bound to one Session that owns the
// connection, at most one transcoding subprocess, and the plumbing
// between them. Inbound binary frames are forwarded to the subprocess
// in receive order; subprocess output chunks are forwarded back to the
// client in emit order. A single global Monitor probes all registered
// sessions with transport-level pings and evicts unresponsive ones.
//
// All per-session failures are contained within that session. A failed
// transcoder spawn leaves the session registered in degraded mode:
// the connection stays open, control frames keep working, and data
// frames are dropped until the client disconnects.
package relay
