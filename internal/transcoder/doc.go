// Package transcoder manages one external transcoding subprocess per
// relay session. The process is treated as a black box with a
// byte-stream-in/byte-stream-out contract: media bytes are written to
// its stdin, transformed output is read from its stdout in emit order,
// and stderr diagnostics are parsed for log level and routed through
// the logging system. They are never forwarded to the client.
//
// Lifecycle: Start spawns eagerly and fails with *SpawnError when the
// binary cannot be launched; the caller treats that as recoverable.
// Write fails with *WriteError once the input side is closed (process
// exited or terminated); the caller drops the frame. Terminate sends
// SIGINT, arms a forced SIGKILL after a grace period, and is
// idempotent. Exit is observed asynchronously through the OnExit
// callback, which fires exactly once per process instance.
package transcoder
