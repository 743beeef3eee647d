package transcoder

import (
	"errors"
	"fmt"
)

// ErrInputClosed is returned (wrapped in *WriteError) when writing to a
// subprocess whose input side has been closed.
var ErrInputClosed = errors.New("transcoder input closed")

// ErrTerminated is returned (wrapped in *SpawnError) by Start when the
// subprocess was terminated before it was started.
var ErrTerminated = errors.New("transcoder already terminated")

// SpawnError indicates the transcoder binary could not be launched
// (not found, permission denied). It is recoverable: the owning session
// enters degraded mode instead of tearing down the connection.
type SpawnError struct {
	Binary string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn transcoder %q: %v", e.Binary, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// WriteError indicates a write to a closed or broken subprocess input
// channel. The caller must not retry; the frame is dropped.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write to transcoder: %v", e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
