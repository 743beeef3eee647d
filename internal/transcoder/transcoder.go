package transcoder

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/avolkhov/relaynode/internal/metrics"
)

const outputBufferSize = 32 * 1024

// Options configures a Subprocess.
type Options struct {
	// Binary is the transcoder executable path.
	Binary string
	// Args is the full argument list, normally BuildArgs(...).
	Args []string
	// GraceTimeout is how long to wait after SIGINT before SIGKILL.
	GraceTimeout time.Duration
	// KillTimeout is how long to wait after SIGKILL before giving up.
	KillTimeout time.Duration
	// Logger receives lifecycle logs. Defaults to slog.Default().
	Logger *slog.Logger
	// DiagnosticLogger receives the subprocess stderr lines
	// (nil = Logger). Output is parsed with ParseLogLevel.
	DiagnosticLogger *slog.Logger
	// OnChunk is called with each stdout chunk, in emit order.
	// The slice is owned by the callee.
	OnChunk func(chunk []byte)
	// OnExit is called exactly once when the process exits.
	OnExit func(exitCode int)
}

// Subprocess wraps one external transcoding process: its input pipe,
// output pipe, diagnostic pipe, and termination protocol. A Subprocess
// is owned exclusively by one session and is never restarted; a
// respawn is a new Subprocess.
type Subprocess struct {
	sessionID string
	opts      Options

	cmd   *exec.Cmd
	stdin io.WriteCloser

	mu          sync.Mutex
	inputClosed bool
	terminated  bool

	done chan struct{} // closed after Wait returns
}

// New creates a subprocess wrapper for the given session. Call Start
// to actually spawn the process.
func New(sessionID string, opts Options) *Subprocess {
	if opts.GraceTimeout <= 0 {
		opts.GraceTimeout = 3 * time.Second
	}
	if opts.KillTimeout <= 0 {
		opts.KillTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DiagnosticLogger == nil {
		opts.DiagnosticLogger = opts.Logger
	}
	return &Subprocess{
		sessionID: sessionID,
		opts:      opts,
		done:      make(chan struct{}),
	}
}

// Start spawns the process and begins consuming its output and
// diagnostic streams. Returns *SpawnError if the binary cannot be
// launched; the caller must treat that as recoverable.
//
// The spawn and the cmd/stdin publication happen under the mutex so a
// racing Terminate either prevents the launch entirely or observes a
// live process it can signal. There is no window in which the process
// starts unsignalable.
func (s *Subprocess) Start() error {
	cmd := exec.Command(s.opts.Binary, s.opts.Args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &SpawnError{Binary: s.opts.Binary, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &SpawnError{Binary: s.opts.Binary, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &SpawnError{Binary: s.opts.Binary, Err: err}
	}

	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		_ = stdin.Close()
		return &SpawnError{Binary: s.opts.Binary, Err: ErrTerminated}
	}
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		return &SpawnError{Binary: s.opts.Binary, Err: err}
	}
	s.cmd = cmd
	s.stdin = stdin
	s.mu.Unlock()

	s.opts.Logger.Info("Transcoder started",
		"session_id", s.sessionID, "pid", cmd.Process.Pid, "binary", s.opts.Binary)

	outputDone := make(chan struct{}, 2)
	go func() {
		s.readOutput(stdout)
		outputDone <- struct{}{}
	}()
	go func() {
		s.streamDiagnostics(stderr)
		outputDone <- struct{}{}
	}()
	go s.wait(outputDone)

	return nil
}

// Write enqueues bytes on the process's stdin. Returns *WriteError if
// the input side is already closed; the caller must drop the frame and
// not retry.
//
// The pipe write happens outside the mutex: a stalled transcoder that
// stops draining stdin blocks the writer, and Terminate must still be
// able to take the lock and close the pipe to unblock it.
func (s *Subprocess) Write(p []byte) error {
	s.mu.Lock()
	if s.inputClosed || s.stdin == nil {
		s.mu.Unlock()
		return &WriteError{Err: ErrInputClosed}
	}
	stdin := s.stdin
	s.mu.Unlock()

	if _, err := stdin.Write(p); err != nil {
		s.mu.Lock()
		s.inputClosed = true
		s.mu.Unlock()
		return &WriteError{Err: err}
	}
	return nil
}

// Terminate closes the input pipe, sends SIGINT, and arms a forced
// SIGKILL after the grace period. Terminating twice is a no-op;
// terminating before Start prevents the process from ever starting.
func (s *Subprocess) Terminate() {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return
	}
	s.terminated = true
	cmd := s.cmd
	s.mu.Unlock()

	s.closeInput()

	if cmd == nil || cmd.Process == nil {
		return
	}
	s.opts.Logger.Info("Sending SIGINT to transcoder",
		"session_id", s.sessionID, "pid", cmd.Process.Pid)
	if err := cmd.Process.Signal(syscall.SIGINT); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.opts.Logger.Warn("Failed to send SIGINT", "session_id", s.sessionID, "error", err)
	}
	go s.enforceExit(cmd)
}

// Running reports whether the process has been started and has not yet exited.
func (s *Subprocess) Running() bool {
	s.mu.Lock()
	started := s.cmd != nil
	s.mu.Unlock()
	if !started {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Done returns a channel closed once the process has exited and its
// exit status has been collected.
func (s *Subprocess) Done() <-chan struct{} {
	return s.done
}

func (s *Subprocess) closeInput() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inputClosed {
		return
	}
	s.inputClosed = true
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
}

// enforceExit escalates to SIGKILL if the process outlives the grace period.
func (s *Subprocess) enforceExit(cmd *exec.Cmd) {
	select {
	case <-s.done:
		return
	case <-time.After(s.opts.GraceTimeout):
	}

	s.opts.Logger.Warn("Grace period expired, forcing kill",
		"session_id", s.sessionID, "timeout", s.opts.GraceTimeout)
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.opts.Logger.Error("Failed to kill transcoder", "session_id", s.sessionID, "error", err)
	}

	select {
	case <-s.done:
	case <-time.After(s.opts.KillTimeout):
		s.opts.Logger.Error("Transcoder did not exit after kill signal", "session_id", s.sessionID)
	}
}

// readOutput forwards stdout chunks in emit order.
func (s *Subprocess) readOutput(r io.Reader) {
	buf := make([]byte, outputBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 && s.opts.OnChunk != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.opts.OnChunk(chunk)
		}
		if err != nil {
			if err != io.EOF {
				s.opts.Logger.Debug("Transcoder output closed", "session_id", s.sessionID, "error", err)
			}
			return
		}
	}
}

// streamDiagnostics routes stderr lines through the diagnostic logger.
// Diagnostics are never forwarded to the client.
func (s *Subprocess) streamDiagnostics(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		level, msg := ParseLogLevel(scanner.Text())
		if progress, ok := ParseProgress(msg); ok {
			metrics.SetTranscoderFPS(s.sessionID, progress.FPS)
			metrics.SetTranscoderSpeed(s.sessionID, progress.Speed)
			if progress.HasDrop {
				metrics.SetTranscoderDroppedFrames(s.sessionID, float64(progress.Drop))
			}
			if progress.HasDup {
				metrics.SetTranscoderDuplicateFrames(s.sessionID, float64(progress.Dup))
			}
			s.opts.DiagnosticLogger.Debug(msg, "session_id", s.sessionID)
			continue
		}
		switch level {
		case "fatal", "panic", "error":
			s.opts.DiagnosticLogger.Error(msg, "session_id", s.sessionID)
		case "warning":
			s.opts.DiagnosticLogger.Warn(msg, "session_id", s.sessionID)
		case "verbose", "debug", "trace":
			s.opts.DiagnosticLogger.Debug(msg, "session_id", s.sessionID)
		default:
			s.opts.DiagnosticLogger.Info(msg, "session_id", s.sessionID)
		}
	}
	if err := scanner.Err(); err != nil {
		s.opts.Logger.Warn("Error reading transcoder diagnostics", "session_id", s.sessionID, "error", err)
	}
}

// wait collects the exit status after both output streams finish.
// The OnExit callback fires exactly once per process instance.
func (s *Subprocess) wait(outputDone <-chan struct{}) {
	<-outputDone
	<-outputDone

	err := s.cmd.Wait()

	s.mu.Lock()
	s.inputClosed = true
	s.mu.Unlock()
	close(s.done)

	metrics.DeleteSessionMetrics(s.sessionID)

	exitCode := exitCodeFromError(err)
	s.opts.Logger.Info("Transcoder exited", "session_id", s.sessionID, "exit_code", exitCode)
	if s.opts.OnExit != nil {
		s.opts.OnExit(exitCode)
	}
}

// exitCodeFromError extracts the exit code from a process error.
// Returns 0 for nil, the exit code for ExitError, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
