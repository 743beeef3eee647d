package relay

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Monitor is the single liveness sweeper shared by all sessions. One
// ticker probes every registered session; sessions whose probes go
// unanswered beyond the timeout are torn down through the normal
// teardown path.
type Monitor struct {
	registry *Registry
	period   time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	stopped  chan struct{}
}

// NewMonitor creates a liveness monitor over the registry. period is
// the probe interval, timeout the maximum unanswered-probe window.
func NewMonitor(registry *Registry, period, timeout time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		registry: registry,
		period:   period,
		timeout:  timeout,
		logger:   logger,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start launches the sweep loop. Call Stop to end it.
func (m *Monitor) Start() {
	if m.started.CompareAndSwap(false, true) {
		go m.run()
	}
}

// Stop ends the sweep loop and waits for the in-flight sweep, if any,
// to finish. Idempotent; safe on a monitor that was never started.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	if m.started.Load() {
		<-m.stopped
	}
}

func (m *Monitor) run() {
	defer close(m.stopped)
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep evicts expired sessions, then probes the survivors. Eviction
// goes through Session.Teardown, so a session that disconnects or
// closes concurrently is destroyed exactly once.
func (m *Monitor) sweep() {
	m.registry.ForEach(func(s *Session) {
		if s.LivenessExpired(m.timeout) {
			m.logger.Info("Evicting unresponsive session", "session_id", s.ID(), "last_seen", s.LastSeen())
			livenessEvictions.Inc()
			s.Teardown("liveness timeout")
			return
		}
		s.SendProbe()
	})
}
