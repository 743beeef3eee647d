// Prometheus metrics for the relay core.
package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "relaynode",
		Subsystem: "relay",
		Name:      "sessions_active",
		Help:      "Currently registered sessions",
	})

	sessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relaynode",
		Subsystem: "relay",
		Name:      "sessions_total",
		Help:      "Total sessions accepted since start",
	})

	framesForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relaynode",
		Subsystem: "relay",
		Name:      "frames_forwarded_total",
		Help:      "Inbound binary frames forwarded to a transcoder",
	})

	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relaynode",
		Subsystem: "relay",
		Name:      "frames_dropped_total",
		Help:      "Inbound binary frames dropped instead of forwarded",
	}, []string{"reason"})

	bytesIn = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relaynode",
		Subsystem: "relay",
		Name:      "bytes_in_total",
		Help:      "Media bytes received from clients",
	})

	bytesOut = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relaynode",
		Subsystem: "relay",
		Name:      "bytes_out_total",
		Help:      "Transcoded bytes relayed back to clients",
	})

	spawnFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relaynode",
		Subsystem: "transcoder",
		Name:      "spawn_failures_total",
		Help:      "Transcoder spawn failures (sessions entering degraded mode)",
	})

	transcodersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "relaynode",
		Subsystem: "transcoder",
		Name:      "processes_active",
		Help:      "Live transcoder subprocesses; never exceeds active sessions",
	})

	livenessEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relaynode",
		Subsystem: "relay",
		Name:      "liveness_evictions_total",
		Help:      "Sessions torn down by the liveness monitor",
	})
)

// Drop reasons for framesDropped.
const (
	dropReasonDegraded    = "degraded"
	dropReasonOverflow    = "overflow"
	dropReasonInputClosed = "input_closed"
)
