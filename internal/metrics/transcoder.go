// Package metrics provides Prometheus gauges for per-session
// transcoder progress, parsed from the subprocess diagnostic stream.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transcoderFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "relaynode",
		Subsystem: "transcoder",
		Name:      "fps",
		Help:      "Current transcoder encoding FPS",
	}, []string{"session_id"})

	transcoderDroppedFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "relaynode",
		Subsystem: "transcoder",
		Name:      "dropped_frames_total",
		Help:      "Frames dropped by the transcoder",
	}, []string{"session_id"})

	transcoderDuplicateFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "relaynode",
		Subsystem: "transcoder",
		Name:      "duplicate_frames_total",
		Help:      "Frames duplicated by the transcoder",
	}, []string{"session_id"})

	transcoderSpeed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "relaynode",
		Subsystem: "transcoder",
		Name:      "processing_speed",
		Help:      "Transcoder processing speed multiplier",
	}, []string{"session_id"})
)

// SetTranscoderFPS sets the current FPS for a session.
func SetTranscoderFPS(sessionID string, fps float64) {
	transcoderFPS.WithLabelValues(sessionID).Set(fps)
}

// SetTranscoderDroppedFrames sets the dropped frame count for a session.
func SetTranscoderDroppedFrames(sessionID string, count float64) {
	transcoderDroppedFrames.WithLabelValues(sessionID).Set(count)
}

// SetTranscoderDuplicateFrames sets the duplicate frame count for a session.
func SetTranscoderDuplicateFrames(sessionID string, count float64) {
	transcoderDuplicateFrames.WithLabelValues(sessionID).Set(count)
}

// SetTranscoderSpeed sets the processing speed for a session.
func SetTranscoderSpeed(sessionID string, speed float64) {
	transcoderSpeed.WithLabelValues(sessionID).Set(speed)
}

// DeleteSessionMetrics removes all gauges for a session. Called on
// teardown so the metric surface does not grow unbounded.
func DeleteSessionMetrics(sessionID string) {
	transcoderFPS.DeleteLabelValues(sessionID)
	transcoderDroppedFrames.DeleteLabelValues(sessionID)
	transcoderDuplicateFrames.DeleteLabelValues(sessionID)
	transcoderSpeed.DeleteLabelValues(sessionID)
}
