package transcoder

import (
	"fmt"
	"strconv"
)

// FilterParams holds the fixed, session-independent filter settings.
type FilterParams struct {
	// Contrast multiplier for the eq filter. Zero means 1.0 (unchanged).
	Contrast float64
}

// BuildArgs builds the ffmpeg argument list for the relay pipeline:
// media in on stdin, grayscale + contrast filter, low-latency MPEG-TS
// out on stdout. Every session runs the same argument set.
func BuildArgs(p FilterParams) []string {
	contrast := p.Contrast
	if contrast == 0 {
		contrast = 1.0
	}

	filter := fmt.Sprintf("hue=s=0,eq=contrast=%s", formatFloat(contrast))

	return []string{
		"-hide_banner",
		"-loglevel", "level+info",
		"-fflags", "nobuffer",
		"-flags", "low_delay",
		"-i", "pipe:0",
		"-vf", filter,
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-an",
		"-f", "mpegts",
		"pipe:1",
	}
}

// formatFloat renders a filter value without trailing zeros (1.2, not 1.20).
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
