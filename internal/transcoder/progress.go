package transcoder

import (
	"strconv"
	"strings"
)

// Progress holds the counters ffmpeg reports on its periodic stderr
// status line (frame= fps= ... dup= drop= speed=).
type Progress struct {
	Frame   int64
	FPS     float64
	Dup     int64
	Drop    int64
	Speed   float64
	HasDup  bool
	HasDrop bool
}

// ParseProgress parses one status line. The level prefix must already
// be stripped (see ParseLogLevel). Returns false for any line that is
// not a status line.
func ParseProgress(line string) (Progress, bool) {
	if !strings.HasPrefix(line, "frame=") {
		return Progress{}, false
	}

	var p Progress
	for key, value := range progressFields(line) {
		switch key {
		case "frame":
			p.Frame, _ = strconv.ParseInt(value, 10, 64)
		case "fps":
			p.FPS, _ = strconv.ParseFloat(value, 64)
		case "dup":
			p.Dup, _ = strconv.ParseInt(value, 10, 64)
			p.HasDup = true
		case "drop":
			p.Drop, _ = strconv.ParseInt(value, 10, 64)
			p.HasDrop = true
		case "speed":
			p.Speed, _ = strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64)
		}
	}
	return p, true
}

// progressFields splits "frame=  123 fps= 25 speed=1.01x" into pairs.
// ffmpeg pads values with spaces after the '=', so key and value can
// land in separate whitespace-separated tokens.
func progressFields(line string) map[string]string {
	fields := make(map[string]string)
	tokens := strings.Fields(line)
	for i := 0; i < len(tokens); i++ {
		key, value, ok := strings.Cut(tokens[i], "=")
		if !ok {
			continue
		}
		if value == "" && i+1 < len(tokens) && !strings.Contains(tokens[i+1], "=") {
			i++
			value = tokens[i]
		}
		fields[key] = value
	}
	return fields
}
