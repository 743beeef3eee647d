package transcoder

import "testing"

func TestParseProgress(t *testing.T) {
	tests := []struct {
		name string
		line string
		ok   bool
		want Progress
	}{
		{
			name: "full status line",
			line: "frame=  123 fps= 25 q=28.0 size=    1024KiB time=00:00:04.92 bitrate=1704.4kbits/s dup=1 drop=2 speed=1.23x",
			ok:   true,
			want: Progress{Frame: 123, FPS: 25, Dup: 1, Drop: 2, Speed: 1.23, HasDup: true, HasDrop: true},
		},
		{
			name: "no dup or drop counters",
			line: "frame=   10 fps=0.0 q=-1.0 size=       0KiB time=00:00:00.40 bitrate=   0.9kbits/s speed=0.801x",
			ok:   true,
			want: Progress{Frame: 10, FPS: 0, Speed: 0.801},
		},
		{
			name: "tightly packed values",
			line: "frame=9000 fps=30 speed=1x",
			ok:   true,
			want: Progress{Frame: 9000, FPS: 30, Speed: 1},
		},
		{
			name: "ordinary log line",
			line: "Stream mapping: Stream #0:0 -> #0:0 (h264 -> libx264)",
			ok:   false,
		},
		{
			name: "empty line",
			line: "",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseProgress(tt.line)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if got != tt.want {
				t.Errorf("ParseProgress() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
