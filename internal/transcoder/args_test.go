package transcoder

import (
	"slices"
	"strings"
	"testing"
)

func TestBuildArgsFilterChain(t *testing.T) {
	args := BuildArgs(FilterParams{Contrast: 1.2})

	idx := slices.Index(args, "-vf")
	if idx == -1 || idx+1 >= len(args) {
		t.Fatalf("no -vf in args: %v", args)
	}
	if args[idx+1] != "hue=s=0,eq=contrast=1.2" {
		t.Errorf("filter = %q", args[idx+1])
	}
}

func TestBuildArgsDefaultContrast(t *testing.T) {
	args := BuildArgs(FilterParams{})
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "eq=contrast=1") {
		t.Errorf("default contrast missing: %v", joined)
	}
}

func TestBuildArgsStreamingPipes(t *testing.T) {
	args := BuildArgs(FilterParams{Contrast: 1.2})
	joined := strings.Join(args, " ")

	for _, want := range []string{"-i pipe:0", "-f mpegts pipe:1", "-tune zerolatency"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %v", want, joined)
		}
	}
}
