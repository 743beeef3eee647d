// Package cmd holds the cobra subcommands attached to the CLI root.
package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// requiredFilters are the video filters the relay pipeline depends on.
var requiredFilters = []string{"hue", "eq"}

// CreateValidateTranscoderCmd builds the validate-transcoder command.
// It probes the configured binary for availability, encoder support,
// and the filters the relay pipeline uses, without starting the server.
func CreateValidateTranscoderCmd() *cobra.Command {
	var binary string

	c := &cobra.Command{
		Use:   "validate-transcoder",
		Short: "Validate transcoder binary availability",
		Long:  `Probes the transcoder binary for version, libx264 encoder support, and the filters the relay pipeline requires.`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := runValidation(binary); err != nil {
				fmt.Fprintf(os.Stderr, "validation failed: %v\n", err)
				os.Exit(1)
			}
		},
	}
	c.Flags().StringVarP(&binary, "binary", "b", "ffmpeg", "Transcoder binary to probe")
	return c
}

func runValidation(binary string) error {
	path, err := exec.LookPath(binary)
	if err != nil {
		return fmt.Errorf("binary %q not found in PATH: %w", binary, err)
	}
	fmt.Printf("binary: %s\n", path)

	version, err := probe(path, "-version")
	if err != nil {
		return fmt.Errorf("probe version: %w", err)
	}
	if line, _, ok := strings.Cut(version, "\n"); ok {
		fmt.Printf("version: %s\n", line)
	}

	encoders, err := probe(path, "-hide_banner", "-encoders")
	if err != nil {
		return fmt.Errorf("probe encoders: %w", err)
	}
	if !strings.Contains(encoders, "libx264") {
		return fmt.Errorf("encoder libx264 not available")
	}
	fmt.Println("encoder libx264: ok")

	filters, err := probe(path, "-hide_banner", "-filters")
	if err != nil {
		return fmt.Errorf("probe filters: %w", err)
	}
	for _, f := range requiredFilters {
		if !containsFilter(filters, f) {
			return fmt.Errorf("filter %q not available", f)
		}
		fmt.Printf("filter %s: ok\n", f)
	}

	fmt.Println("transcoder validation passed")
	return nil
}

// probe runs the binary with a short timeout and returns combined output.
func probe(path string, args ...string) (string, error) {
	cmd := exec.Command(path, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Start(); err != nil {
		return "", err
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		return out.String(), err
	case <-time.After(10 * time.Second):
		_ = cmd.Process.Kill()
		<-done
		return out.String(), fmt.Errorf("probe timed out")
	}
}

// containsFilter matches a filter name in -filters output, where each
// line looks like " ... hue               V->V  Adjust the hue ...".
func containsFilter(output, name string) bool {
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		for _, f := range fields {
			if f == name {
				return true
			}
		}
	}
	return false
}
