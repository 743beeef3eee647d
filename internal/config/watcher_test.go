package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWatcherReloadOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"info\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	loader := func(p string) (string, error) {
		data, err := os.ReadFile(p)
		return string(data), err
	}

	w := NewConfigWatcher(path, loader, testLogger(), WithDebounce[string](50*time.Millisecond))
	reloaded := make(chan string, 1)
	w.OnReload(func(content string) {
		select {
		case reloaded <- content:
		default:
		}
	})

	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"debug\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case content := <-reloaded:
		if content == "" {
			t.Error("reload delivered empty content")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for reload notification")
	}
}

func TestWatcherUnsubscribe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}

	loader := func(p string) (string, error) { return "", nil }
	w := NewConfigWatcher(path, loader, testLogger())

	called := false
	unsub := w.OnReload(func(string) { called = true })
	unsub()

	w.loadAndNotify()
	if called {
		t.Error("handler called after unsubscribe")
	}
}

func TestWatcherStartMissingFile(t *testing.T) {
	w := NewConfigWatcher("/nonexistent/config.toml", func(string) (string, error) { return "", nil }, testLogger())
	if err := w.Start(); err == nil {
		w.Stop()
		t.Error("expected error watching missing file")
	}
}
