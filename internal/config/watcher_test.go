package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bft-labs/telship/pkg/log"
)

func TestWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.toml", `sink = "stdout"`)

	var calls atomic.Int32
	w := NewWatcher(path, 50*time.Millisecond, func() { calls.Add(1) }, log.NewNoopLogger())
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Shutdown()

	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte(`sink = "http"`), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	// unrelated files in the same directory are ignored
	writeFile(t, dir, "other.toml", "x = 1")

	deadline := time.Now().Add(5 * time.Second)
	for calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("onChange never called")
		}
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(200 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("onChange called %d times, want 1 after debounce", got)
	}
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "nope", "config.toml"), 0, func() {}, log.NewNoopLogger())
	if err := w.Start(context.Background()); err == nil {
		w.Shutdown()
		t.Fatal("expected error for missing directory")
	}
}
