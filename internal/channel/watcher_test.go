package channel

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnYAMLChange(t *testing.T) {
	dir := t.TempDir()
	changed := make(chan struct{}, 4)
	w, err := NewWatcher(dir, func() { changed <- struct{}{} }, quietLogger())
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-changed:
		t.Fatal("non-YAML file triggered a reload")
	case <-time.After(100 * time.Millisecond):
	}

	if err := os.WriteFile(filepath.Join(dir, "Global.yml"), []byte("Formats: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("no reload after writing a channel unit")
	}
}
