package dropfolder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_RequiresDir(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty dir")
	}
}

func TestWatcher_HandlesNewFilesOnce(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, WithSettle(50*time.Millisecond), WithExtensions("pdf", ".PNG"), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 10)
	if err := w.Watch(ctx, func(ctx context.Context, path string) error {
		got <- path
		return nil
	}); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	t.Cleanup(func() { w.Close() })

	for name, body := range map[string]string{
		"notes.txt":   "ignored",
		".hidden.pdf": "ignored",
		"markup.pdf":  "%PDF-1.4",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}

	want := filepath.Join(dir, "markup.pdf")
	select {
	case path := <-got:
		if path != want {
			t.Fatalf("handled %s, want %s", path, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for markup.pdf")
	}

	// Rewriting a handled file does not hand it over again.
	if err := os.WriteFile(want, []byte("%PDF-1.5"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	select {
	case path := <-got:
		t.Fatalf("unexpected second hand-off: %s", path)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_HandlerErrorsDoNotStopWatching(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, WithSettle(20*time.Millisecond), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 10)
	if err := w.Watch(ctx, func(ctx context.Context, path string) error {
		got <- filepath.Base(path)
		return errors.New("upload failed")
	}); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	for _, name := range []string{"a.pdf", "b.pdf"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		select {
		case path := <-got:
			if path != name {
				t.Fatalf("handled %s, want %s", path, name)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %s", name)
		}
	}

	cancel()
	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("watch loop did not stop after cancel")
	}
}

func TestWatcher_MissingDir(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Watch(context.Background(), func(context.Context, string) error { return nil }); err == nil {
		t.Error("expected error watching a missing directory")
	}
}
