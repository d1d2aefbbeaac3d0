package notify

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReceivesDroppedDocument(t *testing.T) {
	dir := t.TempDir()
	received := make(chan string, 1)

	watcher := NewDocumentWatcher(dir, func(path string) {
		received <- path
	})
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	// Give fsnotify a moment to register
	time.Sleep(50 * time.Millisecond)

	doc := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(doc, []byte("Some document."), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	select {
	case path := <-received:
		if path != doc {
			t.Errorf("expected %s, got %s", doc, path)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for document event")
	}

	// The file is archived after processing.
	deadline := time.Now().Add(time.Second)
	for {
		if _, err := os.Stat(filepath.Join(dir, "processed", "notes.txt")); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("document was not moved to processed/")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatcherDrainsExistingDocuments(t *testing.T) {
	dir := t.TempDir()

	// Drop documents BEFORE starting the watcher.
	for _, name := range []string{"a.txt", "b.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("text"), 0o600); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	received := make(chan string, 10)
	watcher := NewDocumentWatcher(dir, func(path string) {
		received <- path
	})
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	time.Sleep(100 * time.Millisecond)

	if len(received) != 2 {
		t.Fatalf("expected 2 drained documents, got %d", len(received))
	}
}

func TestWatcherIgnoresNonDocuments(t *testing.T) {
	dir := t.TempDir()
	received := make(chan string, 1)

	watcher := NewDocumentWatcher(dir, func(path string) {
		received <- path
	})
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "image.png"), []byte{1, 2, 3}, 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	select {
	case path := <-received:
		t.Fatalf("unexpected callback for %s", path)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestStopWithoutStartReturns(t *testing.T) {
	watcher := NewDocumentWatcher(t.TempDir(), func(string) {})

	done := make(chan struct{})
	go func() {
		watcher.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked with no running watcher")
	}
}
