// Package notify watches a drop folder for new document files and feeds
// them into the build pipeline.
package notify

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// documentExtensions lists the file extensions treated as ingestible
// documents.
var documentExtensions = map[string]bool{
	".txt": true,
	".md":  true,
}

// DocumentWatcher watches an inbox directory and dispatches a callback for
// every document file dropped into it. Processed files are moved to a
// "processed" subdirectory so a restart never rebuilds them.
type DocumentWatcher struct {
	inbox     string
	processed string
	callback  func(path string)
	watcher   *fsnotify.Watcher
	done      chan struct{}
}

// NewDocumentWatcher creates a watcher for dir. The callback receives the
// path of each dropped document; it runs on the watcher goroutine, so slow
// work (a build) delays later documents rather than racing them.
func NewDocumentWatcher(dir string, callback func(path string)) *DocumentWatcher {
	return &DocumentWatcher{
		inbox:     dir,
		processed: filepath.Join(dir, "processed"),
		callback:  callback,
		done:      make(chan struct{}),
	}
}

// Start begins watching. Documents already sitting in the inbox are
// processed first, then new drops are handled as they arrive. Call Stop to
// clean up.
func (dw *DocumentWatcher) Start() error {
	if err := os.MkdirAll(dw.inbox, 0o700); err != nil {
		return err
	}
	if err := os.MkdirAll(dw.processed, 0o700); err != nil {
		return err
	}

	dw.drainExisting()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(dw.inbox); err != nil {
		_ = w.Close()
		return err
	}
	dw.watcher = w

	go dw.loop()
	log.Printf("notify: watching %s for documents", dw.inbox)
	return nil
}

// Stop shuts down the watcher and waits for the dispatch loop to exit.
// Safe to call when Start was never called or failed.
func (dw *DocumentWatcher) Stop() {
	if dw.watcher == nil {
		return
	}
	_ = dw.watcher.Close()
	<-dw.done
}

func (dw *DocumentWatcher) loop() {
	defer close(dw.done)
	for {
		select {
		case evt, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Create|fsnotify.Rename) != 0 && isDocument(evt.Name) {
				dw.processFile(evt.Name)
			}
		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("notify: watcher error: %v", err)
		}
	}
}

func (dw *DocumentWatcher) drainExisting() {
	entries, err := os.ReadDir(dw.inbox)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() && isDocument(entry.Name()) {
			dw.processFile(filepath.Join(dw.inbox, entry.Name()))
		}
	}
}

func (dw *DocumentWatcher) processFile(path string) {
	if _, err := os.Stat(path); err != nil {
		return // already consumed
	}

	if dw.callback != nil {
		dw.callback(path)
	}

	dest := filepath.Join(dw.processed, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		log.Printf("notify: could not archive %s: %v", filepath.Base(path), err)
	}
}

func isDocument(path string) bool {
	return documentExtensions[strings.ToLower(filepath.Ext(path))]
}
