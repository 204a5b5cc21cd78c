package filestore

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports changes to one run's state document, such as a selection
// made from another process.
type Watcher struct {
	Changes <-chan struct{} // Receives once per debounced burst of writes

	path    string
	changes chan struct{}
	done    chan struct{}
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher for the state document of runID. The run
// directory must exist.
func (b *Backend) NewWatcher(runID string) (*Watcher, error) {
	if err := checkRunID(runID); err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: atomic saves replace the file, which drops a
	// watch on the file itself.
	if err := fw.Add(b.RunDir(runID)); err != nil {
		fw.Close()
		return nil, err
	}

	ch := make(chan struct{}, 1)
	w := &Watcher{
		Changes: ch,
		path:    b.StatePath(runID),
		changes: ch,
		done:    make(chan struct{}),
		watcher: fw,
	}
	go w.loop()
	return w, nil
}

// Stop closes the watcher and its channel.
func (w *Watcher) Stop() {
	w.watcher.Close()
	<-w.done // Wait for loop to exit
	close(w.changes)
}

func (w *Watcher) loop() {
	defer close(w.done)

	const debounce = 100 * time.Millisecond
	var pending time.Time
	ticker := time.NewTicker(debounce)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				if !pending.IsZero() {
					w.notify()
				}
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = time.Now()
			}

		case <-ticker.C:
			if !pending.IsZero() && time.Since(pending) >= debounce {
				w.notify()
				pending = time.Time{}
			}

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Ignore watch errors; they're non-fatal.
		}
	}
}

// notify coalesces: if a change is already queued the new one is dropped.
func (w *Watcher) notify() {
	select {
	case w.changes <- struct{}{}:
	default:
	}
}
