package orchestrator

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/ttr/internal/log"
)

// artifactWatch records artifact files created or written in a directory
// while a tool runs.
type artifactWatch struct {
	fsWatcher *fsnotify.Watcher
	settle    time.Duration
	done      chan struct{}
	stopped   chan struct{}

	mu    sync.Mutex
	order []string
	seen  map[string]bool
}

func startWatch(dir string, settle time.Duration) (*artifactWatch, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watching directory %s: %w", dir, err)
	}

	w := &artifactWatch{
		fsWatcher: fsw,
		settle:    settle,
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
		seen:      make(map[string]bool),
	}
	go w.loop()
	return w, nil
}

func (w *artifactWatch) loop() {
	defer close(w.stopped)
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !isArtifactName(filepath.Base(event.Name)) {
				continue
			}
			w.mu.Lock()
			if !w.seen[event.Name] {
				w.seen[event.Name] = true
				w.order = append(w.order, event.Name)
			}
			w.mu.Unlock()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn(log.CatTool, "artifact watch error", "error", err)

		case <-w.done:
			return
		}
	}
}

// stop waits for in-flight events to settle, ends the watch, and returns the
// artifact paths seen in first-seen order.
func (w *artifactWatch) stop() []string {
	<-time.After(w.settle)
	close(w.done)
	<-w.stopped
	_ = w.fsWatcher.Close()

	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.order...)
}

// latest returns the most recently first-seen artifact.
func latest(paths []string) (string, error) {
	if len(paths) == 0 {
		return "", errNoArtifact
	}
	return paths[len(paths)-1], nil
}
