// Package watch classifies filesystem events from the session directory
// tree into WatchEvent values and hands them to a consumer through a
// single-producer/single-consumer channel. The watching primitive
// itself (fsnotify) is an external collaborator per spec.md's scope —
// this package's job is only the create/modify/remove + path-shape
// classification described in spec.md §4.M/N.
package watch

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Kind names the four event shapes the core cares about.
type Kind string

const (
	NewSession      Kind = "new_session"
	SessionUpdated  Kind = "session_updated"
	SubagentCreated Kind = "subagent_created"
	FileDeleted     Kind = "file_deleted"
)

// Event is the classified, debounced event the watcher emits.
type Event struct {
	Kind Kind
	Path string
}

// Watcher wraps an fsnotify.Watcher, classifying raw events and
// debouncing rapid repeated writes to the same file before emitting on
// Events. Its producer goroutine is the sole writer to Events; a
// consumer drains it without blocking the producer (the channel is
// buffered, and sends beyond capacity are dropped rather than blocking
// the watch loop).
type Watcher struct {
	fsw         *fsnotify.Watcher
	Events      chan Event
	Errors      chan error
	debounce    time.Duration
	seen        map[string]bool // path -> whether NewSession has already fired
	pending     map[string]time.Time
	stop        chan struct{}
	done        chan struct{}
}

// New creates a Watcher with a default debounce window tuned for
// transcript append bursts (a single turn can emit many JSONL lines in
// quick succession).
func New() (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fsw:      fsw,
		Events:   make(chan Event, 256),
		Errors:   make(chan error, 16),
		debounce: 500 * time.Millisecond,
		seen:     make(map[string]bool),
		pending:  make(map[string]time.Time),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// SetDebounce overrides the default debounce window. Call before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// AddRoot registers one directory for watching. The watch is not
// recursive: subdirectories, such as a session's subagents/ folder, are
// not watched unless they are added with their own AddRoot call.
func (w *Watcher) AddRoot(root string) error {
	return w.fsw.Add(root)
}

// Start begins the classification loop in a background goroutine. It
// returns immediately; call Stop to shut it down.
func (w *Watcher) Start() {
	go w.run()
}

// Stop halts the watch loop and closes the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	close(w.stop)
	<-w.done
	return w.fsw.Close()
}

func (w *Watcher) run() {
	defer close(w.done)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.emitError(err)
		case <-ticker.C:
			w.flushDebounced()
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !strings.HasSuffix(ev.Name, ".jsonl") {
		return
	}
	if ev.Op&fsnotify.Remove != 0 || ev.Op&fsnotify.Rename != 0 {
		w.emit(Event{Kind: FileDeleted, Path: ev.Name})
		delete(w.seen, ev.Name)
		return
	}
	if ev.Op&fsnotify.Create == 0 && ev.Op&fsnotify.Write == 0 {
		return
	}
	w.pending[ev.Name] = time.Now()
}

func (w *Watcher) flushDebounced() {
	now := time.Now()
	for path, t := range w.pending {
		if now.Sub(t) < w.debounce {
			continue
		}
		delete(w.pending, path)
		w.classify(path)
	}
}

func (w *Watcher) classify(path string) {
	kind := SessionUpdated
	if isSubagentPath(path) {
		kind = SubagentCreated
	} else if !w.seen[path] {
		kind = NewSession
	}
	w.seen[path] = true
	w.emit(Event{Kind: kind, Path: path})
}

func isSubagentPath(path string) bool {
	return strings.Contains(filepath.ToSlash(path), "/subagents/")
}

func (w *Watcher) emit(e Event) {
	select {
	case w.Events <- e:
	default:
		// Consumer is behind; drop rather than block the watch loop. The
		// next ingestion pass will pick up the change via mtime anyway.
	}
}

func (w *Watcher) emitError(err error) {
	select {
	case w.Errors <- err:
	default:
	}
}
