// Package watcher observes document files on disk for the lifecycle bridge,
// with debouncing so editor save bursts collapse into one notification batch.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/templens/internal/logging"
)

// EventType represents the kind of file change.
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType.
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileEvent is one observed file change.
type FileEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
}

// FileFilter reports whether a path should be observed.
type FileFilter func(path string) bool

// ChangeHandler consumes a debounced batch of file events.
type ChangeHandler func(events []FileEvent)

// ExtensionFilter builds a filter accepting only the given extensions.
func ExtensionFilter(extensions []string) FileFilter {
	return func(path string) bool {
		ext := filepath.Ext(path)
		for _, want := range extensions {
			if ext == want {
				return true
			}
		}
		return false
	}
}

// FileWatcher wraps fsnotify with filtering and debouncing.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	logger   logging.Logger
	delay    time.Duration
	filters  []FileFilter
	handlers []ChangeHandler

	mutex   sync.Mutex
	pending []FileEvent
	timer   *time.Timer
}

// NewFileWatcher creates a watcher with the given debounce delay.
func NewFileWatcher(delay time.Duration, logger logging.Logger) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &FileWatcher{
		watcher: w,
		logger:  logger.WithComponent("watcher"),
		delay:   delay,
	}, nil
}

// AddFilter adds a file filter. All filters must accept a path for its
// events to pass through.
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.filters = append(fw.filters, filter)
}

// AddHandler adds a batch handler. Handlers run on the watcher goroutine.
func (fw *FileWatcher) AddHandler(handler ChangeHandler) {
	fw.handlers = append(fw.handlers, handler)
}

// AddRecursive watches root and all its subdirectories.
func (fw *FileWatcher) AddRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return fw.watcher.Add(path)
		}
		return nil
	})
}

// Start runs the watch loop until ctx is cancelled.
func (fw *FileWatcher) Start(ctx context.Context) {
	go fw.watchLoop(ctx)
}

// Stop closes the underlying watcher.
func (fw *FileWatcher) Stop() error {
	fw.mutex.Lock()
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.mutex.Unlock()
	return fw.watcher.Close()
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn(ctx, err, "watch error")
		}
	}
}

func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	for _, filter := range fw.filters {
		if !filter(event.Name) {
			return
		}
	}

	var eventType EventType
	switch {
	case event.Op&fsnotify.Create != 0:
		eventType = EventTypeCreated
	case event.Op&fsnotify.Write != 0:
		eventType = EventTypeModified
	case event.Op&fsnotify.Remove != 0:
		eventType = EventTypeDeleted
	case event.Op&fsnotify.Rename != 0:
		eventType = EventTypeRenamed
	default:
		eventType = EventTypeModified
	}

	var modTime time.Time
	if info, err := os.Stat(event.Name); err == nil {
		modTime = info.ModTime()
	}

	fw.addPending(FileEvent{Type: eventType, Path: event.Name, ModTime: modTime})
}

// addPending queues an event and resets the debounce timer.
func (fw *FileWatcher) addPending(event FileEvent) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()

	fw.pending = append(fw.pending, event)
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timer = time.AfterFunc(fw.delay, fw.flush)
}

func (fw *FileWatcher) flush() {
	fw.mutex.Lock()
	events := fw.pending
	fw.pending = nil
	fw.mutex.Unlock()

	if len(events) == 0 {
		return
	}
	for _, handler := range fw.handlers {
		handler(events)
	}
}
