// Package bridge translates editor and disk lifecycle events into snapshot
// manager mutations. It owns one logical document handle per (project,
// document) key; several project entries may share one physical file, so the
// mapping from file to handle entries is one-to-many.
//
// The bridge runs at the highest listener priority: document open/closed
// state must be correct before any other listener reacts to the same event.
// On a DocumentAdded event it checks whether the backing buffer is already
// open in the host editor and, if so, immediately issues the opened mutation.
// That add-then-open cascade is delivered in causal order by the
// notification queue.
package bridge

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/conneroisu/templens/internal/logging"
	"github.com/conneroisu/templens/internal/registry"
	"github.com/conneroisu/templens/internal/scheduler"
	"github.com/conneroisu/templens/internal/types"
	"github.com/conneroisu/templens/internal/watcher"
)

// BufferProvider abstracts the host editor's buffer table. Implementations
// report whether a file already has an open buffer and its current text.
type BufferProvider interface {
	OpenBuffer(path string) (text string, ok bool)
}

// NoBuffers is a BufferProvider for hosts without an editor attached.
type NoBuffers struct{}

// OpenBuffer implements BufferProvider.
func (NoBuffers) OpenBuffer(string) (string, bool) { return "", false }

// handle tracks the project entries sharing one physical file.
type handle struct {
	path    string
	entries map[types.ProjectKey]types.DocumentDescriptor
}

// watchedProject is a project registered with the bridge.
type watchedProject struct {
	descriptor types.ProjectDescriptor
	root       string
}

// Bridge is the external lifecycle collaborator of the snapshot core. All of
// its internal maps are touched on the foreground context only.
type Bridge struct {
	sched   *scheduler.Scheduler
	manager *registry.SnapshotManager
	buffers BufferProvider
	logger  logging.Logger

	projects map[types.ProjectKey]watchedProject
	handles  map[types.DocumentKey]*handle
}

// New creates a bridge routing mutations into manager on sched's foreground.
func New(sched *scheduler.Scheduler, manager *registry.SnapshotManager, buffers BufferProvider, logger logging.Logger) *Bridge {
	if buffers == nil {
		buffers = NoBuffers{}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Bridge{
		sched:    sched,
		manager:  manager,
		buffers:  buffers,
		logger:   logger.WithComponent("bridge"),
		projects: make(map[types.ProjectKey]watchedProject),
		handles:  make(map[types.DocumentKey]*handle),
	}
}

// Name implements notify.Listener.
func (b *Bridge) Name() string { return "lifecycle-bridge" }

// OnChange implements notify.Listener. Runs on the foreground context.
func (b *Bridge) OnChange(ctx context.Context, event types.ChangeEvent) {
	switch event.Type {
	case types.EventTypeDocumentAdded:
		b.documentAdded(ctx, event)
	case types.EventTypeDocumentRemoved:
		b.dropEntry(types.NewProjectKey(event.ProjectPath()), event.DocumentPath)
	case types.EventTypeProjectRemoved:
		b.dropProjectEntries(types.NewProjectKey(event.ProjectPath()))
	}
}

// documentAdded creates or reuses the handle for the new document and, when
// the backing buffer is already open in the host editor, issues the opened
// mutation. The resulting event is queued behind the one being delivered.
func (b *Bridge) documentAdded(ctx context.Context, event types.ChangeEvent) {
	if event.New == nil {
		return
	}
	doc, ok := event.New.Document(event.DocumentPath)
	if !ok {
		return
	}
	descriptor := doc.Descriptor()
	key := descriptor.Key()

	h, ok := b.handles[key]
	if !ok {
		h = &handle{
			path:    descriptor.Path,
			entries: make(map[types.ProjectKey]types.DocumentDescriptor),
		}
		b.handles[key] = h
	}
	h.entries[types.NewProjectKey(descriptor.ProjectPath)] = descriptor

	if text, open := b.buffers.OpenBuffer(descriptor.Path); open {
		b.logger.Debug(ctx, "buffer already open, cascading open",
			"document", descriptor.Path)
		b.manager.DocumentOpened(ctx, descriptor.ProjectPath, descriptor.Path, text)
	}
}

func (b *Bridge) dropEntry(project types.ProjectKey, docPath string) {
	key := types.NewDocumentKey(docPath)
	h, ok := b.handles[key]
	if !ok {
		return
	}
	delete(h.entries, project)
	if len(h.entries) == 0 {
		delete(b.handles, key)
	}
}

func (b *Bridge) dropProjectEntries(project types.ProjectKey) {
	for key, h := range b.handles {
		delete(h.entries, project)
		if len(h.entries) == 0 {
			delete(b.handles, key)
		}
	}
}

// AddProject discovers the project's documents on the background context and
// registers project and documents with the manager on the foreground.
func (b *Bridge) AddProject(descriptor types.ProjectDescriptor, root string) {
	b.sched.PostBackground(func(ctx context.Context) {
		docs, err := DiscoverDocuments(descriptor, root)
		if err != nil {
			b.logger.Warn(ctx, err, "document discovery failed", "project", descriptor.Path)
		}
		b.sched.Post(func(ctx context.Context) {
			b.projects[descriptor.Key()] = watchedProject{descriptor: descriptor, root: root}
			b.manager.ProjectAdded(ctx, descriptor)
			for _, doc := range docs {
				b.manager.DocumentAdded(ctx, doc, types.FileLoader{Path: doc.Path})
			}
		})
	})
}

// HandleFileEvents is a watcher.ChangeHandler routing a debounced batch of
// disk events to the corresponding manager mutations. It may be called from
// any goroutine; mutations are posted to the foreground.
func (b *Bridge) HandleFileEvents(events []watcher.FileEvent) {
	b.sched.Post(func(ctx context.Context) {
		for _, event := range events {
			b.handleFileEvent(ctx, event)
		}
	})
}

func (b *Bridge) handleFileEvent(ctx context.Context, event watcher.FileEvent) {
	key := types.NewDocumentKey(event.Path)
	h, known := b.handles[key]

	switch event.Type {
	case watcher.EventTypeCreated:
		if known {
			return
		}
		for _, wp := range b.projects {
			if !underRoot(wp.root, event.Path) {
				continue
			}
			b.manager.DocumentAdded(ctx, types.DocumentDescriptor{
				ProjectPath: wp.descriptor.Path,
				Path:        event.Path,
				TargetPath:  targetPath(wp.root, event.Path),
			}, types.FileLoader{Path: event.Path})
		}
	case watcher.EventTypeDeleted, watcher.EventTypeRenamed:
		if !known {
			return
		}
		for _, descriptor := range h.entries {
			b.manager.DocumentRemoved(ctx, descriptor)
		}
	default:
		if !known {
			return
		}
		for _, descriptor := range h.entries {
			b.manager.DocumentChangedLoader(ctx, descriptor.ProjectPath, descriptor.Path,
				types.FileLoader{Path: event.Path})
		}
	}
}

// DiscoverDocuments walks root for documents matching the project's
// extensions.
func DiscoverDocuments(descriptor types.ProjectDescriptor, root string) ([]types.DocumentDescriptor, error) {
	var docs []types.DocumentDescriptor
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		for _, want := range descriptor.Extensions {
			if ext == want {
				docs = append(docs, types.DocumentDescriptor{
					ProjectPath: descriptor.Path,
					Path:        path,
					TargetPath:  targetPath(root, path),
				})
				break
			}
		}
		return nil
	})
	return docs, err
}

func underRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func targetPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}
