// Package registry implements the snapshot manager: the single owner of the
// project map. It applies mutations, detects no-ops by state reference
// identity, memoizes one snapshot per project entry, and publishes change
// events through the notification queue.
//
// Every mutation and every aggregate read happens on the foreground context;
// the map needs no lock because concurrent access cannot occur. Background
// content loads fold their results back through the scheduler.
package registry

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/conneroisu/templens/internal/faults"
	"github.com/conneroisu/templens/internal/logging"
	"github.com/conneroisu/templens/internal/notify"
	"github.com/conneroisu/templens/internal/scheduler"
	"github.com/conneroisu/templens/internal/types"
)

// Defaults used when synthesizing a transient project for an unregistered
// document.
const DefaultLanguageVersion = "latest"

// DefaultExtensions are the document extensions a transient project claims.
var DefaultExtensions = []string{".templ"}

// entry pairs a project's current state with its lazily built snapshot. The
// snapshot cache is invalidated exactly when the state pointer changes.
type entry struct {
	state    *types.ProjectState
	snapshot *types.Snapshot
}

// Snapshot returns the memoized snapshot, building it on first read after
// invalidation. Repeated reads between mutations return the identical
// instance.
func (e *entry) Snapshot() *types.Snapshot {
	if e.snapshot == nil {
		e.snapshot = types.NewSnapshot(e.state)
	}
	return e.snapshot
}

// SnapshotManager owns the project map and the open-document set. No other
// component holds a mutable reference to either; everything else observes
// immutable snapshots.
type SnapshotManager struct {
	sched  *scheduler.Scheduler
	queue  *notify.Queue
	faults *faults.Collector
	logger logging.Logger

	projects map[types.ProjectKey]*entry
	open     map[types.DocumentKey]string
}

// NewSnapshotManager creates an empty manager.
func NewSnapshotManager(sched *scheduler.Scheduler, queue *notify.Queue, collector *faults.Collector, logger logging.Logger) *SnapshotManager {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &SnapshotManager{
		sched:    sched,
		queue:    queue,
		faults:   collector,
		logger:   logger.WithComponent("registry"),
		projects: make(map[types.ProjectKey]*entry),
		open:     make(map[types.DocumentKey]string),
	}
}

// ProjectAdded creates the initial state for a project. A known path is a
// no-op.
func (m *SnapshotManager) ProjectAdded(ctx context.Context, descriptor types.ProjectDescriptor) {
	m.sched.MustForeground(ctx)
	key := descriptor.Key()
	if _, ok := m.projects[key]; ok {
		return
	}
	e := &entry{state: types.NewProjectState(descriptor)}
	m.projects[key] = e
	m.logger.Debug(ctx, "project added", "project", descriptor.Path)
	m.publish(ctx, types.ChangeEvent{
		Type: types.EventTypeProjectAdded,
		New:  e.Snapshot(),
	})
}

// ProjectRemoved drops a project. An unknown path is a no-op. The final
// event for the path carries a nil new snapshot.
func (m *SnapshotManager) ProjectRemoved(ctx context.Context, descriptor types.ProjectDescriptor) {
	m.sched.MustForeground(ctx)
	key := descriptor.Key()
	e, ok := m.projects[key]
	if !ok {
		return
	}
	old := e.Snapshot()
	delete(m.projects, key)
	m.logger.Debug(ctx, "project removed", "project", descriptor.Path)
	m.publish(ctx, types.ChangeEvent{
		Type: types.EventTypeProjectRemoved,
		Old:  old,
	})
}

// ProjectConfigurationChanged replaces the project descriptor. A value-equal
// descriptor is a no-op.
func (m *SnapshotManager) ProjectConfigurationChanged(ctx context.Context, descriptor types.ProjectDescriptor) {
	m.sched.MustForeground(ctx)
	key := descriptor.Key()
	e, ok := m.projects[key]
	if !ok {
		return
	}
	m.apply(ctx, e, e.state.WithDescriptor(descriptor), types.EventTypeProjectChanged, "")
}

// ProjectWorkspaceStateChanged merges workspace metadata into the project.
// Identical metadata is a no-op.
func (m *SnapshotManager) ProjectWorkspaceStateChanged(ctx context.Context, projectPath string, ws types.WorkspaceState) {
	m.sched.MustForeground(ctx)
	e, ok := m.projects[types.NewProjectKey(projectPath)]
	if !ok {
		return
	}
	m.apply(ctx, e, e.state.WithWorkspace(ws), types.EventTypeProjectChanged, "")
}

// DocumentAdded inserts a loader-backed document into its project. A known
// document path is a no-op.
func (m *SnapshotManager) DocumentAdded(ctx context.Context, descriptor types.DocumentDescriptor, loader types.TextLoader) {
	m.sched.MustForeground(ctx)
	e, ok := m.projects[types.NewProjectKey(descriptor.ProjectPath)]
	if !ok {
		return
	}
	m.apply(ctx, e, e.state.WithDocumentAdded(descriptor, loader), types.EventTypeDocumentAdded, descriptor.Path)
}

// DocumentRemoved removes a document from its project and from the open set.
// An absent document is a no-op.
func (m *SnapshotManager) DocumentRemoved(ctx context.Context, descriptor types.DocumentDescriptor) {
	m.sched.MustForeground(ctx)
	e, ok := m.projects[types.NewProjectKey(descriptor.ProjectPath)]
	if !ok {
		return
	}
	key := descriptor.Key()
	if m.apply(ctx, e, e.state.WithDocumentRemoved(key), types.EventTypeDocumentRemoved, descriptor.Path) {
		delete(m.open, key)
	}
}

// DocumentOpened installs text for a document that is now open in the host
// editor and adds its path to the open set. Identical content produces no
// event and no version bump.
func (m *SnapshotManager) DocumentOpened(ctx context.Context, projectPath, docPath, text string) {
	m.sched.MustForeground(ctx)
	e, ds, ok := m.lookupDocument(projectPath, docPath)
	if !ok {
		return
	}
	m.open[types.NewDocumentKey(docPath)] = docPath
	m.reconcileText(ctx, e, ds, projectPath, docPath, text)
}

// DocumentChanged installs new in-editor text for a document. Open/closed
// membership is unaffected.
func (m *SnapshotManager) DocumentChanged(ctx context.Context, projectPath, docPath, text string) {
	m.sched.MustForeground(ctx)
	e, ds, ok := m.lookupDocument(projectPath, docPath)
	if !ok {
		return
	}
	m.reconcileText(ctx, e, ds, projectPath, docPath, text)
}

// DocumentChangedLoader replaces a document's deferred content source, for
// example after a change on disk. Version continuity against the prior
// content is preserved by a reconciling loader.
func (m *SnapshotManager) DocumentChangedLoader(ctx context.Context, projectPath, docPath string, loader types.TextLoader) {
	m.sched.MustForeground(ctx)
	e, ds, ok := m.lookupDocument(projectPath, docPath)
	if !ok {
		return
	}
	m.reconcileLoader(ctx, e, ds, projectPath, docPath, loader)
}

// DocumentClosed replaces the document's content state with one backed by
// loader and removes the path from the open set.
func (m *SnapshotManager) DocumentClosed(ctx context.Context, projectPath, docPath string, loader types.TextLoader) {
	m.sched.MustForeground(ctx)
	e, ds, ok := m.lookupDocument(projectPath, docPath)
	if !ok {
		return
	}
	delete(m.open, types.NewDocumentKey(docPath))
	m.reconcileLoader(ctx, e, ds, projectPath, docPath, loader)
}

// GetLoadedProject returns the current snapshot for a known project.
func (m *SnapshotManager) GetLoadedProject(ctx context.Context, projectPath string) (*types.Snapshot, bool) {
	m.sched.MustForeground(ctx)
	e, ok := m.projects[types.NewProjectKey(projectPath)]
	if !ok {
		return nil, false
	}
	return e.Snapshot(), true
}

// GetOrCreateProject returns the loaded snapshot covering docPath when one
// exists, and otherwise synthesizes a transient, unmanaged snapshot for the
// unregistered document. Manager state is never mutated.
func (m *SnapshotManager) GetOrCreateProject(ctx context.Context, docPath string) *types.Snapshot {
	m.sched.MustForeground(ctx)
	if e, ok := m.projects[types.NewProjectKey(docPath)]; ok {
		return e.Snapshot()
	}
	key := types.NewDocumentKey(docPath)
	for _, e := range m.projects {
		if _, ok := e.state.Document(key); ok {
			return e.Snapshot()
		}
	}

	descriptor := types.ProjectDescriptor{
		Path:            filepath.Dir(docPath),
		LanguageVersion: DefaultLanguageVersion,
		Extensions:      DefaultExtensions,
	}
	state := types.NewProjectState(descriptor).WithDocumentAdded(types.DocumentDescriptor{
		ProjectPath: descriptor.Path,
		Path:        docPath,
		TargetPath:  filepath.Base(docPath),
	}, types.FileLoader{Path: docPath})
	return types.NewSnapshot(state)
}

// Projects returns the current snapshot of every loaded project, sorted by
// path.
func (m *SnapshotManager) Projects(ctx context.Context) []*types.Snapshot {
	m.sched.MustForeground(ctx)
	snaps := make([]*types.Snapshot, 0, len(m.projects))
	for _, e := range m.projects {
		snaps = append(snaps, e.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].Descriptor().Path < snaps[j].Descriptor().Path
	})
	return snaps
}

// OpenDocuments returns the currently open document paths, sorted.
func (m *SnapshotManager) OpenDocuments(ctx context.Context) []string {
	m.sched.MustForeground(ctx)
	paths := make([]string, 0, len(m.open))
	for _, path := range m.open {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// IsDocumentOpen reports whether docPath is in the open set.
func (m *SnapshotManager) IsDocumentOpen(ctx context.Context, docPath string) bool {
	m.sched.MustForeground(ctx)
	_, ok := m.open[types.NewDocumentKey(docPath)]
	return ok
}

// lookupDocument resolves a (project, document) pair. Unknown references are
// the caller's silent no-op.
func (m *SnapshotManager) lookupDocument(projectPath, docPath string) (*entry, *types.DocumentState, bool) {
	e, ok := m.projects[types.NewProjectKey(projectPath)]
	if !ok {
		return nil, nil, false
	}
	ds, ok := e.state.Document(types.NewDocumentKey(docPath))
	if !ok {
		return nil, nil, false
	}
	return e, ds, true
}

// reconcileText applies new text to a document. With materialized prior
// content the comparison happens inline; otherwise a reconciling loader is
// installed and resolved on the background context, with the result folded
// back on the foreground.
func (m *SnapshotManager) reconcileText(ctx context.Context, e *entry, ds *types.DocumentState, projectPath, docPath, text string) {
	if _, ok := ds.TryContent(); ok {
		m.apply(ctx, e, e.state.WithDocumentState(ds.Descriptor().Key(), ds.WithText(text)), types.EventTypeDocumentChanged, docPath)
		return
	}
	// A pending reconciliation for byte-identical text makes a repeat
	// notification a no-op.
	if pending, ok := ds.PendingText(); ok && pending == text {
		return
	}
	rec := types.NewTextReconcilingLoader(ds.Loader(), text)
	m.installLoader(ctx, e, ds, projectPath, docPath, rec)
}

// reconcileLoader replaces a document's content source with loader while
// preserving version continuity against the prior content.
func (m *SnapshotManager) reconcileLoader(ctx context.Context, e *entry, ds *types.DocumentState, projectPath, docPath string, loader types.TextLoader) {
	rec := types.NewReconcilingLoader(ds.Loader(), loader)
	m.installLoader(ctx, e, ds, projectPath, docPath, rec)
}

func (m *SnapshotManager) installLoader(ctx context.Context, e *entry, ds *types.DocumentState, projectPath, docPath string, rec *types.ReconcilingLoader) {
	next := ds.WithLoader(rec)
	if !m.apply(ctx, e, e.state.WithDocumentState(ds.Descriptor().Key(), next), types.EventTypeDocumentChanged, docPath) {
		return
	}
	m.scheduleFold(projectPath, docPath, rec)
}

// scheduleFold resolves a reconciling loader on the background context and
// folds the materialized pair back into state on the foreground. The fold is
// silent: it resolves the version number for content consumers already know
// about, so no event is published. A load that resolves after a newer
// transition superseded its loader is discarded; the newer transition's own
// reconciliation covers the edit.
func (m *SnapshotManager) scheduleFold(projectPath, docPath string, rec *types.ReconcilingLoader) {
	m.sched.PostBackground(func(bgCtx context.Context) {
		tv, err := rec.Load(bgCtx)
		m.sched.Post(func(ctx context.Context) {
			e, ds, ok := m.lookupDocument(projectPath, docPath)
			if !ok || !ds.BackedBy(rec) {
				return
			}
			if err != nil {
				m.logger.Warn(ctx, err, "content load failed",
					"project", projectPath, "document", docPath)
				if m.faults != nil {
					m.faults.Report(faults.Fault{
						Kind:     faults.KindLoad,
						Err:      err,
						Project:  projectPath,
						Document: docPath,
					})
				}
				// The document falls back to its previous content source
				// until the next successful reconciliation.
				e.setState(e.state.WithDocumentState(ds.Descriptor().Key(), ds.WithLoader(rec.Prior())))
				return
			}
			if e.setState(e.state.WithDocumentState(ds.Descriptor().Key(), ds.WithContent(tv))) {
				m.logger.Debug(ctx, "content materialized",
					"project", projectPath, "document", docPath, "version", tv.Version)
			}
		})
	})
}

// apply commits a state transition: a no-op (identical state pointer) yields
// no event; otherwise the entry's snapshot memo is invalidated and exactly
// one event is published.
func (m *SnapshotManager) apply(ctx context.Context, e *entry, next *types.ProjectState, evType types.EventType, docPath string) bool {
	old := e.Snapshot()
	if !e.setState(next) {
		return false
	}
	m.publish(ctx, types.ChangeEvent{
		Type:         evType,
		Old:          old,
		New:          e.Snapshot(),
		DocumentPath: docPath,
	})
	return true
}

// setState swaps the state and invalidates the snapshot memo. Returns false
// for the identical pointer.
func (e *entry) setState(next *types.ProjectState) bool {
	if next == e.state {
		return false
	}
	e.state = next
	e.snapshot = nil
	return true
}

func (m *SnapshotManager) publish(ctx context.Context, event types.ChangeEvent) {
	event.Timestamp = time.Now()
	m.queue.Publish(ctx, event)
}
