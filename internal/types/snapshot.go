package types

import (
	"context"
	"sort"
)

// Snapshot is an immutable, fully-resolved read view of one project at a
// point in time. Snapshots are never mutated after construction; the snapshot
// manager replaces them wholesale when state changes.
type Snapshot struct {
	descriptor ProjectDescriptor
	documents  map[DocumentKey]*DocumentSnapshot
	workspace  WorkspaceState
}

// DocumentSnapshot is the read view of one document inside a Snapshot.
type DocumentSnapshot struct {
	descriptor DocumentDescriptor
	state      *DocumentState
}

// NewSnapshot projects a ProjectState into a read-only snapshot.
func NewSnapshot(state *ProjectState) *Snapshot {
	docs := make(map[DocumentKey]*DocumentSnapshot, state.DocumentCount())
	state.EachDocument(func(key DocumentKey, ds *DocumentState) {
		docs[key] = &DocumentSnapshot{descriptor: ds.Descriptor(), state: ds}
	})
	return &Snapshot{
		descriptor: state.Descriptor(),
		documents:  docs,
		workspace:  state.Workspace(),
	}
}

// Descriptor returns the project descriptor the snapshot was taken from.
func (s *Snapshot) Descriptor() ProjectDescriptor { return s.descriptor }

// Workspace returns the workspace metadata at snapshot time.
func (s *Snapshot) Workspace() WorkspaceState { return s.workspace }

// Document returns the snapshot of the document at path.
func (s *Snapshot) Document(path string) (*DocumentSnapshot, bool) {
	doc, ok := s.documents[NewDocumentKey(path)]
	return doc, ok
}

// Documents returns every document snapshot, sorted by path for stable
// iteration.
func (s *Snapshot) Documents() []*DocumentSnapshot {
	docs := make([]*DocumentSnapshot, 0, len(s.documents))
	for _, doc := range s.documents {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].descriptor.Path < docs[j].descriptor.Path
	})
	return docs
}

// DocumentCount returns the number of documents in the snapshot.
func (s *Snapshot) DocumentCount() int { return len(s.documents) }

// Descriptor returns the document's descriptor.
func (d *DocumentSnapshot) Descriptor() DocumentDescriptor { return d.descriptor }

// TryContent returns the content when it is already materialized, without
// triggering a load.
func (d *DocumentSnapshot) TryContent() (TextAndVersion, bool) {
	return d.state.TryContent()
}

// Content resolves the document's text and version, loading deferred content
// when necessary. Safe to call off the foreground context: the underlying
// state is immutable and loaders are self-synchronizing.
func (d *DocumentSnapshot) Content(ctx context.Context) (TextAndVersion, error) {
	return d.state.Content(ctx)
}
