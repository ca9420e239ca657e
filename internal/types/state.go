package types

import "context"

// DocumentState is the immutable content state of one document: either a
// materialized (text, version) pair or a deferred loader. Transitions return
// a new value; the zero of information change returns the identical receiver.
type DocumentState struct {
	descriptor DocumentDescriptor
	content    *TextAndVersion
	loader     TextLoader
}

// NewDocumentState creates a loader-backed document state.
func NewDocumentState(descriptor DocumentDescriptor, loader TextLoader) *DocumentState {
	return &DocumentState{descriptor: descriptor, loader: loader}
}

// Descriptor returns the document's descriptor.
func (d *DocumentState) Descriptor() DocumentDescriptor { return d.descriptor }

// TryContent returns the materialized content, if any.
func (d *DocumentState) TryContent() (TextAndVersion, bool) {
	if d.content == nil {
		return TextAndVersion{}, false
	}
	return *d.content, true
}

// Content resolves the document's content, invoking the loader when the
// content has not been materialized. Callers off the foreground context must
// only reach this through a Snapshot.
func (d *DocumentState) Content(ctx context.Context) (TextAndVersion, error) {
	if d.content != nil {
		return *d.content, nil
	}
	return d.loader.Load(ctx)
}

// Loader returns the deferred content source backing the state. For a
// materialized state it returns a static loader for the held content.
func (d *DocumentState) Loader() TextLoader {
	if d.content != nil {
		return StaticLoader(*d.content)
	}
	return d.loader
}

// WithContent returns a state holding the materialized pair tv. The receiver
// is returned unchanged when it already holds an identical pair.
func (d *DocumentState) WithContent(tv TextAndVersion) *DocumentState {
	if d.content != nil && *d.content == tv {
		return d
	}
	return &DocumentState{descriptor: d.descriptor, content: &tv}
}

// WithText reconciles text against the materialized content: identical text
// returns the receiver, different text returns a state with a bumped version.
// It must only be called when content is materialized.
func (d *DocumentState) WithText(text string) *DocumentState {
	tv, ok := d.TryContent()
	if !ok {
		panic("types: WithText on unmaterialized document state")
	}
	if text == tv.Text {
		return d
	}
	return d.WithContent(Reconcile(tv, text))
}

// WithLoader returns a loader-backed state, discarding materialized content.
func (d *DocumentState) WithLoader(loader TextLoader) *DocumentState {
	return &DocumentState{descriptor: d.descriptor, loader: loader}
}

// BackedBy reports whether the state is still deferred and backed by exactly
// the given loader. Used to discard superseded background folds.
func (d *DocumentState) BackedBy(loader TextLoader) bool {
	return d.content == nil && d.loader == loader
}

// PendingText returns the text a pending reconciliation will install, when
// the state is backed by a text-carrying reconciling loader.
func (d *DocumentState) PendingText() (string, bool) {
	if d.content != nil {
		return "", false
	}
	if rec, ok := d.loader.(*ReconcilingLoader); ok {
		return rec.PendingText()
	}
	return "", false
}

// ProjectState is the immutable aggregate for one project: descriptor, the
// unique-keyed document map, and workspace metadata. Every with-X transition
// returns either the identical pointer (no-op) or a new value differing by
// exactly the mutated field. The pointer identity is what entry caching and
// no-op detection key on.
type ProjectState struct {
	descriptor ProjectDescriptor
	documents  map[DocumentKey]*DocumentState
	workspace  WorkspaceState
}

// NewProjectState creates the initial state for a newly added project.
func NewProjectState(descriptor ProjectDescriptor) *ProjectState {
	return &ProjectState{
		descriptor: descriptor,
		documents:  map[DocumentKey]*DocumentState{},
		workspace:  WorkspaceState{},
	}
}

// Descriptor returns the project descriptor.
func (p *ProjectState) Descriptor() ProjectDescriptor { return p.descriptor }

// Workspace returns the project's workspace metadata.
func (p *ProjectState) Workspace() WorkspaceState { return p.workspace }

// Document returns the state of the document keyed by key.
func (p *ProjectState) Document(key DocumentKey) (*DocumentState, bool) {
	ds, ok := p.documents[key]
	return ds, ok
}

// DocumentCount returns the number of documents in the project.
func (p *ProjectState) DocumentCount() int { return len(p.documents) }

// EachDocument invokes fn for every document state in the project.
func (p *ProjectState) EachDocument(fn func(DocumentKey, *DocumentState)) {
	for key, ds := range p.documents {
		fn(key, ds)
	}
}

// cloneDocuments is the copy-on-write step shared by all document transitions.
func (p *ProjectState) cloneDocuments() map[DocumentKey]*DocumentState {
	docs := make(map[DocumentKey]*DocumentState, len(p.documents)+1)
	for k, v := range p.documents {
		docs[k] = v
	}
	return docs
}

// WithDescriptor replaces the project descriptor. Value-equal descriptors are
// a no-op.
func (p *ProjectState) WithDescriptor(descriptor ProjectDescriptor) *ProjectState {
	if p.descriptor.Equal(descriptor) {
		return p
	}
	return &ProjectState{descriptor: descriptor, documents: p.documents, workspace: p.workspace}
}

// WithWorkspace merges workspace metadata. Metadata already present with
// identical values is a no-op.
func (p *ProjectState) WithWorkspace(ws WorkspaceState) *ProjectState {
	changed := false
	for k, v := range ws {
		if cur, ok := p.workspace[k]; !ok || cur != v {
			changed = true
			break
		}
	}
	if !changed {
		return p
	}
	return &ProjectState{descriptor: p.descriptor, documents: p.documents, workspace: p.workspace.Merge(ws)}
}

// WithDocumentAdded inserts a loader-backed document. An already-present key
// is a no-op.
func (p *ProjectState) WithDocumentAdded(descriptor DocumentDescriptor, loader TextLoader) *ProjectState {
	key := descriptor.Key()
	if _, ok := p.documents[key]; ok {
		return p
	}
	docs := p.cloneDocuments()
	docs[key] = NewDocumentState(descriptor, loader)
	return &ProjectState{descriptor: p.descriptor, documents: docs, workspace: p.workspace}
}

// WithDocumentRemoved removes a document. An absent key is a no-op.
func (p *ProjectState) WithDocumentRemoved(key DocumentKey) *ProjectState {
	if _, ok := p.documents[key]; !ok {
		return p
	}
	docs := p.cloneDocuments()
	delete(docs, key)
	return &ProjectState{descriptor: p.descriptor, documents: docs, workspace: p.workspace}
}

// WithDocumentState replaces the state of an existing document. An absent key
// or an identical state pointer is a no-op.
func (p *ProjectState) WithDocumentState(key DocumentKey, state *DocumentState) *ProjectState {
	current, ok := p.documents[key]
	if !ok || current == state {
		return p
	}
	docs := p.cloneDocuments()
	docs[key] = state
	return &ProjectState{descriptor: p.descriptor, documents: docs, workspace: p.workspace}
}
