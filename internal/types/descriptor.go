// Package types provides the shared value types for the templens snapshot
// core: project and document descriptors, immutable project state, read-only
// snapshots, and change events. This package contains shared types to avoid
// circular dependencies between packages.
package types

import (
	"path/filepath"
	"time"

	"golang.org/x/text/cases"
)

// ProjectKey is the identity key for a project. Project identity is the
// configuration file path compared case-insensitively.
type ProjectKey string

// DocumentKey is the identity key for a document, compared case-insensitively.
type DocumentKey string

// NewProjectKey derives the identity key for a project path.
func NewProjectKey(path string) ProjectKey {
	return ProjectKey(foldPath(path))
}

// NewDocumentKey derives the identity key for a document path.
func NewDocumentKey(path string) DocumentKey {
	return DocumentKey(foldPath(path))
}

// foldPath normalizes a path for caseless comparison. cases.Fold performs
// Unicode case folding, which matches more than ASCII lowercasing does.
func foldPath(path string) string {
	return cases.Fold().String(filepath.ToSlash(filepath.Clean(path)))
}

// ProjectDescriptor is the externally supplied identity and configuration for
// a project. Descriptors are immutable values; identity is Path only.
type ProjectDescriptor struct {
	// Path is the absolute path of the project configuration file.
	Path string
	// LanguageVersion is the templ language version the project targets.
	LanguageVersion string
	// Extensions lists the document file extensions the project claims
	// (e.g. ".templ").
	Extensions []string
}

// Key returns the case-folded identity key for the descriptor.
func (d ProjectDescriptor) Key() ProjectKey {
	return NewProjectKey(d.Path)
}

// Equal reports whether two descriptors carry the same identity and
// configuration. Paths compare case-insensitively, configuration compares
// exactly.
func (d ProjectDescriptor) Equal(other ProjectDescriptor) bool {
	if d.Key() != other.Key() || d.LanguageVersion != other.LanguageVersion {
		return false
	}
	if len(d.Extensions) != len(other.Extensions) {
		return false
	}
	for i, ext := range d.Extensions {
		if other.Extensions[i] != ext {
			return false
		}
	}
	return true
}

// DocumentDescriptor identifies one document within a project.
type DocumentDescriptor struct {
	// ProjectPath is the path of the owning project's configuration file.
	ProjectPath string
	// Path is the document's path on disk.
	Path string
	// TargetPath is the project-relative path the document is generated or
	// served under.
	TargetPath string
}

// Key returns the case-folded identity key for the document.
func (d DocumentDescriptor) Key() DocumentKey {
	return NewDocumentKey(d.Path)
}

// WorkspaceState carries workspace-level metadata attached to a project,
// opaque to the snapshot core itself.
type WorkspaceState map[string]string

// Merge returns the receiver with the entries of other applied on top. When
// every entry of other is already present with an identical value, the
// receiver is returned unchanged so callers can detect the no-op by
// comparing references.
func (w WorkspaceState) Merge(other WorkspaceState) WorkspaceState {
	changed := false
	for k, v := range other {
		if cur, ok := w[k]; !ok || cur != v {
			changed = true
			break
		}
	}
	if !changed {
		return w
	}
	merged := make(WorkspaceState, len(w)+len(other))
	for k, v := range w {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}

// Equal reports whether two workspace states hold identical entries.
func (w WorkspaceState) Equal(other WorkspaceState) bool {
	if len(w) != len(other) {
		return false
	}
	for k, v := range w {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// EventType represents the kind of change a ChangeEvent describes.
type EventType string

const (
	EventTypeProjectAdded    EventType = "project_added"
	EventTypeProjectChanged  EventType = "project_changed"
	EventTypeProjectRemoved  EventType = "project_removed"
	EventTypeDocumentAdded   EventType = "document_added"
	EventTypeDocumentRemoved EventType = "document_removed"
	EventTypeDocumentChanged EventType = "document_changed"
)

// ChangeEvent describes one committed transition of a project's state, used
// for notifications to listeners like the lifecycle bridge and the event
// stream server.
type ChangeEvent struct {
	// Type indicates the kind of change.
	Type EventType
	// Old is the snapshot before the change (nil for project_added).
	Old *Snapshot
	// New is the snapshot after the change (nil for project_removed).
	New *Snapshot
	// DocumentPath is the affected document path for document-level events,
	// empty for project-level events.
	DocumentPath string
	// Timestamp records when the event was produced.
	Timestamp time.Time
}

// ProjectPath returns the path of the project the event concerns.
func (e ChangeEvent) ProjectPath() string {
	if e.New != nil {
		return e.New.Descriptor().Path
	}
	if e.Old != nil {
		return e.Old.Descriptor().Path
	}
	return ""
}
