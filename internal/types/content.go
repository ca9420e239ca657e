package types

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// TextAndVersion pairs a document's materialized text with its version. The
// version is a per-document monotonic counter bumped only when new content
// differs from the last materialized text; identical content reuses the prior
// version.
type TextAndVersion struct {
	Text    string
	Version int32
}

// TextLoader is a deferred source of document content. Load is only ever
// invoked on the background execution context; it must not touch manager
// state.
type TextLoader interface {
	Load(ctx context.Context) (TextAndVersion, error)
}

// LoaderFunc adapts a function to the TextLoader interface.
type LoaderFunc func(ctx context.Context) (TextAndVersion, error)

// Load implements TextLoader.
func (f LoaderFunc) Load(ctx context.Context) (TextAndVersion, error) {
	return f(ctx)
}

// StaticLoader returns a loader that always yields tv.
func StaticLoader(tv TextAndVersion) TextLoader {
	return LoaderFunc(func(context.Context) (TextAndVersion, error) {
		return tv, nil
	})
}

// FileLoader loads document content from disk. Fresh loads start the version
// counter over at zero; version continuity across loader replacement is the
// reconciling loader's job.
type FileLoader struct {
	// Path is the on-disk location of the document.
	Path string
}

// Load implements TextLoader by reading the file.
func (l FileLoader) Load(ctx context.Context) (TextAndVersion, error) {
	if err := ctx.Err(); err != nil {
		return TextAndVersion{}, err
	}
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return TextAndVersion{}, fmt.Errorf("loading document %s: %w", l.Path, err)
	}
	return TextAndVersion{Text: string(data)}, nil
}

// ReconcilingLoader defers the version decision for new content until the
// prior content has resolved: identical text reuses the prior version,
// different text bumps it. The result is memoized so every observer of the
// loader sees one consistent (text, version) pair.
type ReconcilingLoader struct {
	prior TextLoader
	next  TextLoader

	pendingText string
	hasPending  bool

	once sync.Once
	tv   TextAndVersion
	err  error
}

// NewReconcilingLoader builds a loader comparing the content produced by next
// against the content produced by prior.
func NewReconcilingLoader(prior, next TextLoader) *ReconcilingLoader {
	return &ReconcilingLoader{prior: prior, next: next}
}

// NewTextReconcilingLoader builds a reconciling loader whose new content is
// known text. The text is retained so that a repeated notification carrying
// identical text can be detected as a no-op before the prior content has
// resolved.
func NewTextReconcilingLoader(prior TextLoader, text string) *ReconcilingLoader {
	return &ReconcilingLoader{
		prior:       prior,
		next:        StaticLoader(TextAndVersion{Text: text}),
		pendingText: text,
		hasPending:  true,
	}
}

// PendingText returns the known new text, when the loader was built from
// text rather than another deferred source.
func (l *ReconcilingLoader) PendingText() (string, bool) {
	return l.pendingText, l.hasPending
}

// Prior returns the content source the new content is compared against. Used
// to restore a document's previous state after a failed load.
func (l *ReconcilingLoader) Prior() TextLoader { return l.prior }

// Load implements TextLoader.
func (l *ReconcilingLoader) Load(ctx context.Context) (TextAndVersion, error) {
	l.once.Do(func() {
		l.tv, l.err = l.reconcile(ctx)
	})
	return l.tv, l.err
}

func (l *ReconcilingLoader) reconcile(ctx context.Context) (TextAndVersion, error) {
	prior, err := l.prior.Load(ctx)
	if err != nil {
		return TextAndVersion{}, err
	}
	next, err := l.next.Load(ctx)
	if err != nil {
		return TextAndVersion{}, err
	}
	if next.Text == prior.Text {
		return prior, nil
	}
	return TextAndVersion{Text: next.Text, Version: prior.Version + 1}, nil
}

// Reconcile applies the version rule to already-materialized content: equal
// text keeps prior unchanged, different text carries the new text under
// prior's version plus one.
func Reconcile(prior TextAndVersion, text string) TextAndVersion {
	if text == prior.Text {
		return prior
	}
	return TextAndVersion{Text: text, Version: prior.Version + 1}
}
