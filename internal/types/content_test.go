package types

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile(t *testing.T) {
	prior := TextAndVersion{Text: "X", Version: 5}

	assert.Equal(t, prior, Reconcile(prior, "X"))
	assert.Equal(t, TextAndVersion{Text: "Y", Version: 6}, Reconcile(prior, "Y"))
}

func TestReconcilingLoader_IdenticalTextReusesVersion(t *testing.T) {
	rec := NewTextReconcilingLoader(StaticLoader(TextAndVersion{Text: "X", Version: 2}), "X")

	tv, err := rec.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TextAndVersion{Text: "X", Version: 2}, tv)
}

func TestReconcilingLoader_DifferentTextBumpsVersion(t *testing.T) {
	rec := NewTextReconcilingLoader(StaticLoader(TextAndVersion{Text: "X", Version: 2}), "Y")

	tv, err := rec.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TextAndVersion{Text: "Y", Version: 3}, tv)
}

func TestReconcilingLoader_MemoizesResult(t *testing.T) {
	calls := 0
	prior := LoaderFunc(func(context.Context) (TextAndVersion, error) {
		calls++
		return TextAndVersion{Text: "X", Version: 1}, nil
	})
	rec := NewReconcilingLoader(prior, StaticLoader(TextAndVersion{Text: "Y"}))

	first, err := rec.Load(context.Background())
	require.NoError(t, err)
	second, err := rec.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestReconcilingLoader_PropagatesPriorError(t *testing.T) {
	loadErr := errors.New("disk gone")
	prior := LoaderFunc(func(context.Context) (TextAndVersion, error) {
		return TextAndVersion{}, loadErr
	})
	rec := NewTextReconcilingLoader(prior, "Y")

	_, err := rec.Load(context.Background())
	assert.ErrorIs(t, err, loadErr)
}

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.templ")
	require.NoError(t, os.WriteFile(path, []byte("templ Index() {}"), 0o644))

	tv, err := FileLoader{Path: path}.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "templ Index() {}", tv.Text)
	assert.Equal(t, int32(0), tv.Version)

	_, err = FileLoader{Path: filepath.Join(dir, "missing.templ")}.Load(context.Background())
	assert.Error(t, err)
}
