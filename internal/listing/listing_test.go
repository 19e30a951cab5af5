package listing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("%PDF-1.4"), 0o644))
	}
}

func filenames(s *Snapshot) []string {
	out := make([]string, len(s.Entries))
	for i, e := range s.Entries {
		out[i] = e.Filename
	}
	return out
}

func TestFSProvider_ChecksConfiguredFolders(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "Subcontractor COIs"), "Beta LLC_2024-01-01.pdf", "Alpha Inc.pdf", "notes.txt")
	touch(t, filepath.Join(root, "COIs"), "Gamma Co.PDF")
	touch(t, root, "Stray.pdf")

	p := &FSProvider{
		FolderName:         "Subcontractor COIs",
		AlternativeFolders: []string{"COIs", "Certificates"},
		Extensions:         []string{".pdf"},
	}
	snap, err := p.List(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"Alpha Inc.pdf", "Beta LLC_2024-01-01.pdf", "Gamma Co.PDF"}, filenames(snap))
	assert.Len(t, snap.Folders, 2)
	assert.True(t, snap.AlternatesChecked)
	assert.True(t, snap.Complete)
	assert.Equal(t, "betallc", snap.Entries[1].Stem.Canonical)
}

func TestFSProvider_RootIsCertificateFolder(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Subcontractor COIs")
	touch(t, root, "Alpha Inc.pdf", ".hidden.pdf")

	p := &FSProvider{FolderName: "Subcontractor COIs", AlternativeFolders: []string{"COIs"}, Extensions: []string{".pdf"}}
	snap, err := p.List(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"Alpha Inc.pdf"}, filenames(snap))
	assert.Equal(t, []string{root}, snap.Folders)
	assert.False(t, snap.AlternatesChecked)
}

func TestFSProvider_FallsBackToRoot(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "Alpha Inc.pdf")

	p := &FSProvider{FolderName: "Subcontractor COIs", Extensions: []string{".pdf"}}
	snap, err := p.List(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{root}, snap.Folders)
	assert.Equal(t, []string{"Alpha Inc.pdf"}, filenames(snap))
	assert.False(t, snap.AlternatesChecked)
}

func TestFSProvider_EmptyDirectoryIsNotAnError(t *testing.T) {
	p := &FSProvider{Extensions: []string{".pdf"}}
	snap, err := p.List(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Empty(t, snap.Entries)
	assert.True(t, snap.Complete)
}

func TestFSProvider_Inaccessible(t *testing.T) {
	p := &FSProvider{}

	_, err := p.List(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInaccessible))

	file := filepath.Join(t.TempDir(), "file.pdf")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = p.List(context.Background(), file)
	assert.True(t, errors.Is(err, ErrInaccessible))
}

func TestFSProvider_Canceled(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "Alpha Inc.pdf")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&FSProvider{}).List(ctx, root)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
