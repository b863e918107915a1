package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invopipe/invopipe/constants"
	"github.com/invopipe/invopipe/internal/common"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func seedTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.pdf"), "%PDF-1.4")
	writeFile(t, filepath.Join(root, "b.txt"), "Widget A 2 $5.00 $10.00")
	writeFile(t, filepath.Join(root, "notes.md"), "not an invoice")
	writeFile(t, filepath.Join(root, ".hidden.pdf"), "%PDF-1.4")
	writeFile(t, filepath.Join(root, ".archive", "c.pdf"), "%PDF-1.4")
	writeFile(t, filepath.Join(root, "sub", "d.jpg"), "\xff\xd8\xff")
	return root
}

func TestDiscoverFiles(t *testing.T) {
	root := seedTree(t)

	paths, stats, err := DiscoverFiles(root, true)
	require.NoError(t, err)

	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	assert.Equal(t, []string{"a.pdf", "b.txt", "d.jpg"}, names)
	assert.EqualValues(t, 3, stats.Matched)
	assert.EqualValues(t, 1, stats.Skipped)
	assert.EqualValues(t, 0, stats.Failed)
}

func TestDiscoverFilesKeepsHiddenWhenAsked(t *testing.T) {
	root := seedTree(t)

	paths, stats, err := DiscoverFiles(root, false)
	require.NoError(t, err)

	assert.Len(t, paths, 5)
	assert.EqualValues(t, 5, stats.Matched)
}

func TestDiscoverFilesRequiresRoot(t *testing.T) {
	_, _, err := DiscoverFiles("  ", true)
	assert.Error(t, err)
}

func TestLoadDocument(t *testing.T) {
	root := t.TempDir()

	t.Run("text file loads into Text", func(t *testing.T) {
		path := filepath.Join(root, "inv.txt")
		writeFile(t, path, "Widget A 2 $5.00 $10.00")

		doc, err := LoadDocument(path)
		require.NoError(t, err)
		assert.Equal(t, constants.Text, doc.SourceType)
		assert.Equal(t, "inv.txt", doc.FileName)
		assert.Equal(t, "Widget A 2 $5.00 $10.00", doc.Text)
		assert.Nil(t, doc.Bytes)
		assert.NotEmpty(t, doc.Meta["sha256"])
		assert.True(t, filepath.IsAbs(doc.Meta["source_path"]))
	})

	t.Run("pdf loads into Bytes", func(t *testing.T) {
		path := filepath.Join(root, "inv.pdf")
		writeFile(t, path, "%PDF-1.4")

		doc, err := LoadDocument(path)
		require.NoError(t, err)
		assert.Equal(t, constants.PDF, doc.SourceType)
		assert.Equal(t, []byte("%PDF-1.4"), doc.Bytes)
		assert.Empty(t, doc.Text)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := filepath.Join(root, "notes.md")
		writeFile(t, path, "x")

		_, err := LoadDocument(path)
		assert.ErrorIs(t, err, common.ErrUnsupportedFormat)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadDocument(filepath.Join(root, "gone.pdf"))
		assert.Error(t, err)
	})
}

func TestAllowedExt(t *testing.T) {
	assert.True(t, AllowedExt(".pdf"))
	assert.True(t, AllowedExt(".PDF"))
	assert.True(t, AllowedExt("txt"))
	assert.False(t, AllowedExt(".md"))
	assert.False(t, AllowedExt(""))
}

func TestIsHidden(t *testing.T) {
	assert.True(t, IsHidden("/inbox/.draft.pdf"))
	assert.True(t, IsHidden(".archive"))
	assert.False(t, IsHidden("/inbox/inv.pdf"))
}

func TestStartWatcherInitialScan(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inv.pdf")
	writeFile(t, path, "%PDF-1.4")
	writeFile(t, filepath.Join(dir, ".hidden.pdf"), "%PDF-1.4")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ev, _, err := StartWatcher(ctx, WatchConfig{Roots: []string{dir}, InitialScan: true})
	require.NoError(t, err)

	select {
	case got := <-ev:
		assert.Equal(t, path, got)
	case <-time.After(2 * time.Second):
		t.Fatal("initial scan emitted nothing")
	}

	cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ev:
			if !ok {
				return // closed on cancel
			}
		case <-deadline:
			t.Fatal("event channel did not close")
		}
	}
}

func TestStartWatcherRequiresRoots(t *testing.T) {
	_, _, err := StartWatcher(context.Background(), WatchConfig{})
	assert.Error(t, err)
}
