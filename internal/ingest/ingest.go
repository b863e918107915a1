// Package ingest discovers and loads invoice documents from the local
// filesystem for batch processing.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/invopipe/invopipe/constants"
	"github.com/invopipe/invopipe/internal/common"
	"github.com/invopipe/invopipe/internal/entity"
)

// DirStats summarizes a directory discovery pass.
type DirStats struct {
	Scanned uint32
	Matched uint32
	Skipped uint32
	Failed  uint32
}

// DiscoverFiles walks root and returns the paths of all processable documents
// in walk order. Hidden files and directories are skipped when skipHidden is
// set (the root itself is exempt); unreadable entries are counted but do not
// abort the walk.
func DiscoverFiles(root string, skipHidden bool) ([]string, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var paths []string
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		stats.Scanned++
		if walkErr != nil {
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !AllowedExt(filepath.Ext(path)) {
			stats.Skipped++
			return nil
		}
		stats.Matched++
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return paths, stats, fmt.Errorf("walk: %w", err)
	}
	return paths, stats, nil
}

// LoadDocument reads path into a RawDocument. Text files load into Text, PDFs
// and images into Bytes. The content hash and absolute source path travel in
// Meta for downstream bookkeeping.
func LoadDocument(path string) (entity.RawDocument, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return entity.RawDocument{}, fmt.Errorf("abs %s: %w", path, err)
	}

	src, ok := constants.MapExtToSource(filepath.Ext(abs))
	if !ok {
		return entity.RawDocument{}, common.WrapError(common.ErrUnsupportedFormat, filepath.Ext(abs))
	}

	b, err := os.ReadFile(abs)
	if err != nil {
		return entity.RawDocument{}, fmt.Errorf("read %s: %w", abs, err)
	}
	sum := sha256.Sum256(b)

	doc := entity.RawDocument{
		SourceType: src,
		FileName:   filepath.Base(abs),
		Meta: map[string]string{
			"source_path": abs,
			"sha256":      hex.EncodeToString(sum[:]),
		},
	}
	if src == constants.Text {
		doc.Text = string(b)
	} else {
		doc.Bytes = b
	}
	return doc, nil
}
