// Writes one plain text file per document.

package archive

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// File writes each document to <dir>/<id>.txt.
type File struct {
	dir string
}

// NewFile returns a File archiver rooted at dir, creating it if needed.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &File{dir: dir}, nil
}

// Archive implements Archiver. The file is replaced atomically.
func (f *File) Archive(_ context.Context, rec *Record) error {
	dst := filepath.Join(f.dir, fileName(rec.ID))
	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return wrapErr("file", rec.ID, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.WriteString(rec.Text()); err != nil {
		_ = tmp.Close()
		return wrapErr("file", rec.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return wrapErr("file", rec.ID, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return wrapErr("file", rec.ID, err)
	}
	return nil
}

// Load implements Loader. The closing client is not recorded in plain files.
func (f *File) Load(_ context.Context) ([]*Record, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive directory: %w", err)
	}
	var out []*Record
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, ok := parseFileName(e.Name())
		if !ok {
			continue
		}
		p := filepath.Join(f.dir, e.Name())
		data, err := os.ReadFile(p) //nolint:gosec // G304: p is built from a directory listing
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		var mod time.Time
		if info, err := e.Info(); err == nil {
			mod = info.ModTime()
		}
		out = append(out, &Record{
			ID:         id,
			Rows:       strings.Split(string(data), "\n"),
			ArchivedAt: mod,
		})
	}
	slices.SortFunc(out, func(a, b *Record) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}
