// Package registry maps document identifiers to live documents and
// implements the operations exposed to clients.
//
// A Registry is an owned handle; create one per server with [New]. The
// identity map is guarded by its own RWMutex while each document serializes
// its own mutations, so operations on different documents never contend.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maruel/coedit/internal/archive"
	"github.com/maruel/coedit/internal/document"
	"github.com/maruel/ksid"
)

// ErrDocumentNotFound is returned when a document identifier is unknown.
var ErrDocumentNotFound = errors.New("document not found")

// Registry holds every live document.
type Registry struct {
	archiver archive.Archiver
	now      func() time.Time

	mu   sync.RWMutex
	docs map[ksid.ID]*document.Document
}

// New returns an empty registry. Closed documents are archived with a; nil
// discards them.
func New(a archive.Archiver) *Registry {
	if a == nil {
		a = archive.Discard{}
	}
	return &Registry{
		archiver: a,
		now:      time.Now,
		docs:     make(map[ksid.ID]*document.Document),
	}
}

// RegisterClient returns a fresh client identifier. Nothing is recorded.
func (r *Registry) RegisterClient(ctx context.Context) document.ClientID {
	c := document.ClientID("C" + uuid.NewString())
	slog.DebugContext(ctx, "registry: client registered", "client", c)
	return c
}

// NewDocument creates an empty document.
func (r *Registry) NewDocument(ctx context.Context, client document.ClientID) ksid.ID {
	id := ksid.NewID()
	r.mu.Lock()
	r.docs[id] = document.New()
	r.mu.Unlock()
	slog.DebugContext(ctx, "registry: document created", "client", client, "doc", id)
	return id
}

// OpenDocument verifies that id exists and returns it.
func (r *Registry) OpenDocument(ctx context.Context, client document.ClientID, id ksid.ID) (ksid.ID, error) {
	if _, err := r.get(ctx, id); err != nil {
		return 0, err
	}
	slog.DebugContext(ctx, "registry: document opened", "client", client, "doc", id)
	return id, nil
}

// CloseDocument archives the document then releases every lock client holds
// in it. When archiving fails the locks are left untouched.
func (r *Registry) CloseDocument(ctx context.Context, client document.ClientID, id ksid.ID) error {
	d, err := r.get(ctx, id)
	if err != nil {
		return err
	}
	rec := &archive.Record{ID: id, Client: client, Rows: d.Rows(), ArchivedAt: r.now().UTC()}
	if err := r.archiver.Archive(ctx, rec); err != nil {
		slog.ErrorContext(ctx, "registry: archive failed", "client", client, "doc", id, "err", err)
		return fmt.Errorf("failed to archive %s: %w", id, err)
	}
	n := d.UnlockAll(client)
	slog.DebugContext(ctx, "registry: document closed", "client", client, "doc", id, "released", n)
	return nil
}

// LockDocument tries to lock row for client. It returns false when another
// client holds the row.
func (r *Registry) LockDocument(ctx context.Context, client document.ClientID, id ksid.ID, row int) (bool, error) {
	d, err := r.get(ctx, id)
	if err != nil {
		return false, err
	}
	res, err := d.Lock(client, row)
	if err != nil {
		return false, err
	}
	if !res.Acquired() {
		slog.DebugContext(ctx, "registry: lock denied", "client", client, "doc", id, "row", row, "holder", res.Holder)
		return false, nil
	}
	slog.DebugContext(ctx, "registry: locked", "client", client, "doc", id, "row", row)
	return true, nil
}

// UnlockDocument releases row. It returns true once the row is free,
// including when it already was.
//
// It panics if another client holds the row.
func (r *Registry) UnlockDocument(ctx context.Context, client document.ClientID, id ksid.ID, row int) (bool, error) {
	d, err := r.get(ctx, id)
	if err != nil {
		return false, err
	}
	if err := d.Unlock(client, row); err != nil {
		return false, err
	}
	slog.DebugContext(ctx, "registry: unlocked", "client", client, "doc", id, "row", row)
	return true, nil
}

// WriteDocument replaces row with text, which may hold several lines.
//
// Ownership of the row lock is not verified.
func (r *Registry) WriteDocument(ctx context.Context, client document.ClientID, id ksid.ID, row int, text string) (ksid.ID, error) {
	d, err := r.get(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := d.Write(row, text); err != nil {
		return 0, err
	}
	slog.DebugContext(ctx, "registry: written", "client", client, "doc", id, "row", row, "bytes", len(text))
	return id, nil
}

// GetDocumentRow returns the text of row.
func (r *Registry) GetDocumentRow(ctx context.Context, client document.ClientID, id ksid.ID, row int) (string, error) {
	d, err := r.get(ctx, id)
	if err != nil {
		return "", err
	}
	return d.Row(row)
}

// GetDocumentRowCount returns the number of rows.
func (r *Registry) GetDocumentRowCount(ctx context.Context, client document.ClientID, id ksid.ID) (int, error) {
	d, err := r.get(ctx, id)
	if err != nil {
		return 0, err
	}
	n := d.RowCount()
	slog.DebugContext(ctx, "registry: row count", "client", client, "doc", id, "rows", n)
	return n, nil
}

// ListChangedLines returns the rows client should refresh: every row it does
// not hold.
func (r *Registry) ListChangedLines(ctx context.Context, client document.ClientID, id ksid.ID) ([]int, error) {
	d, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return d.ChangedRows(client), nil
}

// GetDocument returns the rows and lock holders of a document.
func (r *Registry) GetDocument(ctx context.Context, client document.ClientID, id ksid.ID) (document.Snapshot, error) {
	d, err := r.get(ctx, id)
	if err != nil {
		return document.Snapshot{}, err
	}
	slog.DebugContext(ctx, "registry: snapshot", "client", client, "doc", id)
	return d.Snapshot(), nil
}

// ListDocuments returns every document identifier in creation order.
func (r *Registry) ListDocuments(_ context.Context) []ksid.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.docs))
}

// DisconnectClient releases every lock client holds in every document.
func (r *Registry) DisconnectClient(ctx context.Context, client document.ClientID) int {
	r.mu.RLock()
	docs := slices.Collect(maps.Values(r.docs))
	r.mu.RUnlock()
	n := 0
	for _, d := range docs {
		n += d.UnlockAll(client)
	}
	slog.DebugContext(ctx, "registry: client disconnected", "client", client, "released", n)
	return n
}

// History returns the archived versions of a document, newest first. The
// document does not need to be live. archive.ErrNoHistory is returned when
// the archiver keeps no history.
func (r *Registry) History(ctx context.Context, client document.ClientID, id ksid.ID, n int) ([]*archive.Revision, error) {
	h, ok := r.archiver.(archive.Historian)
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, archive.ErrNoHistory)
	}
	revs, err := h.History(ctx, id, n)
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "registry: history", "client", client, "doc", id, "revisions", len(revs))
	return revs, nil
}

// Restore registers a document with the given identifier and rows, replacing
// any live document with the same identifier.
func (r *Registry) Restore(ctx context.Context, id ksid.ID, rows []string) error {
	if id.IsZero() {
		return errors.New("cannot restore a document without identifier")
	}
	d := document.New()
	d.SetRows(rows)
	r.mu.Lock()
	r.docs[id] = d
	r.mu.Unlock()
	slog.DebugContext(ctx, "registry: document restored", "doc", id, "rows", d.RowCount())
	return nil
}

// Load restores every document l returns and returns how many were loaded.
func (r *Registry) Load(ctx context.Context, l archive.Loader) (int, error) {
	recs, err := l.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load archived documents: %w", err)
	}
	for _, rec := range recs {
		if err := r.Restore(ctx, rec.ID, rec.Rows); err != nil {
			return 0, err
		}
	}
	return len(recs), nil
}

// Len returns the number of live documents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}

func (r *Registry) get(ctx context.Context, id ksid.ID) (*document.Document, error) {
	r.mu.RLock()
	d := r.docs[id]
	r.mu.RUnlock()
	if d == nil {
		slog.WarnContext(ctx, "registry: unknown document", "doc", id)
		return nil, fmt.Errorf("%s: %w", id, ErrDocumentNotFound)
	}
	return d, nil
}
