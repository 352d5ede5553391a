// Package client implements the editing side of the synchronization
// protocol: a local copy of a document kept fresh by polling, and a session
// that locks the row being typed and writes it back after a pause.
//
// Both work over a [Backend], either in-process against a registry with
// [Local] or remotely with [HTTP].
package client

import (
	"context"

	"github.com/maruel/coedit/internal/archive"
	"github.com/maruel/coedit/internal/document"
	"github.com/maruel/coedit/internal/registry"
	"github.com/maruel/ksid"
)

// Backend is the document API as seen by one client.
type Backend interface {
	// Client returns the identity the backend acts as.
	Client() document.ClientID
	Lock(ctx context.Context, id ksid.ID, row int) (bool, error)
	Unlock(ctx context.Context, id ksid.ID, row int) (bool, error)
	Write(ctx context.Context, id ksid.ID, row int, text string) error
	Row(ctx context.Context, id ksid.ID, row int) (string, error)
	RowCount(ctx context.Context, id ksid.ID) (int, error)
	ChangedRows(ctx context.Context, id ksid.ID) ([]int, error)
	Close(ctx context.Context, id ksid.ID) error
	// History lists archived versions, newest first. n <= 0 lists all.
	History(ctx context.Context, id ksid.ID, n int) ([]*archive.Revision, error)
}

// Local calls a registry in the same process.
type Local struct {
	Registry *registry.Registry
	ID       document.ClientID
}

// NewLocal registers a new client with reg.
func NewLocal(ctx context.Context, reg *registry.Registry) *Local {
	return &Local{Registry: reg, ID: reg.RegisterClient(ctx)}
}

// Client implements Backend.
func (l *Local) Client() document.ClientID { return l.ID }

// Lock implements Backend.
func (l *Local) Lock(ctx context.Context, id ksid.ID, row int) (bool, error) {
	return l.Registry.LockDocument(ctx, l.ID, id, row)
}

// Unlock implements Backend.
func (l *Local) Unlock(ctx context.Context, id ksid.ID, row int) (bool, error) {
	return l.Registry.UnlockDocument(ctx, l.ID, id, row)
}

// Write implements Backend.
func (l *Local) Write(ctx context.Context, id ksid.ID, row int, text string) error {
	_, err := l.Registry.WriteDocument(ctx, l.ID, id, row, text)
	return err
}

// Row implements Backend.
func (l *Local) Row(ctx context.Context, id ksid.ID, row int) (string, error) {
	return l.Registry.GetDocumentRow(ctx, l.ID, id, row)
}

// RowCount implements Backend.
func (l *Local) RowCount(ctx context.Context, id ksid.ID) (int, error) {
	return l.Registry.GetDocumentRowCount(ctx, l.ID, id)
}

// ChangedRows implements Backend.
func (l *Local) ChangedRows(ctx context.Context, id ksid.ID) ([]int, error) {
	return l.Registry.ListChangedLines(ctx, l.ID, id)
}

// Close implements Backend.
func (l *Local) Close(ctx context.Context, id ksid.ID) error {
	return l.Registry.CloseDocument(ctx, l.ID, id)
}

// History implements Backend.
func (l *Local) History(ctx context.Context, id ksid.ID, n int) ([]*archive.Revision, error) {
	return l.Registry.History(ctx, l.ID, id, n)
}
