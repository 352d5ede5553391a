// Handles document and row endpoints.

package handlers

import (
	"context"
	"errors"

	"github.com/maruel/coedit/internal/document"
	"github.com/maruel/coedit/internal/registry"
	"github.com/maruel/coedit/internal/server/dto"
)

// DocumentHandler exposes the registry operations.
type DocumentHandler struct {
	reg *registry.Registry
}

// NewDocumentHandler creates a new document handler.
func NewDocumentHandler(reg *registry.Registry) *DocumentHandler {
	return &DocumentHandler{reg: reg}
}

// ListDocuments lists every live document.
func (h *DocumentHandler) ListDocuments(ctx context.Context, _ document.ClientID, _ *dto.ListDocumentsRequest) (*dto.ListDocumentsResponse, error) {
	ids := h.reg.ListDocuments(ctx)
	out := &dto.ListDocumentsResponse{Documents: make([]string, len(ids))}
	for i, id := range ids {
		out.Documents[i] = id.String()
	}
	return out, nil
}

// NewDocument creates an empty document.
func (h *DocumentHandler) NewDocument(ctx context.Context, c document.ClientID, _ *dto.NewDocumentRequest) (*dto.DocumentResponse, error) {
	return &dto.DocumentResponse{ID: h.reg.NewDocument(ctx, c).String()}, nil
}

// OpenDocument checks that a document exists.
func (h *DocumentHandler) OpenDocument(ctx context.Context, c document.ClientID, req *dto.OpenDocumentRequest) (*dto.DocumentResponse, error) {
	id, err := h.reg.OpenDocument(ctx, c, req.ID())
	if err != nil {
		return nil, toAPIError(err, req.ID(), 0)
	}
	return &dto.DocumentResponse{ID: id.String()}, nil
}

// GetSnapshot returns every row and its lock holder.
func (h *DocumentHandler) GetSnapshot(ctx context.Context, c document.ClientID, req *dto.GetSnapshotRequest) (*dto.SnapshotResponse, error) {
	snap, err := h.reg.GetDocument(ctx, c, req.ID())
	if err != nil {
		return nil, toAPIError(err, req.ID(), 0)
	}
	holders := make([]string, len(snap.Holders))
	for i, hd := range snap.Holders {
		holders[i] = string(hd)
	}
	return &dto.SnapshotResponse{ID: req.ID().String(), Rows: snap.Rows, Holders: holders}, nil
}

// CloseDocument archives the document and releases the caller's locks.
func (h *DocumentHandler) CloseDocument(ctx context.Context, c document.ClientID, req *dto.CloseDocumentRequest) (*dto.OkResponse, error) {
	if err := h.reg.CloseDocument(ctx, c, req.ID()); err != nil {
		if errors.Is(err, registry.ErrDocumentNotFound) {
			return nil, toAPIError(err, req.ID(), 0)
		}
		return nil, dto.ArchiveFailed(err)
	}
	return &dto.OkResponse{Ok: true}, nil
}

// LockRow tries to lock a row. Ok is false when another client holds it.
func (h *DocumentHandler) LockRow(ctx context.Context, c document.ClientID, req *dto.LockRowRequest) (*dto.OkResponse, error) {
	ok, err := h.reg.LockDocument(ctx, c, req.ID(), req.Index())
	if err != nil {
		return nil, toAPIError(err, req.ID(), req.Index())
	}
	return &dto.OkResponse{Ok: ok}, nil
}

// UnlockRow releases a row held by the caller.
func (h *DocumentHandler) UnlockRow(ctx context.Context, c document.ClientID, req *dto.UnlockRowRequest) (*dto.OkResponse, error) {
	ok, err := h.reg.UnlockDocument(ctx, c, req.ID(), req.Index())
	if err != nil {
		return nil, toAPIError(err, req.ID(), req.Index())
	}
	return &dto.OkResponse{Ok: ok}, nil
}

// WriteRow replaces a row with text.
func (h *DocumentHandler) WriteRow(ctx context.Context, c document.ClientID, req *dto.WriteRowRequest) (*dto.DocumentResponse, error) {
	id, err := h.reg.WriteDocument(ctx, c, req.ID(), req.Index(), *req.Text)
	if err != nil {
		return nil, toAPIError(err, req.ID(), req.Index())
	}
	return &dto.DocumentResponse{ID: id.String()}, nil
}

// GetRow returns the text of a row.
func (h *DocumentHandler) GetRow(ctx context.Context, c document.ClientID, req *dto.GetRowRequest) (*dto.RowResponse, error) {
	text, err := h.reg.GetDocumentRow(ctx, c, req.ID(), req.Index())
	if err != nil {
		return nil, toAPIError(err, req.ID(), req.Index())
	}
	return &dto.RowResponse{Row: req.Index(), Text: text}, nil
}

// GetRowCount returns the number of rows.
func (h *DocumentHandler) GetRowCount(ctx context.Context, c document.ClientID, req *dto.GetRowCountRequest) (*dto.RowCountResponse, error) {
	n, err := h.reg.GetDocumentRowCount(ctx, c, req.ID())
	if err != nil {
		return nil, toAPIError(err, req.ID(), 0)
	}
	return &dto.RowCountResponse{Count: n}, nil
}

// ListChanges returns the rows the caller should refresh.
func (h *DocumentHandler) ListChanges(ctx context.Context, c document.ClientID, req *dto.ListChangesRequest) (*dto.ChangesResponse, error) {
	rows, err := h.reg.ListChangedLines(ctx, c, req.ID())
	if err != nil {
		return nil, toAPIError(err, req.ID(), 0)
	}
	if rows == nil {
		rows = []int{}
	}
	return &dto.ChangesResponse{Rows: rows}, nil
}

// GetHistory lists the archived versions of a document, newest first.
func (h *DocumentHandler) GetHistory(ctx context.Context, c document.ClientID, req *dto.GetHistoryRequest) (*dto.HistoryResponse, error) {
	revs, err := h.reg.History(ctx, c, req.ID(), req.N())
	if err != nil {
		return nil, toAPIError(err, req.ID(), 0)
	}
	out := &dto.HistoryResponse{ID: req.ID().String(), Revisions: make([]dto.RevisionResponse, len(revs))}
	for i, r := range revs {
		out.Revisions[i] = dto.RevisionResponse{
			Ref:        r.Ref,
			ClientID:   string(r.Client),
			ArchivedAt: r.When,
			Rows:       r.Rows,
		}
	}
	return out, nil
}
