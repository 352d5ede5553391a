package dto

import "strconv"

// --- Health ---

// HealthRequest is a request to check server health.
type HealthRequest struct{}

// Validate is a no-op for HealthRequest.
func (r *HealthRequest) Validate() error {
	return nil
}

// --- Clients ---

// RegisterClientRequest is a request for a new client identity.
type RegisterClientRequest struct{}

// Validate is a no-op for RegisterClientRequest.
func (r *RegisterClientRequest) Validate() error {
	return nil
}

// DisconnectClientRequest releases every lock held by the caller.
type DisconnectClientRequest struct{}

// Validate is a no-op for DisconnectClientRequest.
func (r *DisconnectClientRequest) Validate() error {
	return nil
}

// --- Documents ---

// ListDocumentsRequest is a request to list live documents.
type ListDocumentsRequest struct{}

// Validate is a no-op for ListDocumentsRequest.
func (r *ListDocumentsRequest) Validate() error {
	return nil
}

// NewDocumentRequest is a request to create an empty document.
type NewDocumentRequest struct{}

// Validate is a no-op for NewDocumentRequest.
func (r *NewDocumentRequest) Validate() error {
	return nil
}

// OpenDocumentRequest is a request to open an existing document.
type OpenDocumentRequest struct {
	DocumentPath
}

// GetSnapshotRequest is a request for every row and lock holder.
type GetSnapshotRequest struct {
	DocumentPath
}

// CloseDocumentRequest is a request to archive a document and release the
// caller's locks in it.
type CloseDocumentRequest struct {
	DocumentPath
}

// GetRowCountRequest is a request for the number of rows.
type GetRowCountRequest struct {
	DocumentPath
}

// ListChangesRequest is a request for the rows the caller should refresh.
type ListChangesRequest struct {
	DocumentPath
}

// GetHistoryRequest is a request for the archived versions of a document.
type GetHistoryRequest struct {
	DocumentPath
	Limit string `query:"limit" json:"-"`

	limit int
}

// N returns the parsed limit, 0 meaning every version. Only valid after
// Validate.
func (r *GetHistoryRequest) N() int {
	return r.limit
}

// Validate validates the document ID and the optional limit.
func (r *GetHistoryRequest) Validate() error {
	if err := r.DocumentPath.Validate(); err != nil {
		return err
	}
	if r.Limit == "" {
		return nil
	}
	n, err := strconv.Atoi(r.Limit)
	if err != nil || n < 0 {
		return InvalidFormat("limit", "must be a non-negative integer")
	}
	r.limit = n
	return nil
}

// --- Rows ---

// LockRowRequest is a request to lock a row.
type LockRowRequest struct {
	RowPath
}

// UnlockRowRequest is a request to unlock a row.
type UnlockRowRequest struct {
	RowPath
}

// GetRowRequest is a request for the text of a row.
type GetRowRequest struct {
	RowPath
}

// WriteRowRequest replaces a row with text, which may span several lines.
type WriteRowRequest struct {
	RowPath
	Text *string `json:"text"`
}

// Validate validates the write request fields.
func (r *WriteRowRequest) Validate() error {
	if err := r.RowPath.Validate(); err != nil {
		return err
	}
	if r.Text == nil {
		return MissingField("text")
	}
	return nil
}
