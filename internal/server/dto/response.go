package dto

import "time"

// --- Common Responses ---

// OkResponse is a simple success response. Lock and unlock report denial
// with Ok false.
type OkResponse struct {
	Ok bool `json:"ok"`
}

// HealthResponse reports server health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Documents int    `json:"documents"`
}

// --- Client Responses ---

// RegisterClientResponse carries a new client identity and its bearer token.
type RegisterClientResponse struct {
	ClientID string `json:"client_id"`
	Token    string `json:"token"`
}

// DisconnectClientResponse reports how many locks were released.
type DisconnectClientResponse struct {
	Released int `json:"released"`
}

// --- Document Responses ---

// ListDocumentsResponse lists live document IDs.
type ListDocumentsResponse struct {
	Documents []string `json:"documents"`
}

// DocumentResponse identifies a document.
type DocumentResponse struct {
	ID string `json:"id"`
}

// SnapshotResponse holds every row of a document and who locks it. An empty
// holder means the row is free.
type SnapshotResponse struct {
	ID      string   `json:"id"`
	Rows    []string `json:"rows"`
	Holders []string `json:"holders"`
}

// RowResponse holds the text of one row.
type RowResponse struct {
	Row  int    `json:"row"`
	Text string `json:"text"`
}

// RowCountResponse holds the number of rows.
type RowCountResponse struct {
	Count int `json:"count"`
}

// ChangesResponse lists the rows to refresh.
type ChangesResponse struct {
	Rows []int `json:"rows"`
}

// RevisionResponse is one archived version of a document.
type RevisionResponse struct {
	Ref        string    `json:"ref,omitempty"`
	ClientID   string    `json:"client_id,omitempty"`
	ArchivedAt time.Time `json:"archived_at"`
	Rows       []string  `json:"rows"`
}

// HistoryResponse lists archived versions, newest first.
type HistoryResponse struct {
	ID        string             `json:"id"`
	Revisions []RevisionResponse `json:"revisions"`
}
