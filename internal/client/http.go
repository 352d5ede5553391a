// HTTP client for the coedit API.

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/maruel/coedit/internal/archive"
	"github.com/maruel/coedit/internal/document"
	"github.com/maruel/coedit/internal/registry"
	"github.com/maruel/coedit/internal/server/dto"
	"github.com/maruel/ksid"
)

// APIError is an error response from the server.
type APIError struct {
	Status  int
	Code    dto.ErrorCode
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// Is maps API error codes to the sentinel errors of the registry so callers
// handle both backends the same way.
func (e *APIError) Is(target error) bool {
	switch e.Code {
	case dto.ErrorCodeDocumentNotFound:
		return target == registry.ErrDocumentNotFound
	case dto.ErrorCodeRowOutOfRange:
		return target == document.ErrRowOutOfRange
	case dto.ErrorCodeHistoryUnavailable:
		return target == archive.ErrNoHistory
	}
	return false
}

// HTTP talks to a coedit server.
type HTTP struct {
	base   string
	token  string
	client document.ClientID
	hc     *http.Client
}

// Register obtains a new client identity from the server at baseURL, for
// example "http://localhost:8080". hc may be nil.
func Register(ctx context.Context, baseURL string, hc *http.Client) (*HTTP, error) {
	if hc == nil {
		hc = http.DefaultClient
	}
	h := &HTTP{base: strings.TrimSuffix(baseURL, "/") + "/api/v1", hc: hc}
	var resp dto.RegisterClientResponse
	if err := h.do(ctx, http.MethodPost, "/clients", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to register: %w", err)
	}
	h.client = document.ClientID(resp.ClientID)
	h.token = resp.Token
	return h, nil
}

// Client implements Backend.
func (h *HTTP) Client() document.ClientID { return h.client }

// Health returns the server health.
func (h *HTTP) Health(ctx context.Context) (*dto.HealthResponse, error) {
	var resp dto.HealthResponse
	if err := h.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// NewDocument creates an empty document.
func (h *HTTP) NewDocument(ctx context.Context) (ksid.ID, error) {
	var resp dto.DocumentResponse
	if err := h.do(ctx, http.MethodPost, "/documents", nil, &resp); err != nil {
		return 0, err
	}
	return ksid.Parse(resp.ID)
}

// OpenDocument checks that a document exists.
func (h *HTTP) OpenDocument(ctx context.Context, id ksid.ID) (ksid.ID, error) {
	var resp dto.DocumentResponse
	if err := h.do(ctx, http.MethodGet, docPath(id), nil, &resp); err != nil {
		return 0, err
	}
	return ksid.Parse(resp.ID)
}

// ListDocuments lists every live document.
func (h *HTTP) ListDocuments(ctx context.Context) ([]ksid.ID, error) {
	var resp dto.ListDocumentsResponse
	if err := h.do(ctx, http.MethodGet, "/documents", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]ksid.ID, 0, len(resp.Documents))
	for _, s := range resp.Documents {
		id, err := ksid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid document id %q: %w", s, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// Snapshot returns every row and lock holder of a document.
func (h *HTTP) Snapshot(ctx context.Context, id ksid.ID) (document.Snapshot, error) {
	var resp dto.SnapshotResponse
	if err := h.do(ctx, http.MethodGet, docPath(id)+"/snapshot", nil, &resp); err != nil {
		return document.Snapshot{}, err
	}
	s := document.Snapshot{Rows: resp.Rows, Holders: make([]document.ClientID, len(resp.Holders))}
	for i, c := range resp.Holders {
		s.Holders[i] = document.ClientID(c)
	}
	return s, nil
}

// Disconnect releases every lock held by this client.
func (h *HTTP) Disconnect(ctx context.Context) (int, error) {
	var resp dto.DisconnectClientResponse
	if err := h.do(ctx, http.MethodDelete, "/clients/me", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Released, nil
}

// Lock implements Backend.
func (h *HTTP) Lock(ctx context.Context, id ksid.ID, row int) (bool, error) {
	var resp dto.OkResponse
	err := h.do(ctx, http.MethodPost, rowPath(id, row)+"/lock", nil, &resp)
	return resp.Ok, err
}

// Unlock implements Backend.
func (h *HTTP) Unlock(ctx context.Context, id ksid.ID, row int) (bool, error) {
	var resp dto.OkResponse
	err := h.do(ctx, http.MethodDelete, rowPath(id, row)+"/lock", nil, &resp)
	return resp.Ok, err
}

// Write implements Backend.
func (h *HTTP) Write(ctx context.Context, id ksid.ID, row int, text string) error {
	var resp dto.DocumentResponse
	return h.do(ctx, http.MethodPut, rowPath(id, row), map[string]string{"text": text}, &resp)
}

// Row implements Backend.
func (h *HTTP) Row(ctx context.Context, id ksid.ID, row int) (string, error) {
	var resp dto.RowResponse
	err := h.do(ctx, http.MethodGet, rowPath(id, row), nil, &resp)
	return resp.Text, err
}

// RowCount implements Backend.
func (h *HTTP) RowCount(ctx context.Context, id ksid.ID) (int, error) {
	var resp dto.RowCountResponse
	err := h.do(ctx, http.MethodGet, docPath(id)+"/rows", nil, &resp)
	return resp.Count, err
}

// ChangedRows implements Backend.
func (h *HTTP) ChangedRows(ctx context.Context, id ksid.ID) ([]int, error) {
	var resp dto.ChangesResponse
	err := h.do(ctx, http.MethodGet, docPath(id)+"/changes", nil, &resp)
	return resp.Rows, err
}

// Close implements Backend.
func (h *HTTP) Close(ctx context.Context, id ksid.ID) error {
	var resp dto.OkResponse
	return h.do(ctx, http.MethodPost, docPath(id)+"/close", nil, &resp)
}

// History implements Backend.
func (h *HTTP) History(ctx context.Context, id ksid.ID, n int) ([]*archive.Revision, error) {
	path := docPath(id) + "/history"
	if n > 0 {
		path += "?limit=" + strconv.Itoa(n)
	}
	var resp dto.HistoryResponse
	if err := h.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]*archive.Revision, len(resp.Revisions))
	for i, r := range resp.Revisions {
		out[i] = &archive.Revision{
			Ref:    r.Ref,
			Client: document.ClientID(r.ClientID),
			When:   r.ArchivedAt,
			Rows:   r.Rows,
		}
	}
	return out, nil
}

func docPath(id ksid.ID) string {
	return "/documents/" + url.PathEscape(id.String())
}

func rowPath(id ksid.ID, row int) string {
	return docPath(id) + "/rows/" + strconv.Itoa(row)
}

// do sends a JSON request and decodes the JSON response into out.
func (h *HTTP) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	resp, err := h.hc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode != http.StatusOK {
		var e dto.ErrorResponse
		if json.Unmarshal(data, &e) != nil || e.Error.Code == "" {
			return &APIError{Status: resp.StatusCode, Code: dto.ErrorCodeInternal, Message: strings.TrimSpace(string(data))}
		}
		return &APIError{Status: resp.StatusCode, Code: e.Error.Code, Message: e.Error.Message}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: invalid response: %w", method, path, err)
	}
	return nil
}
