package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/maruel/coedit/internal/archive"
	"github.com/maruel/coedit/internal/registry"
	"github.com/maruel/coedit/internal/server/dto"
	"github.com/maruel/coedit/internal/server/handlers"
	"github.com/maruel/coedit/internal/server/ratelimit"
	"github.com/maruel/ksid"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type failingArchiver struct{}

func (failingArchiver) Archive(context.Context, *archive.Record) error {
	return errors.New("disk full")
}

type testServer struct {
	t   *testing.T
	url string
}

func newTestServer(t *testing.T, a archive.Archiver, cfg *handlers.Config, limiters *ratelimit.Config) *testServer {
	t.Helper()
	if cfg == nil {
		cfg = &handlers.Config{JWTSecret: testSecret, Version: "test"}
	}
	ts := httptest.NewServer(NewRouter(registry.New(a), cfg, limiters))
	t.Cleanup(ts.Close)
	return &testServer{t: t, url: ts.URL + APIPrefix}
}

// call sends a request and decodes the response into out. It returns the
// status code.
func (s *testServer) call(method, path, token string, body string, out any) int {
	s.t.Helper()
	var rd io.Reader = http.NoBody
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(s.t.Context(), method, s.url+path, rd)
	if err != nil {
		s.t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		s.t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		s.t.Fatal(err)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			s.t.Fatalf("%s %s: %v: %s", method, path, err, data)
		}
	}
	return resp.StatusCode
}

func (s *testServer) register() dto.RegisterClientResponse {
	s.t.Helper()
	var resp dto.RegisterClientResponse
	if code := s.call(http.MethodPost, "/clients", "", "", &resp); code != http.StatusOK {
		s.t.Fatalf("register: status %d", code)
	}
	return resp
}

func (s *testServer) newDocument(token string) string {
	s.t.Helper()
	var resp dto.DocumentResponse
	if code := s.call(http.MethodPost, "/documents", token, "", &resp); code != http.StatusOK {
		s.t.Fatalf("new document: status %d", code)
	}
	return resp.ID
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)
	var resp dto.HealthResponse
	if code := s.call(http.MethodGet, "/health", "", "", &resp); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	want := dto.HealthResponse{Status: "ok", Version: "test"}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("health mismatch (-want +got):\n%s", diff)
	}
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)
	c := s.register()
	if !strings.HasPrefix(c.ClientID, "C") || len(c.ClientID) != 37 {
		t.Errorf("client id = %q", c.ClientID)
	}

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   c.ClientID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	expiredTok, err := expired.SignedString(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	otherKey := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   c.ClientID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	otherTok, err := otherKey.SignedString([]byte("another secret"))
	if err != nil {
		t.Fatal(err)
	}
	noExpiry := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: c.ClientID})
	noExpiryTok, err := noExpiry.SignedString(testSecret)
	if err != nil {
		t.Fatal(err)
	}

	for name, tok := range map[string]string{
		"missing":   "",
		"garbage":   "not-a-jwt",
		"expired":   expiredTok,
		"wrong_key": otherTok,
		"no_expiry": noExpiryTok,
	} {
		t.Run(name, func(t *testing.T) {
			var resp dto.ErrorResponse
			if code := s.call(http.MethodGet, "/documents", tok, "", &resp); code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", code)
			}
			if resp.Error.Code != dto.ErrorCodeUnauthorized {
				t.Errorf("code = %q", resp.Error.Code)
			}
		})
	}
	t.Run("valid", func(t *testing.T) {
		var resp dto.ListDocumentsResponse
		if code := s.call(http.MethodGet, "/documents", c.Token, "", &resp); code != http.StatusOK {
			t.Errorf("status = %d", code)
		}
	})
}

func TestDocumentLifecycle(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)
	a, b := s.register(), s.register()
	id := s.newDocument(a.Token)
	doc := "/documents/" + id

	var dr dto.DocumentResponse
	if code := s.call(http.MethodGet, doc, b.Token, "", &dr); code != http.StatusOK || dr.ID != id {
		t.Fatalf("open = %d %+v", code, dr)
	}

	var ok dto.OkResponse
	if code := s.call(http.MethodPost, doc+"/rows/0/lock", a.Token, "", &ok); code != http.StatusOK || !ok.Ok {
		t.Fatalf("lock by a = %d %+v", code, ok)
	}
	ok = dto.OkResponse{}
	if code := s.call(http.MethodPost, doc+"/rows/0/lock", b.Token, "", &ok); code != http.StatusOK || ok.Ok {
		t.Fatalf("lock by b = %d %+v, want denied", code, ok)
	}

	if code := s.call(http.MethodPut, doc+"/rows/0", a.Token, `{"text":"one\ntwo\n"}`, &dr); code != http.StatusOK {
		t.Fatalf("write = %d", code)
	}

	var count dto.RowCountResponse
	if code := s.call(http.MethodGet, doc+"/rows", b.Token, "", &count); code != http.StatusOK || count.Count != 2 {
		t.Errorf("count = %d %+v", code, count)
	}
	var row dto.RowResponse
	if code := s.call(http.MethodGet, doc+"/rows/1", b.Token, "", &row); code != http.StatusOK || row.Text != "two" || row.Row != 1 {
		t.Errorf("row = %d %+v", code, row)
	}

	var changes dto.ChangesResponse
	s.call(http.MethodGet, doc+"/changes", a.Token, "", &changes)
	if diff := cmp.Diff([]int{0}, changes.Rows); diff != "" {
		t.Errorf("changes for a (-want +got):\n%s", diff)
	}
	changes = dto.ChangesResponse{}
	s.call(http.MethodGet, doc+"/changes", b.Token, "", &changes)
	if diff := cmp.Diff([]int{0, 1}, changes.Rows); diff != "" {
		t.Errorf("changes for b (-want +got):\n%s", diff)
	}

	var snap dto.SnapshotResponse
	s.call(http.MethodGet, doc+"/snapshot", b.Token, "", &snap)
	want := dto.SnapshotResponse{ID: id, Rows: []string{"one", "two"}, Holders: []string{"", a.ClientID}}
	if diff := cmp.Diff(want, snap); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}

	var docs dto.ListDocumentsResponse
	s.call(http.MethodGet, "/documents", b.Token, "", &docs)
	if diff := cmp.Diff([]string{id}, docs.Documents); diff != "" {
		t.Errorf("documents mismatch (-want +got):\n%s", diff)
	}

	ok = dto.OkResponse{}
	if code := s.call(http.MethodPost, doc+"/close", a.Token, "", &ok); code != http.StatusOK || !ok.Ok {
		t.Errorf("close = %d %+v", code, ok)
	}
	ok = dto.OkResponse{}
	if code := s.call(http.MethodPost, doc+"/rows/1/lock", b.Token, "", &ok); code != http.StatusOK || !ok.Ok {
		t.Errorf("lock after close = %d %+v", code, ok)
	}
	ok = dto.OkResponse{}
	if code := s.call(http.MethodDelete, doc+"/rows/1/lock", b.Token, "", &ok); code != http.StatusOK || !ok.Ok {
		t.Errorf("unlock = %d %+v", code, ok)
	}

	s.call(http.MethodPost, doc+"/rows/0/lock", b.Token, "", nil)
	var disc dto.DisconnectClientResponse
	if code := s.call(http.MethodDelete, "/clients/me", b.Token, "", &disc); code != http.StatusOK || disc.Released != 1 {
		t.Errorf("disconnect = %d %+v", code, disc)
	}
}

func TestErrors(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)
	a, b := s.register(), s.register()
	id := s.newDocument(a.Token)
	doc := "/documents/" + id
	s.call(http.MethodPost, doc+"/rows/0/lock", a.Token, "", nil)
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   dto.ErrorCode
	}{
		{"unknown_document", http.MethodGet, "/documents/" + ksid.NewID().String(), "", 404, dto.ErrorCodeDocumentNotFound},
		{"invalid_doc_id", http.MethodGet, "/documents/!!", "", 400, dto.ErrorCodeInvalidFormat},
		{"zero_doc_id", http.MethodGet, "/documents/0", "", 400, dto.ErrorCodeInvalidFormat},
		{"negative_row", http.MethodGet, doc + "/rows/-1", "", 400, dto.ErrorCodeInvalidFormat},
		{"row_not_int", http.MethodGet, doc + "/rows/x", "", 400, dto.ErrorCodeInvalidFormat},
		{"row_out_of_range", http.MethodGet, doc + "/rows/5", "", 400, dto.ErrorCodeRowOutOfRange},
		{"lock_out_of_range", http.MethodPost, doc + "/rows/2/lock", "", 400, dto.ErrorCodeRowOutOfRange},
		{"write_missing_text", http.MethodPut, doc + "/rows/0", `{}`, 400, dto.ErrorCodeMissingField},
		{"write_unknown_field", http.MethodPut, doc + "/rows/0", `{"text":"a","x":1}`, 400, dto.ErrorCodeValidationFailed},
		{"foreign_unlock", http.MethodDelete, doc + "/rows/0/lock", "", 500, dto.ErrorCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp dto.ErrorResponse
			if code := s.call(tt.method, tt.path, b.Token, tt.body, &resp); code != tt.status {
				t.Errorf("status = %d, want %d", code, tt.status)
			}
			if resp.Error.Code != tt.code {
				t.Errorf("code = %q, want %q (%s)", resp.Error.Code, tt.code, resp.Error.Message)
			}
		})
	}

	// The server survives the panic and the lock is untouched.
	var snap dto.SnapshotResponse
	s.call(http.MethodGet, doc+"/snapshot", b.Token, "", &snap)
	if diff := cmp.Diff([]string{a.ClientID}, snap.Holders); diff != "" {
		t.Errorf("holders mismatch (-want +got):\n%s", diff)
	}
}

func TestHistory(t *testing.T) {
	j, err := archive.NewJournal(filepath.Join(t.TempDir(), "journal.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	s := newTestServer(t, j, nil, nil)
	a := s.register()
	id := s.newDocument(a.Token)
	doc := "/documents/" + id
	for _, text := range []string{"first", "second\nline"} {
		s.call(http.MethodPost, doc+"/rows/0/lock", a.Token, "", nil)
		if code := s.call(http.MethodPut, doc+"/rows/0", a.Token, `{"text":`+strconv.Quote(text)+`}`, nil); code != http.StatusOK {
			t.Fatalf("write = %d", code)
		}
		if code := s.call(http.MethodPost, doc+"/close", a.Token, "", nil); code != http.StatusOK {
			t.Fatalf("close = %d", code)
		}
	}

	var resp dto.HistoryResponse
	if code := s.call(http.MethodGet, doc+"/history", a.Token, "", &resp); code != http.StatusOK {
		t.Fatalf("history = %d", code)
	}
	if resp.ID != id || len(resp.Revisions) != 2 {
		t.Fatalf("history = %+v", resp)
	}
	if diff := cmp.Diff([]string{"second", "line"}, resp.Revisions[0].Rows); diff != "" {
		t.Errorf("newest revision mismatch (-want +got):\n%s", diff)
	}
	if resp.Revisions[1].ClientID != a.ClientID || resp.Revisions[1].ArchivedAt.IsZero() {
		t.Errorf("oldest revision = %+v", resp.Revisions[1])
	}

	resp = dto.HistoryResponse{}
	if code := s.call(http.MethodGet, doc+"/history?limit=1", a.Token, "", &resp); code != http.StatusOK || len(resp.Revisions) != 1 {
		t.Errorf("history?limit=1 = %d %+v", code, resp)
	}
	var errResp dto.ErrorResponse
	if code := s.call(http.MethodGet, doc+"/history?limit=-1", a.Token, "", &errResp); code != http.StatusBadRequest || errResp.Error.Code != dto.ErrorCodeInvalidFormat {
		t.Errorf("history?limit=-1 = %d %+v", code, errResp)
	}

	t.Run("unavailable", func(t *testing.T) {
		s := newTestServer(t, nil, nil, nil)
		a := s.register()
		id := s.newDocument(a.Token)
		var resp dto.ErrorResponse
		if code := s.call(http.MethodGet, "/documents/"+id+"/history", a.Token, "", &resp); code != http.StatusNotImplemented {
			t.Errorf("status = %d, want 501", code)
		}
		if resp.Error.Code != dto.ErrorCodeHistoryUnavailable {
			t.Errorf("code = %q", resp.Error.Code)
		}
	})
}

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestErrorLogAttrs(t *testing.T) {
	var buf syncBuffer
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(old) })

	s := newTestServer(t, nil, nil, nil)
	a := s.register()
	if code := s.call(http.MethodGet, "/documents/"+ksid.NewID().String(), a.Token, "", nil); code != http.StatusNotFound {
		t.Fatalf("status = %d", code)
	}
	var entry map[string]any
	for line := range strings.SplitSeq(buf.String(), "\n") {
		if strings.Contains(line, `"msg":"Handler error"`) {
			if err := json.Unmarshal([]byte(line), &entry); err != nil {
				t.Fatal(err)
			}
		}
	}
	if entry == nil {
		t.Fatalf("no handler error logged:\n%s", buf.String())
	}
	if entry["client"] != a.ClientID {
		t.Errorf("client = %v, want %s", entry["client"], a.ClientID)
	}
	if ua, _ := entry["ua"].(string); !strings.HasPrefix(ua, "Go-http-client/") {
		t.Errorf("ua = %v", entry["ua"])
	}
	if entry["ip"] != "127.0.0.1" {
		t.Errorf("ip = %v", entry["ip"])
	}
}

func TestCloseArchiveFailure(t *testing.T) {
	s := newTestServer(t, failingArchiver{}, nil, nil)
	a := s.register()
	id := s.newDocument(a.Token)
	s.call(http.MethodPost, "/documents/"+id+"/rows/0/lock", a.Token, "", nil)
	var resp dto.ErrorResponse
	if code := s.call(http.MethodPost, "/documents/"+id+"/close", a.Token, "", &resp); code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
	if resp.Error.Code != dto.ErrorCodeArchiveFailed {
		t.Errorf("code = %q", resp.Error.Code)
	}
	var snap dto.SnapshotResponse
	s.call(http.MethodGet, "/documents/"+id+"/snapshot", a.Token, "", &snap)
	if diff := cmp.Diff([]string{a.ClientID}, snap.Holders); diff != "" {
		t.Errorf("lock released despite failure (-want +got):\n%s", diff)
	}
}

func TestRateLimit(t *testing.T) {
	limiters := ratelimit.New(ratelimit.Rates{RegisterPerMin: 1, WritePerMin: 1})
	t.Cleanup(limiters.Close)
	s := newTestServer(t, nil, nil, limiters)
	a := s.register()

	var resp dto.ErrorResponse
	if code := s.call(http.MethodPost, "/clients", "", "", &resp); code != http.StatusTooManyRequests {
		t.Fatalf("second register = %d, want 429", code)
	}
	if resp.Error.Code != dto.ErrorCodeRateLimitExceeded {
		t.Errorf("code = %q", resp.Error.Code)
	}

	id := s.newDocument(a.Token)
	if code := s.call(http.MethodPost, "/documents/"+id+"/rows/0/lock", a.Token, "", nil); code != http.StatusTooManyRequests {
		t.Errorf("second write = %d, want 429", code)
	}
	// Reads are unlimited here.
	for range 5 {
		if code := s.call(http.MethodGet, "/documents/"+id+"/rows", a.Token, "", nil); code != http.StatusOK {
			t.Fatalf("read = %d", code)
		}
	}
}

func TestPayloadTooLarge(t *testing.T) {
	cfg := &handlers.Config{JWTSecret: testSecret, MaxRequestBodyBytes: 64}
	s := newTestServer(t, nil, cfg, nil)
	a := s.register()
	id := s.newDocument(a.Token)
	body, err := json.Marshal(map[string]string{"text": string(bytes.Repeat([]byte("x"), 100))})
	if err != nil {
		t.Fatal(err)
	}
	var resp dto.ErrorResponse
	if code := s.call(http.MethodPut, "/documents/"+id+"/rows/0", a.Token, string(body), &resp); code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", code)
	}
	if resp.Error.Code != dto.ErrorCodePayloadTooLarge {
		t.Errorf("code = %q", resp.Error.Code)
	}
}
