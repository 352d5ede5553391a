// Package server implements the HTTP server and routing logic.
package server

import (
	"net/http"

	"github.com/maruel/coedit/internal/registry"
	"github.com/maruel/coedit/internal/server/handlers"
	"github.com/maruel/coedit/internal/server/ratelimit"
)

// APIPrefix is the path prefix of every API route.
const APIPrefix = "/api/v1"

// NewRouter creates and configures the HTTP router.
//
// limiters may be nil to disable rate limiting.
func NewRouter(reg *registry.Registry, cfg *handlers.Config, limiters *ratelimit.Config) http.Handler {
	mux := &http.ServeMux{}
	hh := handlers.NewHealthHandler(reg, cfg.Version)
	ch := handlers.NewClientHandler(reg, cfg)
	dh := handlers.NewDocumentHandler(reg)

	// Health check
	mux.Handle("GET "+APIPrefix+"/health", Wrap(hh.Health, cfg, limiters))

	// Clients
	mux.Handle("POST "+APIPrefix+"/clients", Wrap(ch.Register, cfg, limiters))
	mux.Handle("DELETE "+APIPrefix+"/clients/me", WrapAuth(ch.Disconnect, cfg, limiters))

	// Documents
	mux.Handle("GET "+APIPrefix+"/documents", WrapAuth(dh.ListDocuments, cfg, limiters))
	mux.Handle("POST "+APIPrefix+"/documents", WrapAuth(dh.NewDocument, cfg, limiters))
	mux.Handle("GET "+APIPrefix+"/documents/{docID}", WrapAuth(dh.OpenDocument, cfg, limiters))
	mux.Handle("GET "+APIPrefix+"/documents/{docID}/snapshot", WrapAuth(dh.GetSnapshot, cfg, limiters))
	mux.Handle("POST "+APIPrefix+"/documents/{docID}/close", WrapAuth(dh.CloseDocument, cfg, limiters))
	mux.Handle("GET "+APIPrefix+"/documents/{docID}/changes", WrapAuth(dh.ListChanges, cfg, limiters))
	mux.Handle("GET "+APIPrefix+"/documents/{docID}/history", WrapAuth(dh.GetHistory, cfg, limiters))

	// Rows
	mux.Handle("GET "+APIPrefix+"/documents/{docID}/rows", WrapAuth(dh.GetRowCount, cfg, limiters))
	mux.Handle("GET "+APIPrefix+"/documents/{docID}/rows/{row}", WrapAuth(dh.GetRow, cfg, limiters))
	mux.Handle("PUT "+APIPrefix+"/documents/{docID}/rows/{row}", WrapAuth(dh.WriteRow, cfg, limiters))
	mux.Handle("POST "+APIPrefix+"/documents/{docID}/rows/{row}/lock", WrapAuth(dh.LockRow, cfg, limiters))
	mux.Handle("DELETE "+APIPrefix+"/documents/{docID}/rows/{row}/lock", WrapAuth(dh.UnlockRow, cfg, limiters))

	return LoggingMiddleware(RecoverMiddleware(mux))
}
