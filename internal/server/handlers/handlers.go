// Package handlers implements the API endpoints on top of the document
// registry.
//
// Handlers have the signature expected by the server Wrap adapters:
// func(ctx, *Request) (*Response, error) for public endpoints and
// func(ctx, document.ClientID, *Request) (*Response, error) for endpoints
// that need an authenticated client.
package handlers

import (
	"errors"
	"time"

	"github.com/maruel/coedit/internal/archive"
	"github.com/maruel/coedit/internal/document"
	"github.com/maruel/coedit/internal/registry"
	"github.com/maruel/coedit/internal/server/dto"
	"github.com/maruel/ksid"
)

// Config is the handler configuration shared with the server adapters.
type Config struct {
	JWTSecret           []byte
	TokenTTL            time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// toAPIError maps registry and document errors to API errors.
func toAPIError(err error, id ksid.ID, row int) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, registry.ErrDocumentNotFound):
		return dto.DocumentNotFound(id.String()).Wrap(err)
	case errors.Is(err, document.ErrRowOutOfRange):
		return dto.RowOutOfRange(row).Wrap(err)
	case errors.Is(err, archive.ErrNoHistory):
		return dto.HistoryUnavailable().Wrap(err)
	default:
		return dto.InternalWithError("operation failed", err)
	}
}
