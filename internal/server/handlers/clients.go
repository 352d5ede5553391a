// Handles client registration and disconnection.

package handlers

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maruel/coedit/internal/document"
	"github.com/maruel/coedit/internal/registry"
	"github.com/maruel/coedit/internal/server/dto"
)

// defaultTokenTTL applies when Config.TokenTTL is zero.
const defaultTokenTTL = 24 * time.Hour

// ClientHandler issues client identities.
type ClientHandler struct {
	reg *registry.Registry
	cfg *Config
}

// NewClientHandler creates a new client handler.
func NewClientHandler(reg *registry.Registry, cfg *Config) *ClientHandler {
	return &ClientHandler{reg: reg, cfg: cfg}
}

// Register returns a fresh client identity and a bearer token for it.
func (h *ClientHandler) Register(ctx context.Context, _ *dto.RegisterClientRequest) (*dto.RegisterClientResponse, error) {
	c := h.reg.RegisterClient(ctx)
	token, err := h.GenerateToken(c)
	if err != nil {
		return nil, dto.InternalWithError("failed to sign token", err)
	}
	return &dto.RegisterClientResponse{ClientID: string(c), Token: token}, nil
}

// Disconnect releases every lock the caller holds.
func (h *ClientHandler) Disconnect(ctx context.Context, c document.ClientID, _ *dto.DisconnectClientRequest) (*dto.DisconnectClientResponse, error) {
	return &dto.DisconnectClientResponse{Released: h.reg.DisconnectClient(ctx, c)}, nil
}

// GenerateToken signs an HS256 token whose subject is the client.
func (h *ClientHandler) GenerateToken(c document.ClientID) (string, error) {
	ttl := h.cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   string(c),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.cfg.JWTSecret)
}
