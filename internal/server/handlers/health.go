package handlers

import (
	"context"

	"github.com/maruel/coedit/internal/registry"
	"github.com/maruel/coedit/internal/server/dto"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	reg     *registry.Registry
	version string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(reg *registry.Registry, version string) *HealthHandler {
	return &HealthHandler{reg: reg, version: version}
}

// Health handles health check requests.
func (h *HealthHandler) Health(ctx context.Context, _ *dto.HealthRequest) (*dto.HealthResponse, error) {
	return &dto.HealthResponse{
		Status:    "ok",
		Version:   h.version,
		Documents: h.reg.Len(),
	}, nil
}
