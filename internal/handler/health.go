package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	natsclient "github.com/capitalize-ai/agent-chat/internal/nats"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	db         Pinger
	natsClient *natsclient.Client
	logger     *logger.Logger
}

// NewHealthHandler creates a new health handler. natsClient may be nil when
// event publishing is disabled.
func NewHealthHandler(db Pinger, natsClient *natsclient.Client, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		db:         db,
		natsClient: natsClient,
		logger:     log,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database unreachable",
		})
		return
	}

	events := "disabled"
	if h.natsClient != nil {
		events = "disconnected"
		if h.natsClient.IsConnected() {
			events = "connected"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"events": events,
	})
}
