package handlers

import (
	"log/slog"
	"net/http"

	"github.com/forgeapi/forgeapi/internal/webservice/middleware"
)

// Health reports whether the database is reachable.
type Health struct {
	db Pinger
}

// NewHealth creates a new Health handler.
func NewHealth(db Pinger) *Health {
	return &Health{db: db}
}

// ServeHTTP handles requests to the /healthz endpoint.
func (h *Health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		slog.Warn("Health check failed", "req_id", middleware.RequestID(r.Context()), "err", err)
		middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": "unreachable"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "ok"})
}
