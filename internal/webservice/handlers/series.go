package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/forgeapi/forgeapi/internal/auth"
	"github.com/forgeapi/forgeapi/internal/webservice/middleware"
	"github.com/forgeapi/forgeapi/pkg/query"
)

// Series runs the named data series of the dynamic configuration.
type Series struct {
	series SeriesProvider
	stores Stores
}

// NewSeries creates a new Series handler.
func NewSeries(series SeriesProvider, stores Stores) *Series {
	return &Series{series: series, stores: stores}
}

// ServeHTTP runs the series named in the path, with the query string as overrides.
//
// Only page, page size, extra filters and sort can be overridden.
func (h *Series) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	base, ok := h.series.Series(name)
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "unknown series "+name)
		return
	}
	store, ok := h.stores.Store(base.Model)
	if !ok {
		respondError(w, r, fmt.Errorf("series %s targets unknown model %q", name, base.Model))
		return
	}

	p := auth.FromContext(r.Context())
	if !p.Allows(store.Model().Access.Read) {
		denied(w, r, p)
		return
	}

	overrides, err := query.ParseValues(r.URL.Query())
	if err != nil {
		respondError(w, r, err)
		return
	}
	// The shape of a named series is fixed.
	overrides.Fields, overrides.Joins = nil, nil

	merged := query.Merge(base, overrides)
	if !readsJoined(h.stores, store.Model(), merged, p) {
		denied(w, r, p)
		return
	}

	page, err := store.List(r.Context(), merged)
	if err != nil {
		respondError(w, r, err)
		return
	}

	slog.Debug("Series served", "req_id", middleware.RequestID(r.Context()), "series", name, "model", base.Model, "total", page.Total)
	middleware.WriteJSON(w, http.StatusOK, page)
}
