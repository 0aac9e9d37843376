package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/forgeapi/forgeapi/internal/auth"
	"github.com/forgeapi/forgeapi/internal/webservice/middleware"
	"github.com/forgeapi/forgeapi/pkg/orm"
	"github.com/forgeapi/forgeapi/pkg/query"
)

// Resource serves the REST endpoints derived from the models of the schema.
type Resource struct {
	stores  Stores
	maxBody int64
}

// NewResource creates a new Resource handler. Request bodies are limited to maxBody bytes.
func NewResource(stores Stores, maxBody int64) *Resource {
	return &Resource{stores: stores, maxBody: maxBody}
}

// store returns the store of the model in the path if the caller may access it.
func (h *Resource) store(w http.ResponseWriter, r *http.Request, write bool) (Store, bool) {
	name := r.PathValue("model")
	s, ok := h.stores.Store(name)
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "unknown model "+name)
		return nil, false
	}

	access := s.Model().Access.Read
	if write {
		access = s.Model().Access.Write
	}
	p := auth.FromContext(r.Context())
	if !p.Allows(access) {
		denied(w, r, p)
		return nil, false
	}
	return s, true
}

// List handles GET /api/{model}.
func (h *Resource) List(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r, false)
	if !ok {
		return
	}

	series, err := query.ParseValues(r.URL.Query())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if p := auth.FromContext(r.Context()); !readsJoined(h.stores, s.Model(), series, p) {
		denied(w, r, p)
		return
	}
	page, err := s.List(r.Context(), series)
	if err != nil {
		respondError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, page)
}

// Get handles GET /api/{model}/{id}. Relationships listed in include are joined.
func (h *Resource) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r, false)
	if !ok {
		return
	}

	series, err := query.ParseValues(url.Values{"include": r.URL.Query()["include"]})
	if err != nil {
		respondError(w, r, err)
		return
	}
	if p := auth.FromContext(r.Context()); !readsJoined(h.stores, s.Model(), series, p) {
		denied(w, r, p)
		return
	}
	rec, err := s.Find(r.Context(), r.PathValue("id"), series.Joins...)
	if err != nil {
		respondError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, rec)
}

// Create handles POST /api/{model}.
func (h *Resource) Create(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r, true)
	if !ok {
		return
	}

	in, err := decodeRecord(w, r, h.maxBody)
	if err != nil {
		respondError(w, r, err)
		return
	}
	rec, err := s.Create(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}

	m := s.Model()
	id := rec[m.PrimaryKey().Name]
	slog.Info("Record created", "req_id", middleware.RequestID(r.Context()), "model", m.Name, "id", id)
	w.Header().Set("Location", fmt.Sprintf("/api/%s/%v", m.Name, id))
	middleware.WriteJSON(w, http.StatusCreated, rec)
}

// Update handles PATCH /api/{model}/{id}: only the given attributes change.
func (h *Resource) Update(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, Store.Update)
}

// Replace handles PUT /api/{model}/{id}: omitted attributes are cleared.
func (h *Resource) Replace(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, Store.Replace)
}

type writeFunc func(s Store, ctx context.Context, id any, in orm.Record) (orm.Record, error)

func (h *Resource) write(w http.ResponseWriter, r *http.Request, fn writeFunc) {
	s, ok := h.store(w, r, true)
	if !ok {
		return
	}

	in, err := decodeRecord(w, r, h.maxBody)
	if err != nil {
		respondError(w, r, err)
		return
	}
	rec, err := fn(s, r.Context(), r.PathValue("id"), in)
	if err != nil {
		respondError(w, r, err)
		return
	}

	slog.Info("Record updated", "req_id", middleware.RequestID(r.Context()), "model", s.Model().Name, "id", r.PathValue("id"))
	middleware.WriteJSON(w, http.StatusOK, rec)
}

// Delete handles DELETE /api/{model}/{id}.
func (h *Resource) Delete(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r, true)
	if !ok {
		return
	}

	if err := s.Delete(r.Context(), r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}

	slog.Info("Record deleted", "req_id", middleware.RequestID(r.Context()), "model", s.Model().Name, "id", r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}
