package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/forgeapi/forgeapi/internal/auth"
	"github.com/forgeapi/forgeapi/internal/webservice/middleware"
	"github.com/forgeapi/forgeapi/pkg/datamodel"
	"github.com/forgeapi/forgeapi/pkg/orm"
	"github.com/forgeapi/forgeapi/pkg/query"
)

// errBadRequest is returned for request bodies that cannot be read.
var errBadRequest = errors.New("bad request")

type validationResponse struct {
	Error    string           `json:"error"`
	Problems []orm.FieldError `json:"problems"`
}

// respondError maps err to its status code and writes it as a JSON error.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := middleware.RequestID(r.Context())

	var verr *orm.ValidationError
	switch {
	case errors.As(err, &verr):
		middleware.WriteJSON(w, http.StatusUnprocessableEntity, validationResponse{Error: verr.Error(), Problems: verr.Problems})
	case errors.Is(err, errBadRequest), errors.Is(err, query.ErrInvalidSeries):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, orm.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, err.Error())
	default:
		slog.Error("Request failed", "req_id", reqID, "path", r.URL.Path, "err", err)
		middleware.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	slog.Debug("Request rejected", "req_id", reqID, "path", r.URL.Path, "err", err)
}

// denied rejects a request the principal may not perform.
// Anonymous callers are asked to authenticate.
func denied(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	slog.Info("Access denied", "req_id", middleware.RequestID(r.Context()), "subject", p.Subject, "path", r.URL.Path)
	if p.IsAnonymous() {
		w.Header().Set("WWW-Authenticate", `Bearer realm="forgeapi"`)
		middleware.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	middleware.WriteError(w, http.StatusForbidden, "forbidden")
}

// readsJoined reports whether p may read every model the series reaches through the
// relationships of m. Unknown relationships are left to the query builder to reject.
func readsJoined(stores Stores, m *datamodel.Model, s query.Series, p *auth.Principal) bool {
	for _, name := range s.Relationships() {
		rel, ok := m.Relationship(name)
		if !ok {
			continue
		}
		target, ok := stores.Store(rel.Model)
		if !ok || !p.Allows(target.Model().Access.Read) {
			return false
		}
	}
	return true
}

// decodeRecord reads a JSON object from the request body.
func decodeRecord(w http.ResponseWriter, r *http.Request, maxBytes int64) (orm.Record, error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}

	var rec orm.Record
	dec := json.NewDecoder(r.Body)
	// Numbers are kept as text so large integers are not rounded through float64.
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: body exceeds %d bytes", errBadRequest, tooLarge.Limit)
		}
		return nil, fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", errBadRequest)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: body must contain a single JSON object", errBadRequest)
	}
	return rec, nil
}
