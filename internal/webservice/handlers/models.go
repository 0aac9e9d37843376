package handlers

import (
	"net/http"

	"github.com/forgeapi/forgeapi/internal/auth"
	"github.com/forgeapi/forgeapi/internal/webservice/middleware"
	"github.com/forgeapi/forgeapi/pkg/datamodel"
)

// Models describes the models of the schema the caller may read.
type Models struct {
	schema *datamodel.Schema
}

type modelDescription struct {
	Name          string                   `json:"name"`
	Description   string                   `json:"description,omitempty"`
	Path          string                   `json:"path"`
	Attributes    []datamodel.Attribute    `json:"attributes"`
	Relationships []datamodel.Relationship `json:"relationships,omitempty"`
	Writable      bool                     `json:"writable"`
}

// NewModels creates a new Models handler.
func NewModels(schema *datamodel.Schema) *Models {
	return &Models{schema: schema}
}

// ServeHTTP handles requests to the /api/models endpoint.
func (h *Models) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())

	models := make([]modelDescription, 0, len(h.schema.Models()))
	for _, m := range h.schema.Models() {
		if !p.Allows(m.Access.Read) {
			continue
		}
		models = append(models, modelDescription{
			Name:          m.Name,
			Description:   m.Description,
			Path:          "/api/" + m.Name,
			Attributes:    m.Attributes,
			Relationships: m.Relationships,
			Writable:      p.Allows(m.Access.Write),
		})
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{"models": models})
}
