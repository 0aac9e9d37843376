package handlers

import (
	"net/http"

	"github.com/forgeapi/forgeapi/internal/constants"
	"github.com/forgeapi/forgeapi/internal/webservice/middleware"
)

// VersionHandler handles requests to the /version endpoint.
func VersionHandler(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"version": constants.Version})
}
