package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/forgeapi/forgeapi/internal/webservice/middleware"
)

// maxCredentialsBytes bounds the body of token requests.
const maxCredentialsBytes = 4 << 10

// Token issues bearer tokens to configured API clients.
type Token struct {
	clients ClientProvider
	issuer  TokenIssuer
}

type credentials struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

type tokenResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
	ExpiresIn   int64     `json:"expiresIn"`
}

// NewToken creates a new Token handler.
func NewToken(clients ClientProvider, issuer TokenIssuer) *Token {
	return &Token{clients: clients, issuer: issuer}
}

// ServeHTTP exchanges client credentials for a bearer token.
//
// Credentials are read from HTTP basic authentication or from a JSON body.
func (h *Token) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestID(r.Context())

	creds, err := readCredentials(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	client, ok := h.clients.Client(creds.ClientID)
	if !ok || !client.Verify(creds.ClientSecret) {
		slog.Info("Rejected client credentials", "req_id", reqID, "client", creds.ClientID)
		w.Header().Set("WWW-Authenticate", `Basic realm="forgeapi"`)
		middleware.WriteError(w, http.StatusUnauthorized, "invalid client credentials")
		return
	}

	token, exp, err := h.issuer.Issue(client.ID, client.Roles)
	if err != nil {
		respondError(w, r, fmt.Errorf("failed to issue token for %q: %v", client.ID, err))
		return
	}

	slog.Info("Token issued", "req_id", reqID, "client", client.ID, "expires", exp)
	w.Header().Set("Cache-Control", "no-store")
	middleware.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   exp.UTC(),
		ExpiresIn:   int64(time.Until(exp).Round(time.Second).Seconds()),
	})
}

func readCredentials(w http.ResponseWriter, r *http.Request) (credentials, error) {
	if id, secret, ok := r.BasicAuth(); ok {
		return credentials{ClientID: id, ClientSecret: secret}, nil
	}

	var creds credentials
	r.Body = http.MaxBytesReader(w, r.Body, maxCredentialsBytes)
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		return credentials{}, fmt.Errorf("%w: invalid credentials body: %v", errBadRequest, err)
	}
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return credentials{}, fmt.Errorf("%w: clientId and clientSecret are required", errBadRequest)
	}
	return creds, nil
}
