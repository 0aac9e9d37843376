package auth_test

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/forgeapi/forgeapi/internal/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	secret  = []byte("0123456789abcdef0123456789abcdef")
	issueAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

func newIssuer(t *testing.T, key []byte, iss string, now time.Time) *auth.Issuer {
	t.Helper()

	i, err := auth.NewIssuer(key, iss, auth.WithTTL(time.Hour), auth.WithClock(func() time.Time { return now }))
	require.NoError(t, err, "Setup: NewIssuer should succeed")
	return i
}

func TestNewIssuerWeakSecret(t *testing.T) {
	t.Parallel()

	_, err := auth.NewIssuer([]byte("short"), "forgeapi")
	require.ErrorIs(t, err, auth.ErrWeakSecret, "NewIssuer should refuse short secrets")
}

func TestIssueAndVerify(t *testing.T) {
	t.Parallel()

	i := newIssuer(t, secret, "forgeapi", issueAt)

	token, exp, err := i.Issue("reporting", []string{"reader", "writer"})
	require.NoError(t, err, "Issue should succeed")
	assert.Equal(t, issueAt.Add(time.Hour), exp, "unexpected expiry")
	assert.Len(t, strings.Split(token, "."), 3, "token should be a signed JWT")

	p, err := i.Verify(token)
	require.NoError(t, err, "Verify should succeed")
	assert.Equal(t, &auth.Principal{Subject: "reporting", Roles: []string{"reader", "writer"}}, p, "unexpected principal")

	_, _, err = i.Issue("", nil)
	require.Error(t, err, "Issue should refuse an empty subject")
	_, _, err = i.Issue("anonymous", nil)
	require.Error(t, err, "Issue should refuse the anonymous subject")
}

func TestVerifyErrors(t *testing.T) {
	t.Parallel()

	valid, _, err := newIssuer(t, secret, "forgeapi", issueAt).Issue("reporting", nil)
	require.NoError(t, err, "Setup: Issue should succeed")

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "forgeapi",
		"sub": "reporting",
	}).SignedString(secret)
	require.NoError(t, err, "Setup: failed to sign token without expiry")

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"iss": "forgeapi",
		"sub": "reporting",
		"exp": issueAt.Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err, "Setup: failed to build unsigned token")

	otherAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"iss": "forgeapi",
		"sub": "reporting",
		"exp": issueAt.Add(time.Hour).Unix(),
	}).SignedString(secret)
	require.NoError(t, err, "Setup: failed to sign HS512 token")

	parts := strings.Split(valid, ".")
	forged := base64.RawURLEncoding.EncodeToString([]byte(`{"iss":"forgeapi","sub":"admin","roles":["admin"],"exp":9999999999}`))
	tampered := parts[0] + "." + forged + "." + parts[2]

	tests := map[string]struct {
		verifier *auth.Issuer
		token    string
	}{
		"Expired token":           {verifier: newIssuer(t, secret, "forgeapi", issueAt.Add(2*time.Hour)), token: valid},
		"Not yet valid token":     {verifier: newIssuer(t, secret, "forgeapi", issueAt.Add(-time.Minute)), token: valid},
		"Other issuer":            {verifier: newIssuer(t, secret, "other", issueAt), token: valid},
		"Other secret":            {verifier: newIssuer(t, []byte(strings.Repeat("x", 32)), "forgeapi", issueAt), token: valid},
		"Missing expiry":          {verifier: newIssuer(t, secret, "forgeapi", issueAt), token: noExpiry},
		"Unsigned token":          {verifier: newIssuer(t, secret, "forgeapi", issueAt), token: unsigned},
		"Other signing algorithm": {verifier: newIssuer(t, secret, "forgeapi", issueAt), token: otherAlg},
		"Garbage":                 {verifier: newIssuer(t, secret, "forgeapi", issueAt), token: "not.a.token"},
		"Tampered claims":         {verifier: newIssuer(t, secret, "forgeapi", issueAt), token: tampered},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := tc.verifier.Verify(tc.token)
			require.ErrorIs(t, err, auth.ErrInvalidToken, "Verify should reject the token")
		})
	}
}
