package auth_test

import (
	"context"
	"testing"

	"github.com/forgeapi/forgeapi/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllows(t *testing.T) {
	t.Parallel()

	reader := &auth.Principal{Subject: "reporting", Roles: []string{"reader"}}

	tests := map[string]struct {
		principal *auth.Principal
		roles     []string

		want bool
	}{
		"Anyone allows anonymous":         {principal: auth.Anonymous(), roles: []string{"*"}, want: true},
		"Empty list allows authenticated": {principal: reader, want: true},
		"Matching role":                   {principal: reader, roles: []string{"admin", "reader"}, want: true},
		"Nil principal is anonymous":      {principal: nil, roles: []string{"*"}, want: true},
		"Empty list rejects anonymous":    {principal: auth.Anonymous()},
		"Role list rejects anonymous":     {principal: auth.Anonymous(), roles: []string{"reader"}},
		"Missing role":                    {principal: reader, roles: []string{"admin"}},
		"Principal without roles":         {principal: &auth.Principal{Subject: "x"}, roles: []string{"admin"}},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, tc.principal.Allows(tc.roles), "unexpected access decision")
		})
	}
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	got := auth.FromContext(context.Background())
	require.True(t, got.IsAnonymous(), "an empty context should carry the anonymous principal")

	p := &auth.Principal{Subject: "reporting"}
	got = auth.FromContext(auth.WithPrincipal(context.Background(), p))
	assert.Same(t, p, got, "the stored principal should be returned")
}

func TestClientVerify(t *testing.T) {
	t.Parallel()

	hash, err := auth.HashSecret("s3cret")
	require.NoError(t, err, "HashSecret should succeed")
	assert.NotEqual(t, "s3cret", hash, "the secret must not be stored in clear")

	c := auth.Client{ID: "reporting", SecretHash: hash}
	assert.True(t, c.Verify("s3cret"), "the right secret should verify")
	assert.False(t, c.Verify("nope"), "a wrong secret should not verify")
	assert.False(t, auth.Client{ID: "nohash"}.Verify(""), "a client without hash should never verify")

	_, err = auth.HashSecret("")
	require.Error(t, err, "HashSecret should refuse empty secrets")
}
