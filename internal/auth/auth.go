// Package auth issues and verifies the bearer tokens of the web service and applies model access rules.
package auth

import (
	"context"
	"slices"
)

type contextKey string

const contextKeyPrincipal contextKey = "principal"

// Anyone is the access role granting a model to unauthenticated requests.
const Anyone = "*"

// anonymousSubject is the subject of requests without credentials.
const anonymousSubject = "anonymous"

// Principal is the caller of a request.
type Principal struct {
	Subject string   `json:"subject"`
	Roles   []string `json:"roles,omitempty"`
}

// Anonymous returns the principal of requests without credentials.
func Anonymous() *Principal {
	return &Principal{Subject: anonymousSubject}
}

// IsAnonymous returns true if the principal did not authenticate.
func (p *Principal) IsAnonymous() bool {
	return p == nil || p.Subject == anonymousSubject
}

// Allows reports whether the principal matches an access list.
//
// "*" allows anyone, an empty list allows any authenticated principal and
// any other list requires one of its roles.
func (p *Principal) Allows(roles []string) bool {
	if slices.Contains(roles, Anyone) {
		return true
	}
	if p.IsAnonymous() {
		return false
	}
	if len(roles) == 0 {
		return true
	}
	for _, r := range p.Roles {
		if slices.Contains(roles, r) {
			return true
		}
	}
	return false
}

// WithPrincipal returns a copy of ctx carrying the principal.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKeyPrincipal, p)
}

// FromContext extracts the principal from a request context, defaulting to the anonymous one.
func FromContext(ctx context.Context) *Principal {
	if p, ok := ctx.Value(contextKeyPrincipal).(*Principal); ok && p != nil {
		return p
	}
	return Anonymous()
}
