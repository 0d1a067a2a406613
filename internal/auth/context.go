package auth

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const contextKeyPrincipal contextKey = "principal"

// Principal is the caller recovered from a verified bearer token.
type Principal struct {
	UserID uuid.UUID
	Email  string
	// AAL is the authenticator assurance level claim ("aal1", "aal2").
	AAL string
}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKeyPrincipal, p)
}

func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextKeyPrincipal).(*Principal)
	return p, ok && p != nil
}
