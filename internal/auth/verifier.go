package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrUnauthorized is returned for any missing, malformed or rejected token.
var ErrUnauthorized = errors.New("unauthorized")

// Verifier turns a raw bearer token into a Principal.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*Principal, error)
}

// tokenClaims are the claims read from access tokens issued by the auth provider.
type tokenClaims struct {
	Email string `json:"email"`
	AAL   string `json:"aal"`
	jwt.RegisteredClaims
}

func (c *tokenClaims) principal() (*Principal, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject is not a user id", ErrUnauthorized)
	}
	return &Principal{UserID: id, Email: c.Email, AAL: c.AAL}, nil
}

// HS256Verifier checks tokens signed with the project's shared JWT secret.
type HS256Verifier struct {
	secret   []byte
	audience string
}

func NewHS256Verifier(secret, audience string) *HS256Verifier {
	return &HS256Verifier{secret: []byte(secret), audience: audience}
}

func (v *HS256Verifier) Verify(_ context.Context, rawToken string) (*Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return claims.principal()
}

// OIDCVerifier checks tokens against an issuer's discovery document and JWKS.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(ctx context.Context, issuer, audience string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}
	cfg := &oidc.Config{ClientID: audience, SkipClientIDCheck: audience == ""}
	return &OIDCVerifier{verifier: provider.Verifier(cfg)}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Principal, error) {
	tok, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	claims := &tokenClaims{}
	if err := tok.Claims(claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	claims.Subject = tok.Subject
	return claims.principal()
}
