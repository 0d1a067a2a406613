package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"

	"github.com/jw6ventures/lifeos/internal/config"
	"github.com/jw6ventures/lifeos/internal/http/respond"
)

const aal2 = "aal2"

// Service guards function endpoints with user bearer tokens or the
// service key used by schedulers.
type Service struct {
	verifier    Verifier
	requireAAL2 bool
	serviceKey  string
}

// NewService picks the OIDC verifier when an issuer is configured and the
// shared-secret verifier otherwise.
func NewService(ctx context.Context, cfg *config.Config) (*Service, error) {
	var verifier Verifier
	if cfg.Auth.OIDCIssuer != "" {
		v, err := NewOIDCVerifier(ctx, cfg.Auth.OIDCIssuer, cfg.Auth.OIDCAudience)
		if err != nil {
			return nil, err
		}
		verifier = v
	} else {
		verifier = NewHS256Verifier(cfg.Auth.JWTSecret, cfg.Auth.OIDCAudience)
	}
	return NewServiceWithVerifier(verifier, cfg.Auth.RequireAAL2, cfg.FunctionsServiceKey), nil
}

func NewServiceWithVerifier(v Verifier, requireAAL2 bool, serviceKey string) *Service {
	return &Service{verifier: v, requireAAL2: requireAAL2, serviceKey: serviceKey}
}

// RequireBearer verifies the Authorization header and stores the Principal
// in the request context.
func (s *Service) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			unauthorized(w, r)
			return
		}
		principal, err := s.verifier.Verify(r.Context(), raw)
		if err != nil {
			hlog.FromRequest(r).Debug().Err(err).Msg("bearer rejected")
			unauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// RequireAAL2 rejects sessions that have not completed a second factor
// when the deployment demands it. It must run after RequireBearer.
func (s *Service) RequireAAL2(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.requireAAL2 {
			next.ServeHTTP(w, r)
			return
		}
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			unauthorized(w, r)
			return
		}
		if p.AAL != aal2 {
			respond.Error(w, r, http.StatusForbidden, "Multi-factor authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireServiceKey guards batch functions. An empty key leaves them open.
func (s *Service) RequireServiceKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.serviceKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		raw, ok := bearerToken(r)
		if !ok || subtle.ConstantTimeCompare([]byte(raw), []byte(s.serviceKey)) != 1 {
			unauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	respond.Error(w, r, http.StatusUnauthorized, "Unauthorized")
}
