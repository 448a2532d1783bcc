package server

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-session-gateway/gateway"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyPrincipal stores the authenticated *gateway.Principal
	ContextKeyPrincipal ContextKey = "principal"
)

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *gateway.Principal) context.Context {
	return context.WithValue(ctx, ContextKeyPrincipal, p)
}

// PrincipalFromContext returns the principal attached by AuthFilter, if any.
func PrincipalFromContext(ctx context.Context) (*gateway.Principal, bool) {
	p, ok := ctx.Value(ContextKeyPrincipal).(*gateway.Principal)
	return p, ok && p != nil
}

// AuthFilter validates the bearer token of every request that reaches it and
// attaches the principal to the request context. It never rejects: requests
// without a valid token are forwarded with a WWW-Authenticate challenge so
// downstream handlers decide whether authentication is required.
func (s *Server) AuthFilter(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, challenge, err := s.gateway.AuthenticateRequest(r.Context(), r.Header.Get(HeaderAuthorization))
		if err != nil {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("Rejected bearer token")
		}
		if challenge != gateway.ChallengeNone {
			w.Header().Set(HeaderWWWAuthenticate, string(challenge))
		}
		if principal != nil {
			r = r.WithContext(WithPrincipal(r.Context(), principal))
		}
		next(w, r)
	}
}

// RequirePrincipal rejects requests that AuthFilter left unauthenticated.
func RequirePrincipal(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); !ok {
			if w.Header().Get(HeaderWWWAuthenticate) == "" {
				w.Header().Set(HeaderWWWAuthenticate, string(gateway.ChallengeBearer))
			}
			writeStatus(w, http.StatusUnauthorized, "Authentication required.")
			return
		}
		next(w, r)
	}
}
