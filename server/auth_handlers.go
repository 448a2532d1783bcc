package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-session-gateway/gateway"
	"github.com/jrsteele09/go-session-gateway/internal/errors"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

// newTokenBody is the POST body of the auth endpoint. tenantId and
// sessionMode are accepted as aliases of appid and isMetaLogin.
type newTokenBody struct {
	Provider    string `json:"provider"`
	AppID       string `json:"appid"`
	TenantID    string `json:"tenantId"`
	Token       string `json:"token"`
	IsMetaLogin *bool  `json:"isMetaLogin"`
	SessionMode *bool  `json:"sessionMode"`
}

func (b newTokenBody) tenant() string {
	if b.AppID != "" {
		return b.AppID
	}
	return b.TenantID
}

func (b newTokenBody) sessionMode() *bool {
	if b.IsMetaLogin != nil {
		return b.IsMetaLogin
	}
	return b.SessionMode
}

// AuthEndpoint dispatches POST, GET and DELETE at the auth path to new token,
// refresh and revoke. Every other request falls through to next.
func (s *Server) AuthEndpoint(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != s.authPath {
			next(w, r)
			return
		}
		switch r.Method {
		case http.MethodPost:
			s.newToken(w, r)
		case http.MethodGet:
			s.refreshToken(w, r)
		case http.MethodDelete:
			s.revokeAllTokens(w, r)
		default:
			next(w, r)
		}
	}
}

func (s *Server) newToken(w http.ResponseWriter, r *http.Request) {
	var body newTokenBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeStatus(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}

	appID := body.tenant()
	if body.Provider == "" || appID == "" || body.Token == "" {
		writeStatus(w, http.StatusBadRequest, "Some of the required query parameters 'provider', 'appid', 'token', are missing.")
		return
	}

	result, err := s.gateway.IssueNewToken(r.Context(), gateway.NewTokenRequest{
		TenantID:    appID,
		Provider:    body.Provider,
		Credential:  body.Token,
		UserAgent:   r.UserAgent(),
		SessionMode: body.sessionMode(),
	})
	if err != nil {
		status, message := newTokenFailure(err, appID, body.Provider)
		log.Debug().Err(err).Str("appid", appID).Str("provider", body.Provider).Int("status", status).Msg("New token rejected")
		writeStatus(w, status, message)
		return
	}
	writeTokenResponse(w, result)
}

// newTokenFailure maps an issuance error to its status and message.
func newTokenFailure(err error, appID, provider string) (int, string) {
	switch {
	case errors.Is(err, errors.ErrInvalidRequest):
		return http.StatusBadRequest, "Some of the required query parameters 'provider', 'appid', 'token', are missing."
	case errors.Is(err, errors.ErrTenantAccessForbidden):
		return http.StatusForbidden, fmt.Sprintf("Can't authenticate user with app '%s' using provider '%s'. Reason: clients aren't allowed to access root app.", appID, provider)
	case errors.Is(err, errors.ErrTenantNotFound):
		return http.StatusBadRequest, "User belongs to an app that does not exist."
	case errors.Is(err, errors.ErrProviderUnknown):
		return http.StatusBadRequest, fmt.Sprintf("Unknown identity provider '%s'.", provider)
	case errors.Is(err, errors.ErrAccountInactive):
		return http.StatusBadRequest, fmt.Sprintf("Failed to authenticate user with '%s'. Check if user is active.", provider)
	case errors.Is(err, errors.ErrCredentialExchangeFailed):
		return http.StatusBadRequest, fmt.Sprintf("Failed to authenticate user with '%s'. Reason: %s.", provider, exchangeReason(err))
	case errors.Is(err, errors.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "Session store unavailable, try again later."
	default:
		return http.StatusBadRequest, err.Error()
	}
}

// exchangeReason names the cause of a failed credential exchange without
// exposing wrapped internals.
func exchangeReason(err error) string {
	for _, cause := range []error{
		errors.ErrInvalidCredentials,
		errors.ErrMalformedCredential,
		errors.ErrAccountNotFound,
		errors.ErrStoreUnavailable,
	} {
		if errors.Is(err, cause) {
			return cause.Error()
		}
	}
	return errors.ErrCredentialExchangeFailed.Error()
}

func (s *Server) refreshToken(w http.ResponseWriter, r *http.Request) {
	raw, ok := tokenFromRequest(r)
	if ok {
		result, err := s.gateway.RefreshToken(r.Context(), gateway.RefreshRequest{Token: raw, UserAgent: r.UserAgent()})
		if err == nil {
			writeTokenResponse(w, result)
			return
		}
		log.Debug().Err(err).Msg("Refresh rejected")
	}
	w.Header().Set(HeaderWWWAuthenticate, string(gateway.ChallengeInvalidToken))
	writeStatus(w, http.StatusUnauthorized, "User must reauthenticate.")
}

func (s *Server) revokeAllTokens(w http.ResponseWriter, r *http.Request) {
	raw, ok := tokenFromRequest(r)
	if ok {
		result, err := s.gateway.RevokeAllSessions(r.Context(), gateway.RevokeRequest{Token: raw, UserAgent: r.UserAgent()})
		if err == nil {
			log.Info().
				Str("tenant", result.Tenant.ID).
				Str("user", result.UserID).
				Str("client", string(result.ClientClass)).
				Int("revoked", result.Revoked).
				Msg("Sessions revoked")
			w.Header().Set(HeaderAppID, result.Tenant.Identifier)
			writeStatus(w, http.StatusOK, fmt.Sprintf("All tokens revoked for user %s!", result.UserID))
			return
		}
		log.Debug().Err(err).Msg("Revoke rejected")
	}
	w.Header().Set(HeaderWWWAuthenticate, string(gateway.ChallengeBearer))
	writeStatus(w, http.StatusUnauthorized, "Invalid or expired token.")
}

// tokenFromRequest reads the bearer token from the Authorization header or,
// failing that, the Authorization query parameter.
func tokenFromRequest(r *http.Request) (string, bool) {
	if raw, ok := gateway.BearerToken(r.Header.Get(HeaderAuthorization)); ok {
		return raw, true
	}
	return gateway.BearerToken(r.URL.Query().Get(HeaderAuthorization))
}
