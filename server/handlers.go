package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-session-gateway/internal/errors"
	"github.com/jrsteele09/go-session-gateway/providers"
	"github.com/jrsteele09/go-session-gateway/tenants"
	"github.com/rs/zerolog/log"
)

// MeHandler echoes the principal attached by AuthFilter. It is the smallest
// example of a downstream route that requires authentication.
func (s *Server) MeHandler() http.HandlerFunc {
	return RequirePrincipal(func(w http.ResponseWriter, r *http.Request) {
		principal, _ := PrincipalFromContext(r.Context())
		writeJSON(w, http.StatusOK, principalResponse{
			AppID: principal.Tenant.Identifier,
			App:   principal.App,
			User:  principal.User,
		})
	})
}

type verificationCodeBody struct {
	AppID string `json:"appid"`
	Phone string `json:"phone"`
}

// VerificationCodeHandler issues a one-time code for the verificationcode
// provider. Delivery to the phone is left to the deployment; in DEV the code
// is logged.
func (s *Server) VerificationCodeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body verificationCodeBody
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
			writeStatus(w, http.StatusBadRequest, "Invalid JSON body.")
			return
		}
		body.Phone = strings.TrimSpace(body.Phone)
		if body.AppID == "" || !providers.IsPhone(body.Phone) {
			writeStatus(w, http.StatusBadRequest, "A valid 'appid' and 'phone' are required.")
			return
		}

		tenant, err := s.repos.Tenants.Get(r.Context(), tenants.ID(body.AppID))
		if errors.Is(err, errors.ErrNotFound) {
			writeStatus(w, http.StatusBadRequest, "User belongs to an app that does not exist.")
			return
		}
		if err != nil {
			log.Err(err).Str("appid", body.AppID).Msg("Tenant lookup failed")
			writeStatus(w, http.StatusServiceUnavailable, "Tenant store unavailable, try again later.")
			return
		}

		code, err := s.repos.Codes.Issue(r.Context(), tenant.ID, body.Phone)
		if err != nil {
			log.Err(err).Str("tenant", tenant.ID).Msg("Verification code not issued")
			writeStatus(w, http.StatusServiceUnavailable, "Verification code could not be issued.")
			return
		}

		event := log.Info().Str("tenant", tenant.ID).Str("phone", body.Phone)
		if s.env == "DEV" {
			event = event.Str("code", code)
		}
		event.Msg("Verification code issued")
		writeStatus(w, http.StatusOK, "Verification code sent.")
	}
}

type appTokenBody struct {
	AppID string `json:"appid"`
}

// AppTokenHandler mints a tenant-level app token. Only users of the root
// tenant may call it.
func (s *Server) AppTokenHandler() http.HandlerFunc {
	return RequirePrincipal(func(w http.ResponseWriter, r *http.Request) {
		principal, _ := PrincipalFromContext(r.Context())
		if principal.App || !principal.Tenant.Root {
			writeStatus(w, http.StatusForbidden, "Only root app users can issue app tokens.")
			return
		}

		var body appTokenBody
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
			writeStatus(w, http.StatusBadRequest, "Invalid JSON body.")
			return
		}
		result, err := s.gateway.IssueAppToken(r.Context(), body.AppID)
		switch {
		case errors.Is(err, errors.ErrInvalidRequest):
			writeStatus(w, http.StatusBadRequest, "The 'appid' parameter is required.")
			return
		case errors.Is(err, errors.ErrTenantNotFound):
			writeStatus(w, http.StatusBadRequest, "App does not exist.")
			return
		case err != nil:
			log.Err(err).Str("appid", body.AppID).Msg("App token not issued")
			writeStatus(w, http.StatusServiceUnavailable, "Tenant store unavailable, try again later.")
			return
		}

		log.Info().
			Str("tenant", result.Tenant.ID).
			Str("issuedBy", principal.User.ID).
			Msg("App token issued")
		writeTokenResponse(w, result)
	})
}
