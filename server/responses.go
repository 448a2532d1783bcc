package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/go-session-gateway/gateway"
	"github.com/jrsteele09/go-session-gateway/users"
)

const contentTypeJSON = "application/json"

type statusResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jwtPayload struct {
	AccessToken string `json:"access_token"`
	Refresh     int64  `json:"refresh"` // Unix seconds
	Expires     int64  `json:"expires"` // Unix millis
}

type tokenResponse struct {
	JWT  jwtPayload  `json:"jwt"`
	User *users.User `json:"user"`
}

type principalResponse struct {
	AppID string      `json:"appid"`
	App   bool        `json:"app"`
	User  *users.User `json:"user,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeStatus writes the {"code","message"} body used for every non-token
// response of the auth endpoint.
func writeStatus(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, statusResponse{Code: status, Message: message})
}

// writeTokenResponse renders a minted token with the Authorization and APP_ID
// headers set.
func writeTokenResponse(w http.ResponseWriter, result *gateway.Result) {
	claims := result.Token.Claims
	if claims == nil || claims.ExpiresAt == nil {
		writeStatus(w, http.StatusInternalServerError, "Bad token.")
		return
	}
	w.Header().Set(HeaderAuthorization, "Bearer "+result.Token.Raw)
	w.Header().Set(HeaderAppID, result.Tenant.Identifier)
	writeJSON(w, http.StatusOK, tokenResponse{
		JWT: jwtPayload{
			AccessToken: result.Token.Raw,
			Refresh:     claims.Refresh,
			Expires:     claims.ExpiresAt.UnixMilli(),
		},
		User: result.User,
	})
}
