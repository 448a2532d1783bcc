package server

// Route path constants. The auth endpoint itself is configurable (AUTH_PATH)
// and dispatched by AuthEndpoint rather than the mux.
const (
	RouteHealth = "/healthz"
	RouteMe     = "/me"

	// Appended to the auth path, e.g. /jwt_auth/code
	RouteVerificationCodeSuffix = "/code"
	RouteAppTokenSuffix         = "/app"
)

// Response headers set on a successful token response.
const (
	HeaderAuthorization   = "Authorization"
	HeaderAppID           = "APP_ID"
	HeaderWWWAuthenticate = "WWW-Authenticate"
)
