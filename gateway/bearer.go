package gateway

import "strings"

// BearerToken extracts the token from an Authorization header value.
func BearerToken(authorization string) (string, bool) {
	authorization = strings.TrimSpace(authorization)
	if len(authorization) < len("Bearer") || !strings.EqualFold(authorization[:len("Bearer")], "Bearer") {
		return "", false
	}
	raw := strings.TrimSpace(authorization[len("Bearer"):])
	if raw == "" {
		return "", false
	}
	return raw, true
}
