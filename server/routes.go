package server

import (
	"net/http"
	"strings"
)

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
	s.RegisterRouteFunc("GET "+RouteMe, s.MeHandler())
	s.RegisterRouteFunc("POST "+strings.TrimSuffix(s.authPath, "/")+RouteAppTokenSuffix, s.AppTokenHandler())

	if s.repos.Codes != nil {
		s.RegisterRouteFunc("POST "+strings.TrimSuffix(s.authPath, "/")+RouteVerificationCodeSuffix, s.VerificationCodeHandler())
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
