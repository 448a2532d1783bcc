package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-session-gateway/gateway"
	"github.com/jrsteele09/go-session-gateway/internal/config"
	"github.com/jrsteele09/go-session-gateway/providers"
	"github.com/jrsteele09/go-session-gateway/tenants"
	"github.com/jrsteele09/go-session-gateway/users"
	"github.com/rs/zerolog/log"
)

// Repos are the stores the transport reads directly, outside the gateway.
type Repos struct {
	Tenants tenants.Repo
	Users   users.UserRepo
	// Codes backs the verification code route. Nil disables the route.
	Codes providers.CodeStore
}

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	authPath string
	mux      *http.ServeMux
	handler  http.Handler
	routes   []string
	config   config.Config
	repos    Repos
	gateway  *gateway.Gateway
}

func New(config config.Config, repos Repos, gw *gateway.Gateway) (*Server, error) {
	s := &Server{
		env:      config.GetEnv(),
		authPath: config.GetAuthPath(),
		mux:      http.NewServeMux(),
		config:   config,
		repos:    repos,
		gateway:  gw,
	}

	ctx := context.Background()
	if err := s.InitialiseSystem(ctx); err != nil {
		return nil, fmt.Errorf("[Server New] Failed to initialise the system: %w", err)
	}

	s.initRoutes()
	s.logRoutes()

	// The auth endpoint sees every request first and passes through anything
	// that is not one of its verbs. Everything after it is filtered.
	s.handler = ChainMiddleware(s.mux.ServeHTTP, append(s.APIMiddleware(), s.AuthEndpoint, s.AuthFilter)...)
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, method := range []string{http.MethodPost, http.MethodGet, http.MethodDelete} {
		logRoute(method, s.authPath)
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	log.Info().Msgf("[%s] %s", color+paddedMethod+ResetColor, path)
}
