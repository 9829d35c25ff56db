// Package server wires the auth endpoints and the protected API surface
// behind the authorization gate.
package server

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/eldor47/glucosnap/auth"
	"github.com/eldor47/glucosnap/gate"
	"github.com/eldor47/glucosnap/internal/config"
	"github.com/eldor47/glucosnap/users"
)

type Server struct {
	mux      *http.ServeMux
	config   *config.Config
	auth     *auth.Service
	gate     *gate.Gate
	users    users.Repo
	validate *validator.Validate
	logger   zerolog.Logger
}

func New(cfg *config.Config, authService *auth.Service, g *gate.Gate, userRepo users.Repo, logger zerolog.Logger) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		config:   cfg,
		auth:     authService,
		gate:     g,
		users:    userRepo,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
	s.initRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) initRoutes() {
	// Auth endpoints: evaluated before any gate, they mint the tokens the
	// gate later verifies
	s.mux.HandleFunc("POST /auth/signin", s.chain(s.SignInHandler()))
	s.mux.HandleFunc("POST /auth/signup", s.chain(s.SignUpHandler()))
	s.mux.HandleFunc("POST /auth/refresh", s.chain(s.RefreshHandler()))
	s.mux.HandleFunc("POST /auth/federated", s.chain(s.FederatedHandler()))

	// Protected resources: the gate runs before the handler; on reject the
	// handler is never invoked
	s.mux.HandleFunc("GET /user/profile", s.chain(s.gate.Middleware(s.GetProfileHandler())))
	s.mux.HandleFunc("PUT /user/profile", s.chain(s.gate.Middleware(s.UpdateProfileHandler())))

	s.mux.HandleFunc("GET /healthz", s.HealthHandler())
}

func (s *Server) chain(handler http.HandlerFunc) http.HandlerFunc {
	return s.RecoverMiddleware(s.LoggingMiddleware(handler))
}
