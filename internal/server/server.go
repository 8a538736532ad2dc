package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/chat-template-codecs/internal/auth"
	"github.com/tjfontaine/chat-template-codecs/internal/codec"
	"github.com/tjfontaine/chat-template-codecs/internal/domain"
	"github.com/tjfontaine/chat-template-codecs/internal/recorder"
	"github.com/tjfontaine/chat-template-codecs/internal/session"
)

// Defaults apply to requests that leave family or effort unset.
type Defaults struct {
	Family string
	Effort domain.Effort
}

type Server struct {
	Router *chi.Mux
	Port   int
	logger *slog.Logger

	families  *codec.Registry
	defaults  Defaults
	completer domain.Completer
	runOpts   []session.Option
	recorder  *recorder.Recorder
	auth      *auth.Authenticator
	timeout   time.Duration

	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithRegistry replaces the built-in family registry.
func WithRegistry(families *codec.Registry) Option {
	return func(s *Server) {
		s.families = families
	}
}

// WithDefaults sets the family and effort used when a request names none.
func WithDefaults(d Defaults) Option {
	return func(s *Server) {
		s.defaults = d
	}
}

// WithCompleter enables POST /v1/turn against the given backend.
func WithCompleter(c domain.Completer, opts ...session.Option) Option {
	return func(s *Server) {
		s.completer = c
		s.runOpts = opts
	}
}

// WithRecorder records every codec operation.
func WithRecorder(r *recorder.Recorder) Option {
	return func(s *Server) {
		s.recorder = r
	}
}

// WithRequestTimeout bounds each request.
// WithAuthenticator requires a bearer API key on every /v1 route.
func WithAuthenticator(a *auth.Authenticator) Option {
	return func(s *Server) {
		s.auth = a
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.timeout = d
	}
}

func New(port int, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		Port:     port,
		logger:   logger,
		families: codec.NewRegistry(),
		defaults: Defaults{Family: "k2", Effort: domain.EffortMedium},
		timeout:  120 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()

	// Apply middleware in order
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Timeout(s.timeout))
	r.Use(middleware.Recoverer)

	// Wrap with OpenTelemetry HTTP instrumentation
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "chattmpl")
	})

	s.Router = r
	s.routes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.Router.Get("/healthz", s.handleHealth)

	s.Router.Route("/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(s.auth))

		r.Get("/families", s.handleListFamilies)
		r.Post("/format", s.handleFormat)
		r.Post("/parse", s.handleParse)
		r.Post("/decode", s.handleDecode)
		r.Post("/turn", s.handleTurn)

		r.Get("/interactions", s.handleListInteractions)
		r.Get("/interactions/{id}", s.handleGetInteraction)
	})
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting server", slog.Int("port", s.Port))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
