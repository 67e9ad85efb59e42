package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/headline-goat/funnel-goat/internal/experiment"
	"github.com/headline-goat/funnel-goat/internal/ratelimit"
	"github.com/headline-goat/funnel-goat/internal/store"
)

const shutdownTimeout = 10 * time.Second

type Options struct {
	Port           int
	TokenFile      string
	RequestTimeout time.Duration
	FunnelSteps    []string
	CompleteEvent  string
	Limiter        ratelimit.Limiter
	Publisher      experiment.Publisher
}

type Server struct {
	store     store.Store
	recorder  *experiment.Recorder
	engine    *experiment.Engine
	limiter   ratelimit.Limiter
	opts      Options
	token     string
	router    chi.Router
	startTime time.Time
}

func New(s store.Store, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.Nop{}
	}

	recorder := experiment.NewRecorder(s, opts.Publisher)
	recorder.Timeout = opts.RequestTimeout
	recorder.TrackLabels(opts.FunnelSteps, []string{opts.CompleteEvent})
	engine := experiment.NewEngine(s, s, s)
	engine.Timeout = opts.RequestTimeout

	srv := &Server{
		store:     s,
		recorder:  recorder,
		engine:    engine,
		limiter:   opts.Limiter,
		opts:      opts,
		token:     generateToken(),
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	// Public endpoints
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ft.js", s.handleTrackerJS)

	r.Route("/api", func(r chi.Router) {
		r.Use(corsMiddleware)
		r.Post("/event", s.handleEvent)
		r.Get("/cta-winner", s.handleWinner)
	})

	// Dashboard endpoints (protected)
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/dashboard", s.handleDashboard)
		r.Get("/dashboard/api/funnel", s.handleFunnelAPI)
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	return s.StartWithOptions(ctx, true)
}

// StartQuiet starts the server without printing startup messages
func (s *Server) StartQuiet(ctx context.Context) error {
	return s.StartWithOptions(ctx, false)
}

func (s *Server) StartWithOptions(ctx context.Context, printMessages bool) error {
	// Write token to file for the token command
	if s.opts.TokenFile != "" {
		if err := os.WriteFile(s.opts.TokenFile, []byte(s.token), 0600); err != nil {
			log.Warn().Err(err).Str("path", s.opts.TokenFile).Msg("failed to write token file")
		}
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if printMessages {
		fmt.Println()
		fmt.Printf("funnel-goat running on http://localhost:%d\n", s.opts.Port)
		fmt.Printf("Dashboard: http://localhost:%d/dashboard?token=%s\n", s.opts.Port, s.token)
		fmt.Println()
		fmt.Println("Press Ctrl+C to stop")
	}

	log.Info().
		Int("port", s.opts.Port).
		Str("write_profile", string(s.store.WriteProfile())).
		Msg("starting HTTP server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// requestContext bounds the store calls made while serving r.
func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.opts.RequestTimeout)
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) StartTime() time.Time {
	return s.startTime
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func generateToken() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(bytes)
}

// requestLogger writes one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		}()

		next.ServeHTTP(ww, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
