package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bz888/champs/internal/api/server/client"
	"github.com/bz888/champs/internal/api/server/handlers"
	"github.com/bz888/champs/internal/config"
	"github.com/bz888/champs/internal/logger"
)

const (
	shutdownTimeout = 10 * time.Second
	pingTimeout     = 3 * time.Second
)

// Server is the chat relay: it owns the router and the upstream provider.
type Server struct {
	cfg      *config.Config
	provider client.Provider
	router   chi.Router
	log      *logger.Logger
}

func New(cfg *config.Config, provider client.Provider) *Server {
	s := &Server{
		cfg:      cfg,
		provider: provider,
		log:      logger.NewLogger("Server"),
	}

	handler := handlers.NewHandler(provider, cfg.SystemPrompt, handlers.Params{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		TopP:        cfg.TopP,
	})
	s.router = s.buildRouter(handler)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Listen binds the configured address. It is split from Serve so a caller
// can start a client against the relay only once the port is open.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	return ln, nil
}

// Serve handles requests on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.checkUpstream(ctx)

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("Shutdown: ", err)
		}
	}()

	s.log.Infow("Relay listening", "addr", ln.Addr().String(), "provider", s.provider.Name(), "model", s.cfg.Model)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("Relay stopped")
	return nil
}

// Run is Listen followed by Serve.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// checkUpstream warns early when a local upstream is not running. It never
// blocks startup.
func (s *Server) checkUpstream(ctx context.Context) {
	pinger, ok := s.provider.(client.Pinger)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pinger.Ping(ctx); err != nil {
		s.log.Warn("Upstream not reachable yet: ", err)
		return
	}
	s.log.Info(s.provider.Name(), " upstream is reachable")
}
