// Package status serves live progress of a backfill run over HTTP.
package status

import (
	"context"
	"net"
	"sync"

	"github.com/gear6io/scylla-backfill/backfill/orchestrator"
	"github.com/gear6io/scylla-backfill/pkg/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

var (
	ErrListenFailed   = errors.MustNewCode("status.listen_failed")
	ErrAlreadyStarted = errors.MustNewCode("status.already_started")
)

// Provider supplies the snapshot served on /status
type Provider interface {
	Status() orchestrator.Status
}

// Server is the status HTTP server
type Server struct {
	provider Provider
	app      *fiber.App
	logger   zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer creates a status server for provider
func NewServer(provider Provider, logger zerolog.Logger) *Server {
	s := &Server{
		provider: provider,
		logger:   logger.With().Str("component", "status-server").Logger(),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "scylla-backfill",
		DisableStartupMessage: true,
	})
	s.app.Get("/health", s.handleHealth)
	s.app.Get("/status", s.handleStatus)

	return s
}

// App exposes the fiber app, mainly for app.Test
func (s *Server) App() *fiber.App {
	return s.app
}

// Start binds addr and serves in the background
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return errors.New(ErrAlreadyStarted, "status server already started", nil)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.New(ErrListenFailed, "failed to bind status address", err).AddContext("addr", addr)
	}
	s.listener = ln
	s.logger.Info().Str("address", ln.Addr().String()).Msg("Starting status server")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.app.Listener(ln); err != nil {
			s.logger.Error().Err(err).Msg("Status server error")
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	started := s.listener != nil
	s.mu.Unlock()
	if !started {
		return nil
	}

	err := s.app.ShutdownWithContext(ctx)
	s.wg.Wait()
	s.logger.Info().Msg("Status server stopped")
	return err
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.provider.Status())
}
