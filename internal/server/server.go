// Package server runs the discovery API over TCP and, on Windows, over a
// local named pipe.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/acpipe/acpipe/internal/api"
	"github.com/acpipe/acpipe/internal/appcontainer"
	"github.com/acpipe/acpipe/internal/config"
	"github.com/acpipe/acpipe/internal/metrics"
)

type Server struct {
	cfg *config.Config
	log *slog.Logger

	httpServer *http.Server
	httpLn     net.Listener

	pipeServer *http.Server
	pipeLn     net.Listener
}

func New(cfg *config.Config, log *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if log == nil {
		log = slog.Default()
	}

	app := api.NewApp(appcontainer.EnumeratePipePrefixes, cfg, metrics.New(), log)
	handler := app.Router()

	s := &Server{cfg: cfg, log: log}

	httpLn, err := net.Listen("tcp", cfg.Server.HTTP.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Server.HTTP.Addr, err)
	}
	s.httpLn = httpLn
	s.httpServer = &http.Server{
		Handler:      handler,
		ReadTimeout:  cfg.Server.HTTP.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.HTTP.WriteTimeoutDuration(),
	}

	if cfg.Server.Pipe.Enabled {
		pipeLn, err := listenPipe(cfg.Server.Pipe.Name)
		if err != nil {
			httpLn.Close()
			return nil, fmt.Errorf("listen pipe %s: %w", cfg.Server.Pipe.Name, err)
		}
		s.pipeLn = pipeLn
		s.pipeServer = &http.Server{
			Handler:      handler,
			ReadTimeout:  cfg.Server.HTTP.ReadTimeoutDuration(),
			WriteTimeout: cfg.Server.HTTP.WriteTimeoutDuration(),
		}
	}

	return s, nil
}

// Addr returns the bound TCP address, useful when the config asked for
// port 0.
func (s *Server) Addr() string {
	return s.httpLn.Addr().String()
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		s.log.Info("http listener started", "addr", s.Addr())
		errCh <- s.httpServer.Serve(s.httpLn)
	}()

	if s.pipeServer != nil {
		go func() {
			s.log.Info("pipe listener started", "name", s.cfg.Server.Pipe.Name)
			errCh <- s.pipeServer.Serve(s.pipeLn)
		}()
	}

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		_ = s.Shutdown()
		return err
	}
}

// Shutdown stops both listeners, waiting briefly for in-flight requests.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var firstErr error
	if err := s.httpServer.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if s.pipeServer != nil {
		if err := s.pipeServer.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
