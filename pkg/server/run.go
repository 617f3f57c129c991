package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/NicolasHaas/gocollab/pkg/auth"
	"github.com/NicolasHaas/gocollab/pkg/model"
)

// Run starts the server and blocks until a shutdown signal or Shutdown.
func (s *Server) Run() error {
	st := s.store
	defer func() { _ = st.Close() }()

	ctx, stop := signal.NotifyContext(s.ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if s.cfg.Auth.Mode == AuthTokens {
		if err := s.ensureAdminToken(ctx); err != nil {
			return err
		}
	}

	if err := s.machine.Start(ctx); err != nil {
		return fmt.Errorf("server: start machine: %w", err)
	}
	defer func() {
		if err := s.machine.Stop(); err != nil {
			slog.Error("stop machine", "err", err)
		}
	}()

	go s.coord.Run(ctx)
	go s.worker.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/", s.ws)
	srv := &http.Server{
		Addr:              s.cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	slog.Info("gocollab server running",
		"addr", s.cfg.HTTP.Addr,
		"node", s.cfg.Node.ID,
		"auth", s.cfg.Auth.Mode,
	)

	s.startMetricsHTTP(ctx)
	s.metrics.StartPeriodicLog(s.cfg.Metrics.LogInterval, ctx.Done())

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.cancel()
			return fmt.Errorf("server: listen: %w", err)
		}
	}

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	s.Shutdown()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() {
	s.cancel()
}

// ensureAdminToken creates an admin token only on first run (no tokens exist).
func (s *Server) ensureAdminToken(ctx context.Context) error {
	hasTokens, err := s.store.HasTokens(ctx)
	if err != nil {
		return fmt.Errorf("server: check tokens: %w", err)
	}
	if hasTokens {
		return nil // tokens already exist, don't generate more
	}

	rawToken, err := auth.IssueToken(ctx, s.store, "admin", model.RankAdmin)
	if err != nil {
		return fmt.Errorf("server: generate admin token: %w", err)
	}

	slog.Info("========================================")
	slog.Info("ADMIN TOKEN (save this!):", "token", rawToken)
	slog.Info("========================================")
	return nil
}
