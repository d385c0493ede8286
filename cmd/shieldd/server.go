// server.go - Status HTTP server and daemon lifecycle
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func runDaemon(ctx context.Context, cmd *cli.Command) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.logger.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.logger.Info("shieldd %s starting, wallet %s", version, a.wallet.Name)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.scanLoop(ctx) })
	g.Go(func() error { return a.serveStatus(ctx) })

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	a.logger.Info("shieldd stopped")
	return nil
}

// scanLoop polls for encrypted payloads addressed to this wallet. A failed
// pass is retried on the next tick; the wallet file is saved after every
// pass that claimed something.
func (a *app) scanLoop(ctx context.Context) error {
	interval := time.Duration(a.cfg.ScanIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			claimed, err := a.scanner.ScanOnce(ctx)
			if err != nil {
				a.logger.Warn("discovery pass failed: %v", err)
				a.metrics.RecordError("discovery")
				continue
			}
			if claimed > 0 {
				a.logger.Info("discovered %d incoming note(s)", claimed)
				a.metrics.RecordDiscovery(claimed)
				a.saveWallet()
			}
		}
	}
}

func (a *app) serveStatus(ctx context.Context) error {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(NewRateLimiter(60, 60, time.Second).Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		health := a.health.CheckHealth()
		code := http.StatusOK
		if health.OverallStatus == Unhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, health)
	})
	r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, a.metrics.GetMetricsSummary())
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.HTTPPort),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.logger.Info("status server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
