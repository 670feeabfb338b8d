// Command churnform serves the churn prediction form over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/goliatone/go-churnform/internal/app"
	"github.com/goliatone/go-churnform/internal/config"
	"github.com/goliatone/go-churnform/internal/logging"
	"github.com/goliatone/go-churnform/internal/server"
	"github.com/goliatone/go-churnform/pkg/render"
	"github.com/goliatone/go-churnform/pkg/renderers/tui"
	"github.com/goliatone/go-churnform/pkg/renderers/vanilla"
	"github.com/goliatone/go-churnform/pkg/resources"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "churnform: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.FromArgs("churnform", args, os.Stderr)
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.New(cfg.Log, logging.WithFields(zap.String("service", "churnform")))
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()
	log := logger.Sugar()

	health := server.NewHealth()
	loader := app.NewLoader(cfg,
		resources.WithObserver(server.HealthObserver(health)),
		resources.WithObserver(loadLogger(log)),
	)
	// Load eagerly so a broken deployment is visible at startup. The form
	// still serves the diagnostic page on failure.
	_, _ = loader.Load()

	registry := render.NewRegistry()
	html, err := vanilla.New()
	if err != nil {
		return fmt.Errorf("vanilla renderer: %w", err)
	}
	registry.MustRegister(html)
	registry.MustRegister(tui.New())
	if err := registry.SetDefault(cfg.Server.Renderer); err != nil {
		return fmt.Errorf("default renderer: %w", err)
	}

	sessions, err := server.NewSessionStore(cfg.Sessions.Capacity)
	if err != nil {
		return err
	}
	orch := app.NewOrchestrator(cfg, loader, registry)
	srv := server.New(orch, sessions,
		server.WithLogger(log),
		server.WithRenderer(cfg.Server.Renderer),
		server.WithCookie(cfg.Sessions.CookieName, cfg.Sessions.Secure),
		server.WithAssets(vanilla.AssetsFS()),
	)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 2)
	go func() {
		log.Infow("listening", "addr", cfg.Server.Addr, "renderer", cfg.Server.Renderer)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("listen: %w", err)
		}
	}()
	if cfg.Health.GRPCAddr != "" {
		go func() {
			if err := server.ServeHealth(ctx, cfg.Health.GRPCAddr, health, log); err != nil {
				errChan <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Infow("shutting down", "grace", cfg.Server.Grace)
	case runErr = <-errChan:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Grace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnw("shutdown", "error", err)
	}
	return runErr
}

func loadLogger(log *zap.SugaredLogger) resources.Observer {
	return func(res *resources.Resources, err error) {
		if err != nil {
			log.Errorw("resources failed to load", "error", err)
			return
		}
		log.Infow("resources loaded",
			"model_kind", res.Info.Kind,
			"model_name", res.Info.Name,
			"model_version", res.Info.Version,
			"fields", len(res.Schema.Fields()),
		)
	}
}
