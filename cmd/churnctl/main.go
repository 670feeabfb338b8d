// Command churnctl scores customers interactively in the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/goliatone/go-churnform/internal/app"
	"github.com/goliatone/go-churnform/internal/config"
	"github.com/goliatone/go-churnform/internal/logging"
	"github.com/goliatone/go-churnform/pkg/orchestrator"
	"github.com/goliatone/go-churnform/pkg/render"
	"github.com/goliatone/go-churnform/pkg/renderers/tui"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, tui.ErrAborted) || errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "churnctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.FromArgs("churnctl", args, os.Stderr)
	if err != nil {
		return err
	}
	// The prompts own the terminal; logs only go to a file when one is set.
	logOpts := []logging.Option{logging.WithFields(zap.String("service", "churnctl"))}
	if cfg.Log.File == "" {
		logOpts = append(logOpts, logging.WithWriter(io.Discard))
	}
	logger, closeLog, err := logging.New(cfg.Log, logOpts...)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()
	log := logger.Sugar()

	driver := tui.NewSurveyDriver(os.Stdout)
	renderer := tui.New(tui.WithPromptDriver(driver))
	registry := render.NewRegistry()
	registry.MustRegister(renderer)

	cfg.Server.Renderer = renderer.Name()
	orch := app.NewOrchestrator(cfg, app.NewLoader(cfg), registry)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := orch.Resources(); err != nil {
		log.Errorw("resources failed to load", "error", err)
		resp, renderErr := orch.RenderForm(ctx, orchestrator.Request{})
		if renderErr != nil {
			return renderErr
		}
		if err := renderer.Show(ctx, resp.Page); err != nil {
			return err
		}
		return err
	}

	state, err := orch.NewState()
	if err != nil {
		return err
	}
	for {
		submit, err := renderer.Collect(ctx, state)
		if err != nil {
			return err
		}
		if !submit {
			return nil
		}

		resp, err := orch.Submit(ctx, orchestrator.Request{State: state})
		if err != nil {
			return err
		}
		if err := renderer.Show(ctx, resp.Page); err != nil {
			return err
		}
		if resp.Result != nil {
			log.Infow("prediction", "label", resp.Result.Label, "probability", resp.Result.Probability)
		} else if resp.Err != nil {
			log.Warnw("prediction failed", "error", resp.Err)
		}

		again, err := driver.Confirm(ctx, tui.ConfirmConfig{Message: "Score another customer?", Default: true})
		if err != nil {
			return err
		}
		if !again {
			return nil
		}
	}
}
