package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/disasterlens/civicguard/internal/alert"
	"github.com/disasterlens/civicguard/internal/cases"
	"github.com/disasterlens/civicguard/internal/classifier"
	"github.com/disasterlens/civicguard/internal/config"
	"github.com/disasterlens/civicguard/internal/queue"
	"github.com/disasterlens/civicguard/internal/server"
	"github.com/disasterlens/civicguard/internal/session"
	"github.com/disasterlens/civicguard/internal/store"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := store.NewSQLiteStore(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	var dispatcher alert.Dispatcher = &alert.LogDispatcher{Logger: logger}
	if cfg.Alerts.SendGridKey != "" {
		dispatcher = &alert.EmailDispatcher{
			Sender:      &alert.SendGridSender{APIKey: cfg.Alerts.SendGridKey},
			FromAddress: cfg.Alerts.FromEmail,
			FromName:    cfg.Alerts.FromName,
			Recipient:   cfg.Alerts.Recipient,
			SandboxMode: cfg.Alerts.Sandbox,
			Logger:      logger,
		}
	} else {
		logger.Warn("no SendGrid key configured, critical alerts go to the log only")
	}

	svc := cases.NewService(db, dispatcher, logger, cases.Options{
		IgnoreMissing: cfg.Compat.IgnoreMissingCase,
	})
	q := queue.New(db, svc, logger)
	sessions := session.NewProvider(db)
	engine := classifier.NewClient(cfg.Engine.APIKey, logger,
		classifier.WithTimeout(time.Duration(cfg.Engine.TimeoutSec)*time.Second))

	srv := server.NewServer(server.Config{
		BaseURL:        cfg.BaseURL,
		GoogleClientID: cfg.OAuth.GoogleClientID,
		GoogleSecret:   cfg.OAuth.GoogleSecret,
	}, svc, q, sessions, engine, logger)

	httpSrv := &http.Server{
		Addr:    cfg.Listen,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpSrv.Shutdown(shutdownCtx)
}
