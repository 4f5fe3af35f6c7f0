package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/disasterlens/civicguard/internal/alert"
	"github.com/disasterlens/civicguard/internal/cases"
	"github.com/disasterlens/civicguard/internal/config"
	"github.com/disasterlens/civicguard/internal/queue"
	"github.com/disasterlens/civicguard/internal/store"
	"github.com/spf13/cobra"
)

var flushCmd = &cobra.Command{
	Use:   "flush-queue",
	Short: "Replay buffered offline submissions into the case store",
	RunE:  runFlush,
}

func runFlush(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := store.NewSQLiteStore(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := cases.NewService(db, &alert.LogDispatcher{Logger: logger}, logger, cases.Options{
		IgnoreMissing: cfg.Compat.IgnoreMissingCase,
	})
	q := queue.New(db, svc, logger)

	flushed, err := q.Flush(ctx)
	logger.Info("flush finished", "flushed", flushed)
	return err
}
