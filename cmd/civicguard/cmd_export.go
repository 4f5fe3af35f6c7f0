package main

import (
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/disasterlens/civicguard/internal/alert"
	"github.com/disasterlens/civicguard/internal/cases"
	"github.com/disasterlens/civicguard/internal/config"
	"github.com/disasterlens/civicguard/internal/export"
	"github.com/disasterlens/civicguard/internal/store"
	"github.com/spf13/cobra"
)

var (
	exportCity string
	exportOut  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the CSV case extract",
	Long: "Writes case metadata as CSV in the fixed dashboard column order.\n" +
		"With no --out the extract goes to stdout; with --out and no value a\n" +
		"dated filename is chosen in the current directory.",
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportCity, "city", "", "restrict the extract to one city")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default stdout, \"auto\" for dated name)")
}

func runExport(cmd *cobra.Command, _ []string) error {
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

	svc := cases.NewService(db, &alert.LogDispatcher{Logger: logger}, logger, cases.Options{})
	list, err := svc.Query(ctx, exportCity)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if exportOut != "" {
		name := exportOut
		if name == "auto" {
			name = export.CSVFilename(time.Now())
		}
		f, err := os.Create(name)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
		logger.Info("writing extract", "file", name, "cases", len(list))
	}
	return export.WriteCSV(w, list)
}
