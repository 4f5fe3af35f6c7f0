package main

import (
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/disasterlens/civicguard/internal/config"
	"github.com/disasterlens/civicguard/internal/store"
	"github.com/spf13/cobra"
)

// The snapshot commands exchange data with the browser edition, which kept
// everything in four localStorage containers. "snapshot import" migrates
// such a dump into SQLite; "snapshot export" produces one from SQLite.

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Import or export a legacy browser-storage snapshot",
}

var snapshotImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Load a legacy snapshot into the database",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSnapshotImport,
}

var snapshotExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Dump the database in the legacy snapshot layout",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSnapshotExport,
}

func init() {
	snapshotCmd.AddCommand(snapshotImportCmd)
	snapshotCmd.AddCommand(snapshotExportCmd)
}

func openSnapshotStore(cmd *cobra.Command) (*store.SQLiteStore, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	db, err := store.NewSQLiteStore(ctx, cfg.DBPath)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	cleanup := func() {
		db.Close()
		cancel()
	}
	return db, cleanup, nil
}

func runSnapshotImport(cmd *cobra.Command, args []string) error {
	db, cleanup, err := openSnapshotStore(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	var r io.Reader = os.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	return db.ImportLegacy(cmd.Context(), r)
}

func runSnapshotExport(cmd *cobra.Command, args []string) error {
	db, cleanup, err := openSnapshotStore(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	var w io.Writer = os.Stdout
	if len(args) == 1 {
		f, err := os.Create(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return db.ExportLegacy(cmd.Context(), w)
}
