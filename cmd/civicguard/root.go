package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "civicguard",
	Short: "Crowd-sourced incident reporting and triage dashboard",
	Long: "CivicGuard runs the DisasterLens X incident dashboard: citizens submit\n" +
		"photo and video evidence, the evidence engine classifies risk, and the\n" +
		"command center triages the resulting cases.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(flushCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
