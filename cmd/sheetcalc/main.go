package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sheetcalc",
	Short: "Spreadsheet formula engine CLI",
	Long:  "sheetcalc — evaluate spreadsheet formulas, recalculate .xlsx workbooks, and run YAML calculation scripts.",
	// SilenceUsage prevents printing usage on every error
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose/debug logging")

	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("sheetcalc version %s\n", version))

	rootCmd.AddCommand(newEvalCmd())
	rootCmd.AddCommand(newCalcCmd())
	rootCmd.AddCommand(newRunCmd())
}

// loggerFromFlags builds the engine logger: debug text output on
// stderr under --verbose, discard otherwise
func loggerFromFlags(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
