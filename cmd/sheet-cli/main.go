// sheet-cli is the command-line interface for the spreadsheet analyst.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sheet-cli",
		Short: "Spreadsheet analyst CLI",
		Long:  "Ask questions about spreadsheet data, run analysis code locally and inspect the analyst service.",
	}

	// Global flags
	rootCmd.PersistentFlags().String("server", getEnvDefault("SHEET_SERVER_URL", "http://localhost:8000"), "Analyst server URL")
	rootCmd.PersistentFlags().String("api-key", os.Getenv("SHEET_API_KEY"), "API key for the analyst server")
	rootCmd.PersistentFlags().String("config", "", "Path to configuration file for local commands")

	// Add commands
	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newReplCmd())
	rootCmd.AddCommand(newModelsCmd())
	rootCmd.AddCommand(newSampleCmd())
	rootCmd.AddCommand(newProfileCmd())
	rootCmd.AddCommand(newEventsCmd())
	rootCmd.AddCommand(newAuditCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getEnvDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
