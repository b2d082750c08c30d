package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/csheth/actes/internal/config"
)

var (
	cfgFile     string
	apiBaseURL  string
	logLevel    string
	noAltScreen bool
)

var rootCmd = &cobra.Command{
	Use:   "actes",
	Short: "Browse and read the acts published by the municipal portal",
	Long: `actes talks to the municipal acts portal API. Search published acts,
read their PDF page by page in the terminal, download them, and manage the
administrator session.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.FileName, "config file path")
	rootCmd.PersistentFlags().StringVar(&apiBaseURL, "api", "", "portal API base URL (overrides api_base_url)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&noAltScreen, "no-alt-screen", false, "disable the alternate screen buffer")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
