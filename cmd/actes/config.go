package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/csheth/actes/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to --config",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(cfgFile); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", cfgFile)
		}
		cfg := config.DefaultConfig()
		if apiBaseURL != "" {
			cfg.APIBaseURL = apiBaseURL
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := cfg.Save(cfgFile); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", cfgFile)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "api_base_url:  %s\n", cfg.APIBaseURL)
		fmt.Fprintf(out, "download_dir:  %s\n", cfg.DownloadDir)
		fmt.Fprintf(out, "cache_dir:     %s\n", cfg.CacheDir)
		fmt.Fprintf(out, "session_file:  %s\n", cfg.SessionFile)
		fmt.Fprintf(out, "log_file:      %s\n", cfg.LogFile)
		fmt.Fprintf(out, "log_level:     %s\n", cfg.LogLevel)
		fmt.Fprintf(out, "watch:         %t\n", cfg.Watch)
		fmt.Fprintf(out, "viewer:        height=%d initial_scale=%.2f fit_mode=%s\n",
			cfg.Viewer.Height, cfg.Viewer.InitialScale, cfg.Viewer.FitMode)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
