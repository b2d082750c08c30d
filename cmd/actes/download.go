package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/csheth/actes/internal/viewer"
)

var downloadDir string

var downloadCmd = &cobra.Command{
	Use:   "download <id|url|file>",
	Short: "Save a PDF without opening the viewer",
	Long: `Save the PDF of a published act (by id), of any URL, or copy a local
file. Existing files are never overwritten: a " (n)" suffix is added.`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().StringVar(&downloadDir, "dir", "", "target directory (overrides download_dir)")
	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if downloadDir != "" {
		cfg.DownloadDir = downloadDir
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	src, err := a.downloadSource(strings.TrimSpace(args[0]))
	if err != nil {
		return err
	}
	path, err := a.saver.Download(cmd.Context(), src)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", path)
	return nil
}

func (a *app) downloadSource(target string) (viewer.Source, error) {
	switch {
	case isURL(target):
		return viewer.Remote(target), nil
	case isNumeric(target):
		id, err := parseID(target)
		if err != nil {
			return viewer.Source{}, err
		}
		return viewer.Remote(a.client.PDFURL(id)), nil
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return viewer.Source{}, fmt.Errorf("reading %s: %w", target, err)
	}
	return viewer.Local(filepath.Base(target), data), nil
}

func isNumeric(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
