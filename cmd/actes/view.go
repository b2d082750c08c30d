package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/csheth/actes/internal/tui"
	"github.com/csheth/actes/internal/viewer"
	"github.com/csheth/actes/internal/watch"
)

type viewerFlags struct {
	fit         string
	scale       float64
	height      int
	downloadDir string
	noWatch     bool
}

func (f *viewerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.fit, "fit", "", "initial zoom: page or none (overrides viewer.fit_mode)")
	cmd.Flags().Float64Var(&f.scale, "scale", 0, "initial scale when --fit=none (overrides viewer.initial_scale)")
	cmd.Flags().IntVar(&f.height, "height", -1, "viewer height in rows, 0 fills the terminal (overrides viewer.height)")
	cmd.Flags().StringVar(&f.downloadDir, "download-dir", "", "directory downloads are saved to")
	cmd.Flags().BoolVar(&f.noWatch, "no-watch", false, "do not reload local files when they change")
}

func (f *viewerFlags) apply(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if f.fit != "" {
		cfg.Viewer.FitMode = f.fit
	}
	if f.scale > 0 {
		cfg.Viewer.InitialScale = f.scale
	}
	if cmd.Flags().Changed("height") {
		cfg.Viewer.Height = f.height
	}
	if f.downloadDir != "" {
		cfg.DownloadDir = f.downloadDir
	}
	if f.noWatch {
		cfg.Watch = false
	}
	return newApp(cfg)
}

var viewOpts viewerFlags

var viewCmd = &cobra.Command{
	Use:   "view <file|url>",
	Short: "Read a PDF from disk or from a URL",
	Long: `Open a PDF in the terminal viewer. Local files are reloaded when they
change on disk unless --no-watch is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runView,
}

var openOpts viewerFlags

var openCmd = &cobra.Command{
	Use:   "open <id>",
	Short: "Read a published act with its metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runOpen,
}

func init() {
	viewOpts.register(viewCmd)
	openOpts.register(openCmd)
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(openCmd)
}

func runView(cmd *cobra.Command, args []string) error {
	a, err := viewOpts.apply(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.viewerConfig()
	target := strings.TrimSpace(args[0])
	if isURL(target) {
		cfg.Source = viewer.Remote(target)
		return runProgram(a, cfg)
	}

	path, err := filepath.Abs(target)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", target, err)
	}
	cfg.Source = viewer.Local(filepath.Base(path), data)
	cfg.LocalPath = path
	if a.cfg.Watch {
		w, err := watch.New(path, 0, a.logger)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		if err := w.Start(ctx); err != nil {
			a.logger.Warn("file watch unavailable", zap.String("path", path), zap.Error(err))
		} else {
			defer w.Stop()
			cfg.Watcher = w
		}
	}
	return runProgram(a, cfg)
}

func runOpen(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	a, err := openOpts.apply(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.viewerConfig()
	cfg.Source = viewer.Remote(a.client.PDFURL(id))
	cfg.Lookup = a.client
	cfg.ActeID = id
	return runProgram(a, cfg)
}

func (a *app) viewerConfig() tui.Config {
	return tui.Config{
		Backend:      a.backend,
		Downloader:   a.saver,
		Cache:        a.cache,
		Logger:       a.logger,
		Height:       a.cfg.Viewer.Height,
		InitialScale: a.cfg.Viewer.InitialScale,
		FitMode:      a.cfg.FitMode(),
		Admin:        a.session.Active(),
	}
}

func runProgram(a *app, cfg tui.Config) error {
	opts := []tea.ProgramOption{tea.WithMouseCellMotion()}
	if !noAltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	program := tea.NewProgram(tui.New(cfg), opts...)
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("program error: %w", err)
	}
	return nil
}

func isURL(value string) bool {
	return strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://")
}

func parseID(value string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid act id %q", value)
	}
	return id, nil
}
