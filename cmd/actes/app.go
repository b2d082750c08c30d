package main

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/csheth/actes/internal/actes"
	"github.com/csheth/actes/internal/config"
	"github.com/csheth/actes/internal/download"
	"github.com/csheth/actes/internal/fetch"
	"github.com/csheth/actes/internal/logging"
	"github.com/csheth/actes/internal/pdfdoc"
	"github.com/csheth/actes/internal/session"
)

const httpTimeout = 90 * time.Second

// app bundles the collaborators every command shares. They all use one HTTP
// client whose cookie jar is the persisted session.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	session *session.Store
	cache   *fetch.Cache
	client  *actes.Client
	saver   *download.Saver
	backend *pdfdoc.Backend
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if apiBaseURL != "" {
		cfg.APIBaseURL = apiBaseURL
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

func newApp(cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	store, err := session.Open(cfg.SessionFile, cfg.APIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening session: %w", err)
	}
	httpClient := &http.Client{Jar: store, Timeout: httpTimeout}
	cache, err := fetch.New(fetch.Options{Dir: cfg.CacheDir, Client: httpClient, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("preparing cache: %w", err)
	}
	client, err := actes.New(cfg.APIBaseURL, httpClient, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("client ready",
		zap.String("api", cfg.APIBaseURL),
		zap.String("cache", cache.Dir()),
		zap.Bool("admin", store.Active()),
	)
	return &app{
		cfg:     cfg,
		logger:  logger,
		session: store,
		cache:   cache,
		client:  client,
		saver:   download.New(cfg.DownloadDir, cache, logger),
		backend: pdfdoc.New(cache, logger),
	}, nil
}

func (a *app) Close() {
	_ = a.logger.Sync()
}

// setup loads configuration and wires the app for a command.
func setup() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(cfg)
}
