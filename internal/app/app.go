// Package app wires the client stack: logger, transport, query cache and
// tracker, with one explicit lifecycle.
package app

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	chorussdk "chorus/sdk/go"

	"chorus/internal/config"
	"chorus/internal/query"
	"chorus/internal/tracker"
	"chorus/internal/views"
)

// NewLogger builds the process logger at the given level.
func NewLogger(w io.Writer, level string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse logging level %q: %w", level, err)
	}
	if w == nil {
		w = io.Discard
	}
	return log.NewWithOptions(w, log.Options{
		Level:           lvl,
		Prefix:          "chorus",
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       log.TextFormatter,
	}), nil
}

// App holds the process-wide client state.
type App struct {
	Config  *config.Config
	Logger  *log.Logger
	Client  *chorussdk.Client
	Cache   *query.Cache
	Tracker *tracker.Tracker
}

// Open builds the client stack from cfg. Call Close at shutdown.
func Open(cfg *config.Config, logger *log.Logger) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	client := chorussdk.New(cfg.API.URL)
	client.Timeout = cfg.API.Timeout
	client.BearerToken = cfg.API.Token
	client.APIKey = cfg.API.APIKey
	client.Logger = logger.WithPrefix("http")

	cache := query.New(query.Config{Logger: logger.WithPrefix("cache")})
	tr := tracker.New(client, cache,
		tracker.WithCallerLabel(cfg.Client.CallerLabel),
		tracker.WithStaleTime(cfg.Client.StaleTime),
	)
	logger.Debug("client ready", "api", cfg.API.URL, "caller", tr.CallerLabel())
	return &App{Config: cfg, Logger: logger, Client: client, Cache: cache, Tracker: tr}, nil
}

// Views returns a view controller writing to out.
func (a *App) Views(out io.Writer, asJSON bool) *views.View {
	return views.New(a.Tracker, out, views.WithJSON(asJSON))
}

// WatchOptions derives the lock monitor cadence from the config.
func (a *App) WatchOptions() views.WatchOptions {
	return views.WatchOptions{
		Poll:   a.Config.Client.PollInterval,
		Render: a.Config.Client.RenderInterval,
	}
}

// Close stops every observer and poller.
func (a *App) Close() error {
	if a == nil || a.Cache == nil {
		return nil
	}
	return a.Cache.Close()
}
