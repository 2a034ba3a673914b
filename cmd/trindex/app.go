package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aleksaelezovic/trindex/internal/config"
	"github.com/aleksaelezovic/trindex/internal/definition"
	"github.com/aleksaelezovic/trindex/internal/graph"
	"github.com/aleksaelezovic/trindex/internal/index"
	"github.com/aleksaelezovic/trindex/internal/indexer"
	"github.com/aleksaelezovic/trindex/internal/notify"
)

// app holds the opened graph and indexer of one command run.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	graph   *graph.Graph
	indexer *indexer.Indexer
	closers []func()
}

func loadConfig(flags *globalFlags, stderr io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}
	logger := cfg.Logging.NewLogger(stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// openApp opens the graph and the index and starts the indexer, which
// rebuilds the index from the graph.
func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	g, err := graph.Open(cfg.Graph.Path, graph.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open graph: %w", err)
	}
	a.graph = g
	a.closers = append(a.closers, func() {
		if err := g.Close(); err != nil {
			logger.Warn("failed to close graph", "error", err)
		}
	})

	notifier, err := a.notifier()
	if err != nil {
		a.Close()
		return nil, err
	}

	store, err := index.Open(index.Config{
		Path:          cfg.Index.Path,
		SearcherGrace: cfg.Index.SearcherGrace,
		Logger:        logger,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open index: %w", err)
	}

	var source definition.Source
	if cfg.Definitions.Source == config.SourceFile {
		source = definition.NewFileSource(cfg.Definitions.Path)
	} else {
		gs := definition.NewGraphSource(g)
		if cfg.Definitions.Path != "" {
			defs, err := gs.ImportFile(ctx, cfg.Definitions.Path)
			if err != nil {
				_ = store.Close()
				a.Close()
				return nil, fmt.Errorf("import definitions: %w", err)
			}
			logger.Info("imported definitions", "path", cfg.Definitions.Path, "count", len(defs))
		}
		source = gs
	}

	ix, err := indexer.New(ctx, g, store, source, indexer.Config{
		MaxHits:  cfg.Index.MaxHits,
		Window:   cfg.Reindex.Window,
		Capacity: cfg.Reindex.Capacity,
		Logger:   logger,
		Notifier: notifier,
	})
	if err != nil {
		_ = store.Close()
		a.Close()
		return nil, fmt.Errorf("start indexer: %w", err)
	}
	a.indexer = ix
	// closers run in reverse, the indexer goes before the graph
	a.closers = append(a.closers, func() {
		if err := ix.Close(); err != nil {
			logger.Warn("failed to close indexer", "error", err)
		}
	})
	return a, nil
}

func (a *app) notifier() (notify.Notifier, error) {
	log := notify.NewLogNotifier(a.logger)
	if a.cfg.NATS.URL == "" {
		return log, nil
	}
	nn, closeConn, err := notify.ConnectNATS(a.cfg.NATS.URL, a.cfg.NATS.Subject)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeConn)
	a.logger.Info("publishing indexer events", "url", a.cfg.NATS.URL, "subject", a.cfg.NATS.Subject)
	return notify.Multi{log, nn}, nil
}

// watchDefinitions reindexes whenever the definitions file changes.
func (a *app) watchDefinitions(ctx context.Context) error {
	if a.cfg.Definitions.Source != config.SourceFile || !a.cfg.Definitions.Watch {
		return nil
	}
	w, err := definition.NewWatcher(definition.WatcherConfig{
		Path:          a.cfg.Definitions.Path,
		DebounceDelay: a.cfg.Definitions.DebounceDelay,
		OnChange:      a.indexer.ReindexAll,
		Logger:        a.logger,
	})
	if err != nil {
		return fmt.Errorf("watch definitions: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("watch definitions: %w", err)
	}
	a.closers = append(a.closers, func() { _ = w.Stop() })
	return nil
}

// Close releases everything in reverse opening order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
