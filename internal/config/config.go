// Package config loads the trindex configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Graph       GraphConfig       `yaml:"graph"`
	Index       IndexConfig       `yaml:"index"`
	Reindex     ReindexConfig     `yaml:"reindex"`
	Optimize    OptimizeConfig    `yaml:"optimize"`
	Definitions DefinitionsConfig `yaml:"definitions"`
	Server      ServerConfig      `yaml:"server"`
	NATS        NATSConfig        `yaml:"nats"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// GraphConfig locates the graph store.
type GraphConfig struct {
	// Path of the badger directory. Empty keeps the graph in memory.
	Path string `yaml:"path"`
}

// IndexConfig configures the full-text index.
type IndexConfig struct {
	// Path of the index directory. Empty keeps the index in memory.
	Path string `yaml:"path"`

	// MaxHits bounds the hits considered by one search.
	MaxHits int `yaml:"max_hits"`

	// SearcherGrace is how long a superseded searcher stays usable.
	SearcherGrace time.Duration `yaml:"searcher_grace"`
}

// ReindexConfig configures the debounced reindex worker.
type ReindexConfig struct {
	Window   time.Duration `yaml:"window"`
	Capacity int           `yaml:"capacity"` // negative: unbounded
}

// OptimizeConfig schedules index optimizations. A zero period disables them.
type OptimizeConfig struct {
	Delay  time.Duration `yaml:"delay"`
	Period time.Duration `yaml:"period"`
}

// Definition sources.
const (
	SourceGraph = "graph"
	SourceFile  = "file"
)

// DefinitionsConfig selects where index definitions are stored.
type DefinitionsConfig struct {
	Source        string        `yaml:"source"` // graph or file
	Path          string        `yaml:"path"`   // YAML file for the file source, Turtle imported into the graph source
	Watch         bool          `yaml:"watch"`  // reindex when the file changes
	DebounceDelay time.Duration `yaml:"debounce_delay"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// NATSConfig configures the operator channel. An empty URL disables it.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Graph: GraphConfig{Path: "data/graph"},
		Index: IndexConfig{
			Path:          "data/index",
			MaxHits:       100000,
			SearcherGrace: 5 * time.Second,
		},
		Reindex: ReindexConfig{
			Window:   100 * time.Millisecond,
			Capacity: 500000,
		},
		Definitions: DefinitionsConfig{
			Source:        SourceGraph,
			DebounceDelay: 200 * time.Millisecond,
		},
		Server: ServerConfig{
			Addr:            ":8089",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		NATS: NATSConfig{Subject: "trindex.events"},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path uses the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from TRINDEX_* environment variables.
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"TRINDEX_GRAPH_PATH":         &c.Graph.Path,
		"TRINDEX_INDEX_PATH":         &c.Index.Path,
		"TRINDEX_DEFINITIONS_SOURCE": &c.Definitions.Source,
		"TRINDEX_DEFINITIONS_PATH":   &c.Definitions.Path,
		"TRINDEX_SERVER_ADDR":        &c.Server.Addr,
		"TRINDEX_NATS_URL":           &c.NATS.URL,
		"TRINDEX_NATS_SUBJECT":       &c.NATS.Subject,
		"TRINDEX_LOG_LEVEL":          &c.Logging.Level,
		"TRINDEX_LOG_FORMAT":         &c.Logging.Format,
	}
	for name, field := range strs {
		if v, ok := os.LookupEnv(name); ok {
			*field = v
		}
	}

	durations := map[string]*time.Duration{
		"TRINDEX_REINDEX_WINDOW":  &c.Reindex.Window,
		"TRINDEX_OPTIMIZE_DELAY":  &c.Optimize.Delay,
		"TRINDEX_OPTIMIZE_PERIOD": &c.Optimize.Period,
	}
	for name, field := range durations {
		if v, ok := os.LookupEnv(name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", name, err)
			}
			*field = d
		}
	}

	ints := map[string]*int{
		"TRINDEX_INDEX_MAX_HITS":   &c.Index.MaxHits,
		"TRINDEX_REINDEX_CAPACITY": &c.Reindex.Capacity,
	}
	for name, field := range ints {
		if v, ok := os.LookupEnv(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", name, err)
			}
			*field = n
		}
	}
	return nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	var errs []error
	if c.Index.MaxHits <= 0 {
		errs = append(errs, errors.New("index.max_hits must be positive"))
	}
	if c.Reindex.Window <= 0 {
		errs = append(errs, errors.New("reindex.window must be positive"))
	}
	if c.Optimize.Delay < 0 || c.Optimize.Period < 0 {
		errs = append(errs, errors.New("optimize delay and period must not be negative"))
	}
	switch c.Definitions.Source {
	case SourceGraph:
	case SourceFile:
		if c.Definitions.Path == "" {
			errs = append(errs, errors.New("definitions.path is required for the file source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown definitions.source %q", c.Definitions.Source))
	}
	if _, err := c.Logging.level(); err != nil {
		errs = append(errs, err)
	}
	if f := strings.ToLower(c.Logging.Format); f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("unknown logging.format %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

func (l LoggingConfig) level() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown logging.level %q", l.Level)
}

// NewLogger builds a logger writing to w.
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	level, _ := l.level()
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
