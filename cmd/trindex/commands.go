package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aleksaelezovic/trindex/internal/server"
	"github.com/aleksaelezovic/trindex/pkg/rdf"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Keep the index in sync and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.watchDefinitions(ctx); err != nil {
				return err
			}
			if cfg.Optimize.Period > 0 {
				if err := a.indexer.ScheduleOptimize(cfg.Optimize.Delay, cfg.Optimize.Period); err != nil {
					return err
				}
			}

			srv := server.New(a.indexer, a.graph, server.Config{
				Addr:            cfg.Server.Addr,
				ReadTimeout:     cfg.Server.ReadTimeout,
				WriteTimeout:    cfg.Server.WriteTimeout,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
				Logger:          logger,
			})
			return srv.Start(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overrides the config")
	return cmd
}

func loadCmd(flags *globalFlags) *cobra.Command {
	var (
		remove  bool
		reindex bool
	)

	cmd := &cobra.Command{
		Use:   "load <file.ttl|file.nt>...",
		Short: "Add (or remove) Turtle or N-Triples files and update the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			start := time.Now()
			total := 0
			for _, path := range args {
				triples, err := readTriples(path)
				if err != nil {
					return err
				}
				if remove {
					err = a.graph.Remove(triples...)
				} else {
					err = a.graph.Add(triples...)
				}
				if err != nil {
					return fmt.Errorf("update graph from %s: %w", path, err)
				}
				total += len(triples)
			}

			if reindex {
				err = a.indexer.ReindexAll(ctx)
			} else {
				err = a.indexer.Flush(ctx)
			}
			if err != nil {
				return err
			}

			verb := "Loaded"
			if remove {
				verb = "Removed"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d triples from %d file(s) in %s\n",
				verb, total, len(args), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().BoolVar(&remove, "delete", false, "Remove the triples instead of adding them")
	cmd.Flags().BoolVar(&reindex, "reindex", false, "Reload definitions and rebuild the whole index afterwards")
	return cmd
}

// readTriples parses a .nt file as N-Triples and anything else as Turtle.
func readTriples(path string) ([]*rdf.Triple, error) {
	f, err := os.Open(path) // #nosec G304 - paths come from the command line
	if err != nil {
		return nil, err
	}
	defer f.Close()

	triples, err := rdf.ParseTriples(f, rdf.FormatForPath(path))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return triples, nil
}

func searchCmd(flags *globalFlags) *cobra.Command {
	var (
		params server.SearchParams
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the index",
		Example: `  trindex search --property http://xmlns.com/foaf/0.1/name --pattern 'Al*'
  trindex search --property http://xmlns.com/foaf/0.1/name --query 'alice OR bob' --sort -http://xmlns.com/foaf/0.1/name
  trindex search --facet http://example.org/city --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := server.Search(cmd.Context(), a.indexer, params)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			for _, r := range res.Resources {
				fmt.Fprintln(out, r)
			}
			for name, facets := range res.Facets {
				fmt.Fprintf(out, "\nFacet %s:\n", name)
				for _, f := range facets {
					fmt.Fprintf(out, "  %-30s %d\n", f.Value, f.Count)
				}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringSliceVarP(&params.Properties, "property", "p", nil, "Property key or predicate IRI (repeatable)")
	f.StringVarP(&params.Query, "query", "q", "", "Query string over the properties")
	f.StringVar(&params.Pattern, "pattern", "", "Wildcard pattern on the property")
	f.StringVar(&params.Exact, "exact", "", "Exact value of the property")
	f.StringVar(&params.Lower, "lower", "", "Lower bound of a term range on the property")
	f.StringVar(&params.Upper, "upper", "", "Upper bound of a term range on the property")
	f.BoolVar(&params.ExcludeLower, "exclude-lower", false, "Exclude the lower bound")
	f.BoolVar(&params.ExcludeUpper, "exclude-upper", false, "Exclude the upper bound")
	f.StringSliceVar(&params.Sort, "sort", nil, "Sort entry [-]property[@type], relevance or index (repeatable)")
	f.StringSliceVar(&params.Facets, "facet", nil, "Property to count values of (repeatable)")
	f.StringVar(&params.FacetOrder, "facet-order", "", "Facet order: count or value")
	f.IntVar(&params.From, "from", 0, "First hit returned")
	f.IntVar(&params.To, "to", 0, "Hit after the last one returned (0: all)")
	f.BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func reindexCmd(flags *globalFlags) *cobra.Command {
	var optimize bool

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the whole index from the graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			// opening the indexer already rebuilds every document
			start := time.Now()
			a, err := openApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if optimize {
				if err := a.indexer.Optimize(context.WithoutCancel(cmd.Context())); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reindexed %d definition(s) in %s\n",
				len(a.indexer.Definitions()), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().BoolVar(&optimize, "optimize", false, "Merge index segments afterwards")
	return cmd
}
