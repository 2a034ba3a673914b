package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/aleksaelezovic/trindex/internal/definition"
	"github.com/aleksaelezovic/trindex/internal/graph"
	"github.com/aleksaelezovic/trindex/internal/index"
	"github.com/aleksaelezovic/trindex/internal/indexer"
	"github.com/aleksaelezovic/trindex/internal/query"
	"github.com/aleksaelezovic/trindex/internal/vprop"
	"github.com/aleksaelezovic/trindex/pkg/rdf"
)

const (
	foaf = "http://xmlns.com/foaf/0.1/"
	ex   = "http://example.org/"
)

func demoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Index sample data in memory and run a few searches",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
			return runDemo(cmd.Context(), cmd.OutOrStdout(), logger)
		},
	}
}

type demoProperties struct {
	givenName vprop.VirtualProperty
	fullName  vprop.VirtualProperty
	employer  vprop.VirtualProperty
	age       vprop.VirtualProperty
}

func newDemoProperties() (demoProperties, error) {
	var (
		p   demoProperties
		err error
	)
	given := rdf.NewNamedNode(foaf + "givenName")
	if p.givenName, err = vprop.NewPropertyHolder(given); err != nil {
		return p, err
	}
	family, err := vprop.NewPropertyHolder(rdf.NewNamedNode(foaf + "familyName"))
	if err != nil {
		return p, err
	}
	if p.fullName, err = vprop.NewJoinVirtualProperty(p.givenName, family); err != nil {
		return p, err
	}
	if p.employer, err = vprop.NewPathVirtualProperty(rdf.NewNamedNode(ex+"worksFor"), rdf.NewNamedNode(foaf+"name")); err != nil {
		return p, err
	}
	p.age, err = vprop.NewPropertyHolder(rdf.NewNamedNode(foaf + "age"))
	return p, err
}

func demoTriples() []*rdf.Triple {
	person := rdf.NewNamedNode(foaf + "Person")
	org := rdf.NewNamedNode(foaf + "Organization")
	given := rdf.NewNamedNode(foaf + "givenName")
	family := rdf.NewNamedNode(foaf + "familyName")
	name := rdf.NewNamedNode(foaf + "name")
	age := rdf.NewNamedNode(foaf + "age")
	worksFor := rdf.NewNamedNode(ex + "worksFor")

	acme := rdf.NewNamedNode(ex + "acme")
	globex := rdf.NewNamedNode(ex + "globex")

	var triples []*rdf.Triple
	triples = append(triples,
		rdf.NewTriple(acme, rdf.RDFType, org),
		rdf.NewTriple(acme, name, rdf.NewLiteral("Acme")),
		rdf.NewTriple(globex, rdf.RDFType, org),
		rdf.NewTriple(globex, name, rdf.NewLiteral("Globex")),
	)
	people := []struct {
		id, given, family string
		age               int64
		employer          *rdf.NamedNode
	}{
		{"alice", "Alice", "Smith", 30, acme},
		{"bob", "Bob", "Jones", 25, acme},
		{"carol", "Carol", "Smith", 41, globex},
		{"dave", "Dave", "Miller", 35, globex},
	}
	for _, p := range people {
		s := rdf.NewNamedNode(ex + p.id)
		triples = append(triples,
			rdf.NewTriple(s, rdf.RDFType, person),
			rdf.NewTriple(s, given, rdf.NewLiteral(p.given)),
			rdf.NewTriple(s, family, rdf.NewLiteral(p.family)),
			rdf.NewTriple(s, age, rdf.NewIntegerLiteral(p.age)),
			rdf.NewTriple(s, worksFor, p.employer),
		)
	}
	return triples
}

func runDemo(ctx context.Context, out io.Writer, logger *slog.Logger) error {
	fmt.Fprintln(out, "=== Trindex Demo ===")
	fmt.Fprintln(out)

	props, err := newDemoProperties()
	if err != nil {
		return err
	}

	g, err := graph.Open("", graph.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("open graph: %w", err)
	}
	defer g.Close()

	store, err := index.Open(index.Config{Logger: logger})
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}

	source := definition.NewMemorySource(definition.Definition{
		Type:       rdf.NewNamedNode(foaf + "Person"),
		Properties: props.all(),
	})
	ix, err := indexer.New(ctx, g, store, source, indexer.Config{Logger: logger})
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("start indexer: %w", err)
	}
	defer ix.Close()

	fmt.Fprintln(out, "Index definition for foaf:Person:")
	for _, vp := range props.all() {
		fmt.Fprintf(out, "  ✓ %s\n", vp)
	}
	fmt.Fprintln(out)

	triples := demoTriples()
	if err := g.Add(triples...); err != nil {
		return err
	}
	if err := ix.Flush(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "Inserted %d triples\n\n", len(triples))

	show := func(title string, req indexer.Request) error {
		start := time.Now()
		req.To = indexer.AllHits
		found, err := ix.Find(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s (%s):\n", title, time.Since(start).Round(time.Microsecond))
		for _, r := range found {
			fmt.Fprintf(out, "  %s\n", formatTerm(r))
		}
		fmt.Fprintln(out)
		return nil
	}

	if err := show("Full name matching 'smith'", indexer.Request{
		Conditions: []query.Condition{query.NewGenericCondition("smith", props.fullName)},
		Sort:       query.NewSortSpecification(query.NewSortEntry(props.givenName, query.String, false)),
	}); err != nil {
		return err
	}

	if err := show("Everyone by age, oldest first", indexer.Request{
		Sort: query.NewSortSpecification(query.NewSortEntry(props.age, query.Int, true)),
	}); err != nil {
		return err
	}

	facets := query.NewSortedCountFacetCollector(props.employer)
	if err := show("Employer matching 'Acme*'", indexer.Request{
		Conditions: []query.Condition{query.NewWildcardCondition(props.employer, "Acme*")},
		Facets:     []query.FacetCollector{facets},
	}); err != nil {
		return err
	}

	all := query.NewSortedCountFacetCollector(props.employer)
	if _, err := ix.Find(ctx, indexer.Request{Facets: []query.FacetCollector{all}, To: indexer.AllHits}); err != nil {
		return err
	}
	fmt.Fprintln(out, "Employees per employer:")
	for _, f := range all.Facets(props.employer) {
		fmt.Fprintf(out, "  %-10s %d\n", f.Value, f.Count)
	}
	fmt.Fprintln(out)

	// renaming the organization reindexes its employees through the path
	acme := rdf.NewNamedNode(ex + "acme")
	name := rdf.NewNamedNode(foaf + "name")
	if _, err := g.RemoveMatching(acme, name, nil); err != nil {
		return err
	}
	if err := g.Add(rdf.NewTriple(acme, name, rdf.NewLiteral("Initech"))); err != nil {
		return err
	}
	fmt.Fprintf(out, "Renamed Acme to Initech, %d resource(s) scheduled\n\n", ix.Pending())
	if err := ix.Flush(ctx); err != nil {
		return err
	}

	if err := show("Employer matching 'Initech'", indexer.Request{
		Conditions: []query.Condition{query.NewExactCondition(props.employer, "Initech")},
	}); err != nil {
		return err
	}

	fmt.Fprintln(out, "=== Demo Complete ===")
	return nil
}

func (p demoProperties) all() []vprop.VirtualProperty {
	return []vprop.VirtualProperty{p.givenName, p.fullName, p.employer, p.age}
}

func formatTerm(term rdf.Term) string {
	switch t := term.(type) {
	case *rdf.NamedNode:
		// Return just the local name if possible
		iri := t.IRI
		for i := len(iri) - 1; i >= 0; i-- {
			if iri[i] == '/' || iri[i] == '#' {
				return iri[i+1:]
			}
		}
		return iri
	case *rdf.Literal:
		return t.Value
	default:
		return term.String()
	}
}
