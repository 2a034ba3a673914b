package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "trindex version 0.1.0 (build: dev)\n", out)
}

func TestDemo(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, runDemo(context.Background(), &out, logger))

	sections := strings.Split(out.String(), "\n\n")
	find := func(title string) string {
		for _, s := range sections {
			if strings.HasPrefix(s, title) {
				return s
			}
		}
		t.Fatalf("section %q missing in:\n%s", title, out.String())
		return ""
	}

	assert.Contains(t, find("Full name matching 'smith'"), "  alice\n  carol")
	assert.Contains(t, find("Everyone by age, oldest first"), "  carol\n  dave\n  alice\n  bob")
	assert.Contains(t, find("Employees per employer:"), "Acme       2")
	initech := find("Employer matching 'Initech'")
	assert.Contains(t, initech, "alice")
	assert.Contains(t, initech, "bob")
}

func TestLoadAndSearch(t *testing.T) {
	dir := t.TempDir()
	defs := writeFile(t, dir, "definitions.yaml", `prefixes:
  foaf: http://xmlns.com/foaf/0.1/
definitions:
  - type: foaf:Person
    properties:
      - foaf:name
`)
	cfg := writeFile(t, dir, "trindex.yaml", `graph:
  path: `+filepath.Join(dir, "graph")+`
index:
  path: `+filepath.Join(dir, "index")+`
definitions:
  source: file
  path: `+defs+`
`)
	data := writeFile(t, dir, "people.nt", `<http://example.org/alice> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://xmlns.com/foaf/0.1/Person> .
<http://example.org/alice> <http://xmlns.com/foaf/0.1/name> "Alice" .
<http://example.org/bob> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://xmlns.com/foaf/0.1/Person> .
<http://example.org/bob> <http://xmlns.com/foaf/0.1/name> "Bob" .
`)

	out, err := execute(t, "--config", cfg, "load", data)
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded 4 triples from 1 file(s)")

	out, err = execute(t, "--config", cfg, "search", "--property", "http://xmlns.com/foaf/0.1/name", "--pattern", "Al*")
	require.NoError(t, err)
	assert.Equal(t, "http://example.org/alice\n", out)

	out, err = execute(t, "--config", cfg, "--log-level", "debug", "reindex")
	require.NoError(t, err)
	assert.Contains(t, out, "Reindexed 1 definition(s)")

	out, err = execute(t, "--config", cfg, "search", "--facet", "http://xmlns.com/foaf/0.1/name", "--facet-order", "value", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"value": "Alice"`)
	assert.Contains(t, out, `"value": "Bob"`)

	_, err = execute(t, "--config", cfg, "load", "--delete", data)
	require.NoError(t, err)
	out, err = execute(t, "--config", cfg, "search")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestLoadTurtleWithGraphDefinitions(t *testing.T) {
	dir := t.TempDir()
	defs := writeFile(t, dir, "definitions.ttl", `@prefix cris: <http://clerezza.org/2009/08/cris#> .
@prefix foaf: <http://xmlns.com/foaf/0.1/> .
[] a cris:IndexDefinition ; cris:indexedType foaf:Person ; cris:indexedProperty foaf:name .
`)
	cfg := writeFile(t, dir, "trindex.yaml", `graph:
  path: `+filepath.Join(dir, "graph")+`
index:
  path: `+filepath.Join(dir, "index")+`
definitions:
  source: graph
  path: `+defs+`
`)
	data := writeFile(t, dir, "people.ttl", `@prefix ex: <http://example.org/> .
@prefix foaf: <http://xmlns.com/foaf/0.1/> .
ex:alice a foaf:Person ; foaf:name "Alice" .
ex:bob a foaf:Person ; foaf:name "Bob" .
`)

	out, err := execute(t, "--config", cfg, "load", data)
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded 4 triples from 1 file(s)")

	out, err = execute(t, "--config", cfg, "search", "--property", "http://xmlns.com/foaf/0.1/name", "--pattern", "Bo*")
	require.NoError(t, err)
	assert.Equal(t, "http://example.org/bob\n", out)
}

func TestInvalidInvocations(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "search")
	assert.ErrorContains(t, err, "load config")

	_, err = execute(t, "--log-level", "loud", "search")
	assert.ErrorContains(t, err, "logging.level")

	_, err = execute(t, "load")
	assert.Error(t, err)
}
