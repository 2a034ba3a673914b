package rdf

import (
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
)

// Format is a triple serialization.
type Format string

const (
	FormatTurtle   Format = "turtle"
	FormatNTriples Format = "n-triples"
)

// FormatForPath picks the format of a file by extension. Files that are not
// .nt are read as Turtle, which also accepts N-Triples.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".nt") {
		return FormatNTriples
	}
	return FormatTurtle
}

// FormatForContentType maps a media type to a format. An empty content type
// is Turtle.
func FormatForContentType(contentType string) (Format, error) {
	if contentType == "" {
		return FormatTurtle, nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("invalid content type %q: %w", contentType, err)
	}
	switch mediaType {
	case "text/turtle", "application/x-turtle", "text/plain":
		return FormatTurtle, nil
	case "application/n-triples":
		return FormatNTriples, nil
	}
	return "", fmt.Errorf("unsupported content type %q", mediaType)
}

// ParseTriples reads a whole document in the given format.
func ParseTriples(r io.Reader, format Format) ([]*Triple, error) {
	switch format {
	case FormatTurtle:
		return ParseTurtle(r)
	case FormatNTriples:
		return ParseNTriples(r)
	}
	return nil, fmt.Errorf("unknown format %q", format)
}
