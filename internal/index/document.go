package index

import (
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/document"
	bleveindex "github.com/blevesearch/bleve_index_api"
)

const (
	// URIField holds the resource identifier, stored and untokenized.
	URIField = "resource-uri"

	// TypeField holds the type the document was built for.
	TypeField = "resource-type"

	sortPrefix    = "_STORED_"
	numericPrefix = "_NUMERIC_"
)

// SortField names the stored, untokenized field of a property key. It backs
// sorting, exact matches and term ranges.
func SortField(key string) string {
	return sortPrefix + key
}

// NumericField names the numeric companion of a property key, present when
// a value parses as a number.
func NumericField(key string) string {
	return numericPrefix + key
}

// SearchField names the searchable field of a property key. It carries both
// the tokenized and the whole-value terms.
func SearchField(key string) string {
	return key
}

// Field is one property's values on a document.
type Field struct {
	Key    string
	Values []string
}

// Document is the record written for one (resource, type) pair.
type Document struct {
	URI    string
	Type   string
	Fields []Field
}

// NewDocument creates an empty document for a resource and one of its types.
func NewDocument(uri, typeIRI string) *Document {
	return &Document{URI: uri, Type: typeIRI}
}

// DocumentID is the engine identifier of the document for uri and type.
// IRIs cannot contain spaces, so the pair is unambiguous.
func DocumentID(uri, typeIRI string) string {
	return uri + " " + typeIRI
}

// ID returns the engine identifier of the document.
func (d *Document) ID() string {
	return DocumentID(d.URI, d.Type)
}

// Add appends a property's values. Properties without values are skipped.
func (d *Document) Add(key string, values []string) {
	if len(values) == 0 {
		return
	}
	d.Fields = append(d.Fields, Field{Key: key, Values: values})
}

type analyzers struct {
	keyword  analysis.Analyzer
	standard analysis.Analyzer
}

func (d *Document) build(a analyzers) *document.Document {
	const (
		stored   = bleveindex.IndexField | bleveindex.StoreField
		sortable = bleveindex.IndexField | bleveindex.StoreField | bleveindex.DocValues
	)

	doc := document.NewDocument(d.ID())
	doc.AddField(document.NewTextFieldCustom(URIField, nil, []byte(d.URI), stored, a.keyword))
	doc.AddField(document.NewTextFieldCustom(TypeField, nil, []byte(d.Type), stored, a.keyword))

	for _, f := range d.Fields {
		for i, v := range f.Values {
			// Analyzers rewrite token bytes in place, so every field gets
			// its own copy of the value.
			pos := []uint64{uint64(i)}
			doc.AddField(document.NewTextFieldCustom(SortField(f.Key), pos, []byte(v), sortable, a.keyword))
			doc.AddField(document.NewTextFieldCustom(SearchField(f.Key), pos, []byte(v), bleveindex.IndexField, a.standard))
			doc.AddField(document.NewTextFieldCustom(SearchField(f.Key), pos, []byte(v), bleveindex.IndexField, a.keyword))
			if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				doc.AddField(document.NewNumericFieldWithIndexingOptions(NumericField(f.Key), pos, n, sortable))
			}
		}
	}
	return doc
}
