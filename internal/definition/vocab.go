package definition

import "github.com/aleksaelezovic/trindex/pkg/rdf"

// CRISNamespace is the vocabulary used to store index definitions in a graph.
const CRISNamespace = "http://clerezza.org/2009/08/cris#"

var (
	CRISIndexDefinition     = rdf.NewNamedNode(CRISNamespace + "IndexDefinition")
	CRISIndexedType         = rdf.NewNamedNode(CRISNamespace + "indexedType")
	CRISIndexedProperty     = rdf.NewNamedNode(CRISNamespace + "indexedProperty")
	CRISJoinVirtualProperty = rdf.NewNamedNode(CRISNamespace + "JoinVirtualProperty")
	CRISPathVirtualProperty = rdf.NewNamedNode(CRISNamespace + "PathVirtualProperty")
	CRISPropertyList        = rdf.NewNamedNode(CRISNamespace + "propertyList")
)

// labels maps vocabulary IRIs to short names for logs and listings.
var labels = map[string]string{
	CRISIndexDefinition.IRI:     "IndexDefinition",
	CRISIndexedType.IRI:         "indexedType",
	CRISIndexedProperty.IRI:     "indexedProperty",
	CRISJoinVirtualProperty.IRI: "JoinVirtualProperty",
	CRISPathVirtualProperty.IRI: "PathVirtualProperty",
	CRISPropertyList.IRI:        "propertyList",
	rdf.RDFType.IRI:             "type",
	rdf.RDFFirst.IRI:            "first",
	rdf.RDFRest.IRI:             "rest",
	rdf.RDFNil.IRI:              "nil",
}

// Label returns the short name of a vocabulary term, or its IRI when the
// term is not part of the vocabulary.
func Label(n *rdf.NamedNode) string {
	if l, ok := labels[n.IRI]; ok {
		return l
	}
	return n.IRI
}
