package rdf

const (
	RDFNamespace  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	RDFSNamespace = "http://www.w3.org/2000/01/rdf-schema#"
)

var (
	RDFType  = NewNamedNode(RDFNamespace + "type")
	RDFFirst = NewNamedNode(RDFNamespace + "first")
	RDFRest  = NewNamedNode(RDFNamespace + "rest")
	RDFNil   = NewNamedNode(RDFNamespace + "nil")
	RDFList  = NewNamedNode(RDFNamespace + "List")

	RDFSLabel = NewNamedNode(RDFSNamespace + "label")
)
