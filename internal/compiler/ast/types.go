package ast

// BasicKind is one of the SiLA basic types
type BasicKind string

const (
	BasicString    BasicKind = "String"
	BasicInteger   BasicKind = "Integer"
	BasicReal      BasicKind = "Real"
	BasicBoolean   BasicKind = "Boolean"
	BasicBinary    BasicKind = "Binary"
	BasicDate      BasicKind = "Date"
	BasicTime      BasicKind = "Time"
	BasicTimestamp BasicKind = "Timestamp"
	BasicAny       BasicKind = "Any"
)

// BasicKinds lists every basic type
var BasicKinds = []BasicKind{
	BasicString, BasicInteger, BasicReal, BasicBoolean, BasicBinary,
	BasicDate, BasicTime, BasicTimestamp, BasicAny,
}

// DataType is the sealed union of SiLA data types
type DataType interface {
	Node
	dataType()
}

// BasicType is a SiLA basic type
type BasicType struct {
	Kind BasicKind
	Loc  string
}

func (t *BasicType) node()        {}
func (t *BasicType) dataType()    {}
func (t *BasicType) Path() string { return t.Loc }

// ListType is an ordered sequence of one element type
type ListType struct {
	Element DataType
	Loc     string
}

func (t *ListType) node()        {}
func (t *ListType) dataType()    {}
func (t *ListType) Path() string { return t.Loc }

// StructureType is a record of named elements
type StructureType struct {
	Elements []*Element
	Loc      string
}

func (t *StructureType) node()        {}
func (t *StructureType) dataType()    {}
func (t *StructureType) Path() string { return t.Loc }

// ConstrainedType narrows a basic or list type with constraints
type ConstrainedType struct {
	Base        DataType
	Constraints *Constraints
	Loc         string
}

func (t *ConstrainedType) node()        {}
func (t *ConstrainedType) dataType()    {}
func (t *ConstrainedType) Path() string { return t.Loc }

// TypeReference refers to a DataTypeDefinition of the same feature
type TypeReference struct {
	Identifier string
	Loc        string
}

func (t *TypeReference) node()        {}
func (t *TypeReference) dataType()    {}
func (t *TypeReference) Path() string { return t.Loc }

// Constraints holds the constraints of a ConstrainedType. Unset numeric
// constraints are nil; unset string constraints are empty.
type Constraints struct {
	Length              *int
	MinimalLength       *int
	MaximalLength       *int
	Set                 []string
	Pattern             string
	MaximalExclusive    string
	MaximalInclusive    string
	MinimalExclusive    string
	MinimalInclusive    string
	Unit                string
	ContentType         string
	ElementCount        *int
	MinimalElementCount *int
	MaximalElementCount *int

	// FullyQualifiedIdentifier names the identifier kind a string must be,
	// e.g. "FeatureIdentifier" or "CommandIdentifier"
	FullyQualifiedIdentifier string
	Schema                   string
	AllowedTypes             []string
}

// Underlying strips constraints from t
func Underlying(t DataType) DataType {
	for {
		c, ok := t.(*ConstrainedType)
		if !ok {
			return t
		}
		t = c.Base
	}
}

// Walk calls fn for n and every node below it in declaration order. If fn
// returns false the children of that node are skipped.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}

	switch v := n.(type) {
	case *Feature:
		for _, c := range v.Commands {
			Walk(c, fn)
		}
		for _, p := range v.Properties {
			Walk(p, fn)
		}
		for _, m := range v.Metadata {
			Walk(m, fn)
		}
		for _, e := range v.Errors {
			Walk(e, fn)
		}
		for _, d := range v.DataTypes {
			Walk(d, fn)
		}
	case *Command:
		for _, e := range v.Parameters {
			Walk(e, fn)
		}
		for _, e := range v.Responses {
			Walk(e, fn)
		}
		for _, e := range v.IntermediateResponses {
			Walk(e, fn)
		}
	case *Property:
		Walk(v.Type, fn)
	case *Metadata:
		Walk(v.Type, fn)
	case *DataTypeDefinition:
		Walk(v.Type, fn)
	case *Element:
		Walk(v.Type, fn)
	case *ListType:
		Walk(v.Element, fn)
	case *StructureType:
		for _, e := range v.Elements {
			Walk(e, fn)
		}
	case *ConstrainedType:
		Walk(v.Base, fn)
	}
}
