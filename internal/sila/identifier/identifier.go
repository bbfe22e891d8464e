// Package identifier implements SiLA 2 fully qualified identifiers.
//
// A fully qualified identifier is a slash-delimited path naming a feature or one
// of its elements:
//
//	{originator}/{category}/{Feature}/v{major}[/{Kind}/{Name}[/{SubKind}/{SubName}]]
//
// Identifiers are immutable values. Two identifiers are equal when they differ
// only in letter case, so maps should be keyed by Key rather than by the
// identifier itself.
package identifier

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the element kind named by a fully qualified identifier
type Kind int

const (
	KindFeature Kind = iota
	KindCommand
	KindCommandParameter
	KindCommandResponse
	KindIntermediateCommandResponse
	KindDefinedExecutionError
	KindProperty
	KindDataType
	KindMetadata
)

// Kinds lists every identifier kind in declaration order
var Kinds = []Kind{
	KindFeature,
	KindCommand,
	KindCommandParameter,
	KindCommandResponse,
	KindIntermediateCommandResponse,
	KindDefinedExecutionError,
	KindProperty,
	KindDataType,
	KindMetadata,
}

func (k Kind) String() string {
	switch k {
	case KindFeature:
		return "Feature"
	case KindCommand:
		return "Command"
	case KindCommandParameter:
		return "CommandParameter"
	case KindCommandResponse:
		return "CommandResponse"
	case KindIntermediateCommandResponse:
		return "IntermediateCommandResponse"
	case KindDefinedExecutionError:
		return "DefinedExecutionError"
	case KindProperty:
		return "Property"
	case KindDataType:
		return "DataType"
	case KindMetadata:
		return "Metadata"
	default:
		return "unknown"
	}
}

// Key is the canonical, case-folded form of an identifier used as a map key
type Key string

// FullyQualifiedIdentifier names a feature or a feature element.
// The zero value is not a valid identifier.
type FullyQualifiedIdentifier struct {
	kind  Kind
	value string
}

// Parse detects the kind of s and returns it as an identifier
func Parse(s string) (FullyQualifiedIdentifier, error) {
	for _, k := range Kinds {
		if Matches(k, s) {
			return FullyQualifiedIdentifier{kind: k, value: s}, nil
		}
	}
	return FullyQualifiedIdentifier{}, fmt.Errorf("invalid fully qualified identifier: %q", s)
}

// ParseKind parses s and requires it to be of kind k
func ParseKind(k Kind, s string) (FullyQualifiedIdentifier, error) {
	if !Matches(k, s) {
		return FullyQualifiedIdentifier{}, fmt.Errorf("invalid %s identifier: %q", k, s)
	}
	return FullyQualifiedIdentifier{kind: k, value: s}, nil
}

// MustParse is like Parse but panics on error
func MustParse(s string) FullyQualifiedIdentifier {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// NewFeature builds a feature identifier from its components
func NewFeature(originator, category, feature string, majorVersion int) (FullyQualifiedIdentifier, error) {
	if majorVersion < 0 {
		return FullyQualifiedIdentifier{}, fmt.Errorf("major version must not be negative, got %d", majorVersion)
	}
	return ParseKind(KindFeature, strings.Join([]string{
		originator, category, feature, "v" + strconv.Itoa(majorVersion),
	}, "/"))
}

// Kind returns the element kind
func (f FullyQualifiedIdentifier) Kind() Kind {
	return f.kind
}

// String returns the identifier as written
func (f FullyQualifiedIdentifier) String() string {
	return f.value
}

// IsZero reports whether f is the zero identifier
func (f FullyQualifiedIdentifier) IsZero() bool {
	return f.value == ""
}

// Key returns the canonical map key for f
func (f FullyQualifiedIdentifier) Key() Key {
	return Key(strings.ToLower(f.value))
}

// Equal compares two identifiers ignoring letter case
func (f FullyQualifiedIdentifier) Equal(other FullyQualifiedIdentifier) bool {
	return strings.EqualFold(f.value, other.value)
}

// Name returns the element's own identifier: the feature identifier for a
// feature, the last path segment otherwise
func (f FullyQualifiedIdentifier) Name() string {
	segs := strings.Split(f.value, "/")
	if f.kind == KindFeature {
		if len(segs) != 4 {
			return ""
		}
		return segs[2]
	}
	return segs[len(segs)-1]
}

// Feature returns the identifier of the feature f belongs to
func (f FullyQualifiedIdentifier) Feature() FullyQualifiedIdentifier {
	if f.IsZero() {
		return f
	}
	segs := strings.SplitN(f.value, "/", 5)
	return FullyQualifiedIdentifier{kind: KindFeature, value: strings.Join(segs[:4], "/")}
}

// Parent returns the identifier one level up: a parameter's command, a
// command's feature. A feature is its own parent.
func (f FullyQualifiedIdentifier) Parent() FullyQualifiedIdentifier {
	switch f.kind {
	case KindCommandParameter, KindCommandResponse, KindIntermediateCommandResponse:
		i := strings.LastIndexByte(f.value, '/')
		j := strings.LastIndexByte(f.value[:i], '/')
		return FullyQualifiedIdentifier{kind: KindCommand, value: f.value[:j]}
	default:
		return f.Feature()
	}
}

// Command returns the identifier of a command of feature f
func (f FullyQualifiedIdentifier) Command(name string) (FullyQualifiedIdentifier, error) {
	return f.child(KindFeature, KindCommand, name)
}

// Property returns the identifier of a property of feature f
func (f FullyQualifiedIdentifier) Property(name string) (FullyQualifiedIdentifier, error) {
	return f.child(KindFeature, KindProperty, name)
}

// Metadata returns the identifier of a metadata element of feature f
func (f FullyQualifiedIdentifier) Metadata(name string) (FullyQualifiedIdentifier, error) {
	return f.child(KindFeature, KindMetadata, name)
}

// DataType returns the identifier of a data type definition of feature f
func (f FullyQualifiedIdentifier) DataType(name string) (FullyQualifiedIdentifier, error) {
	return f.child(KindFeature, KindDataType, name)
}

// DefinedExecutionError returns the identifier of an error declared by feature f
func (f FullyQualifiedIdentifier) DefinedExecutionError(name string) (FullyQualifiedIdentifier, error) {
	return f.child(KindFeature, KindDefinedExecutionError, name)
}

// Parameter returns the identifier of a parameter of command f
func (f FullyQualifiedIdentifier) Parameter(name string) (FullyQualifiedIdentifier, error) {
	return f.child(KindCommand, KindCommandParameter, name)
}

// Response returns the identifier of a response of command f
func (f FullyQualifiedIdentifier) Response(name string) (FullyQualifiedIdentifier, error) {
	return f.child(KindCommand, KindCommandResponse, name)
}

// IntermediateResponse returns the identifier of an intermediate response of command f
func (f FullyQualifiedIdentifier) IntermediateResponse(name string) (FullyQualifiedIdentifier, error) {
	return f.child(KindCommand, KindIntermediateCommandResponse, name)
}

func (f FullyQualifiedIdentifier) child(parent, kind Kind, name string) (FullyQualifiedIdentifier, error) {
	if f.kind != parent || f.IsZero() {
		return FullyQualifiedIdentifier{}, fmt.Errorf("cannot derive a %s identifier from %s identifier %q", kind, f.kind, f.value)
	}
	keywords := shapeOf(kind).keywords
	return ParseKind(kind, f.value+"/"+keywords[len(keywords)-1]+"/"+name)
}

// MetadataHeader returns the gRPC header key carrying the value of metadata f
func (f FullyQualifiedIdentifier) MetadataHeader() string {
	return "sila-" + strings.ReplaceAll(string(f.Key()), "/", "-") + "-bin"
}

// Must panics if err is non-nil and returns id otherwise
func Must(id FullyQualifiedIdentifier, err error) FullyQualifiedIdentifier {
	if err != nil {
		panic(err)
	}
	return id
}

// MarshalText implements encoding.TextMarshaler
func (f FullyQualifiedIdentifier) MarshalText() ([]byte, error) {
	return []byte(f.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (f *FullyQualifiedIdentifier) UnmarshalText(text []byte) error {
	id, err := Parse(string(text))
	if err != nil {
		return err
	}
	*f = id
	return nil
}
