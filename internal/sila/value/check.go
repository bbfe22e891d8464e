package value

import (
	"cmp"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/silaforge/silac/internal/compiler/ast"
	"github.com/silaforge/silac/internal/sila/identifier"
)

// ConstraintError reports a value that breaks a constraint of its data type
type ConstraintError struct {
	// Path names the offending element below the checked value, empty for
	// the value itself
	Path       string
	Constraint string
	Message    string
}

func (e *ConstraintError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s constraint violated: %s", e.Constraint, e.Message)
	}
	return fmt.Sprintf("%s: %s constraint violated: %s", e.Path, e.Constraint, e.Message)
}

// identifierKinds maps FullyQualifiedIdentifier constraint values to kinds
var identifierKinds = map[string]identifier.Kind{
	"FeatureIdentifier":                     identifier.KindFeature,
	"CommandIdentifier":                     identifier.KindCommand,
	"CommandParameterIdentifier":            identifier.KindCommandParameter,
	"CommandResponseIdentifier":             identifier.KindCommandResponse,
	"IntermediateCommandResponseIdentifier": identifier.KindIntermediateCommandResponse,
	"DefinedExecutionErrorIdentifier":       identifier.KindDefinedExecutionError,
	"PropertyIdentifier":                    identifier.KindProperty,
	"TypeIdentifier":                        identifier.KindDataType,
	"MetadataIdentifier":                    identifier.KindMetadata,
}

var patterns sync.Map // pattern string -> *regexp.Regexp

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, err
	}
	patterns.Store(pattern, re)
	return re, nil
}

// CheckElements checks every present element value against its data type
func (c *Converter) CheckElements(elements []*ast.Element, values map[string]interface{}) error {
	for _, e := range elements {
		v, ok := values[e.Identifier]
		if !ok || v == nil {
			continue
		}
		if err := c.Check(e.Type, v); err != nil {
			return qualify(e.Identifier, err)
		}
	}
	return nil
}

// Check verifies v against the constraints of t and of every type nested in
// t. Bounds on Date, Time and Timestamp values are not checked.
func (c *Converter) Check(t ast.DataType, v interface{}) error {
	switch dt := t.(type) {
	case *ast.ConstrainedType:
		if err := c.Check(dt.Base, v); err != nil {
			return err
		}
		return checkConstraints(ast.Underlying(dt.Base), dt.Constraints, v)
	case *ast.TypeReference:
		def, err := c.definition(dt.Identifier)
		if err != nil {
			return err
		}
		return c.Check(def.Type, v)
	case *ast.ListType:
		items, ok := sliceOf(v)
		if !ok {
			return &TypeError{Expected: "list", Value: v}
		}
		for i, item := range items {
			if err := c.Check(dt.Element, item); err != nil {
				return qualify(fmt.Sprintf("[%d]", i), err)
			}
		}
	case *ast.StructureType:
		values, ok := v.(map[string]interface{})
		if !ok {
			return &TypeError{Expected: "structure", Value: v}
		}
		return c.CheckElements(dt.Elements, values)
	}
	return nil
}

func qualify(name string, err error) error {
	ce, ok := err.(*ConstraintError)
	if !ok {
		return err
	}
	path := name
	if ce.Path != "" {
		if strings.HasPrefix(ce.Path, "[") {
			path += ce.Path
		} else {
			path += "." + ce.Path
		}
	}
	return &ConstraintError{Path: path, Constraint: ce.Constraint, Message: ce.Message}
}

func checkConstraints(base ast.DataType, cs *ast.Constraints, v interface{}) error {
	if cs == nil {
		return nil
	}
	violation := func(constraint, format string, args ...interface{}) error {
		return &ConstraintError{Constraint: constraint, Message: fmt.Sprintf(format, args...)}
	}

	if size, ok := lengthOf(v); ok {
		if cs.Length != nil && size != *cs.Length {
			return violation("Length", "length is %d, must be %d", size, *cs.Length)
		}
		if cs.MinimalLength != nil && size < *cs.MinimalLength {
			return violation("MinimalLength", "length is %d, must be at least %d", size, *cs.MinimalLength)
		}
		if cs.MaximalLength != nil && size > *cs.MaximalLength {
			return violation("MaximalLength", "length is %d, must be at most %d", size, *cs.MaximalLength)
		}
	}

	if _, isList := base.(*ast.ListType); isList {
		items, _ := sliceOf(v)
		n := len(items)
		if cs.ElementCount != nil && n != *cs.ElementCount {
			return violation("ElementCount", "list has %d elements, must have %d", n, *cs.ElementCount)
		}
		if cs.MinimalElementCount != nil && n < *cs.MinimalElementCount {
			return violation("MinimalElementCount", "list has %d elements, must have at least %d", n, *cs.MinimalElementCount)
		}
		if cs.MaximalElementCount != nil && n > *cs.MaximalElementCount {
			return violation("MaximalElementCount", "list has %d elements, must have at most %d", n, *cs.MaximalElementCount)
		}
		return nil
	}

	if len(cs.Set) > 0 && !inSet(cs.Set, v) {
		return violation("Set", "value %v is not one of %s", v, strings.Join(cs.Set, ", "))
	}

	if s, ok := v.(string); ok {
		if cs.Pattern != "" {
			re, err := compilePattern(cs.Pattern)
			if err != nil {
				return violation("Pattern", "invalid pattern %q: %v", cs.Pattern, err)
			}
			if !re.MatchString(s) {
				return violation("Pattern", "value %q does not match %s", s, cs.Pattern)
			}
		}
		if cs.FullyQualifiedIdentifier != "" {
			kind, ok := identifierKinds[cs.FullyQualifiedIdentifier]
			if ok && !identifier.Matches(kind, s) {
				return violation("FullyQualifiedIdentifier", "value %q is not a %s", s, cs.FullyQualifiedIdentifier)
			}
		}
	}

	if numeric(v) {
		type bound struct {
			name   string
			limit  string
			breaks func(c int) bool
			rel    string
		}
		bounds := []bound{
			{"MaximalExclusive", cs.MaximalExclusive, func(c int) bool { return c >= 0 }, "less than"},
			{"MaximalInclusive", cs.MaximalInclusive, func(c int) bool { return c > 0 }, "at most"},
			{"MinimalExclusive", cs.MinimalExclusive, func(c int) bool { return c <= 0 }, "greater than"},
			{"MinimalInclusive", cs.MinimalInclusive, func(c int) bool { return c < 0 }, "at least"},
		}
		for _, b := range bounds {
			if b.limit == "" {
				continue
			}
			c, ok := compareNumber(v, b.limit)
			if !ok {
				continue
			}
			if b.breaks(c) {
				return violation(b.name, "value %v must be %s %s", v, b.rel, b.limit)
			}
		}
	}
	return nil
}

// lengthOf returns the length of strings in characters and of binaries in bytes
func lengthOf(v interface{}) (int, bool) {
	switch s := v.(type) {
	case string:
		return utf8.RuneCountInString(s), true
	case []byte:
		return len(s), true
	default:
		return 0, false
	}
}

func numeric(v interface{}) bool {
	switch v.(type) {
	case string, bool, []byte:
		return false
	}
	_, ok := toFloat64(v)
	return ok
}

// compareNumber compares a numeric value with a decimal literal and returns
// -1, 0 or +1. Integer values are compared as int64 when the literal is an
// integer; everything else is compared as float64.
func compareNumber(v interface{}, literal string) (int, bool) {
	literal = strings.TrimSpace(literal)
	switch v.(type) {
	case float32, float64:
	default:
		if n, ok := toInt64(v); ok {
			if l, err := strconv.ParseInt(literal, 10, 64); err == nil {
				return cmp.Compare(n, l), true
			}
		}
	}
	f, ok := toFloat64(v)
	if !ok {
		return 0, false
	}
	l, err := strconv.ParseFloat(literal, 64)
	if err != nil {
		return 0, false
	}
	return cmp.Compare(f, l), true
}

func inSet(set []string, v interface{}) bool {
	if numeric(v) {
		for _, member := range set {
			if c, ok := compareNumber(v, member); ok && c == 0 {
				return true
			}
		}
		return false
	}
	s := fmt.Sprint(v)
	for _, member := range set {
		if member == s {
			return true
		}
	}
	return false
}
