package fdl

import (
	"fmt"
	"strings"
)

// XMLSyntaxError is returned when the input is not well-formed XML or has no
// root element
type XMLSyntaxError struct {
	Err error
}

func (e *XMLSyntaxError) Error() string {
	return fmt.Sprintf("feature definition is not well-formed XML: %v", e.Err)
}

func (e *XMLSyntaxError) Unwrap() error {
	return e.Err
}

// Rule classifies a violation
type Rule string

const (
	// RuleStructure covers element order, cardinality, namespaces and attributes
	RuleStructure Rule = "structure"
	// RuleValue covers text and attribute values outside their lexical space
	RuleValue Rule = "value"
	// RuleDuplicate covers identifiers declared twice in one scope
	RuleDuplicate Rule = "duplicate"
	// RuleReference covers data type and error references that do not resolve
	RuleReference Rule = "reference"
	// RuleType covers invalid compositions of data types
	RuleType Rule = "type"
)

// Violation is one schema rule broken by a feature definition
type Violation struct {
	// Path locates the offending node, e.g. /Feature/Command[2]/Identifier[1]
	Path    string `json:"path"`
	Rule    Rule   `json:"rule"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// SchemaValidationError lists every schema violation found in a document
type SchemaValidationError struct {
	Violations []Violation
}

func (e *SchemaValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("feature definition does not conform to the schema")
	for i, v := range e.Violations {
		if i == 0 {
			sb.WriteString(": ")
		} else {
			sb.WriteString("; ")
		}
		sb.WriteString(v.String())
	}
	return sb.String()
}

// violations collects schema violations while a document is checked
type violations []Violation

func (vs *violations) add(path string, rule Rule, format string, args ...interface{}) {
	*vs = append(*vs, Violation{Path: path, Rule: rule, Message: fmt.Sprintf(format, args...)})
}

func (vs violations) err() error {
	if len(vs) == 0 {
		return nil
	}
	return &SchemaValidationError{Violations: vs}
}
