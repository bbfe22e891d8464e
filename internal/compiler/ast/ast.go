// Package ast defines the typed syntax tree of a SiLA 2 feature definition.
// It covers features, commands, properties, metadata, defined execution errors,
// data type definitions and the data types they reference.
package ast

import (
	"strconv"
	"strings"

	"github.com/silaforge/silac/internal/sila/identifier"
)

// Node is the base interface for all AST nodes
type Node interface {
	// Path returns the XML path of the node, e.g. /Feature/Command[2]
	Path() string
	node()
}

// Feature is the root node of a feature definition
type Feature struct {
	SiLA2Version   string
	FeatureVersion string
	MaturityLevel  string
	Originator     string
	Category       string
	Locale         string

	Identifier  string
	DisplayName string
	Description string

	Commands   []*Command
	Properties []*Property
	Metadata   []*Metadata
	Errors     []*DefinedExecutionError
	DataTypes  []*DataTypeDefinition
	Loc        string
}

func (f *Feature) node() {}

// Path returns the XML path of the feature
func (f *Feature) Path() string { return f.Loc }

// MajorVersion returns the major component of FeatureVersion
func (f *Feature) MajorVersion() int {
	major, _, _ := strings.Cut(f.FeatureVersion, ".")
	n, err := strconv.Atoi(major)
	if err != nil {
		return 0
	}
	return n
}

// FullyQualifiedIdentifier returns the feature's identifier. The zero value is
// returned for features that did not pass validation.
func (f *Feature) FullyQualifiedIdentifier() identifier.FullyQualifiedIdentifier {
	id, err := identifier.NewFeature(f.Originator, f.Category, f.Identifier, f.MajorVersion())
	if err != nil {
		return identifier.FullyQualifiedIdentifier{}
	}
	return id
}

// Command returns the command with the given identifier
func (f *Feature) Command(id string) (*Command, bool) {
	for _, c := range f.Commands {
		if c.Identifier == id {
			return c, true
		}
	}
	return nil, false
}

// Property returns the property with the given identifier
func (f *Feature) Property(id string) (*Property, bool) {
	for _, p := range f.Properties {
		if p.Identifier == id {
			return p, true
		}
	}
	return nil, false
}

// MetadataByID returns the metadata with the given identifier
func (f *Feature) MetadataByID(id string) (*Metadata, bool) {
	for _, m := range f.Metadata {
		if m.Identifier == id {
			return m, true
		}
	}
	return nil, false
}

// DataType returns the data type definition with the given identifier
func (f *Feature) DataType(id string) (*DataTypeDefinition, bool) {
	for _, d := range f.DataTypes {
		if d.Identifier == id {
			return d, true
		}
	}
	return nil, false
}

// Error returns the defined execution error with the given identifier
func (f *Feature) Error(id string) (*DefinedExecutionError, bool) {
	for _, e := range f.Errors {
		if e.Identifier == id {
			return e, true
		}
	}
	return nil, false
}

// Command is a feature command
type Command struct {
	Identifier            string
	DisplayName           string
	Description           string
	Observable            bool
	Parameters            []*Element
	Responses             []*Element
	IntermediateResponses []*Element
	Errors                []string
	Loc                   string
}

func (c *Command) node() {}

// Path returns the XML path of the command
func (c *Command) Path() string { return c.Loc }

// Property is a feature property
type Property struct {
	Identifier  string
	DisplayName string
	Description string
	Observable  bool
	Type        DataType
	Errors      []string
	Loc         string
}

func (p *Property) node() {}

// Path returns the XML path of the property
func (p *Property) Path() string { return p.Loc }

// Metadata is a request-scoped value declared by a feature
type Metadata struct {
	Identifier  string
	DisplayName string
	Description string
	Type        DataType
	Errors      []string
	Loc         string
}

func (m *Metadata) node() {}

// Path returns the XML path of the metadata
func (m *Metadata) Path() string { return m.Loc }

// DefinedExecutionError is an application error declared by a feature
type DefinedExecutionError struct {
	Identifier  string
	DisplayName string
	Description string
	Loc         string
}

func (e *DefinedExecutionError) node() {}

// Path returns the XML path of the error
func (e *DefinedExecutionError) Path() string { return e.Loc }

// DataTypeDefinition is a named, reusable data type
type DataTypeDefinition struct {
	Identifier  string
	DisplayName string
	Description string
	Type        DataType
	Loc         string
}

func (d *DataTypeDefinition) node() {}

// Path returns the XML path of the definition
func (d *DataTypeDefinition) Path() string { return d.Loc }

// Element is a named, typed slot: a command parameter, response or
// intermediate response, or a structure element
type Element struct {
	Identifier  string
	DisplayName string
	Description string
	Type        DataType
	Loc         string
}

func (e *Element) node() {}

// Path returns the XML path of the element
func (e *Element) Path() string { return e.Loc }
