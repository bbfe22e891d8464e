// Package fdl parses and validates SiLA 2 feature definitions (FDL).
//
// A feature definition is an XML document in the SiLA namespace. Parse checks
// well-formedness, validates the document against the FDL schema rules and
// decodes it into the typed tree of package ast. The parsed element tree stays
// available for XPath queries with the "sila" prefix bound to the SiLA namespace.
package fdl

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/silaforge/silac/internal/compiler/ast"
	"github.com/silaforge/silac/internal/sila/framework"
	"github.com/silaforge/silac/internal/sila/identifier"
)

// Document is a parsed, schema-valid feature definition
type Document struct {
	// Tree is the document node of the parsed XML
	Tree *xmlquery.Node
	// Root is the Feature element
	Root    *xmlquery.Node
	Feature *ast.Feature
	Source  []byte
}

// Identifier returns the fully qualified feature identifier
func (d *Document) Identifier() identifier.FullyQualifiedIdentifier {
	return d.Feature.FullyQualifiedIdentifier()
}

// XPath evaluates expr against the document
func (d *Document) XPath(expr string) ([]*xmlquery.Node, error) {
	return XPath(d.Tree, expr)
}

// Parse parses and validates a feature definition. It returns an
// *XMLSyntaxError for malformed input and a *SchemaValidationError listing
// every violation for well-formed documents that break the schema.
func Parse(text []byte) (*Document, error) {
	tree, err := xmlquery.Parse(bytes.NewReader(text))
	if err != nil {
		return nil, &XMLSyntaxError{Err: err}
	}

	root := rootElement(tree)
	if root == nil {
		return nil, &XMLSyntaxError{Err: errors.New("document has no root element")}
	}

	var vs violations
	if root.Data != "Feature" {
		vs.add("/"+root.Data, RuleStructure, "root element must be Feature, found %q", root.Data)
		return nil, vs.err()
	}

	s := loadSchema()
	s.checkAttributes(root, "/Feature", &vs)
	s.checkElement(root, "/Feature", &vs)
	if err := vs.err(); err != nil {
		return nil, err
	}

	d := &decoder{vs: &vs}
	feature := d.feature(root)
	checkSemantics(feature, &vs)
	if err := vs.err(); err != nil {
		return nil, err
	}

	return &Document{
		Tree:    tree,
		Root:    root,
		Feature: feature,
		Source:  append([]byte(nil), text...),
	}, nil
}

// ParseFile reads and parses a feature definition file
func ParseFile(path string) (*Document, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feature definition: %w", err)
	}
	return Parse(text)
}

func rootElement(tree *xmlquery.Node) *xmlquery.Node {
	for c := tree.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			return c
		}
	}
	return nil
}

// XPath evaluates a node-set expression with the prefix "sila" bound to the
// SiLA namespace. It fails only for malformed expressions.
func XPath(node *xmlquery.Node, expr string) ([]*xmlquery.Node, error) {
	compiled, err := compileXPath(expr)
	if err != nil {
		return nil, err
	}
	return xmlquery.QuerySelectorAll(node, compiled), nil
}

// XPathValue evaluates an expression that yields a string, number or boolean,
// e.g. count(//sila:Command)
func XPathValue(node *xmlquery.Node, expr string) (interface{}, error) {
	compiled, err := compileXPath(expr)
	if err != nil {
		return nil, err
	}
	return compiled.Evaluate(xmlquery.CreateXPathNavigator(node)), nil
}

func compileXPath(expr string) (*xpath.Expr, error) {
	compiled, err := xpath.CompileWithNS(expr, map[string]string{"sila": framework.Namespace})
	if err != nil {
		return nil, fmt.Errorf("invalid XPath expression %q: %w", expr, err)
	}
	return compiled, nil
}
