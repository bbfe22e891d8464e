// Package codegen transforms a feature definition AST into its protobuf IDL.
// Each AST node kind maps to one fragment; the fragments are composed by
// structural recursion so equal input always yields byte-identical output.
package codegen

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/silaforge/silac/internal/compiler/ast"
	"github.com/silaforge/silac/internal/sila/framework"
)

// Generator transforms a feature AST into proto3 source
type Generator struct {
	buf    *bytes.Buffer
	indent int
}

// NewGenerator creates a new IDL generator
func NewGenerator() *Generator {
	return &Generator{
		buf:    &bytes.Buffer{},
		indent: 0,
	}
}

// TransformError is returned when a feature cannot be expressed as IDL
type TransformError struct {
	Feature string
	Err     error
}

func (e *TransformError) Error() string {
	if e.Feature == "" {
		return fmt.Sprintf("failed to transform feature definition: %v", e.Err)
	}
	return fmt.Sprintf("failed to transform feature %s: %v", e.Feature, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// PackageName returns the protobuf package of a feature, e.g.
// sila2.org.silastandard.core.silaservice.v1
func PackageName(f *ast.Feature) string {
	return fmt.Sprintf("sila2.%s.%s.%s.v%d", f.Originator, f.Category, strings.ToLower(f.Identifier), f.MajorVersion())
}

// FileName returns the IDL file name of a feature
func FileName(f *ast.Feature) string {
	return f.Identifier + ".proto"
}

// ServiceName returns the fully qualified protobuf service name of a feature
func ServiceName(f *ast.Feature) string {
	return PackageName(f) + "." + f.Identifier
}

// GenerateProto generates the IDL of a feature. Failures are reported as
// *TransformError.
func (g *Generator) GenerateProto(f *ast.Feature) (string, error) {
	if f == nil {
		return "", &TransformError{Err: errors.New("feature is nil")}
	}
	code, err := g.generate(f)
	if err != nil {
		return "", &TransformError{Feature: f.Identifier, Err: err}
	}
	return code, nil
}

func (g *Generator) generate(f *ast.Feature) (string, error) {
	g.reset()

	g.writeLine(`syntax = "proto3";`)
	g.writeLine("")
	g.writeLine(`import "%s";`, framework.FrameworkProto)
	g.writeLine("")
	g.writeLine("package %s;", PackageName(f))
	g.writeLine("")

	g.generateService(f)

	for _, d := range f.DataTypes {
		value := []*ast.Element{{Identifier: d.Identifier, Type: d.Type, Loc: d.Loc}}
		if err := g.generateTopLevel(DataTypeMessage(d.Identifier), value); err != nil {
			return "", fmt.Errorf("failed to generate data type %s: %w", d.Identifier, err)
		}
	}
	for _, c := range f.Commands {
		if err := g.generateCommandMessages(c); err != nil {
			return "", err
		}
	}
	for _, p := range f.Properties {
		if err := g.generatePropertyMessages(p); err != nil {
			return "", err
		}
	}
	for _, m := range f.Metadata {
		if err := g.generateMetadataMessages(m); err != nil {
			return "", err
		}
	}

	return g.buf.String(), nil
}

func (g *Generator) reset() {
	g.buf.Reset()
	g.indent = 0
}

// writeLine writes a formatted line with proper indentation
func (g *Generator) writeLine(format string, args ...interface{}) {
	if format == "" {
		g.buf.WriteString("\n")
		return
	}

	g.buf.WriteString(strings.Repeat("  ", g.indent))
	if len(args) > 0 {
		g.buf.WriteString(fmt.Sprintf(format, args...))
	} else {
		g.buf.WriteString(format)
	}
	g.buf.WriteString("\n")
}

// writeComment writes a description as line comments
func (g *Generator) writeComment(text string) {
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		g.writeLine("// %s", line)
	}
}
