package codegen

import (
	"errors"
	"fmt"

	"github.com/silaforge/silac/internal/compiler/ast"
	"github.com/silaforge/silac/internal/sila/framework"
)

// StructMessage returns the name of the nested message of a structure field
func StructMessage(field string) string { return field + "_Struct" }

// AffectedCallsField is the response field of Get_FCPAffectedByMetadata_*
const AffectedCallsField = "AffectedCalls"

// fieldType is the fragment produced for a data type
type fieldType struct {
	name     string
	repeated bool
	// nested is the structure the field's message type must declare
	nested *ast.StructureType
}

// typeFragment maps a data type to its protobuf field type. Constraints do not
// change the wire type; lists become repeated fields.
func typeFragment(field string, t ast.DataType) (fieldType, error) {
	switch v := t.(type) {
	case *ast.BasicType:
		return fieldType{name: framework.Package + "." + string(v.Kind)}, nil
	case *ast.TypeReference:
		return fieldType{name: DataTypeMessage(v.Identifier)}, nil
	case *ast.ConstrainedType:
		return typeFragment(field, v.Base)
	case *ast.StructureType:
		return fieldType{name: StructMessage(field), nested: v}, nil
	case *ast.ListType:
		inner, err := typeFragment(field, v.Element)
		if err != nil {
			return fieldType{}, err
		}
		if inner.repeated {
			return fieldType{}, errors.New("list of list cannot be represented")
		}
		inner.repeated = true
		return inner, nil
	case nil:
		return fieldType{}, errors.New("missing data type")
	default:
		return fieldType{}, fmt.Errorf("unsupported data type %T", t)
	}
}

// generateMessage writes a message with one field per element, declaring
// nested structure messages before the field that uses them
func (g *Generator) generateMessage(name string, elements []*ast.Element) error {
	if len(elements) == 0 {
		g.writeLine("message %s {}", name)
		return nil
	}

	g.writeLine("message %s {", name)
	g.indent++
	for i, e := range elements {
		ft, err := typeFragment(e.Identifier, e.Type)
		if err != nil {
			return fmt.Errorf("failed to generate field %s at %s: %w", e.Identifier, e.Loc, err)
		}
		if ft.nested != nil {
			if err := g.generateMessage(ft.name, ft.nested.Elements); err != nil {
				return err
			}
		}

		g.writeComment(e.Description)
		if ft.repeated {
			g.writeLine("repeated %s %s = %d;", ft.name, e.Identifier, i+1)
		} else {
			g.writeLine("%s %s = %d;", ft.name, e.Identifier, i+1)
		}
	}
	g.indent--
	g.writeLine("}")
	return nil
}

// generateTopLevel writes a top level message preceded by a blank line
func (g *Generator) generateTopLevel(name string, elements []*ast.Element) error {
	g.writeLine("")
	return g.generateMessage(name, elements)
}

func (g *Generator) generateCommandMessages(c *ast.Command) error {
	if err := g.generateTopLevel(ParametersMessage(c.Identifier), c.Parameters); err != nil {
		return fmt.Errorf("failed to generate command %s: %w", c.Identifier, err)
	}
	if err := g.generateTopLevel(ResponsesMessage(c.Identifier), c.Responses); err != nil {
		return fmt.Errorf("failed to generate command %s: %w", c.Identifier, err)
	}
	if c.Observable && len(c.IntermediateResponses) > 0 {
		if err := g.generateTopLevel(IntermediateResponsesMessage(c.Identifier), c.IntermediateResponses); err != nil {
			return fmt.Errorf("failed to generate command %s: %w", c.Identifier, err)
		}
	}
	return nil
}

func (g *Generator) generatePropertyMessages(p *ast.Property) error {
	r := propertyRPC(p)
	if err := g.generateTopLevel(r.request, nil); err != nil {
		return err
	}
	value := []*ast.Element{{Identifier: p.Identifier, Type: p.Type, Loc: p.Loc}}
	if err := g.generateTopLevel(r.reply, value); err != nil {
		return fmt.Errorf("failed to generate property %s: %w", p.Identifier, err)
	}
	return nil
}

func (g *Generator) generateMetadataMessages(m *ast.Metadata) error {
	value := []*ast.Element{{Identifier: m.Identifier, Type: m.Type, Loc: m.Loc}}
	if err := g.generateTopLevel(MetadataMessage(m.Identifier), value); err != nil {
		return fmt.Errorf("failed to generate metadata %s: %w", m.Identifier, err)
	}

	r := metadataRPC(m)
	if err := g.generateTopLevel(r.request, nil); err != nil {
		return err
	}
	affected := []*ast.Element{{
		Identifier: AffectedCallsField,
		Type:       &ast.ListType{Element: &ast.BasicType{Kind: ast.BasicString}},
	}}
	return g.generateTopLevel(r.reply, affected)
}
