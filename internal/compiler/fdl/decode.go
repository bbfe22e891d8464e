package fdl

import (
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/silaforge/silac/internal/compiler/ast"
)

// decoder turns a schema-valid element tree into the typed AST
type decoder struct {
	vs *violations
}

func first(kids []element, name string) (element, bool) {
	for _, k := range kids {
		if k.node.Data == name {
			return k, true
		}
	}
	return element{}, false
}

func all(kids []element, name string) []element {
	var out []element
	for _, k := range kids {
		if k.node.Data == name {
			out = append(out, k)
		}
	}
	return out
}

func childText(kids []element, name string) string {
	k, ok := first(kids, name)
	if !ok {
		return ""
	}
	return textContent(k.node)
}

func attr(n *xmlquery.Node, name string) string {
	for _, a := range n.Attr {
		if a.Name.Space == "" && a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func (d *decoder) feature(root *xmlquery.Node) *ast.Feature {
	const path = "/Feature"
	kids := children(root, path)

	f := &ast.Feature{
		SiLA2Version:   attr(root, "SiLA2Version"),
		FeatureVersion: attr(root, "FeatureVersion"),
		MaturityLevel:  attr(root, "MaturityLevel"),
		Originator:     attr(root, "Originator"),
		Category:       attr(root, "Category"),
		Locale:         attr(root, "Locale"),
		Identifier:     childText(kids, "Identifier"),
		DisplayName:    childText(kids, "DisplayName"),
		Description:    childText(kids, "Description"),
		Loc:            path,
	}
	if f.Locale == "" {
		f.Locale = "en-us"
	}

	for _, k := range all(kids, "Command") {
		f.Commands = append(f.Commands, d.command(k))
	}
	for _, k := range all(kids, "Property") {
		f.Properties = append(f.Properties, d.property(k))
	}
	for _, k := range all(kids, "Metadata") {
		f.Metadata = append(f.Metadata, d.metadata(k))
	}
	for _, k := range all(kids, "DefinedExecutionError") {
		ek := children(k.node, k.path)
		f.Errors = append(f.Errors, &ast.DefinedExecutionError{
			Identifier:  childText(ek, "Identifier"),
			DisplayName: childText(ek, "DisplayName"),
			Description: childText(ek, "Description"),
			Loc:         k.path,
		})
	}
	for _, k := range all(kids, "DataTypeDefinition") {
		dk := children(k.node, k.path)
		f.DataTypes = append(f.DataTypes, &ast.DataTypeDefinition{
			Identifier:  childText(dk, "Identifier"),
			DisplayName: childText(dk, "DisplayName"),
			Description: childText(dk, "Description"),
			Type:        d.dataTypeOf(dk),
			Loc:         k.path,
		})
	}
	return f
}

func (d *decoder) command(e element) *ast.Command {
	kids := children(e.node, e.path)
	c := &ast.Command{
		Identifier:  childText(kids, "Identifier"),
		DisplayName: childText(kids, "DisplayName"),
		Description: childText(kids, "Description"),
		Observable:  childText(kids, "Observable") == "Yes",
		Errors:      errorRefs(kids),
		Loc:         e.path,
	}
	for _, k := range all(kids, "Parameter") {
		c.Parameters = append(c.Parameters, d.element(k))
	}
	for _, k := range all(kids, "Response") {
		c.Responses = append(c.Responses, d.element(k))
	}
	for _, k := range all(kids, "IntermediateResponse") {
		c.IntermediateResponses = append(c.IntermediateResponses, d.element(k))
	}
	return c
}

func (d *decoder) property(e element) *ast.Property {
	kids := children(e.node, e.path)
	return &ast.Property{
		Identifier:  childText(kids, "Identifier"),
		DisplayName: childText(kids, "DisplayName"),
		Description: childText(kids, "Description"),
		Observable:  childText(kids, "Observable") == "Yes",
		Type:        d.dataTypeOf(kids),
		Errors:      errorRefs(kids),
		Loc:         e.path,
	}
}

func (d *decoder) metadata(e element) *ast.Metadata {
	kids := children(e.node, e.path)
	return &ast.Metadata{
		Identifier:  childText(kids, "Identifier"),
		DisplayName: childText(kids, "DisplayName"),
		Description: childText(kids, "Description"),
		Type:        d.dataTypeOf(kids),
		Errors:      errorRefs(kids),
		Loc:         e.path,
	}
}

func (d *decoder) element(e element) *ast.Element {
	kids := children(e.node, e.path)
	return &ast.Element{
		Identifier:  childText(kids, "Identifier"),
		DisplayName: childText(kids, "DisplayName"),
		Description: childText(kids, "Description"),
		Type:        d.dataTypeOf(kids),
		Loc:         e.path,
	}
}

func errorRefs(kids []element) []string {
	k, ok := first(kids, "DefinedExecutionErrors")
	if !ok {
		return nil
	}
	var ids []string
	for _, id := range all(children(k.node, k.path), "Identifier") {
		ids = append(ids, textContent(id.node))
	}
	return ids
}

func (d *decoder) dataTypeOf(kids []element) ast.DataType {
	k, ok := first(kids, "DataType")
	if !ok {
		return nil
	}
	return d.dataType(k)
}

// dataType decodes a DataType element; its Loc is the DataType element path
func (d *decoder) dataType(e element) ast.DataType {
	kids := children(e.node, e.path)
	if len(kids) == 0 {
		return nil
	}
	inner := kids[0]
	innerKids := children(inner.node, inner.path)

	switch inner.node.Data {
	case "Basic":
		return &ast.BasicType{Kind: ast.BasicKind(textContent(inner.node)), Loc: e.path}
	case "List":
		return &ast.ListType{Element: d.dataTypeOf(innerKids), Loc: e.path}
	case "Structure":
		st := &ast.StructureType{Loc: e.path}
		for _, el := range all(innerKids, "Element") {
			st.Elements = append(st.Elements, d.element(el))
		}
		return st
	case "Constrained":
		ct := &ast.ConstrainedType{Base: d.dataTypeOf(innerKids), Constraints: &ast.Constraints{}, Loc: e.path}
		if ck, ok := first(innerKids, "Constraints"); ok {
			ct.Constraints = d.constraints(ck)
		}
		return ct
	case "DataTypeIdentifier":
		return &ast.TypeReference{Identifier: textContent(inner.node), Loc: e.path}
	}
	return nil
}

func (d *decoder) constraints(e element) *ast.Constraints {
	kids := children(e.node, e.path)
	c := &ast.Constraints{
		Length:                   d.count(kids, "Length"),
		MinimalLength:            d.count(kids, "MinimalLength"),
		MaximalLength:            d.count(kids, "MaximalLength"),
		Pattern:                  childText(kids, "Pattern"),
		MaximalExclusive:         childText(kids, "MaximalExclusive"),
		MaximalInclusive:         childText(kids, "MaximalInclusive"),
		MinimalExclusive:         childText(kids, "MinimalExclusive"),
		MinimalInclusive:         childText(kids, "MinimalInclusive"),
		ElementCount:             d.count(kids, "ElementCount"),
		MinimalElementCount:      d.count(kids, "MinimalElementCount"),
		MaximalElementCount:      d.count(kids, "MaximalElementCount"),
		FullyQualifiedIdentifier: childText(kids, "FullyQualifiedIdentifier"),
	}

	if set, ok := first(kids, "Set"); ok {
		for _, v := range all(children(set.node, set.path), "Value") {
			c.Set = append(c.Set, textContent(v.node))
		}
	}
	if unit, ok := first(kids, "Unit"); ok {
		c.Unit = laxText(unit, "Label")
	}
	if ct, ok := first(kids, "ContentType"); ok {
		ck := children(ct.node, ct.path)
		c.ContentType = childText(ck, "Type")
		if sub := childText(ck, "Subtype"); sub != "" {
			c.ContentType += "/" + sub
		}
	}
	if schema, ok := first(kids, "Schema"); ok {
		sk := children(schema.node, schema.path)
		c.Schema = childText(sk, "Type")
		if url := childText(sk, "Url"); url != "" {
			c.Schema += " " + url
		}
	}
	if allowed, ok := first(kids, "AllowedTypes"); ok {
		for _, dt := range all(children(allowed.node, allowed.path), "DataType") {
			c.AllowedTypes = append(c.AllowedTypes, typeName(d.dataType(dt)))
		}
	}
	return c
}

// laxText returns the text of the named child, or the element's own text
func laxText(e element, child string) string {
	if s := childText(children(e.node, e.path), child); s != "" {
		return s
	}
	return textContent(e.node)
}

func (d *decoder) count(kids []element, name string) *int {
	k, ok := first(kids, name)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(textContent(k.node))
	if err != nil {
		d.vs.add(k.path, RuleValue, "value %q is out of range", textContent(k.node))
		return nil
	}
	return &n
}

// typeName renders a data type compactly, e.g. List<String>
func typeName(t ast.DataType) string {
	switch v := t.(type) {
	case *ast.BasicType:
		return string(v.Kind)
	case *ast.ListType:
		return "List<" + typeName(v.Element) + ">"
	case *ast.StructureType:
		names := make([]string, len(v.Elements))
		for i, e := range v.Elements {
			names[i] = e.Identifier
		}
		return "Structure{" + strings.Join(names, ",") + "}"
	case *ast.ConstrainedType:
		return typeName(v.Base)
	case *ast.TypeReference:
		return v.Identifier
	}
	return ""
}
