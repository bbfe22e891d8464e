package fdl

import (
	"strings"

	"github.com/silaforge/silac/internal/compiler/ast"
)

// checkSemantics enforces the identity constraints of the schema: identifiers
// are unique within their scope and every reference resolves inside the feature
func checkSemantics(f *ast.Feature, vs *violations) {
	unique := func(scope string, nodes []named) {
		seen := map[string]string{}
		for _, n := range nodes {
			key := strings.ToLower(n.id)
			if prev, dup := seen[key]; dup {
				vs.add(n.path, RuleDuplicate, "duplicate %s identifier %q, first declared at %s", scope, n.id, prev)
				continue
			}
			seen[key] = n.path
		}
	}

	unique("command", namesOf(f.Commands))
	unique("property", namesOf(f.Properties))
	unique("metadata", namesOf(f.Metadata))
	unique("defined execution error", namesOf(f.Errors))
	unique("data type", namesOf(f.DataTypes))

	for _, c := range f.Commands {
		unique("parameter", namesOf(c.Parameters))
		unique("response", namesOf(c.Responses))
		unique("intermediate response", namesOf(c.IntermediateResponses))
		checkErrorRefs(f, c.Errors, c.Loc, vs)
	}
	for _, p := range f.Properties {
		checkErrorRefs(f, p.Errors, p.Loc, vs)
	}
	for _, m := range f.Metadata {
		checkErrorRefs(f, m.Errors, m.Loc, vs)
	}

	ast.Walk(f, func(n ast.Node) bool {
		switch t := n.(type) {
		case *ast.TypeReference:
			if _, ok := f.DataType(t.Identifier); !ok {
				vs.add(t.Loc, RuleReference, "data type %q is not defined in this feature", t.Identifier)
			}
		case *ast.StructureType:
			unique("structure element", namesOf(t.Elements))
		case *ast.ListType:
			if _, nested := ast.Underlying(t.Element).(*ast.ListType); nested {
				vs.add(t.Loc, RuleType, "a list may not directly contain another list")
			}
		case *ast.ConstrainedType:
			switch ast.Underlying(t.Base).(type) {
			case *ast.BasicType, *ast.ListType:
			default:
				vs.add(t.Loc, RuleType, "constraints apply to basic and list types only")
			}
		}
		return true
	})

	checkCycles(f, vs)
}

func checkErrorRefs(f *ast.Feature, ids []string, path string, vs *violations) {
	for _, id := range ids {
		if _, ok := f.Error(id); !ok {
			vs.add(path, RuleReference, "defined execution error %q is not declared in this feature", id)
		}
	}
}

// checkCycles reports data type definitions that refer back to themselves
func checkCycles(f *ast.Feature, vs *violations) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := map[string]int{}

	var visit func(d *ast.DataTypeDefinition) bool
	visit = func(d *ast.DataTypeDefinition) bool {
		switch state[d.Identifier] {
		case visiting:
			return false
		case done:
			return true
		}
		state[d.Identifier] = visiting
		ok := true
		ast.Walk(d.Type, func(n ast.Node) bool {
			ref, isRef := n.(*ast.TypeReference)
			if !isRef || !ok {
				return ok
			}
			if next, found := f.DataType(ref.Identifier); found && !visit(next) {
				ok = false
			}
			return ok
		})
		state[d.Identifier] = done
		return ok
	}

	for _, d := range f.DataTypes {
		if state[d.Identifier] == unvisited && !visit(d) {
			vs.add(d.Loc, RuleType, "data type %q is defined in terms of itself", d.Identifier)
		}
	}
}

type named struct {
	id   string
	path string
}

func namesOf[T ast.Node](nodes []T) []named {
	out := make([]named, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, named{id: identifierOf(n), path: n.Path()})
	}
	return out
}

func identifierOf(n ast.Node) string {
	switch v := n.(type) {
	case *ast.Command:
		return v.Identifier
	case *ast.Property:
		return v.Identifier
	case *ast.Metadata:
		return v.Identifier
	case *ast.DefinedExecutionError:
		return v.Identifier
	case *ast.DataTypeDefinition:
		return v.Identifier
	case *ast.Element:
		return v.Identifier
	}
	return ""
}
