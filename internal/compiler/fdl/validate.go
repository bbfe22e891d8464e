package fdl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/go-playground/validator/v10"

	"github.com/silaforge/silac/internal/sila/framework"
)

// element is an element child together with its path
type element struct {
	node *xmlquery.Node
	path string
}

// children returns the element children of n with indexed paths
func children(n *xmlquery.Node, path string) []element {
	var out []element
	seen := map[string]int{}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode {
			continue
		}
		seen[c.Data]++
		out = append(out, element{node: c, path: fmt.Sprintf("%s/%s[%d]", path, c.Data, seen[c.Data])})
	}
	return out
}

// textContent returns the trimmed character data directly under n
func textContent(n *xmlquery.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.TextNode || c.Type == xmlquery.CharDataNode {
			sb.WriteString(c.Data)
		}
	}
	return strings.TrimSpace(sb.String())
}

// checkElement validates n and its subtree against the content models
func (s *schema) checkElement(n *xmlquery.Node, path string, vs *violations) {
	if n.NamespaceURI != framework.Namespace {
		vs.add(path, RuleStructure, "element %q is not in namespace %s", n.Data, framework.Namespace)
		return
	}

	model, ok := s.models[n.Data]
	if !ok {
		vs.add(path, RuleStructure, "unknown element %q", n.Data)
		return
	}

	switch model.kind {
	case modelLax:
		return
	case modelText:
		if kids := children(n, path); len(kids) > 0 {
			vs.add(kids[0].path, RuleStructure, "element %q is not allowed in text-only element %q", kids[0].node.Data, n.Data)
			return
		}
		if model.facet != "" {
			s.checkFacet(textContent(n), model.facet, path, vs)
		}
		return
	}

	if txt := textContent(n); txt != "" {
		vs.add(path, RuleStructure, "character data %q is not allowed in element %q", truncate(txt), n.Data)
	}

	var kids []element
	for _, k := range children(n, path) {
		if k.node.NamespaceURI != framework.Namespace {
			vs.add(k.path, RuleStructure, "element %q is not in namespace %s", k.node.Data, framework.Namespace)
			continue
		}
		kids = append(kids, k)
	}

	switch model.kind {
	case modelChoice:
		s.checkChoice(n, model, kids, path, vs)
	case modelSequence:
		s.checkSequence(n, model, kids, path, vs)
	}

	for _, k := range kids {
		if _, known := s.models[k.node.Data]; known {
			s.checkElement(k.node, k.path, vs)
		}
	}
}

func (s *schema) checkSequence(n *xmlquery.Node, model contentModel, kids []element, path string, vs *violations) {
	i := 0
	for _, p := range model.particles {
		count := 0
		for i < len(kids) && kids[i].node.Data == p.name && (p.max < 0 || count < p.max) {
			count++
			i++
		}
		if count < p.min {
			vs.add(path, RuleStructure, "missing required element %q in %q", p.name, n.Data)
		}
	}
	for ; i < len(kids); i++ {
		vs.add(kids[i].path, RuleStructure, "unexpected element %q in %q", kids[i].node.Data, n.Data)
	}
}

func (s *schema) checkChoice(n *xmlquery.Node, model contentModel, kids []element, path string, vs *violations) {
	names := make([]string, len(model.particles))
	for i, p := range model.particles {
		names[i] = p.name
	}

	if len(kids) == 0 {
		vs.add(path, RuleStructure, "element %q requires one of %s", n.Data, strings.Join(names, ", "))
		return
	}
	for _, k := range kids {
		if !contains(names, k.node.Data) {
			vs.add(k.path, RuleStructure, "unexpected element %q in %q, expected one of %s", k.node.Data, n.Data, strings.Join(names, ", "))
		}
	}
	if len(kids) > 1 {
		vs.add(path, RuleStructure, "element %q must contain exactly one child, found %d", n.Data, len(kids))
	}
}

// checkAttributes validates the attributes of the root element
func (s *schema) checkAttributes(n *xmlquery.Node, path string, vs *violations) {
	values := map[string]string{}
	for _, a := range n.Attr {
		if a.Name.Space != "" || a.Name.Local == "xmlns" {
			continue
		}
		if _, ok := s.attributes[a.Name.Local]; !ok {
			vs.add(path, RuleStructure, "attribute %q is not allowed", a.Name.Local)
			continue
		}
		values[a.Name.Local] = a.Value
	}

	for _, name := range attributeOrder {
		value, present := values[name]
		if !present && strings.HasPrefix(s.attributes[name], "required") {
			vs.add(path, RuleStructure, "missing required attribute %q", name)
			continue
		}
		s.checkFacet(value, s.attributes[name], path+"/@"+name, vs)
	}
}

// attributeOrder fixes the reporting order of attribute violations
var attributeOrder = []string{"SiLA2Version", "FeatureVersion", "MaturityLevel", "Originator", "Category", "Locale"}

func (s *schema) checkFacet(value, facet, path string, vs *violations) {
	err := s.validate.Var(value, facet)
	if err == nil {
		return
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		vs.add(path, RuleValue, "%v", err)
		return
	}
	for _, fe := range fieldErrs {
		vs.add(path, RuleValue, "%s", facetMessage(value, fe))
	}
}

func facetMessage(value string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "value is required"
	case "max":
		return fmt.Sprintf("value %q exceeds %s characters", truncate(value), fe.Param())
	case "oneof":
		return fmt.Sprintf("value %q is not one of %s", value, fe.Param())
	case "number":
		return fmt.Sprintf("value %q is not a non-negative integer", value)
	case "sila_identifier":
		return fmt.Sprintf("value %q is not a valid identifier", value)
	case "sila_originator":
		return fmt.Sprintf("value %q is not a lowercase dotted name", value)
	case "sila_version":
		return fmt.Sprintf("value %q is not a <major>.<minor> version", value)
	case "sila_locale":
		return fmt.Sprintf("value %q is not a locale", value)
	case "sila_regex":
		return fmt.Sprintf("value %q is not a valid pattern", value)
	default:
		return fmt.Sprintf("value %q fails %s", value, fe.Tag())
	}
}

func truncate(s string) string {
	const limit = 40
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
