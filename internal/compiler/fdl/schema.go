package fdl

import (
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/silaforge/silac/internal/sila/identifier"
)

// particle is one entry of a content model: an element name with occurrence bounds
type particle struct {
	name string
	min  int
	max  int // unbounded when negative
}

func one(name string) particle      { return particle{name: name, min: 1, max: 1} }
func optional(name string) particle { return particle{name: name, min: 0, max: 1} }
func many(name string) particle     { return particle{name: name, min: 0, max: -1} }
func some(name string) particle     { return particle{name: name, min: 1, max: -1} }

type modelKind int

const (
	// modelSequence lists element children in a fixed order
	modelSequence modelKind = iota
	// modelChoice requires exactly one child out of the particles
	modelChoice
	// modelText allows character data only
	modelText
	// modelLax accepts any content
	modelLax
)

// contentModel describes the allowed children of one element
type contentModel struct {
	kind      modelKind
	particles []particle
	// facet is a validator tag applied to the text of modelText elements
	facet string
}

func sequence(ps ...particle) contentModel { return contentModel{kind: modelSequence, particles: ps} }
func choice(ps ...particle) contentModel   { return contentModel{kind: modelChoice, particles: ps} }
func text(facet string) contentModel       { return contentModel{kind: modelText, facet: facet} }

// schema is the compiled feature definition schema
type schema struct {
	models     map[string]contentModel
	attributes map[string]string
	validate   *validator.Validate
}

var (
	schemaOnce sync.Once
	fdlSchema  *schema
)

// loadSchema returns the process-wide schema, building it on first use. The
// schema is never modified afterwards and is safe for concurrent reads.
func loadSchema() *schema {
	schemaOnce.Do(func() {
		fdlSchema = buildSchema()
	})
	return fdlSchema
}

var (
	versionRe  = regexp.MustCompile(`^[0-9]+\.[0-9]+$`)
	localeRe   = regexp.MustCompile(`^[a-zA-Z]{2}(-[a-zA-Z]{2})?$`)
	basicKinds = "oneof=String Integer Real Boolean Binary Date Time Timestamp Any"
)

func buildSchema() *schema {
	v := validator.New()
	mustRegister(v, "sila_identifier", func(fl validator.FieldLevel) bool {
		return identifier.IsIdentifier(fl.Field().String())
	})
	mustRegister(v, "sila_originator", func(fl validator.FieldLevel) bool {
		return identifier.IsOriginator(fl.Field().String())
	})
	mustRegister(v, "sila_version", func(fl validator.FieldLevel) bool {
		return versionRe.MatchString(fl.Field().String())
	})
	mustRegister(v, "sila_locale", func(fl validator.FieldLevel) bool {
		return localeRe.MatchString(fl.Field().String())
	})
	mustRegister(v, "sila_regex", func(fl validator.FieldLevel) bool {
		_, err := regexp.Compile(fl.Field().String())
		return err == nil
	})

	described := func(extra ...particle) contentModel {
		ps := []particle{one("Identifier"), one("DisplayName"), one("Description")}
		return sequence(append(ps, extra...)...)
	}

	count := text("required,number")
	bound := text("required")

	models := map[string]contentModel{
		"Feature": described(
			many("Command"),
			many("Property"),
			many("Metadata"),
			many("DefinedExecutionError"),
			many("DataTypeDefinition"),
		),
		"Command": described(
			one("Observable"),
			many("Parameter"),
			many("Response"),
			many("IntermediateResponse"),
			optional("DefinedExecutionErrors"),
		),
		"Property": described(
			one("Observable"),
			one("DataType"),
			optional("DefinedExecutionErrors"),
		),
		"Metadata": described(
			one("DataType"),
			optional("DefinedExecutionErrors"),
		),
		"Parameter":              described(one("DataType")),
		"Response":               described(one("DataType")),
		"IntermediateResponse":   described(one("DataType")),
		"Element":                described(one("DataType")),
		"DataTypeDefinition":     described(one("DataType")),
		"DefinedExecutionError":  described(),
		"DefinedExecutionErrors": sequence(some("Identifier")),

		"DataType": choice(
			one("Basic"),
			one("List"),
			one("Structure"),
			one("Constrained"),
			one("DataTypeIdentifier"),
		),
		"List":        sequence(one("DataType")),
		"Structure":   sequence(some("Element")),
		"Constrained": sequence(one("DataType"), one("Constraints")),
		"Constraints": sequence(
			optional("Length"),
			optional("MinimalLength"),
			optional("MaximalLength"),
			optional("Set"),
			optional("Pattern"),
			optional("MaximalExclusive"),
			optional("MaximalInclusive"),
			optional("MinimalExclusive"),
			optional("MinimalInclusive"),
			optional("Unit"),
			optional("ContentType"),
			optional("ElementCount"),
			optional("MinimalElementCount"),
			optional("MaximalElementCount"),
			optional("FullyQualifiedIdentifier"),
			optional("Schema"),
			optional("AllowedTypes"),
		),
		"Set":          sequence(some("Value")),
		"AllowedTypes": sequence(some("DataType")),
		"Unit":         {kind: modelLax},
		"ContentType":  {kind: modelLax},
		"Schema":       {kind: modelLax},

		"Identifier":          text("required,max=255,sila_identifier"),
		"DisplayName":         text("required,max=255"),
		"Description":         text(""),
		"Observable":          text("required,oneof=Yes No"),
		"Basic":               text("required," + basicKinds),
		"DataTypeIdentifier":  text("required,max=255,sila_identifier"),
		"Value":               text(""),
		"Pattern":             text("required,sila_regex"),
		"Length":              count,
		"MinimalLength":       count,
		"MaximalLength":       count,
		"ElementCount":        count,
		"MinimalElementCount": count,
		"MaximalElementCount": count,
		"MaximalExclusive":    bound,
		"MaximalInclusive":    bound,
		"MinimalExclusive":    bound,
		"MinimalInclusive":    bound,
		"FullyQualifiedIdentifier": text("required,oneof=FeatureIdentifier CommandIdentifier " +
			"CommandParameterIdentifier CommandResponseIdentifier IntermediateCommandResponseIdentifier " +
			"DefinedExecutionErrorIdentifier PropertyIdentifier TypeIdentifier MetadataIdentifier"),
	}

	attributes := map[string]string{
		"SiLA2Version":   "required,sila_version",
		"FeatureVersion": "required,sila_version",
		"Originator":     "required,max=255,sila_originator",
		"Category":       "required,max=255,sila_originator",
		"MaturityLevel":  "omitempty,oneof=Draft Verified Normative",
		"Locale":         "omitempty,sila_locale",
	}

	return &schema{models: models, attributes: attributes, validate: v}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}
