package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/silaforge/silac/internal/compiler/ast"
	"github.com/silaforge/silac/internal/compiler/fdl"
	"github.com/silaforge/silac/internal/compiler/protoc"
	silaerrors "github.com/silaforge/silac/internal/sila/errors"
	"github.com/silaforge/silac/internal/sila/identifier"
	"github.com/silaforge/silac/internal/sila/value"
)

// Values holds element values keyed by element identifier. The Go type of
// each value follows package value.
type Values = map[string]interface{}

// CommandHandler runs an unobservable command
type CommandHandler func(ctx context.Context, params Values) (Values, error)

// ObservableCommandHandler runs one execution of an observable command. The
// context is cancelled when the server stops.
type ObservableCommandHandler func(ctx context.Context, params Values, exec *Execution) (Values, error)

// PropertyHandler returns the value of an unobservable property
type PropertyHandler func(ctx context.Context) (interface{}, error)

// SubscriptionHandler streams the values of an observable property until ctx
// is done or it returns
type SubscriptionHandler func(ctx context.Context, send func(interface{}) error) error

// FeatureImplementation holds the handlers of one feature, keyed by the
// identifier of the command, property or metadata they serve. Elements without
// a handler answer with an undefined execution error.
type FeatureImplementation struct {
	Commands             map[string]CommandHandler
	ObservableCommands   map[string]ObservableCommandHandler
	Properties           map[string]PropertyHandler
	ObservableProperties map[string]SubscriptionHandler

	// AffectedByMetadata lists, per metadata identifier, the fully qualified
	// identifiers of the features, commands and properties that require it
	AffectedByMetadata map[string][]string

	// RejectMetadata fails every call that carries SiLA metadata
	RejectMetadata bool
}

// feature is a registered feature with everything needed to serve it
type feature struct {
	doc       *fdl.Document
	binding   *protoc.Binding
	impl      *FeatureImplementation
	id        identifier.FullyQualifiedIdentifier
	converter *value.Converter
	defined   map[identifier.Key]bool
}

func newFeature(doc *fdl.Document, binding *protoc.Binding, impl *FeatureImplementation) (*feature, error) {
	if impl == nil {
		impl = &FeatureImplementation{}
	}
	f := &feature{
		doc:       doc,
		binding:   binding,
		impl:      impl,
		id:        doc.Identifier(),
		converter: value.NewConverter(doc.Feature),
		defined:   make(map[identifier.Key]bool, len(doc.Feature.Errors)),
	}
	if f.id.IsZero() {
		return nil, fmt.Errorf("feature %s has no valid identifier", doc.Feature.Identifier)
	}
	for _, e := range doc.Feature.Errors {
		id, err := f.id.DefinedExecutionError(e.Identifier)
		if err != nil {
			return nil, err
		}
		f.defined[id.Key()] = true
	}
	if err := f.checkImplementation(); err != nil {
		return nil, fmt.Errorf("invalid implementation of %s: %w", f.id, err)
	}
	return f, nil
}

// IsDefined implements errors.DefinedErrorSet
func (f *feature) IsDefined(id identifier.FullyQualifiedIdentifier) bool {
	return f.defined[id.Key()]
}

var _ silaerrors.DefinedErrorSet = (*feature)(nil)

func (f *feature) checkImplementation() error {
	def := f.doc.Feature
	for id := range f.impl.Commands {
		if c, ok := def.Command(id); !ok || c.Observable {
			return fmt.Errorf("no unobservable command %s", id)
		}
	}
	for id := range f.impl.ObservableCommands {
		if c, ok := def.Command(id); !ok || !c.Observable {
			return fmt.Errorf("no observable command %s", id)
		}
	}
	for id := range f.impl.Properties {
		if p, ok := def.Property(id); !ok || p.Observable {
			return fmt.Errorf("no unobservable property %s", id)
		}
	}
	for id := range f.impl.ObservableProperties {
		if p, ok := def.Property(id); !ok || !p.Observable {
			return fmt.Errorf("no observable property %s", id)
		}
	}
	for id, affected := range f.impl.AffectedByMetadata {
		if _, ok := def.MetadataByID(id); !ok {
			return fmt.Errorf("no metadata %s", id)
		}
		for _, a := range affected {
			if _, err := identifier.Parse(a); err != nil {
				return fmt.Errorf("metadata %s: %w", id, err)
			}
		}
	}
	return nil
}

// commandID returns the identifier of a command of the feature
func (f *feature) commandID(c *ast.Command) identifier.FullyQualifiedIdentifier {
	return identifier.Must(f.id.Command(c.Identifier))
}

func (f *feature) propertyID(p *ast.Property) identifier.FullyQualifiedIdentifier {
	return identifier.Must(f.id.Property(p.Identifier))
}

// parameters decodes and checks the parameters of a command call
func (f *feature) parameters(c *ast.Command, req protoreflect.Message) (Values, error) {
	params, err := f.converter.DecodeElements(c.Parameters, req)
	if err == nil {
		err = f.converter.CheckElements(c.Parameters, params)
	}
	if err != nil {
		return nil, f.validationError(f.commandID(c), err)
	}
	return params, nil
}

// validationError names the parameter a conversion or constraint error
// occurred in
func (f *feature) validationError(command identifier.FullyQualifiedIdentifier, err error) error {
	var bte *silaerrors.BinaryTransferError
	if errors.As(err, &bte) {
		return bte
	}

	var path string
	var (
		missing    *value.MissingValueError
		typeErr    *value.TypeError
		constraint *value.ConstraintError
	)
	switch {
	case errors.As(err, &missing):
		path = missing.Path
	case errors.As(err, &typeErr):
		path = typeErr.Path
	case errors.As(err, &constraint):
		path = constraint.Path
	}
	name := path
	if i := strings.IndexAny(name, ".["); i >= 0 {
		name = name[:i]
	}

	param, perr := command.Parameter(name)
	if perr != nil {
		return silaerrors.NewUndefinedExecutionError(err.Error())
	}
	return silaerrors.NewValidationError(param, err.Error())
}

// message encodes values into a new message of the named type. Every
// element that is not a list must have a value.
func (f *feature) message(name string, elements []*ast.Element, values Values) (proto.Message, error) {
	msg, err := f.binding.NewMessage(name)
	if err != nil {
		return nil, err
	}
	for _, e := range elements {
		if _, isList := ast.Underlying(e.Type).(*ast.ListType); isList {
			continue
		}
		if v, ok := values[e.Identifier]; !ok || v == nil {
			return nil, silaerrors.NewUndefinedExecutionError(fmt.Sprintf("%s: missing value for %s", name, e.Identifier))
		}
	}
	if err := f.converter.EncodeElements(elements, values, msg); err != nil {
		return nil, silaerrors.NewUndefinedExecutionError(fmt.Sprintf("%s: %v", name, err))
	}
	return msg, nil
}

func notImplemented(target identifier.FullyQualifiedIdentifier) error {
	return silaerrors.NewUndefinedExecutionError(fmt.Sprintf("%s is not implemented", target))
}
