// Package client calls SiLA 2 features over gRPC without generated code.
// Requests and responses are dynamic messages of a feature's Binding; values
// use the Go types of package value. Errors returned by the server are decoded
// into *errors.SiLAError and *errors.BinaryTransferError values.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	grpcmd "google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/silaforge/silac/internal/compiler/ast"
	"github.com/silaforge/silac/internal/compiler/codegen"
	"github.com/silaforge/silac/internal/compiler/fdl"
	"github.com/silaforge/silac/internal/compiler/protoc"
	silaerrors "github.com/silaforge/silac/internal/sila/errors"
	"github.com/silaforge/silac/internal/sila/identifier"
	"github.com/silaforge/silac/internal/sila/value"
)

// Values holds element values keyed by element identifier
type Values = map[string]interface{}

// Client calls the commands and properties of one feature
type Client struct {
	conn      grpc.ClientConnInterface
	feature   *ast.Feature
	id        identifier.FullyQualifiedIdentifier
	binding   *protoc.Binding
	service   string
	converter *value.Converter
}

// New creates a client for the feature doc served on conn
func New(conn grpc.ClientConnInterface, doc *fdl.Document, binding *protoc.Binding) (*Client, error) {
	svc, ok := binding.Service()
	if !ok {
		return nil, fmt.Errorf("binding of %s declares no service", doc.Feature.Identifier)
	}
	return &Client{
		conn:      conn,
		feature:   doc.Feature,
		id:        doc.Identifier(),
		binding:   binding,
		service:   string(svc.FullName()),
		converter: value.NewConverter(doc.Feature),
	}, nil
}

// Feature returns the identifier of the called feature
func (c *Client) Feature() identifier.FullyQualifiedIdentifier {
	return c.id
}

// WithMetadata returns a context that sends the value of metadata id of this
// feature with every call made with it
func (c *Client) WithMetadata(ctx context.Context, id string, v interface{}) (context.Context, error) {
	m, ok := c.feature.MetadataByID(id)
	if !ok {
		return nil, fmt.Errorf("feature %s has no metadata %s", c.id, id)
	}
	fqi, err := c.id.Metadata(m.Identifier)
	if err != nil {
		return nil, err
	}
	msg, err := c.binding.NewMessage(codegen.MetadataMessage(m.Identifier))
	if err != nil {
		return nil, err
	}
	elements := []*ast.Element{{Identifier: m.Identifier, Type: m.Type}}
	if err := c.converter.EncodeElements(elements, Values{m.Identifier: v}, msg); err != nil {
		return nil, fmt.Errorf("failed to encode metadata %s: %w", id, err)
	}
	data, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata %s: %w", id, err)
	}
	return grpcmd.AppendToOutgoingContext(ctx, fqi.MetadataHeader(), string(data)), nil
}

// Call runs an unobservable command
func (c *Client) Call(ctx context.Context, command string, params Values) (Values, error) {
	cmd, err := c.command(command, false)
	if err != nil {
		return nil, err
	}
	in, err := c.encode(codegen.ParametersMessage(cmd.Identifier), cmd.Parameters, params)
	if err != nil {
		return nil, err
	}
	out, err := c.invoke(ctx, cmd.Identifier, in)
	if err != nil {
		return nil, err
	}
	return c.converter.DecodeElements(cmd.Responses, out)
}

// Get reads an unobservable property
func (c *Client) Get(ctx context.Context, property string) (interface{}, error) {
	p, ok := c.feature.Property(property)
	if !ok || p.Observable {
		return nil, fmt.Errorf("feature %s has no unobservable property %s", c.id, property)
	}
	method := codegen.GetMethod(p.Identifier)
	in, err := c.binding.NewMessage(codegen.ParametersMessage(method))
	if err != nil {
		return nil, err
	}
	out, err := c.invoke(ctx, method, in)
	if err != nil {
		return nil, err
	}
	return c.propertyValue(p, out)
}

// Subscribe streams the values of an observable property to fn until ctx is
// done, the server ends the stream or fn returns an error
func (c *Client) Subscribe(ctx context.Context, property string, fn func(interface{}) error) error {
	p, ok := c.feature.Property(property)
	if !ok || !p.Observable {
		return fmt.Errorf("feature %s has no observable property %s", c.id, property)
	}
	method := codegen.SubscribeMethod(p.Identifier)
	in, err := c.binding.NewMessage(codegen.ParametersMessage(method))
	if err != nil {
		return err
	}
	return c.stream(ctx, method, in, func(out *dynamicpb.Message) error {
		v, err := c.propertyValue(p, out)
		if err != nil {
			return err
		}
		return fn(v)
	})
}

// AffectedByMetadata lists the identifiers of the features, commands and
// properties that require metadata id
func (c *Client) AffectedByMetadata(ctx context.Context, id string) ([]string, error) {
	m, ok := c.feature.MetadataByID(id)
	if !ok {
		return nil, fmt.Errorf("feature %s has no metadata %s", c.id, id)
	}
	method := codegen.AffectedByMetadataMethod(m.Identifier)
	in, err := c.binding.NewMessage(codegen.ParametersMessage(method))
	if err != nil {
		return nil, err
	}
	out, err := c.invoke(ctx, method, in)
	if err != nil {
		return nil, err
	}
	elements := []*ast.Element{{
		Identifier: codegen.AffectedCallsField,
		Type:       &ast.ListType{Element: &ast.BasicType{Kind: ast.BasicString}},
	}}
	values, err := c.converter.DecodeElements(elements, out)
	if err != nil {
		return nil, err
	}
	items := values[codegen.AffectedCallsField].([]interface{})
	affected := make([]string, len(items))
	for i, item := range items {
		affected[i] = item.(string)
	}
	return affected, nil
}

func (c *Client) command(id string, observable bool) (*ast.Command, error) {
	cmd, ok := c.feature.Command(id)
	if !ok || cmd.Observable != observable {
		kind := "unobservable"
		if observable {
			kind = "observable"
		}
		return nil, fmt.Errorf("feature %s has no %s command %s", c.id, kind, id)
	}
	return cmd, nil
}

func (c *Client) propertyValue(p *ast.Property, out protoreflect.Message) (interface{}, error) {
	values, err := c.converter.DecodeElements([]*ast.Element{{Identifier: p.Identifier, Type: p.Type}}, out)
	if err != nil {
		return nil, err
	}
	return values[p.Identifier], nil
}

func (c *Client) encode(name string, elements []*ast.Element, values Values) (*dynamicpb.Message, error) {
	msg, err := c.binding.NewMessage(name)
	if err != nil {
		return nil, err
	}
	if err := c.converter.EncodeElements(elements, values, msg); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return msg, nil
}

func (c *Client) fullMethod(name string) (protoreflect.MethodDescriptor, string, error) {
	md, err := c.binding.Method(name)
	if err != nil {
		return nil, "", err
	}
	return md, "/" + c.service + "/" + name, nil
}

// invoke runs a unary call. Failures are decoded into SiLA errors.
func (c *Client) invoke(ctx context.Context, method string, in proto.Message) (*dynamicpb.Message, error) {
	md, full, err := c.fullMethod(method)
	if err != nil {
		return nil, err
	}
	out := dynamicpb.NewMessage(md.Output())
	if err := c.conn.Invoke(ctx, full, in, out); err != nil {
		return nil, silaerrors.FromStatus(err, silaerrors.FeatureCall)
	}
	return out, nil
}

// stream runs a server streaming call and passes every message to fn
func (c *Client) stream(ctx context.Context, method string, in proto.Message, fn func(*dynamicpb.Message) error) error {
	md, full, err := c.fullMethod(method)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	desc := &grpc.StreamDesc{StreamName: method, ServerStreams: true}
	cs, err := c.conn.NewStream(ctx, desc, full)
	if err != nil {
		return silaerrors.FromStatus(err, silaerrors.FeatureCall)
	}
	// io.EOF from SendMsg means the server already ended the stream; its
	// status is returned by RecvMsg
	if err := cs.SendMsg(in); err != nil && !errors.Is(err, io.EOF) {
		return silaerrors.FromStatus(err, silaerrors.FeatureCall)
	}
	if err := cs.CloseSend(); err != nil {
		return silaerrors.FromStatus(err, silaerrors.FeatureCall)
	}
	for {
		out := dynamicpb.NewMessage(md.Output())
		if err := cs.RecvMsg(out); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return silaerrors.FromStatus(err, silaerrors.FeatureCall)
		}
		if err := fn(out); err != nil {
			return err
		}
	}
}
