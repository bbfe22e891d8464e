package server

import (
	"context"
	"fmt"
	"strings"

	grpcmd "google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/silaforge/silac/internal/compiler/ast"
	"github.com/silaforge/silac/internal/compiler/codegen"
	silaerrors "github.com/silaforge/silac/internal/sila/errors"
	"github.com/silaforge/silac/internal/sila/identifier"
)

type metadataKey struct{}

type metadataValues map[identifier.Key]interface{}

// MetadataValue returns the value of metadata id sent with the current call
func MetadataValue(ctx context.Context, id identifier.FullyQualifiedIdentifier) (interface{}, bool) {
	values, _ := ctx.Value(metadataKey{}).(metadataValues)
	v, ok := values[id.Key()]
	return v, ok
}

func withMetadata(ctx context.Context, values metadataValues) context.Context {
	if len(values) == 0 {
		return ctx
	}
	return context.WithValue(ctx, metadataKey{}, values)
}

func metadataFrom(ctx context.Context) metadataValues {
	values, _ := ctx.Value(metadataKey{}).(metadataValues)
	return values
}

// metadataDef is a metadata element offered by a registered feature
type metadataDef struct {
	feature  *feature
	meta     *ast.Metadata
	id       identifier.FullyQualifiedIdentifier
	message  protoreflect.MessageDescriptor
	affected map[identifier.Key]bool
}

func newMetadataDefs(f *feature) ([]*metadataDef, error) {
	defs := make([]*metadataDef, 0, len(f.doc.Feature.Metadata))
	for _, m := range f.doc.Feature.Metadata {
		id, err := f.id.Metadata(m.Identifier)
		if err != nil {
			return nil, err
		}
		md, err := f.binding.Message(codegen.MetadataMessage(m.Identifier))
		if err != nil {
			return nil, err
		}
		def := &metadataDef{feature: f, meta: m, id: id, message: md, affected: map[identifier.Key]bool{}}
		for _, a := range f.impl.AffectedByMetadata[m.Identifier] {
			def.affected[identifier.Key(strings.ToLower(a))] = true
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// affects reports whether calls to target require the metadata
func (d *metadataDef) affects(target identifier.FullyQualifiedIdentifier) bool {
	return d.affected[target.Key()] || d.affected[target.Feature().Key()]
}

func (d *metadataDef) decode(raw string) (interface{}, error) {
	msg := dynamicpb.NewMessage(d.message)
	if err := proto.Unmarshal([]byte(raw), msg); err != nil {
		return nil, err
	}
	elements := []*ast.Element{{Identifier: d.meta.Identifier, Type: d.meta.Type}}
	values, err := d.feature.converter.DecodeElements(elements, msg)
	if err != nil {
		return nil, err
	}
	if err := d.feature.converter.CheckElements(elements, values); err != nil {
		return nil, err
	}
	return values[d.meta.Identifier], nil
}

// readMetadata decodes the SiLA metadata sent with a call to target. Every
// metadata that affects target must be present.
func (s *Server) readMetadata(ctx context.Context, f *feature, target identifier.FullyQualifiedIdentifier) (context.Context, error) {
	if target.IsZero() {
		return ctx, nil
	}
	md, _ := grpcmd.FromIncomingContext(ctx)

	if f.impl.RejectMetadata {
		for key := range md {
			if isMetadataHeader(key) {
				return nil, silaerrors.NewFrameworkError(silaerrors.NoMetadataAllowed,
					fmt.Sprintf("calls to %s must not carry metadata", f.id))
			}
		}
		return ctx, nil
	}

	values := metadataValues{}
	for _, def := range s.metadata {
		raw := md.Get(def.id.MetadataHeader())
		if len(raw) == 0 {
			if def.affects(target) {
				return nil, silaerrors.NewFrameworkError(silaerrors.InvalidMetadata,
					fmt.Sprintf("missing metadata %s", def.id))
			}
			continue
		}
		v, err := def.decode(raw[0])
		if err != nil {
			return nil, silaerrors.NewFrameworkError(silaerrors.InvalidMetadata,
				fmt.Sprintf("invalid metadata %s: %v", def.id, err))
		}
		values[def.id.Key()] = v
	}
	return withMetadata(ctx, values), nil
}

func isMetadataHeader(key string) bool {
	return strings.HasPrefix(key, "sila-") && strings.HasSuffix(key, "-bin")
}
