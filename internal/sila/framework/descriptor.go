package framework

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/bufbuild/protocompile"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// SourceAccessor opens the shared IDL files by import path. It plugs into a
// protocompile.SourceResolver.
func SourceAccessor(path string) (io.ReadCloser, error) {
	return Protos().Open(path)
}

var frameworkFile = sync.OnceValues(func() (protoreflect.FileDescriptor, error) {
	compiler := protocompile.Compiler{
		Resolver: &protocompile.SourceResolver{Accessor: SourceAccessor},
	}
	files, err := compiler.Compile(context.Background(), FrameworkProto)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", FrameworkProto, err)
	}
	return files[0], nil
})

// File returns the resolved descriptor of SiLAFramework.proto, compiled from
// the embedded IDL
func File() (protoreflect.FileDescriptor, error) {
	return frameworkFile()
}

// Message returns the descriptor of a framework message such as SiLAError
func Message(name string) (protoreflect.MessageDescriptor, error) {
	fd, err := File()
	if err != nil {
		return nil, err
	}
	md := fd.Messages().ByName(protoreflect.Name(name))
	if md == nil {
		return nil, fmt.Errorf("framework message %s not found", name)
	}
	return md, nil
}
