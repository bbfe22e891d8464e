package protoc

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Binding holds the compiled descriptors of one IDL file in a private
// registry. The global protobuf registry is never touched, so any number of
// bindings, including ones for the same feature, can coexist.
type Binding struct {
	files *protoregistry.Files
	set   *descriptorpb.FileDescriptorSet
	file  protoreflect.FileDescriptor
}

// NewBinding loads a descriptor set and selects the file at path
func NewBinding(set *descriptorpb.FileDescriptorSet, path string) (*Binding, error) {
	files, err := protodesc.NewFiles(set)
	if err != nil {
		return nil, fmt.Errorf("failed to load descriptors: %w", err)
	}
	file, err := files.FindFileByPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoOutput, path)
	}
	return &Binding{files: files, set: set, file: file}, nil
}

// UnmarshalBinding restores a binding from the bytes returned by Marshal
func UnmarshalBinding(data []byte, path string) (*Binding, error) {
	set := &descriptorpb.FileDescriptorSet{}
	if err := proto.Unmarshal(data, set); err != nil {
		return nil, fmt.Errorf("failed to decode descriptor set: %w", err)
	}
	return NewBinding(set, path)
}

// Marshal serializes the descriptor set of the binding
func (b *Binding) Marshal() ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(b.set)
}

// File returns the descriptor of the compiled IDL file
func (b *Binding) File() protoreflect.FileDescriptor {
	return b.file
}

// Files returns the private registry holding the file and its imports
func (b *Binding) Files() *protoregistry.Files {
	return b.files
}

// DescriptorSet returns the descriptor set the binding was loaded from
func (b *Binding) DescriptorSet() *descriptorpb.FileDescriptorSet {
	return b.set
}

// Service returns the service declared by the IDL file
func (b *Binding) Service() (protoreflect.ServiceDescriptor, bool) {
	services := b.file.Services()
	if services.Len() == 0 {
		return nil, false
	}
	return services.Get(0), true
}

// Method returns a method of the service by name
func (b *Binding) Method(name string) (protoreflect.MethodDescriptor, error) {
	svc, ok := b.Service()
	if !ok {
		return nil, fmt.Errorf("%s declares no service", b.file.Path())
	}
	md := svc.Methods().ByName(protoreflect.Name(name))
	if md == nil {
		return nil, fmt.Errorf("service %s has no method %s", svc.FullName(), name)
	}
	return md, nil
}

// Message looks up a message descriptor. Names without a dot are resolved in
// the package of the IDL file; other names must be fully qualified.
func (b *Binding) Message(name string) (protoreflect.MessageDescriptor, error) {
	full := protoreflect.FullName(name)
	if !strings.Contains(name, ".") {
		full = b.file.Package().Append(protoreflect.Name(name))
	}
	desc, err := b.files.FindDescriptorByName(full)
	if err != nil {
		return nil, fmt.Errorf("message %s not found: %w", full, err)
	}
	md, ok := desc.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, fmt.Errorf("%s is not a message", full)
	}
	return md, nil
}

// NewMessage returns an empty dynamic message of the named type
func (b *Binding) NewMessage(name string) (*dynamicpb.Message, error) {
	md, err := b.Message(name)
	if err != nil {
		return nil, err
	}
	return dynamicpb.NewMessage(md), nil
}
