package protoc

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/bufbuild/protocompile"
	"github.com/bufbuild/protocompile/linker"
	"github.com/bufbuild/protocompile/reporter"
	"go.uber.org/zap"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/silaforge/silac/internal/sila/framework"
)

// InProcessCompiler compiles IDL files with a pure Go protobuf compiler. It
// resolves imports like protoc does: the IDL directory first, then the
// configured include paths, then the embedded framework IDL. It is safe for
// concurrent use.
type InProcessCompiler struct {
	includePaths []string
	logger       *zap.Logger
}

// NewInProcessCompiler creates a compiler that needs no protoc executable.
// Only IncludePaths and Logger of opts are used.
func NewInProcessCompiler(opts *Options) *InProcessCompiler {
	if opts == nil {
		opts = DefaultOptions()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InProcessCompiler{includePaths: opts.IncludePaths, logger: logger.Named("compile")}
}

// LoadBinding compiles idlPath together with the framework IDL
func (c *InProcessCompiler) LoadBinding(ctx context.Context, idlPath string) (*Binding, error) {
	absIDL, err := filepath.Abs(idlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve IDL path: %w", err)
	}
	name := filepath.Base(absIDL)

	var (
		mu    sync.Mutex
		lines []string
	)
	rep := reporter.NewReporter(
		func(err reporter.ErrorWithPos) error {
			mu.Lock()
			defer mu.Unlock()
			lines = append(lines, err.Error())
			return nil
		},
		func(err reporter.ErrorWithPos) {
			c.logger.Warn("compiler warning", zap.String("file", name), zap.String("line", err.Error()))
		},
	)

	importPaths := append([]string{filepath.Dir(absIDL)}, c.includePaths...)
	compiler := protocompile.Compiler{
		Resolver: protocompile.CompositeResolver{
			&protocompile.SourceResolver{ImportPaths: importPaths},
			&protocompile.SourceResolver{Accessor: framework.SourceAccessor},
		},
		Reporter: rep,
	}

	start := time.Now()
	files, err := compiler.Compile(ctx, name, framework.FrameworkProto)
	c.logger.Debug("compiled in process", zap.String("file", name), zap.Duration("duration", time.Since(start)))

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("compilation interrupted: %w", ctxErr)
	}
	if err != nil {
		if len(lines) > 0 || errors.Is(err, reporter.ErrInvalidSource) {
			return nil, &CompilationError{File: name, Lines: lines}
		}
		return nil, fmt.Errorf("failed to compile %s: %w", name, err)
	}

	return NewBinding(DescriptorSet(files), name)
}

// DescriptorSet converts compiled files and their imports into a descriptor
// set, dependencies first, as protoc --include_imports writes it
func DescriptorSet(files linker.Files) *descriptorpb.FileDescriptorSet {
	set := &descriptorpb.FileDescriptorSet{}
	seen := map[string]bool{}

	var add func(fd protoreflect.FileDescriptor)
	add = func(fd protoreflect.FileDescriptor) {
		if seen[fd.Path()] {
			return
		}
		seen[fd.Path()] = true
		imports := fd.Imports()
		for i := 0; i < imports.Len(); i++ {
			add(imports.Get(i).FileDescriptor)
		}
		set.File = append(set.File, protodesc.ToFileDescriptorProto(fd))
	}
	for _, f := range files {
		add(f)
	}
	return set
}
