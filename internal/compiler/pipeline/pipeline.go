// Package pipeline chains the compiler stages: a feature definition is parsed
// and validated, transformed into IDL, compiled by protoc and loaded as a
// Binding. Bindings are cached by a hash of the generated IDL.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/silaforge/silac/internal/compiler/cache"
	"github.com/silaforge/silac/internal/compiler/codegen"
	"github.com/silaforge/silac/internal/compiler/fdl"
	"github.com/silaforge/silac/internal/compiler/protoc"
	"github.com/silaforge/silac/internal/metric"
)

// Stage names recorded in metrics
const (
	StageParse     = "parse"
	StageTransform = "transform"
	StageProtoc    = "protoc"
)

// Compilation results recorded in metrics
const (
	ResultOK             = "ok"
	ResultSyntaxError    = "syntax_error"
	ResultSchemaError    = "schema_error"
	ResultTransformError = "transform_error"
	ResultCompileError   = "compile_error"
	ResultError          = "error"
)

// Options configures a Pipeline
type Options struct {
	// Loader compiles IDL files; required unless InProcess is set
	Loader protoc.BindingLoader
	// InProcess compiles the generated IDL with protoc.InProcessCompiler
	// when no Loader is given
	InProcess bool
	// IncludePaths are the include paths the loader was configured with.
	// They are part of the cache key.
	IncludePaths []string
	// Cache stores compiled bindings; nil disables caching
	Cache    cache.Cache
	CacheTTL time.Duration
	// TempDir is the parent of the directories the IDL is written to
	TempDir string
	Metrics *metric.Metrics
	Logger  *zap.Logger
}

// Pipeline runs feature definitions through all compiler stages. It is safe
// for concurrent use.
type Pipeline struct {
	loader       protoc.BindingLoader
	includePaths []string
	cache        cache.Cache
	cacheTTL     time.Duration
	tempDir      string
	metrics      *metric.Metrics
	logger       *zap.Logger
}

// New creates a pipeline
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := opts.Cache
	if c == nil {
		c = cache.NopCache{}
	}
	loader := opts.Loader
	if loader == nil && opts.InProcess {
		loader = protoc.NewInProcessCompiler(&protoc.Options{IncludePaths: opts.IncludePaths, Logger: logger})
	}
	return &Pipeline{
		loader:       loader,
		includePaths: opts.IncludePaths,
		cache:        c,
		cacheTTL:     opts.CacheTTL,
		tempDir:      opts.TempDir,
		metrics:      opts.Metrics,
		logger:       logger.Named("pipeline"),
	}
}

// Parse validates a feature definition and decodes it
func (p *Pipeline) Parse(text []byte) (*fdl.Document, error) {
	start := time.Now()
	doc, err := fdl.Parse(text)
	p.metrics.ObserveStage(StageParse, time.Since(start))
	if err != nil {
		p.metrics.ObserveCompilation(resultOf(err))
		return nil, err
	}
	return doc, nil
}

// Transform generates the IDL of a parsed feature definition
func (p *Pipeline) Transform(doc *fdl.Document) (string, error) {
	start := time.Now()
	idl, err := codegen.NewGenerator().GenerateProto(doc.Feature)
	p.metrics.ObserveStage(StageTransform, time.Since(start))
	return idl, err
}

// Compile parses a feature definition and loads its binding
func (p *Pipeline) Compile(ctx context.Context, text []byte) (*fdl.Document, *protoc.Binding, error) {
	doc, err := p.Parse(text)
	if err != nil {
		return nil, nil, err
	}
	binding, err := p.FeatureDefinitionToBinding(ctx, doc)
	if err != nil {
		return nil, nil, err
	}
	return doc, binding, nil
}

// FeatureDefinitionToBinding transforms doc into IDL, writes it as
// <FeatureIdentifier>.proto into a fresh directory and compiles it together
// with the framework IDL. The directory is removed before returning.
func (p *Pipeline) FeatureDefinitionToBinding(ctx context.Context, doc *fdl.Document) (*protoc.Binding, error) {
	if p.loader == nil {
		return nil, errors.New("pipeline has no binding loader")
	}
	start := time.Now()
	fqi := doc.Identifier().String()

	idl, err := p.Transform(doc)
	if err != nil {
		p.metrics.ObserveCompilation(ResultTransformError)
		return nil, err
	}

	fileName := codegen.FileName(doc.Feature)
	key := cache.Key(idl, true, p.includePaths...)
	if binding, ok := p.lookup(ctx, key, fileName); ok {
		p.metrics.ObserveCompilation(ResultOK)
		p.logger.Debug("binding served from cache", zap.String("feature", fqi))
		return binding, nil
	}

	binding, err := p.compile(ctx, fileName, idl)
	if err != nil {
		p.metrics.ObserveCompilation(resultOf(err))
		p.logger.Debug("compilation failed", zap.String("feature", fqi), zap.Error(err))
		return nil, err
	}
	p.store(ctx, key, binding)

	p.metrics.ObserveCompilation(ResultOK)
	p.logger.Info("compiled feature",
		zap.String("feature", fqi),
		zap.Duration("duration", time.Since(start)))
	return binding, nil
}

func (p *Pipeline) compile(ctx context.Context, fileName, idl string) (*protoc.Binding, error) {
	dir, err := os.MkdirTemp(p.tempDir, "silac-idl-")
	if err != nil {
		return nil, fmt.Errorf("failed to create IDL directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			p.logger.Warn("failed to remove IDL directory", zap.String("dir", dir), zap.Error(err))
		}
	}()

	path := filepath.Join(dir, fileName)
	if err := os.WriteFile(path, []byte(idl), 0644); err != nil {
		return nil, fmt.Errorf("failed to write IDL: %w", err)
	}

	start := time.Now()
	binding, err := p.loader.LoadBinding(ctx, path)
	p.metrics.ObserveStage(StageProtoc, time.Since(start))
	return binding, err
}

// lookup returns a cached binding. Cache failures are logged and treated as
// misses.
func (p *Pipeline) lookup(ctx context.Context, key, fileName string) (*protoc.Binding, bool) {
	data, err := p.cache.Get(ctx, key)
	if err != nil {
		if cache.IsCacheMiss(err) {
			p.metrics.ObserveCacheLookup("miss")
		} else {
			p.metrics.ObserveCacheLookup("error")
			p.logger.Warn("binding cache lookup failed", zap.Error(err))
		}
		return nil, false
	}

	binding, err := protoc.UnmarshalBinding(data, fileName)
	if err != nil {
		p.metrics.ObserveCacheLookup("error")
		p.logger.Warn("discarding unreadable cache entry", zap.String("key", key), zap.Error(err))
		if err := p.cache.Delete(ctx, key); err != nil {
			p.logger.Warn("failed to delete cache entry", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	p.metrics.ObserveCacheLookup("hit")
	return binding, true
}

func (p *Pipeline) store(ctx context.Context, key string, binding *protoc.Binding) {
	data, err := binding.Marshal()
	if err != nil {
		p.logger.Warn("failed to encode binding", zap.Error(err))
		return
	}
	if err := p.cache.Set(ctx, key, data, p.cacheTTL); err != nil {
		p.logger.Warn("failed to cache binding", zap.Error(err))
	}
}

func resultOf(err error) string {
	var (
		syntaxErr  *fdl.XMLSyntaxError
		schemaErr  *fdl.SchemaValidationError
		transform  *codegen.TransformError
		compileErr *protoc.CompilationError
	)
	switch {
	case errors.As(err, &syntaxErr):
		return ResultSyntaxError
	case errors.As(err, &schemaErr):
		return ResultSchemaError
	case errors.As(err, &transform):
		return ResultTransformError
	case errors.As(err, &compileErr), errors.Is(err, protoc.ErrNoOutput):
		return ResultCompileError
	default:
		return ResultError
	}
}
