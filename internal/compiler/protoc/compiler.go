// Package protoc runs the external protobuf compiler on generated feature IDL
// and loads the result into an in-memory Binding. InProcessCompiler loads the
// same Binding without protoc.
//
// Every invocation works inside its own temporary directory holding the shared
// framework IDL and the descriptor set output. The directory is removed on
// every exit path, including failures, cancellation and panics.
package protoc

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/silaforge/silac/internal/sila/framework"
)

// ErrNoOutput is returned when protoc succeeds but produces no descriptor for
// the requested IDL file
var ErrNoOutput = errors.New("protoc produced no descriptor for the requested IDL")

// CompilationError is returned when protoc exits with a nonzero status or
// the in-process compiler rejects the IDL
type CompilationError struct {
	File string
	// ExitCode is the protoc exit status; zero for in-process compilation
	ExitCode int
	// Lines holds the diagnostics as file:line:column: message, warnings excluded
	Lines []string
}

// Message returns the diagnostics joined by newlines
func (e *CompilationError) Message() string {
	return strings.Join(e.Lines, "\n")
}

func (e *CompilationError) Error() string {
	msg := e.Message()
	if msg == "" {
		msg = "no diagnostics"
	}
	if e.ExitCode == 0 {
		return fmt.Sprintf("failed to compile %s: %s", e.File, msg)
	}
	return fmt.Sprintf("protoc failed to compile %s (exit code %d): %s", e.File, e.ExitCode, msg)
}

// RunError is returned when protoc cannot be started, e.g. because the
// executable is missing
type RunError struct {
	Protoc string
	Err    error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("failed to run %s: %v", e.Protoc, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Options configures the compiler
type Options struct {
	// Protoc is the protoc executable name or path
	Protoc string
	// IncludePaths are passed to every invocation after the IDL directory
	// and the framework include directory
	IncludePaths []string
	// Timeout bounds a single invocation; zero disables it
	Timeout time.Duration
	// TempDir is the parent of the scoped working directories; empty means
	// the system default
	TempDir string
	Logger  *zap.Logger
}

// DefaultOptions returns sensible defaults
func DefaultOptions() *Options {
	return &Options{
		Protoc:  "protoc",
		Timeout: 60 * time.Second,
	}
}

// BindingLoader loads the binding of an IDL file
type BindingLoader interface {
	LoadBinding(ctx context.Context, idlPath string) (*Binding, error)
}

// Compiler invokes protoc. It holds no per-call state and is safe for
// concurrent use.
type Compiler struct {
	options *Options
	logger  *zap.Logger
}

// NewCompiler creates a compiler
func NewCompiler(opts *Options) *Compiler {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Protoc == "" {
		opts.Protoc = "protoc"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compiler{options: opts, logger: logger.Named("protoc")}
}

// LoadBinding compiles idlPath together with the framework IDL
func (c *Compiler) LoadBinding(ctx context.Context, idlPath string) (*Binding, error) {
	return c.Run(ctx, idlPath, nil, true)
}

// Run compiles idlPath and loads its descriptors into a private registry.
// When withFramework is set, SiLAFramework.proto is compiled as an input too.
func (c *Compiler) Run(ctx context.Context, idlPath string, includePaths []string, withFramework bool) (*Binding, error) {
	absIDL, err := filepath.Abs(idlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve IDL path: %w", err)
	}

	var binding *Binding
	err = c.withTempDir(func(dir string) error {
		out := filepath.Join(dir, "descriptor_set.pb")
		args := []string{"--include_imports", "--descriptor_set_out=" + out}

		shared, err := c.prepare(dir)
		if err != nil {
			return err
		}
		args = append(args, c.includeArgs(absIDL, shared, includePaths)...)
		args = append(args, absIDL)
		if withFramework {
			args = append(args, framework.FrameworkProto)
		}

		if err := c.invoke(ctx, absIDL, args); err != nil {
			return err
		}

		data, err := os.ReadFile(out)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%w: %s", ErrNoOutput, filepath.Base(absIDL))
			}
			return fmt.Errorf("failed to read descriptor set: %w", err)
		}
		set := &descriptorpb.FileDescriptorSet{}
		if err := proto.Unmarshal(data, set); err != nil {
			return fmt.Errorf("failed to decode descriptor set: %w", err)
		}

		binding, err = NewBinding(set, filepath.Base(absIDL))
		return err
	})
	if err != nil {
		return nil, err
	}
	return binding, nil
}

// Generate runs protoc with code generator flags such as --go_out=DIR. The
// framework include directory is available to the IDL.
func (c *Compiler) Generate(ctx context.Context, idlPath string, includePaths []string, generatorArgs []string, withFramework bool) error {
	absIDL, err := filepath.Abs(idlPath)
	if err != nil {
		return fmt.Errorf("failed to resolve IDL path: %w", err)
	}

	return c.withTempDir(func(dir string) error {
		shared, err := c.prepare(dir)
		if err != nil {
			return err
		}
		args := append([]string{}, generatorArgs...)
		args = append(args, c.includeArgs(absIDL, shared, includePaths)...)
		args = append(args, absIDL)
		if withFramework {
			args = append(args, framework.FrameworkProto)
		}
		return c.invoke(ctx, absIDL, args)
	})
}

// withTempDir runs fn inside a fresh directory that is removed afterwards,
// also when fn panics
func (c *Compiler) withTempDir(fn func(dir string) error) error {
	dir, err := os.MkdirTemp(c.options.TempDir, "silac-protoc-")
	if err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			c.logger.Warn("failed to remove working directory", zap.String("dir", dir), zap.Error(err))
		}
	}()
	return fn(dir)
}

// prepare writes the framework IDL into the working directory
func (c *Compiler) prepare(dir string) (string, error) {
	shared := filepath.Join(dir, "include")
	if err := framework.WriteProtos(shared); err != nil {
		return "", fmt.Errorf("failed to write framework IDL: %w", err)
	}
	return shared, nil
}

func (c *Compiler) includeArgs(absIDL, shared string, extra []string) []string {
	args := []string{"-I", filepath.Dir(absIDL), "-I", shared}
	for _, inc := range c.options.IncludePaths {
		args = append(args, "-I", inc)
	}
	for _, inc := range extra {
		args = append(args, "-I", inc)
	}
	return args
}

// invoke runs protoc and turns a nonzero exit into a *CompilationError
func (c *Compiler) invoke(ctx context.Context, idl string, args []string) error {
	if c.options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.options.Timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.options.Protoc, args...)
	cmd.Stderr = &stderr
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	runErr := cmd.Run()
	lines := c.scanDiagnostics(idl, stderr.Bytes())

	c.logger.Debug("protoc finished",
		zap.String("file", filepath.Base(idl)),
		zap.Duration("duration", time.Since(start)),
		zap.Strings("args", args))

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("protoc interrupted: %w", ctxErr)
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return &CompilationError{File: filepath.Base(idl), ExitCode: exitErr.ExitCode(), Lines: lines}
		}
		return &RunError{Protoc: c.options.Protoc, Err: runErr}
	}
	for _, line := range lines {
		c.logger.Info("protoc output", zap.String("file", filepath.Base(idl)), zap.String("line", line))
	}
	return nil
}

// scanDiagnostics logs warning lines and returns the remaining non-empty
// lines. A line is a warning when it contains "warn" in any letter case;
// protoc has no structured diagnostic output to classify lines otherwise.
func (c *Compiler) scanDiagnostics(idl string, stderr []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(stderr))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.Contains(strings.ToLower(line), "warn") {
			c.logger.Warn("protoc warning", zap.String("file", filepath.Base(idl)), zap.String("line", line))
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
