package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/silaforge/silac/internal/cli/ui"
	compilererrors "github.com/silaforge/silac/internal/compiler/errors"
	"github.com/silaforge/silac/internal/compiler/fdl"
	"github.com/silaforge/silac/internal/compiler/pipeline"
	"github.com/silaforge/silac/internal/compiler/protoc"
	"github.com/silaforge/silac/internal/metric"
)

// newPipeline builds the compiler pipeline. In-process pipelines compile
// without protoc and skip the cache. The returned function
// releases the cache connection.
func (e *environment) newPipeline(inProcess bool, metrics *metric.Metrics) (*pipeline.Pipeline, func(context.Context) error) {
	opts := pipeline.Options{
		InProcess:    inProcess,
		IncludePaths: e.cfg.Compiler.IncludePaths,
		CacheTTL:     e.cfg.Cache.TTL,
		Metrics:      metrics,
		Logger:       e.logger,
	}
	release := func(context.Context) error { return nil }
	if !inProcess {
		protocOpts := e.cfg.ProtocOptions()
		protocOpts.Logger = e.logger
		opts.Loader = protoc.NewCompiler(protocOpts)

		c, err := e.cfg.CacheBackend()
		if err != nil {
			e.logger.Warn("binding cache unavailable, compiling without it", zap.Error(err))
		} else {
			opts.Cache = c
			if closer, ok := c.(io.Closer); ok {
				release = func(context.Context) error { return closer.Close() }
			}
		}
	}
	return pipeline.New(opts), release
}

// fileReport is the outcome for one feature definition file
type fileReport struct {
	File    string   `json:"file"`
	Feature string   `json:"feature,omitempty"`
	Outputs []string `json:"outputs,omitempty"`
	OK      bool     `json:"ok"`
}

// report is printed in --json mode
type report struct {
	compilererrors.JSONOutput
	Files []fileReport `json:"files"`
}

// reporter collects per-file outcomes. Human readable lines are printed as
// they happen; JSON is printed once by finish.
type reporter struct {
	cmd         *cobra.Command
	files       []fileReport
	diagnostics compilererrors.ErrorList
	failed      int
}

func newReporter(cmd *cobra.Command) *reporter {
	return &reporter{cmd: cmd, files: []fileReport{}}
}

func (r *reporter) success(file string, doc *fdl.Document, outputs ...string) {
	r.files = append(r.files, fileReport{File: file, Feature: doc.Identifier().String(), Outputs: outputs, OK: true})
	if jsonOutput {
		return
	}
	ui.WriteSuccess(r.cmd.OutOrStdout(), fmt.Sprintf("%s: %s", file, doc.Identifier()), noColor)
	for _, out := range outputs {
		fmt.Fprintf(r.cmd.OutOrStdout(), "  wrote %s\n", out)
	}
}

func (r *reporter) failure(file string, err error, protocName string) {
	list := compilererrors.FromError(err).WithFile(file)
	r.files = append(r.files, fileReport{File: file})
	r.diagnostics = append(r.diagnostics, list...)
	r.failed++
	if jsonOutput {
		return
	}
	w := r.cmd.ErrOrStderr()
	for _, e := range list {
		if e.Code == compilererrors.ErrProtocUnavailable {
			fmt.Fprint(w, ui.ProtocUnavailable(protocName, noColor))
			return
		}
	}
	fmt.Fprint(w, ui.ValidationFailed(file, list, noColor))
}

// finish prints the JSON report if requested and fails when any file did
func (r *reporter) finish() error {
	if jsonOutput {
		if err := printJSON(r.cmd.OutOrStdout(), report{
			JSONOutput: compilererrors.NewJSONOutput(r.diagnostics),
			Files:      r.files,
		}); err != nil {
			return err
		}
	}
	if r.failed > 0 {
		if !jsonOutput {
			fmt.Fprintf(r.cmd.ErrOrStderr(), "%d of %d feature definition(s) failed\n", r.failed, len(r.files))
		}
		return errReported
	}
	return nil
}
