package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/silaforge/silac/internal/cli/ui"
	"github.com/silaforge/silac/internal/compiler/codegen"
	"github.com/silaforge/silac/internal/compiler/fdl"
	"github.com/silaforge/silac/internal/compiler/pipeline"
	"github.com/silaforge/silac/internal/compiler/protoc"
	"github.com/silaforge/silac/internal/utils"
)

var (
	compileOutput        string
	compileDescriptorSet bool
	compileNoProtoc      bool
)

// NewCompileCommand creates the compile command
func NewCompileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile FILE...",
		Short: "Compile feature definitions to protobuf IDL",
		Long: `Validate each feature definition, transform it into protobuf IDL and
compile the IDL with protoc together with the SiLA framework IDL.

For every feature, <FeatureIdentifier>.proto is written to the output
directory. With --descriptor-set the compiled FileDescriptorSet is written
next to it as <FeatureIdentifier>.pb.

With --no-protoc the IDL is compiled in process and protoc is not
needed. Directories are searched recursively for *.sila.xml files.`,
		Example: `  # Compile with protoc
  silac compile Greeter-v1_0.sila.xml

  # Write IDL and descriptor sets to gen/ without protoc
  silac compile --no-protoc --descriptor-set -o gen features/*.sila.xml`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCompile,
	}

	cmd.Flags().StringVarP(&compileOutput, "output", "o", ".", "Output directory")
	cmd.Flags().BoolVar(&compileDescriptorSet, "descriptor-set", false, "Also write the compiled FileDescriptorSet")
	cmd.Flags().BoolVar(&compileNoProtoc, "no-protoc", false, "Compile the IDL in process instead of running protoc")

	return cmd
}

func runCompile(cmd *cobra.Command, args []string) error {
	files, err := utils.ExpandFeatureArgs(args)
	if err != nil {
		return err
	}
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = env.logger.Sync() }()

	p, release := env.newPipeline(compileNoProtoc, nil)
	defer func() { _ = release(context.Background()) }()

	r := newReporter(cmd)
	for _, file := range files {
		doc, outputs, err := compileFile(cmd, p, file)
		if err != nil {
			r.failure(file, err, env.cfg.Compiler.Protoc)
			continue
		}
		r.success(file, doc, outputs...)
	}
	return r.finish()
}

// compileFile builds the binding first so that nothing is written for a
// feature that does not compile
func compileFile(cmd *cobra.Command, p *pipeline.Pipeline, file string) (*fdl.Document, []string, error) {
	text, err := os.ReadFile(file)
	if err != nil {
		return nil, nil, err
	}
	doc, err := p.Parse(text)
	if err != nil {
		return nil, nil, err
	}
	idl, err := p.Transform(doc)
	if err != nil {
		return nil, nil, err
	}

	var binding *protoc.Binding
	build := func() error {
		var err error
		binding, err = p.FeatureDefinitionToBinding(cmd.Context(), doc)
		return err
	}
	if compileNoProtoc || jsonOutput {
		err = build()
	} else {
		spinner := ui.NewSpinner(cmd.ErrOrStderr(), "Running protoc on "+file, 0, noColor)
		spinner.Start()
		err = build()
		spinner.Stop()
	}
	if err != nil {
		return nil, nil, err
	}

	if err := os.MkdirAll(compileOutput, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	protoPath := filepath.Join(compileOutput, codegen.FileName(doc.Feature))
	if err := os.WriteFile(protoPath, []byte(idl), 0644); err != nil {
		return nil, nil, fmt.Errorf("failed to write IDL: %w", err)
	}
	outputs := []string{protoPath}

	if compileDescriptorSet {
		data, err := binding.Marshal()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode descriptor set: %w", err)
		}
		setPath := filepath.Join(compileOutput, doc.Feature.Identifier+".pb")
		if err := os.WriteFile(setPath, data, 0644); err != nil {
			return nil, nil, fmt.Errorf("failed to write descriptor set: %w", err)
		}
		outputs = append(outputs, setPath)
	}
	return doc, outputs, nil
}
