package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/silaforge/silac/internal/compiler/codegen"
	"github.com/silaforge/silac/internal/compiler/fdl"
	"github.com/silaforge/silac/internal/compiler/protoc"
	"github.com/silaforge/silac/internal/utils"
)

var generateProtoDir string

// NewGenerateCommand creates the generate command
func NewGenerateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate FILE... -- PROTOC_FLAGS...",
		Short: "Generate code for feature definitions with protoc plugins",
		Long: `Transform feature definitions into protobuf IDL and run protoc with the
given code generator flags, e.g. --go_out=DIR or --python_out=DIR. The
SiLA framework IDL is generated along with the features.

Everything after -- is passed to protoc unchanged. The IDL is written to a
temporary directory unless --proto-dir is set.`,
		Example: `  # Go messages and gRPC stubs
  silac generate Greeter-v1_0.sila.xml -- --go_out=gen --go-grpc_out=gen

  # Keep the generated IDL
  silac generate --proto-dir proto Greeter-v1_0.sila.xml -- --python_out=gen`,
		RunE: runGenerate,
	}

	cmd.Flags().StringVar(&generateProtoDir, "proto-dir", "", "Directory for the generated IDL (default: temporary)")

	return cmd
}

func splitGeneratorArgs(cmd *cobra.Command, args []string) (files, generatorArgs []string, err error) {
	dash := cmd.ArgsLenAtDash()
	if dash < 0 {
		return nil, nil, errors.New("missing protoc flags; pass them after --, e.g. silac generate FILE -- --go_out=gen")
	}
	files, generatorArgs = args[:dash], args[dash:]
	if len(files) == 0 {
		return nil, nil, errors.New("no feature definition given")
	}
	if len(generatorArgs) == 0 {
		return nil, nil, errors.New("no protoc flags given after --")
	}
	return files, generatorArgs, nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	files, generatorArgs, err := splitGeneratorArgs(cmd, args)
	if err != nil {
		return err
	}
	if files, err = utils.ExpandFeatureArgs(files); err != nil {
		return err
	}
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = env.logger.Sync() }()

	dir := generateProtoDir
	if dir == "" {
		dir, err = os.MkdirTemp("", "silac-generate-")
		if err != nil {
			return fmt.Errorf("failed to create IDL directory: %w", err)
		}
		defer os.RemoveAll(dir)
	} else if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create IDL directory: %w", err)
	}

	protocOpts := env.cfg.ProtocOptions()
	protocOpts.Logger = env.logger
	compiler := protoc.NewCompiler(protocOpts)

	r := newReporter(cmd)
	frameworkDone := false
	for _, file := range files {
		doc, err := generateFile(cmd, compiler, dir, file, generatorArgs, !frameworkDone)
		if err != nil {
			r.failure(file, err, protocOpts.Protoc)
			continue
		}
		frameworkDone = true
		r.success(file, doc)
	}
	return r.finish()
}

// generateFile writes the IDL of file into dir and runs the generators on
// it, together with the framework IDL when withFramework is set
func generateFile(cmd *cobra.Command, compiler *protoc.Compiler, dir, file string, generatorArgs []string, withFramework bool) (*fdl.Document, error) {
	doc, err := fdl.ParseFile(file)
	if err != nil {
		return nil, err
	}
	idl, err := codegen.NewGenerator().GenerateProto(doc.Feature)
	if err != nil {
		return nil, err
	}
	idlPath := filepath.Join(dir, codegen.FileName(doc.Feature))
	if err := os.WriteFile(idlPath, []byte(idl), 0644); err != nil {
		return nil, fmt.Errorf("failed to write IDL: %w", err)
	}
	if err := compiler.Generate(cmd.Context(), idlPath, nil, generatorArgs, withFramework); err != nil {
		return nil, err
	}
	return doc, nil
}
