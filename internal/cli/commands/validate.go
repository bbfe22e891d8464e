package commands

import (
	"github.com/spf13/cobra"

	"github.com/silaforge/silac/internal/compiler/codegen"
	"github.com/silaforge/silac/internal/compiler/fdl"
	"github.com/silaforge/silac/internal/utils"
)

// NewValidateCommand creates the validate command
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Validate feature definitions",
		Long: `Check SiLA 2 feature definitions against the FDL schema and the
identifier, reference and data type rules, then make sure each one
transforms into protobuf IDL. protoc is not run.

Directories are searched recursively for *.sila.xml files.`,
		Example: `  # Validate one feature definition
  silac validate Greeter-v1_0.sila.xml

  # Validate several and print diagnostics as JSON
  silac validate --json features/*.sila.xml`,
		Args: cobra.MinimumNArgs(1),
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	files, err := utils.ExpandFeatureArgs(args)
	if err != nil {
		return err
	}
	r := newReporter(cmd)
	for _, file := range files {
		doc, err := fdl.ParseFile(file)
		if err == nil {
			_, err = codegen.NewGenerator().GenerateProto(doc.Feature)
		}
		if err != nil {
			r.failure(file, err, "")
			continue
		}
		r.success(file, doc)
	}
	return r.finish()
}
