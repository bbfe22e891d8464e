package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/AlecAivazis/survey/v2"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/silaforge/silac/internal/cli/ui"
	"github.com/silaforge/silac/internal/compiler/fdl"
	ustrings "github.com/silaforge/silac/internal/util/strings"
)

var (
	newOriginator  string
	newCategory    string
	newVersion     string
	newDescription string
	newOutput      string
	newForce       bool
)

// featureSkeleton is the feature definition written by silac new. Text
// values are escaped with the html function, which also escapes XML.
var featureSkeleton = template.Must(template.New("feature").Parse(`<?xml version="1.0" encoding="utf-8" ?>
<Feature SiLA2Version="1.0" FeatureVersion="{{.Version}}" MaturityLevel="Draft" Originator="{{.Originator}}" Category="{{.Category}}"
         xmlns="http://www.sila-standard.org"
         xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"
         xsi:schemaLocation="http://www.sila-standard.org https://gitlab.com/SiLA2/sila_base/raw/master/schema/FeatureDefinition.xsd">
  <Identifier>{{.Identifier}}</Identifier>
  <DisplayName>{{.DisplayName | html}}</DisplayName>
  <Description>{{.Description | html}}</Description>
  <Command>
    <Identifier>Echo</Identifier>
    <DisplayName>Echo</DisplayName>
    <Description>Returns the given message unchanged.</Description>
    <Observable>No</Observable>
    <Parameter>
      <Identifier>Message</Identifier>
      <DisplayName>Message</DisplayName>
      <Description>The message to return.</Description>
      <DataType>
        <Basic>String</Basic>
      </DataType>
    </Parameter>
    <Response>
      <Identifier>Message</Identifier>
      <DisplayName>Message</DisplayName>
      <Description>The message that was sent.</Description>
      <DataType>
        <Basic>String</Basic>
      </DataType>
    </Response>
  </Command>
</Feature>
`))

// skeleton holds the values filled into featureSkeleton
type skeleton struct {
	Identifier  string
	DisplayName string
	Description string
	Originator  string
	Category    string
	Version     string
}

// NewNewCommand creates the new command
func NewNewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new [FEATURE-IDENTIFIER]",
		Short: "Create a feature definition skeleton",
		Long: `Write a new SiLA 2 feature definition with one example command.

Values not given as argument or flags are prompted for when running in a
terminal. The file is named <Identifier>-v<Major>_<Minor>.sila.xml and is
validated before it is written.`,
		Example: `  # Prompt for everything
  silac new

  # No prompts
  silac new PumpController --originator com.example --category fluidics`,
		Args: cobra.MaximumNArgs(1),
		RunE: runNew,
	}

	cmd.Flags().StringVar(&newOriginator, "originator", "", "Originator, e.g. com.example")
	cmd.Flags().StringVar(&newCategory, "category", "", "Category, e.g. fluidics")
	cmd.Flags().StringVar(&newVersion, "version", "1.0", "Feature version")
	cmd.Flags().StringVar(&newDescription, "description", "", "Feature description")
	cmd.Flags().StringVarP(&newOutput, "output", "o", ".", "Output directory")
	cmd.Flags().BoolVarP(&newForce, "force", "f", false, "Overwrite an existing file")

	return cmd
}

func runNew(cmd *cobra.Command, args []string) error {
	s := skeleton{
		Originator:  newOriginator,
		Category:    newCategory,
		Version:     newVersion,
		Description: newDescription,
	}
	if len(args) > 0 {
		s.Identifier = args[0]
	}
	if err := promptMissing(&s); err != nil {
		return err
	}
	if s.Description == "" {
		s.Description = fmt.Sprintf("The %s feature.", s.Identifier)
	}
	s.DisplayName = ustrings.DisplayName(s.Identifier)

	var buf bytes.Buffer
	if err := featureSkeleton.Execute(&buf, s); err != nil {
		return fmt.Errorf("failed to render feature definition: %w", err)
	}
	doc, err := fdl.Parse(buf.Bytes())
	if err != nil {
		r := newReporter(cmd)
		r.failure(s.Identifier, err, "")
		return r.finish()
	}

	path := filepath.Join(newOutput, skeletonFileName(s.Identifier, s.Version))
	if _, err := os.Stat(path); err == nil && !newForce {
		return fmt.Errorf("%s already exists; use --force to overwrite it", path)
	}
	if err := os.MkdirAll(newOutput, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write feature definition: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), fileReport{File: path, Feature: doc.Identifier().String(), OK: true})
	}
	ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("Created %s (%s)", path, doc.Identifier()), noColor)
	fmt.Fprintf(cmd.OutOrStdout(), "\nNext steps:\n  silac validate %s\n  silac serve --no-protoc %s\n", path, path)
	return nil
}

// promptMissing asks for the values still empty. Without a terminal it
// names the missing flags instead.
func promptMissing(s *skeleton) error {
	questions := []*survey.Question{}
	var missing []string
	if s.Identifier == "" {
		missing = append(missing, "FEATURE-IDENTIFIER")
		questions = append(questions, &survey.Question{
			Name:     "Identifier",
			Prompt:   &survey.Input{Message: "Feature identifier (e.g. PumpController):"},
			Validate: survey.Required,
		})
	}
	if s.Originator == "" {
		missing = append(missing, "--originator")
		questions = append(questions, &survey.Question{
			Name:     "Originator",
			Prompt:   &survey.Input{Message: "Originator (e.g. com.example):"},
			Validate: survey.Required,
		})
	}
	if s.Category == "" {
		missing = append(missing, "--category")
		questions = append(questions, &survey.Question{
			Name:     "Category",
			Prompt:   &survey.Input{Message: "Category:", Default: "none"},
			Validate: survey.Required,
		})
	}
	if len(questions) == 0 {
		return nil
	}
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	if err := survey.Ask(questions, s); err != nil {
		return fmt.Errorf("prompt failed: %w", err)
	}
	return nil
}

// skeletonFileName follows the <Identifier>-v<Major>_<Minor>.sila.xml
// convention
func skeletonFileName(id, version string) string {
	parts := strings.SplitN(version, ".", 3)
	v := parts[0]
	if len(parts) > 1 {
		v += "_" + parts[1]
	}
	return fmt.Sprintf("%s-v%s.sila.xml", id, v)
}
