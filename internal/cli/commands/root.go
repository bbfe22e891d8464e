package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/silaforge/silac/internal/cli/config"
	"github.com/silaforge/silac/internal/cli/ui"
	"github.com/silaforge/silac/internal/logging"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// Persistent flags shared by every command
var (
	configPath string
	logLevel   string
	jsonOutput bool
	noColor    bool
)

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "silac",
		Short: "SiLA 2 feature definition compiler and server",
		Long: color.CyanString(`silac - SiLA 2 feature definition compiler

silac validates SiLA 2 Feature Definition Language (FDL) files, transforms
them into protobuf IDL, compiles the IDL with protoc and serves features
over gRPC without generated code.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor || jsonOutput {
				color.NoColor = true
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Config file (default: ./silac.yaml)")
	flags.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides log.level")
	flags.BoolVar(&jsonOutput, "json", false, "Print results and diagnostics as JSON")
	flags.BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewValidateCommand())
	rootCmd.AddCommand(NewCompileCommand())
	rootCmd.AddCommand(NewGenerateCommand())
	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewNewCommand())

	return rootCmd
}

type versionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the silac version, Git commit, build date, and Go version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Set GoVersion to actual runtime if not set at build time
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}
			info := versionInfo{Version: Version, GitCommit: GitCommit, BuildDate: BuildDate, GoVersion: goVer}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), info)
			}

			table := ui.NewKeyValueTable(cmd.OutOrStdout(), noColor)
			table.AddRow("silac version", info.Version)
			table.AddRow("Git commit", info.GitCommit)
			table.AddRow("Build date", info.BuildDate)
			table.AddRow("Go version", info.GoVersion)
			table.Render()
			return nil
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			errorColor := color.New(color.FgRed, color.Bold)
			errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		}
		return err
	}
	return nil
}

// errReported is returned by commands that already printed their failure
var errReported = errors.New("command failed")

// environment holds what every command needs after startup
type environment struct {
	cfg    *config.Config
	logger *zap.Logger
}

// loadEnvironment reads the configuration and builds the logger. The
// --log-level flag overrides the configured level.
func loadEnvironment(cmd *cobra.Command) (*environment, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if !jsonOutput {
			fmt.Fprint(cmd.ErrOrStderr(), ui.ConfigError(err.Error(), noColor))
			return nil, errReported
		}
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}
	return &environment{cfg: cfg, logger: logger}, nil
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
