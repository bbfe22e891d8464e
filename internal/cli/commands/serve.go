package commands

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/silaforge/silac/internal/cli/config"
	"github.com/silaforge/silac/internal/cli/ui"
	"github.com/silaforge/silac/internal/compiler/fdl"
	"github.com/silaforge/silac/internal/compiler/pipeline"
	"github.com/silaforge/silac/internal/metric"
	"github.com/silaforge/silac/internal/sila/server"
	"github.com/silaforge/silac/internal/sila/silaservice"
	"github.com/silaforge/silac/internal/web/admin"
	webserver "github.com/silaforge/silac/internal/web/server"
	"github.com/silaforge/silac/internal/utils"
)

var (
	serveAddress      string
	serveAdminAddress string
	serveNoProtoc     bool
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [FILE...]",
		Short: "Serve feature definitions over gRPC",
		Long: `Compile the given feature definitions and serve them, together with the
SiLAService core feature, on a SiLA 2 gRPC server.

The served features have no implementation: every command and property
call answers with an undefined execution error. This is useful to test
clients against a feature before its implementation exists.

An admin HTTP server exposes /healthz, /features and /metrics unless
server.admin_address is empty.`,
		Example: `  # Serve a feature on the configured addresses
  silac serve Greeter-v1_0.sila.xml

  # Serve without protoc on custom ports
  silac serve --no-protoc --address :50053 --admin-address :9090 features/*.sila.xml`,
		RunE: runServe,
	}

	cmd.Flags().StringVar(&serveAddress, "address", "", "gRPC listen address (default: server.address)")
	cmd.Flags().StringVar(&serveAdminAddress, "admin-address", "", "Admin HTTP listen address; overrides server.admin_address")
	cmd.Flags().BoolVar(&serveNoProtoc, "no-protoc", false, "Compile the IDL in process instead of running protoc")

	return cmd
}

// serveSummary is printed once the server is listening
type serveSummary struct {
	Address      string   `json:"address"`
	AdminAddress string   `json:"admin_address,omitempty"`
	ServerName   string   `json:"server_name"`
	ServerUUID   string   `json:"server_uuid"`
	Features     []string `json:"features"`
}

func runServe(cmd *cobra.Command, args []string) error {
	files, err := utils.ExpandFeatureArgs(args)
	if err != nil {
		return err
	}
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = env.logger.Sync() }()

	cfg := env.cfg
	if cmd.Flags().Changed("address") {
		cfg.Server.Address = serveAddress
	}
	if cmd.Flags().Changed("admin-address") {
		cfg.Server.AdminAddress = serveAdminAddress
	}
	info, err := serverInfo(cfg.Server)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := metric.NewRegistry()
	p, release := env.newPipeline(serveNoProtoc, registry.Metrics)

	srv := server.New(server.Options{
		Logger:            env.logger,
		Metrics:           registry.Metrics,
		ExecutionLifetime: cfg.Server.ExecutionLifetime,
	})
	r := newReporter(cmd)
	svc, err := silaservice.Register(ctx, srv, p, info, env.logger)
	if err != nil {
		_ = release(ctx)
		r.failure(silaservice.FeatureID.String(), err, cfg.Compiler.Protoc)
		return r.finish()
	}
	for _, file := range files {
		doc, err := registerFile(ctx, srv, p, file)
		if err != nil {
			r.failure(file, err, cfg.Compiler.Protoc)
			continue
		}
		r.files = append(r.files, fileReport{File: file, Feature: doc.Identifier().String(), OK: true})
	}
	if r.failed > 0 {
		_ = release(ctx)
		return r.finish()
	}

	shutdown := webserver.NewGracefulShutdown(0, env.logger)
	errs := make(chan error, 2)

	lis, err := net.Listen("tcp", cfg.Server.Address)
	if err != nil {
		_ = release(ctx)
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Address, err)
	}
	go func() {
		if err := srv.Serve(lis); err != nil {
			errs <- err
		}
	}()
	shutdown.RegisterHook("grpc", func(ctx context.Context) error {
		return stopGRPC(ctx, srv)
	})

	summary := serveSummary{
		Address:    lis.Addr().String(),
		ServerName: svc.Info().Name,
		ServerUUID: svc.Info().UUID.String(),
	}
	for _, doc := range srv.Features() {
		summary.Features = append(summary.Features, doc.Identifier().String())
	}

	if cfg.Server.AdminAddress != "" {
		adminCfg := webserver.DefaultConfig(admin.NewRouter(admin.Options{
			Features:  srv,
			Registry:  registry,
			Logger:    env.logger,
			Profiling: cfg.Server.Profiling,
			Version:   Version,
		}))
		adminCfg.Address = cfg.Server.AdminAddress
		adminServer, err := webserver.New(adminCfg)
		if err != nil {
			_ = shutdown.Shutdown()
			return err
		}
		adminLis, err := adminServer.Listen()
		if err != nil {
			_ = shutdown.Shutdown()
			return err
		}
		go func() {
			if err := adminServer.Serve(adminLis); err != nil {
				errs <- err
			}
		}()
		shutdown.RegisterHook("admin", adminServer.Shutdown)
		summary.AdminAddress = adminLis.Addr().String()
	}
	shutdown.RegisterHook("cache", release)

	if err := printServing(cmd, srv, summary); err != nil {
		_ = shutdown.Shutdown()
		return err
	}
	env.logger.Info("silac serving",
		zap.String("address", summary.Address),
		zap.String("admin_address", summary.AdminAddress),
		zap.Int("features", len(summary.Features)))
	return shutdown.Run(ctx, errs)
}

func serverInfo(c config.ServerConfig) (silaservice.Info, error) {
	info := silaservice.Info{
		Name:        c.Name,
		Type:        c.Type,
		Description: c.Description,
		Version:     c.Version,
		VendorURL:   c.VendorURL,
	}
	if c.UUID != "" {
		parsed, err := uuid.Parse(c.UUID)
		if err != nil {
			return info, fmt.Errorf("invalid server UUID %q: %w", c.UUID, err)
		}
		info.UUID = parsed
	}
	return info, nil
}

func registerFile(ctx context.Context, srv *server.Server, p *pipeline.Pipeline, file string) (*fdl.Document, error) {
	text, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	doc, binding, err := p.Compile(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := srv.Register(doc, binding, nil); err != nil {
		return nil, err
	}
	return doc, nil
}

// stopGRPC waits for open calls until ctx is done, then closes every
// connection
func stopGRPC(ctx context.Context, srv *server.Server) error {
	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		srv.Stop()
		return ctx.Err()
	}
}

func printServing(cmd *cobra.Command, srv *server.Server, summary serveSummary) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), summary)
	}
	w := cmd.OutOrStdout()
	ui.WriteSuccess(w, fmt.Sprintf("Serving %d feature(s) on %s", len(summary.Features), summary.Address), noColor)

	kv := ui.NewKeyValueTable(w, noColor)
	kv.AddRow("Server name", summary.ServerName)
	kv.AddRow("Server UUID", summary.ServerUUID)
	if summary.AdminAddress != "" {
		kv.AddRow("Admin", "http://"+summary.AdminAddress)
	}
	kv.Render()
	fmt.Fprintln(w)

	table := ui.NewTable(w, noColor, "FEATURE", "COMMANDS", "PROPERTIES", "METADATA")
	for _, doc := range srv.Features() {
		f := doc.Feature
		table.AddRow(doc.Identifier().String(),
			fmt.Sprint(len(f.Commands)), fmt.Sprint(len(f.Properties)), fmt.Sprint(len(f.Metadata)))
	}
	table.Render()
	return nil
}
