// Package server serves SiLA 2 features over gRPC without generated code.
//
// Each registered feature is described by its parsed feature definition and
// the Binding compiled from it. The server derives a gRPC service from the
// binding, decodes requests into dynamic messages, converts them to Go values
// for the FeatureImplementation handlers and maps every handler failure to a
// SiLA error at the call boundary.
package server

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/silaforge/silac/internal/compiler/fdl"
	"github.com/silaforge/silac/internal/compiler/protoc"
	"github.com/silaforge/silac/internal/logging"
	"github.com/silaforge/silac/internal/metric"
	"github.com/silaforge/silac/internal/sila/identifier"
)

// DefaultExecutionLifetime is how long observable command executions stay
// queryable after they started
const DefaultExecutionLifetime = 10 * time.Minute

// Options configures a Server
type Options struct {
	Logger  *zap.Logger
	Metrics *metric.Metrics

	// ExecutionLifetime bounds how long an observable command execution can
	// be queried. Zero selects DefaultExecutionLifetime; a negative value
	// keeps executions forever.
	ExecutionLifetime time.Duration

	// GRPCOptions are passed to grpc.NewServer
	GRPCOptions []grpc.ServerOption
}

// Server is a SiLA 2 server. Features must be registered before Serve is
// called.
type Server struct {
	grpc    *grpc.Server
	logger  *zap.Logger
	metrics *metric.Metrics

	features []*feature
	byID     map[identifier.Key]*feature
	metadata []*metadataDef

	executions *executionTable

	// ctx is the parent of every observable command execution
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu guards stopped and orders wg.Add before wg.Wait
	mu      sync.Mutex
	stopped bool
}

// New creates a server
func New(opts Options) *Server {
	lifetime := opts.ExecutionLifetime
	switch {
	case lifetime == 0:
		lifetime = DefaultExecutionLifetime
	case lifetime < 0:
		lifetime = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		grpc:       grpc.NewServer(opts.GRPCOptions...),
		logger:     logging.OrNop(opts.Logger).Named("server"),
		metrics:    opts.Metrics,
		byID:       map[identifier.Key]*feature{},
		executions: newExecutionTable(lifetime),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Register serves a feature. impl may be nil, in which case every call
// answers with an undefined execution error.
func (s *Server) Register(doc *fdl.Document, binding *protoc.Binding, impl *FeatureImplementation) error {
	f, err := newFeature(doc, binding, impl)
	if err != nil {
		return err
	}
	if _, ok := s.byID[f.id.Key()]; ok {
		return fmt.Errorf("feature %s is already registered", f.id)
	}

	sd, err := s.serviceDesc(f)
	if err != nil {
		return fmt.Errorf("failed to build service for %s: %w", f.id, err)
	}
	defs, err := newMetadataDefs(f)
	if err != nil {
		return fmt.Errorf("failed to register metadata of %s: %w", f.id, err)
	}

	s.grpc.RegisterService(sd, f)
	s.features = append(s.features, f)
	s.byID[f.id.Key()] = f
	s.metadata = append(s.metadata, defs...)

	s.logger.Info("registered feature",
		zap.String("feature", f.id.String()),
		zap.String("service", sd.ServiceName),
		zap.Int("methods", len(sd.Methods)+len(sd.Streams)))
	return nil
}

// Features returns the registered feature definitions in registration order
func (s *Server) Features() []*fdl.Document {
	docs := make([]*fdl.Document, len(s.features))
	for i, f := range s.features {
		docs[i] = f.doc
	}
	return docs
}

// Feature looks up a registered feature by its fully qualified identifier,
// ignoring letter case
func (s *Server) Feature(id string) (*fdl.Document, bool) {
	f, ok := s.byID[identifier.Key(strings.ToLower(id))]
	if !ok {
		return nil, false
	}
	return f.doc, true
}

// Serve accepts connections on lis until the server stops
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("serving SiLA features", zap.String("address", lis.Addr().String()), zap.Int("features", len(s.features)))
	if err := s.grpc.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// GracefulStop refuses new executions and cancels running ones, then waits
// for open calls to finish
func (s *Server) GracefulStop() {
	s.shutdown()
	s.wg.Wait()
	s.grpc.GracefulStop()
}

// Stop cancels running executions and closes every connection
func (s *Server) Stop() {
	s.shutdown()
	s.grpc.Stop()
	s.wg.Wait()
}

func (s *Server) shutdown() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()
}

// admit reserves a slot for an execution goroutine. It fails once the server
// is stopping.
func (s *Server) admit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.wg.Add(1)
	return true
}
