// Package silaservice implements the SiLAService core feature every SiLA
// server offers: server identity and discovery of the implemented features.
package silaservice

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/silaforge/silac/internal/compiler/pipeline"
	silaerrors "github.com/silaforge/silac/internal/sila/errors"
	"github.com/silaforge/silac/internal/sila/framework"
	"github.com/silaforge/silac/internal/sila/identifier"
	"github.com/silaforge/silac/internal/sila/server"
)

// FeatureID is the fully qualified identifier of the SiLAService feature
var FeatureID = identifier.MustParse("org.silastandard/core/SiLAService/v1")

var unimplementedFeature = identifier.Must(FeatureID.DefinedExecutionError("UnimplementedFeature"))

// Info describes the server
type Info struct {
	Name        string
	Type        string
	UUID        uuid.UUID
	Description string
	Version     string
	VendorURL   string
}

// DefaultInfo returns the identity used for fields left empty
func DefaultInfo() Info {
	return Info{
		Name:      "SiLA Server",
		Type:      "SilacServer",
		Version:   "1.0",
		VendorURL: "https://github.com/silaforge/silac",
	}
}

func (i Info) withDefaults() Info {
	d := DefaultInfo()
	if i.Name == "" {
		i.Name = d.Name
	}
	if i.Type == "" {
		i.Type = d.Type
	}
	if i.Version == "" {
		i.Version = d.Version
	}
	if i.VendorURL == "" {
		i.VendorURL = d.VendorURL
	}
	if i.UUID == uuid.Nil {
		i.UUID = uuid.New()
	}
	return i
}

// Service serves SiLAService for one server
type Service struct {
	server *server.Server
	logger *zap.Logger

	mu   sync.RWMutex
	info Info
}

// Register compiles the SiLAService definition with p and registers it with
// srv. It should be the first feature registered.
func Register(ctx context.Context, srv *server.Server, p *pipeline.Pipeline, info Info, logger *zap.Logger) (*Service, error) {
	doc, binding, err := p.Compile(ctx, framework.SiLAServiceDefinition())
	if err != nil {
		return nil, fmt.Errorf("failed to compile SiLAService: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{server: srv, info: info.withDefaults(), logger: logger.Named("silaservice")}
	if err := srv.Register(doc, binding, s.implementation()); err != nil {
		return nil, err
	}
	return s, nil
}

// Info returns the current server identity
func (s *Service) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

func (s *Service) implementation() *server.FeatureImplementation {
	static := func(get func(Info) string) server.PropertyHandler {
		return func(context.Context) (interface{}, error) {
			return get(s.Info()), nil
		}
	}
	return &server.FeatureImplementation{
		Commands: map[string]server.CommandHandler{
			"GetFeatureDefinition": s.getFeatureDefinition,
			"SetServerName":        s.setServerName,
		},
		Properties: map[string]server.PropertyHandler{
			"ServerName":          static(func(i Info) string { return i.Name }),
			"ServerType":          static(func(i Info) string { return i.Type }),
			"ServerUUID":          static(func(i Info) string { return i.UUID.String() }),
			"ServerDescription":   static(func(i Info) string { return i.Description }),
			"ServerVersion":       static(func(i Info) string { return i.Version }),
			"ServerVendorURL":     static(func(i Info) string { return i.VendorURL }),
			"ImplementedFeatures": s.implementedFeatures,
		},
		RejectMetadata: true,
	}
}

func (s *Service) getFeatureDefinition(_ context.Context, params server.Values) (server.Values, error) {
	id := params["FeatureIdentifier"].(string)
	doc, ok := s.server.Feature(id)
	if !ok {
		return nil, silaerrors.NewDefinedExecutionError(unimplementedFeature,
			fmt.Sprintf("feature %s is not implemented by this server", id))
	}
	return server.Values{"FeatureDefinition": string(doc.Source)}, nil
}

func (s *Service) setServerName(_ context.Context, params server.Values) (server.Values, error) {
	name := params["ServerName"].(string)
	s.mu.Lock()
	s.info.Name = name
	s.mu.Unlock()
	s.logger.Info("server name changed", zap.String("name", name))
	return server.Values{}, nil
}

func (s *Service) implementedFeatures(context.Context) (interface{}, error) {
	docs := s.server.Features()
	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.Identifier().String()
	}
	return ids, nil
}
