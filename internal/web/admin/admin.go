// Package admin serves the operational HTTP endpoints of a SiLA server:
// health, the registered feature definitions with their IDL, Prometheus
// metrics and optionally pprof.
package admin

import (
	"encoding/json"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/silaforge/silac/internal/compiler/codegen"
	"github.com/silaforge/silac/internal/compiler/fdl"
	"github.com/silaforge/silac/internal/metric"
	"github.com/silaforge/silac/internal/web/middleware"
)

// FeatureSource lists the features a server offers. *server.Server
// implements it.
type FeatureSource interface {
	Features() []*fdl.Document
	Feature(id string) (*fdl.Document, bool)
}

// Options configures the admin router
type Options struct {
	Features FeatureSource
	// Registry is served on /metrics; nil disables the endpoint
	Registry *metric.Registry
	Logger   *zap.Logger
	// Profiling mounts pprof under /debug/pprof
	Profiling bool
	// Version is reported by /healthz
	Version string
}

type handler struct {
	features FeatureSource
	version  string
	logger   *zap.Logger
}

// NewRouter builds the admin HTTP handler
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{features: opts.Features, version: opts.Version, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.NewChain(
		middleware.RequestID(),
		middleware.Logging(logger, "/healthz", "/metrics"),
		middleware.Recovery(logger),
	).Handlers()...)

	r.Get("/healthz", h.health)
	r.Route("/features", func(r chi.Router) {
		r.Get("/", h.list)
		r.Route("/{originator}/{category}/{feature}/{version}", func(r chi.Router) {
			r.Get("/", h.definition)
			r.Get("/proto", h.proto)
		})
	})
	if opts.Registry != nil {
		r.Method(http.MethodGet, "/metrics", opts.Registry.Handler())
	}
	if opts.Profiling {
		registerProfiling(r, "/debug/pprof")
	}
	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"version":  h.version,
		"features": len(h.features.Features()),
	})
}

// featureSummary describes one feature in the /features listing
type featureSummary struct {
	Identifier     string   `json:"identifier"`
	DisplayName    string   `json:"displayName"`
	Description    string   `json:"description"`
	FeatureVersion string   `json:"featureVersion"`
	MaturityLevel  string   `json:"maturityLevel,omitempty"`
	Commands       []string `json:"commands"`
	Properties     []string `json:"properties"`
	Metadata       []string `json:"metadata"`
}

func summarize(doc *fdl.Document) featureSummary {
	f := doc.Feature
	s := featureSummary{
		Identifier:     doc.Identifier().String(),
		DisplayName:    f.DisplayName,
		Description:    f.Description,
		FeatureVersion: f.FeatureVersion,
		MaturityLevel:  f.MaturityLevel,
		Commands:       make([]string, 0, len(f.Commands)),
		Properties:     make([]string, 0, len(f.Properties)),
		Metadata:       make([]string, 0, len(f.Metadata)),
	}
	for _, c := range f.Commands {
		s.Commands = append(s.Commands, c.Identifier)
	}
	for _, p := range f.Properties {
		s.Properties = append(s.Properties, p.Identifier)
	}
	for _, m := range f.Metadata {
		s.Metadata = append(s.Metadata, m.Identifier)
	}
	return s
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	docs := h.features.Features()
	summaries := make([]featureSummary, len(docs))
	for i, doc := range docs {
		summaries[i] = summarize(doc)
	}
	writeJSON(w, http.StatusOK, summaries)
}

// lookup resolves the feature named by the route parameters, writing a 404
// when it is not registered
func (h *handler) lookup(w http.ResponseWriter, r *http.Request) (*fdl.Document, bool) {
	id := path.Join(
		chi.URLParam(r, "originator"),
		chi.URLParam(r, "category"),
		chi.URLParam(r, "feature"),
		chi.URLParam(r, "version"),
	)
	doc, ok := h.features.Feature(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "feature "+id+" is not implemented by this server")
	}
	return doc, ok
}

func (h *handler) definition(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.lookup(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(doc.Source)
}

func (h *handler) proto(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.lookup(w, r)
	if !ok {
		return
	}
	idl, err := codegen.NewGenerator().GenerateProto(doc.Feature)
	if err != nil {
		h.logger.Error("failed to generate IDL", zap.String("feature", doc.Identifier().String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "generation_failed", err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="`+codegen.FileName(doc.Feature)+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(idl))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": strings.TrimSpace(message)})
}
