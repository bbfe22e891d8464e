package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silaforge/silac/internal/compiler/fdl"
	"github.com/silaforge/silac/internal/metric"
	"github.com/silaforge/silac/internal/testing/fixtures"
)

type staticFeatures []*fdl.Document

func (s staticFeatures) Features() []*fdl.Document { return s }

func (s staticFeatures) Feature(id string) (*fdl.Document, bool) {
	for _, doc := range s {
		if strings.EqualFold(doc.Identifier().String(), id) {
			return doc, true
		}
	}
	return nil, false
}

func newTestRouter(t *testing.T, opts Options) http.Handler {
	t.Helper()
	var docs staticFeatures
	for _, name := range []string{fixtures.Greeter, fixtures.TemperatureController} {
		doc, err := fdl.Parse(fixtures.Feature(name))
		require.NoError(t, err)
		docs = append(docs, doc)
	}
	opts.Features = docs
	return NewRouter(opts)
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestRouter(t, Options{Version: "1.2.3"}), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "1.2.3", body["version"])
	assert.Equal(t, 2.0, body["features"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestFeatures_List(t *testing.T) {
	rec := get(t, newTestRouter(t, Options{}), "/features")
	require.Equal(t, http.StatusOK, rec.Code)

	var features []featureSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &features))
	require.Len(t, features, 2)
	assert.Equal(t, "org.silastandard/examples/Greeter/v1", features[0].Identifier)
	assert.Equal(t, []string{"SayHello"}, features[0].Commands)
	assert.Equal(t, []string{"StartYear"}, features[0].Properties)
	assert.Empty(t, features[0].Metadata)

	assert.Equal(t, "Verified", features[1].MaturityLevel)
	assert.Equal(t, []string{"ControlTemperature", "SetLabel"}, features[1].Commands)
	assert.Equal(t, []string{"AccessToken"}, features[1].Metadata)
}

func TestFeatures_Definition(t *testing.T) {
	h := newTestRouter(t, Options{})

	rec := get(t, h, "/features/org.silastandard/examples/Greeter/v1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, string(fixtures.Feature(fixtures.Greeter)), rec.Body.String())

	rec = get(t, h, "/features/org.silastandard/examples/Unknown/v1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found")
}

func TestFeatures_Proto(t *testing.T) {
	h := newTestRouter(t, Options{})

	rec := get(t, h, "/features/com.example.lab/heating/TemperatureController/v2/proto")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "service TemperatureController {")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "TemperatureController.proto")

	rec = get(t, h, "/features/com.example.lab/heating/Nothing/v2/proto")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics(t *testing.T) {
	reg := metric.NewRegistry()
	reg.Metrics.ObserveCompilation("ok")

	rec := get(t, newTestRouter(t, Options{Registry: reg}), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `silac_compiler_compilations_total{result="ok"} 1`)

	rec = get(t, newTestRouter(t, Options{}), "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProfiling(t *testing.T) {
	assert.Equal(t, http.StatusOK, get(t, newTestRouter(t, Options{Profiling: true}), "/debug/pprof/cmdline").Code)
	assert.Equal(t, http.StatusNotFound, get(t, newTestRouter(t, Options{}), "/debug/pprof/cmdline").Code)
}
