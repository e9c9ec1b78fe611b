package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelcomposer/internal/logging"
	"labelcomposer/internal/metrics"
	"labelcomposer/internal/repository/sqlite"
	"labelcomposer/internal/service"
)

const pairsDoc = `{
  "name": "pairs",
  "atoms": [{"name": "A"}, {"name": "B"}, {"name": "C"}, {"name": "D"}],
  "labels": [
    {"name": "AB", "atoms": ["A", "B"]},
    {"name": "BC", "atoms": ["B", "C"]}
  ]
}`

const coarseDoc = `
name: coarse
atoms: [{name: A}, {name: B}, {name: C}, {name: D}]
labels:
  - name: ABC
    atoms: [A, B, C]
`

type testServer struct {
	*httptest.Server
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	m := metrics.New()
	logger := logging.Discard()
	svc := service.NewSchemeService(repo, service.NewEventBus(), m, service.WithLogger(logger))
	srv := httptest.NewServer(NewRouter(svc, nil, m, logger))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, metrics: m}
}

func (s *testServer) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.URL+path, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (s *testServer) seed(t *testing.T) {
	t.Helper()
	resp, _ := s.do(t, http.MethodPost, "/api/schemes", pairsDoc)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = s.do(t, http.MethodPost, "/api/schemes?format=yaml", coarseDoc)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func decodeBody[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestCreateAndGetScheme(t *testing.T) {
	s := newTestServer(t)
	s.seed(t)

	resp, body := s.do(t, http.MethodPost, "/api/schemes", pairsDoc)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "Failed to import scheme", decodeBody[ErrorResponse](t, body).Error)

	resp, body = s.do(t, http.MethodPost, "/api/schemes?replace=true", pairsDoc)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	result := decodeBody[service.ImportResult](t, body)
	assert.False(t, result.Created)
	assert.Equal(t, 4, result.Atoms)

	resp, body = s.do(t, http.MethodGet, "/api/schemes/pairs", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	scheme := decodeBody[SchemeResponse](t, body)
	assert.Equal(t, service.SourceAPI, scheme.Source)
	assert.Equal(t, "pairs", scheme.Scheme.Name)
	assert.Len(t, scheme.Scheme.Labels, 2)

	resp, body = s.do(t, http.MethodGet, "/api/schemes", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list, 2)
}

func TestCreateScheme_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"malformed json", "/api/schemes", "{", http.StatusBadRequest},
		{"invalid document", "/api/schemes", `{"name": "x", "atoms": []}`, http.StatusBadRequest},
		{"unknown atom", "/api/schemes", `{"name": "x", "atoms": [{"name": "A"}], "labels": [{"atoms": ["Z"]}]}`, http.StatusBadRequest},
		{"unsupported format", "/api/schemes?format=xml", pairsDoc, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := s.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
			assert.NotEmpty(t, decodeBody[ErrorResponse](t, body).Details)
		})
	}
}

func TestClosureAndCanCompute(t *testing.T) {
	s := newTestServer(t)
	s.seed(t)

	resp, body := s.do(t, http.MethodGet, "/api/schemes/pairs/closure", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := decodeBody[service.ClosureReport](t, body)
	assert.True(t, report.Complete)
	assert.Equal(t, []string{"A", "B", "C", "D"}, report.ComputableAtoms)

	tests := []struct {
		name       string
		scheme     string
		body       string
		status     int
		computable bool
	}{
		{"atoms", "coarse", `{"atoms": ["D"]}`, http.StatusOK, true},
		{"atoms not derivable", "coarse", `{"atoms": ["A"]}`, http.StatusOK, false},
		{"own label", "coarse", `{"label": "ABC"}`, http.StatusOK, true},
		{"label from other scheme", "pairs", `{"label": "ABC", "from": "coarse"}`, http.StatusOK, true},
		{"label not derivable", "coarse", `{"label": "AB", "from": "pairs"}`, http.StatusOK, false},
		{"unknown label", "coarse", `{"label": "nope"}`, http.StatusNotFound, false},
		{"unknown atom", "coarse", `{"atoms": ["Z"]}`, http.StatusBadRequest, false},
		{"unknown scheme", "missing", `{"atoms": ["A"]}`, http.StatusNotFound, false},
		{"empty query", "coarse", `{}`, http.StatusBadRequest, false},
		{"both given", "coarse", `{"atoms": ["A"], "label": "ABC"}`, http.StatusBadRequest, false},
		{"unknown field", "coarse", `{"atom": ["A"]}`, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := s.do(t, http.MethodPost, "/api/schemes/"+tt.scheme+"/can-compute", tt.body)
			require.Equal(t, tt.status, resp.StatusCode, string(body))
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.computable, decodeBody[CanComputeResponse](t, body).Computable)
			}
		})
	}
}

func TestMutations(t *testing.T) {
	s := newTestServer(t)
	s.seed(t)

	resp, body := s.do(t, http.MethodPost, "/api/schemes/coarse/labels", `{"name": "AB", "atoms": ["A", "B"]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	assert.True(t, decodeBody[MutationResponse](t, body).Added)

	resp, body = s.do(t, http.MethodPost, "/api/schemes/coarse/labels", `{"atoms": ["B", "A"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decodeBody[MutationResponse](t, body).Added)

	resp, _ = s.do(t, http.MethodPost, "/api/schemes/coarse/labels", `{"atoms": []}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = s.do(t, http.MethodPost, "/api/schemes/coarse/can-compute", `{"atoms": ["C"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeBody[CanComputeResponse](t, body).Computable)

	resp, body = s.do(t, http.MethodPost, "/api/schemes/coarse/atoms", `{"name": "E", "index": 5}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	resp, _ = s.do(t, http.MethodPost, "/api/schemes/coarse/atoms", `{"name": "E", "index": 5}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = s.do(t, http.MethodPost, "/api/schemes/coarse/atoms", `{"name": "  "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = s.do(t, http.MethodGet, "/api/schemes/coarse/closure", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := decodeBody[service.ClosureReport](t, body)
	assert.Contains(t, report.Atoms, "E")
}

func TestCompareAndCompatible(t *testing.T) {
	s := newTestServer(t)
	s.seed(t)

	resp, body := s.do(t, http.MethodGet, "/api/schemes/coarse/compare/pairs", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cmp := decodeBody[service.Comparison](t, body)
	assert.True(t, cmp.SameUniverse)
	assert.False(t, cmp.Computable)
	assert.True(t, cmp.Reverse)
	assert.Equal(t, []string{"AB", "BC"}, cmp.Missing)

	resp, _ = s.do(t, http.MethodGet, "/api/schemes/coarse/compare/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = s.do(t, http.MethodGet, "/api/schemes/pairs/compatible", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"coarse"}, decodeBody[CompatibleResponse](t, body).Compatible)
}

func TestExportAndDelete(t *testing.T) {
	s := newTestServer(t)
	s.seed(t)

	resp, body := s.do(t, http.MethodGet, "/api/schemes/pairs/export", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-yaml", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `"pairs.yaml"`)
	assert.Contains(t, string(body), "name: pairs")

	resp, _ = s.do(t, http.MethodGet, "/api/schemes/pairs/export?format=toml", "")
	assert.Equal(t, "application/toml", resp.Header.Get("Content-Type"))

	resp, _ = s.do(t, http.MethodGet, "/api/schemes/pairs/export?format=xml", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = s.do(t, http.MethodGet, "/api/schemes/missing/export", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = s.do(t, http.MethodDelete, "/api/schemes/pairs", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = s.do(t, http.MethodDelete, "/api/schemes/pairs", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = s.do(t, http.MethodGet, "/api/schemes/pairs", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOperationalEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.seed(t)

	resp, body := s.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	resp, _ = s.do(t, http.MethodOptions, "/api/schemes", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, body = s.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "labelcomposer_closure_computable_atoms")

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.HTTPRequests.WithLabelValues("GET", "GET /healthz", "200")))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.HTTPRequests.WithLabelValues("POST", "POST /api/schemes", "201")))
}

func TestRecover(t *testing.T) {
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}), Recover(logging.Discard()))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "boom", decodeBody[ErrorResponse](t, rec.Body.Bytes()).Details)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mark("outer"), mark("inner"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
