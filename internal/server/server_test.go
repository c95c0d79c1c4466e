package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/itp/internal/interpolate"
	"github.com/sells-group/itp/internal/linear"
	"github.com/sells-group/itp/internal/output"
)

const clusterBody = `{
  "id": 7,
  "network": {"type": "LineString", "coordinates": [[0, 0], [100, 0]]},
  "addresses": [
    {"coord": [10, 1], "number": 2, "output": true},
    {"coord": [10, -1], "number": 1, "output": true},
    {"coord": [70, 1], "number": 8, "output": true},
    {"coord": [70, -1], "number": 7, "output": false}
  ]
}`

type featureCollection struct {
	Type     string `json:"type"`
	Features []struct {
		Geometry   map[string]any `json:"geometry"`
		Properties map[string]any `json:"properties"`
	} `json:"features"`
}

func newRouter(t *testing.T, opts output.Options) http.Handler {
	t.Helper()
	e, err := interpolate.New(interpolate.Options{Metric: linear.Planar{}, Split: interpolate.SplitIntersection})
	require.NoError(t, err)
	return New(e, opts).Router([]string{"*"})
}

func post(t *testing.T, h http.Handler, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func kinds(fc featureCollection) map[string]int {
	out := make(map[string]int)
	for _, f := range fc.Features {
		out[f.Properties["kind"].(string)]++
	}
	return out
}

func TestHealth(t *testing.T) {
	h := newRouter(t, output.Options{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestInterpolate(t *testing.T) {
	h := newRouter(t, output.Options{})

	rr := post(t, h, "/v1/interpolate", clusterBody)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var fc featureCollection
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 1)

	f := fc.Features[0]
	assert.Equal(t, "LineString", f.Geometry["type"])
	props := f.Properties
	assert.Equal(t, output.KindRange, props["kind"])
	assert.EqualValues(t, 7, props["cluster_id"])
	assert.Equal(t, "E", props["lparity"])
	assert.EqualValues(t, 2, props["lstart"])
	assert.EqualValues(t, 8, props["lend"])
	assert.Equal(t, "O", props["rparity"])
	assert.EqualValues(t, 1, props["rstart"])
	assert.EqualValues(t, 7, props["rend"])
}

func TestInterpolate_QueryOptions(t *testing.T) {
	h := newRouter(t, output.Options{})

	rr := post(t, h, "/v1/interpolate?addresses=true&debug=1", clusterBody)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var fc featureCollection
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fc))
	got := kinds(fc)
	assert.Equal(t, 1, got[output.KindRange])
	assert.Equal(t, 3, got[output.KindAddress], "hidden addresses are not emitted")
	assert.Equal(t, 4, got[output.KindMarker])
}

func TestInterpolate_DefaultOptionsOverridden(t *testing.T) {
	h := newRouter(t, output.Options{Addresses: true})

	rr := post(t, h, "/v1/interpolate?addresses=false", clusterBody)
	require.Equal(t, http.StatusOK, rr.Code)

	var fc featureCollection
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fc))
	assert.Equal(t, map[string]int{output.KindRange: 1}, kinds(fc))
}

func TestInterpolate_BadRequests(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		body    string
		code    int
		message string
	}{
		{name: "malformed json", target: "/v1/interpolate", body: `{"id":`, code: http.StatusBadRequest, message: "invalid request body"},
		{name: "missing network", target: "/v1/interpolate", body: `{"id": 1}`, code: http.StatusBadRequest, message: "network is required"},
		{name: "bad geometry", target: "/v1/interpolate", body: `{"id": 1, "network": {"type": "Blob"}}`, code: http.StatusBadRequest, message: "invalid network"},
		{name: "bad flag", target: "/v1/interpolate?debug=maybe", body: clusterBody, code: http.StatusBadRequest, message: "invalid debug parameter"},
		{
			name:    "point network",
			target:  "/v1/interpolate",
			body:    `{"id": 3, "network": {"type": "Point", "coordinates": [0, 0]}}`,
			code:    http.StatusUnprocessableEntity,
			message: "cluster 3",
		},
		{
			name:    "zero length network",
			target:  "/v1/interpolate",
			body:    `{"id": 4, "network": {"type": "LineString", "coordinates": [[5, 5], [5, 5]]}}`,
			code:    http.StatusUnprocessableEntity,
			message: "zero length",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newRouter(t, output.Options{})
			rr := post(t, h, tt.target, tt.body)
			assert.Equal(t, tt.code, rr.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Contains(t, body["error"], tt.message)
		})
	}
}

func TestInterpolate_MethodNotAllowed(t *testing.T) {
	h := newRouter(t, output.Options{})

	req := httptest.NewRequest(http.MethodGet, "/v1/interpolate", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newRouter(t, output.Options{})

	req := httptest.NewRequest(http.MethodOptions, "/v1/interpolate", nil)
	req.Header.Set("Origin", "https://maps.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.NotEmpty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}
