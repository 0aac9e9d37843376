package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/forgeapi/forgeapi/internal/webservice/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteMiddlewareWrap(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		paths []string

		want string
	}{
		"No requests": {},
		"Requests share their route label": {
			paths: []string{"/items/1", "/items/2"},
			want: `
forgeapi_http_requests_total{code="202",handler="api",method="get",route="GET /items/{id}"} 2
`,
		},
		"Unmatched requests": {
			paths: []string{"/items/1", "/missing"},
			want: `
forgeapi_http_requests_total{code="202",handler="api",method="get",route="GET /items/{id}"} 1
forgeapi_http_requests_total{code="404",handler="api",method="get",route="unmatched"} 1
`,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			reg := prometheus.NewRegistry()
			mux := http.NewServeMux()
			mux.Handle("GET /items/{id}", metrics.HandlerApplyLabels(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusAccepted)
			})))
			handler := metrics.NewRouteMiddleware(reg).Wrap("api", mux)

			for _, p := range tc.paths {
				handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
			}

			if tc.want == "" {
				assert.Equal(t, 0, testutil.CollectAndCount(reg, "forgeapi_http_requests_total"), "no metrics should be collected")
				return
			}
			want := "# HELP forgeapi_http_requests_total Tracks the number of HTTP requests per route.\n" +
				"# TYPE forgeapi_http_requests_total counter" + tc.want
			got, err := testutil.CollectAndFormat(reg, expfmt.TypeTextPlain, "forgeapi_http_requests_total")
			require.NoError(t, err, "Failed to collect metrics")
			assert.Equal(t, want, string(got), "unexpected collected metrics")
			assert.Equal(t, len(strings.Split(strings.TrimSpace(tc.want), "\n")), testutil.CollectAndCount(reg, "forgeapi_http_request_duration_seconds"),
				"one latency histogram should be collected per series")
		})
	}
}

func TestApplyLabels(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		pattern string

		want string
	}{
		"Uses the matched pattern": {pattern: "GET /api/{model}", want: "GET /api/{model}"},
		"Falls back to the path":   {want: "/api/order"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/api/order", nil)
			req.Pattern = tc.pattern
			metrics.ApplyLabels(req)

			assert.Equal(t, tc.want, req.Context().Value(metrics.LabelRoute), "unexpected route label")
		})
	}
}

func TestMuxMiddlewareWrap(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	handler := metrics.NewMuxMiddleware(reg).Wrap("mux", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
		}
	}))

	handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))

	want := `# HELP forgeapi_http_mux_requests_total Tracks the number of HTTP requests to the mux.
# TYPE forgeapi_http_mux_requests_total counter
forgeapi_http_mux_requests_total{code="200",handler="mux",method="get"} 1
forgeapi_http_mux_requests_total{code="201",handler="mux",method="post"} 2
# HELP forgeapi_http_requests_in_flight Tracks the number of HTTP requests being served.
# TYPE forgeapi_http_requests_in_flight gauge
forgeapi_http_requests_in_flight{handler="mux"} 0
`
	got, err := testutil.CollectAndFormat(reg, expfmt.TypeTextPlain, "forgeapi_http_mux_requests_total", "forgeapi_http_requests_in_flight")
	require.NoError(t, err, "Failed to collect metrics")
	assert.Equal(t, want, string(got), "unexpected collected metrics")
}
