// Package metrics provides middleware for collecting metrics in the web service, to be interpreted by Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type label string

// LabelRoute is the label used for the matched route in metrics.
const LabelRoute label = "route"

// RouteMiddleware collects HTTP request metrics per matched route.
type RouteMiddleware struct {
	buckets  []float64
	registry prometheus.Registerer
}

// NewRouteMiddleware creates a new RouteMiddleware with the provided registry.
func NewRouteMiddleware(registry prometheus.Registerer) *RouteMiddleware {
	return &RouteMiddleware{
		// Mainly used for HTTP request durations which will skew small unless something is wrong. Max of 10.24.
		buckets:  prometheus.ExponentialBuckets(0.005, 2, 12),
		registry: registry,
	}
}

// Wrap wraps an HTTP handler to collect request counts, latencies and sizes.
//
// The route label is only known once the handler applied it with ApplyLabels.
func (m *RouteMiddleware) Wrap(handlerName string, handler http.Handler) http.HandlerFunc {
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"handler": handlerName}, m.registry)
	labels := []string{"method", "code", string(LabelRoute)}

	requestsTotal := promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "forgeapi_http_requests_total",
			Help: "Tracks the number of HTTP requests per route.",
		}, labels,
	)
	requestDuration := promauto.With(reg).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forgeapi_http_request_duration_seconds",
			Help:    "Tracks the latencies for HTTP requests per route.",
			Buckets: m.buckets,
		},
		labels,
	)
	requestSize := promauto.With(reg).NewSummaryVec(
		prometheus.SummaryOpts{
			Name: "forgeapi_http_request_size_bytes",
			Help: "Tracks the size of HTTP requests per route.",
		},
		labels,
	)

	routeLabel := promhttp.WithLabelFromCtx(string(LabelRoute), routeFromCtx)
	base := promhttp.InstrumentHandlerCounter(
		requestsTotal,
		promhttp.InstrumentHandlerDuration(
			requestDuration,
			promhttp.InstrumentHandlerRequestSize(requestSize, handler, routeLabel),
			routeLabel,
		),
		routeLabel,
	)

	return base.ServeHTTP
}

func routeFromCtx(ctx context.Context) string {
	if route, ok := ctx.Value(LabelRoute).(string); ok {
		return route
	}
	return "unmatched"
}

// ApplyLabels stores the route of the request in its context.
//
// The matched mux pattern is used when set, so path parameters do not create new label values.
func ApplyLabels(r *http.Request) {
	route := r.Pattern
	if route == "" {
		route = r.URL.Path
	}
	ctx := context.WithValue(r.Context(), LabelRoute, route)
	*r = *r.WithContext(ctx)
}

// HandlerApplyLabels is a middleware helper function to apply labels to an HTTP handler.
func HandlerApplyLabels(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ApplyLabels(r)
		handler.ServeHTTP(w, r)
	})
}
