package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MuxMiddleware counts every request reaching the mux, matched or not.
type MuxMiddleware struct {
	registry prometheus.Registerer
}

// NewMuxMiddleware creates a new MuxMiddleware instance with the provided registry.
func NewMuxMiddleware(registry prometheus.Registerer) *MuxMiddleware {
	return &MuxMiddleware{
		registry: registry,
	}
}

// Wrap wraps an HTTP handler to count requests by method and status code.
func (m *MuxMiddleware) Wrap(handlerName string, handler http.Handler) http.HandlerFunc {
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"handler": handlerName}, m.registry)

	requestsTotal := promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "forgeapi_http_mux_requests_total",
			Help: "Tracks the number of HTTP requests to the mux.",
		}, []string{"method", "code"},
	)
	inFlight := promauto.With(reg).NewGauge(
		prometheus.GaugeOpts{
			Name: "forgeapi_http_requests_in_flight",
			Help: "Tracks the number of HTTP requests being served.",
		},
	)

	return promhttp.InstrumentHandlerInFlight(inFlight, promhttp.InstrumentHandlerCounter(requestsTotal, handler)).ServeHTTP
}
