// Package metrics exposes tarpit counters in the Prometheus format on a
// listener separate from the fixture, whose every path is a scenario.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

type Metrics struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	stalls    prometheus.Histogram
	throttled prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tarpit",
			Name:      "requests_total",
			Help:      "Requests answered, by scenario and method.",
		}, []string{"scenario", "method"}),
		stalls: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tarpit",
			Name:      "stall_seconds",
			Help:      "Time slow downloads were held before the response was written.",
			Buckets:   []float64{0.1, 1, 5, 10, 15, 20, 30, 60},
		}),
		throttled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tarpit",
			Name:      "throttled_total",
			Help:      "Requests turned into the blocked scenario by the rate limiter.",
		}),
	}

	m.registry.MustRegister(m.requests, m.stalls, m.throttled)
	return m
}

// The observe methods are no-ops on a nil receiver so the engine can run
// with metrics disabled.

func (m *Metrics) ObserveRequest(scenario, method string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(scenario, method).Inc()
}

func (m *Metrics) ObserveStall(d time.Duration) {
	if m == nil {
		return
	}
	m.stalls.Observe(d.Seconds())
}

func (m *Metrics) ObserveThrottled() {
	if m == nil {
		return
	}
	m.throttled.Inc()
}

// Handler serves /metrics and answers 404 elsewhere.
func (m *Metrics) Handler() fasthttp.RequestHandler {
	promHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) != "/metrics" {
			ctx.Error("Not Found", fasthttp.StatusNotFound)
			return
		}
		promHandler(ctx)
	}
}
