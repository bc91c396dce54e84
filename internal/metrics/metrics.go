// Package metrics exposes check and server activity as Prometheus metrics.
//
// Collectors live on a private registry; nothing is registered with the
// global default registry. Metrics observes the event bus and never calls
// back into the publishers.
package metrics

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quill/internal/events"
	"quill/internal/server"
)

const namespace = "quill"

// Metrics holds the collectors and the registry that owns them.
type Metrics struct {
	registry *prometheus.Registry

	checksStarted   prometheus.Counter
	checksFinished  *prometheus.CounterVec
	checkDuration   prometheus.Histogram
	checkMatches    prometheus.Histogram
	languageChanges *prometheus.CounterVec
	serverUp        prometheus.Gauge
	serverPort      prometheus.Gauge
	serverBindFails prometheus.Counter
	httpRequests    *prometheus.CounterVec
}

// New creates the collectors on a fresh registry. Process and Go runtime
// collectors are included.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		checksStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_started_total",
			Help:      "Check requests accepted by the coordinator.",
		}),
		checksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_finished_total",
			Help:      "Check results delivered to subscribers, by outcome.",
		}, []string{"outcome"}),
		checkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "check_duration_seconds",
			Help:      "Time spent in the checker for delivered results.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		checkMatches: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "check_matches",
			Help:      "Matches per delivered result.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50},
		}),
		languageChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "language_changes_total",
			Help:      "Language switches, by new language.",
		}, []string{"language"}),
		serverUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "server_running",
			Help:      "1 when the embedded HTTP server is listening.",
		}),
		serverPort: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "server_port",
			Help:      "Port of the embedded HTTP server, 0 when stopped.",
		}),
		serverBindFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_bind_failures_total",
			Help:      "Failed attempts to start the embedded HTTP server.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Requests served by the embedded HTTP server.",
		}, []string{"method", "route", "code"}),
	}
	reg.MustRegister(
		m.checksStarted,
		m.checksFinished,
		m.checkDuration,
		m.checkMatches,
		m.languageChanges,
		m.serverUp,
		m.serverPort,
		m.serverBindFails,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Attach subscribes the collectors to bus.
func (m *Metrics) Attach(bus *events.Bus) events.Subscription {
	return bus.Subscribe(m.Observe)
}

// Observe updates collectors for one event.
func (m *Metrics) Observe(e events.Event) {
	if m == nil {
		return
	}
	switch ev := e.(type) {
	case events.CheckStarted:
		m.checksStarted.Inc()
	case events.CheckFinished:
		outcome := "ok"
		if ev.Result.Failed() {
			outcome = "failed"
		}
		m.checksFinished.WithLabelValues(outcome).Inc()
		m.checkDuration.Observe(ev.Duration.Seconds())
		m.checkMatches.Observe(float64(len(ev.Result.Matches)))
	case events.LanguageChanged:
		m.languageChanges.WithLabelValues(ev.Language).Inc()
	case events.ServerStatusChanged:
		if ev.Status.Running {
			m.serverUp.Set(1)
			m.serverPort.Set(float64(ev.Status.Port))
		} else {
			m.serverUp.Set(0)
			m.serverPort.Set(0)
		}
		if errors.Is(ev.Err, server.ErrBindFailed) {
			m.serverBindFails.Inc()
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware counts requests by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}
