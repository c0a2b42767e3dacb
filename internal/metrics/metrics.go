// Package metrics exposes Prometheus instrumentation for conversions,
// imports and the conversion cache.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dgallion1/wikiadf/internal/convert"
)

// Metrics owns a private registry so several servers (and tests) can run
// in one process.
type Metrics struct {
	registry *prometheus.Registry

	Conversions        *prometheus.CounterVec
	ConversionDuration *prometheus.HistogramVec
	InputBytes         *prometheus.HistogramVec
	Imports            *prometheus.CounterVec
	ImportDuration     *prometheus.HistogramVec
}

// New registers all collectors. cacheStats may be nil.
func New(cacheStats func() convert.CacheStats) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		Conversions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikiadf_conversions_total",
				Help: "Conversions by mode, status and error kind",
			},
			[]string{"mode", "status", "kind"},
		),
		ConversionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wikiadf_conversion_duration_seconds",
				Help:    "Time spent converting a document",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"mode"},
		),
		InputBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wikiadf_conversion_input_bytes",
				Help:    "Size of conversion sources",
				Buckets: prometheus.ExponentialBuckets(64, 4, 10),
			},
			[]string{"mode"},
		),
		Imports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikiadf_imports_total",
				Help: "Imported files by extension and result",
			},
			[]string{"format", "result"},
		),
		ImportDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wikiadf_import_duration_seconds",
				Help:    "Time spent importing a file",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format"},
		),
	}

	if cacheStats != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "wikiadf_cache_entries",
			Help: "Conversions currently cached",
		}, func() float64 { return float64(cacheStats().Entries) })
		factory.NewCounterFunc(prometheus.CounterOpts{
			Name: "wikiadf_cache_hits_total",
			Help: "Conversion cache hits",
		}, func() float64 { return float64(cacheStats().Hits) })
		factory.NewCounterFunc(prometheus.CounterOpts{
			Name: "wikiadf_cache_misses_total",
			Help: "Conversion cache misses",
		}, func() float64 { return float64(cacheStats().Misses) })
	}
	return m
}

// ObserveConversion records one conversion. kind is empty unless the
// conversion failed and is exported as "none".
func (m *Metrics) ObserveConversion(mode convert.Mode, status convert.Status, kind string, inputBytes int, d time.Duration) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "none"
	}
	m.Conversions.WithLabelValues(string(mode), string(status), kind).Inc()
	m.ConversionDuration.WithLabelValues(string(mode)).Observe(d.Seconds())
	m.InputBytes.WithLabelValues(string(mode)).Observe(float64(inputBytes))
}

// ObserveImport records one import; result is "ok", "empty" or "error".
func (m *Metrics) ObserveImport(format, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Imports.WithLabelValues(format, result).Inc()
	m.ImportDuration.WithLabelValues(format).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
