// Package metrics exposes request counters in the Prometheus format.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coffrefort"

// Download kinds.
const (
	DownloadOwner = "owner"
	DownloadShare = "share"
)

// Metrics owns a private registry so tests and multiple servers never clash.
type Metrics struct {
	registry      *prometheus.Registry
	uploads       *prometheus.CounterVec
	uploadedBytes prometheus.Counter
	downloads     *prometheus.CounterVec
	authFailures  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Upload attempts by outcome.",
		}, []string{"outcome"}),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Bytes accepted by successful uploads.",
		}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Downloads by kind and outcome.",
		}, []string{"kind", "outcome"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected authentications by HTTP status.",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.uploads,
		m.uploadedBytes,
		m.downloads,
		m.authFailures,
	)
	return m
}

// ObserveUpload counts one finished upload. Bytes are only added on success.
func (m *Metrics) ObserveUpload(outcome string, size int64) {
	m.uploads.WithLabelValues(outcome).Inc()
	if outcome == "success" && size > 0 {
		m.uploadedBytes.Add(float64(size))
	}
}

func (m *Metrics) ObserveDownload(kind, outcome string) {
	m.downloads.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveAuthFailure(status int) {
	m.authFailures.WithLabelValues(strconv.Itoa(status)).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
