package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	UploadsTotal       prometheus.Counter
	UploadBytes        prometheus.Counter
	DownloadsTotal     *prometheus.CounterVec
	DeletesTotal       prometheus.Counter
	SharesCreatedTotal prometheus.Counter
	ShareAccessTotal   *prometheus.CounterVec
	SharesRevokedTotal prometheus.Counter
	SharesSweptTotal   prometheus.Counter

	LedgerPersistDuration *prometheus.HistogramVec
}

// NewCollector registers all collectors on a fresh registry so that
// several instances can coexist in tests.
func NewCollector(serviceName string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "path", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "path", "status"}),

		UploadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "records",
			Name:      "uploads_total",
			Help:      "Total records uploaded.",
		}),

		UploadBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "records",
			Name:      "upload_bytes_total",
			Help:      "Total bytes accepted by uploads.",
		}),

		DownloadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "records",
			Name:      "downloads_total",
			Help:      "Total record downloads by access path (owner or share).",
		}, []string{"via"}),

		DeletesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "records",
			Name:      "deletes_total",
			Help:      "Total records deleted.",
		}),

		SharesCreatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "share",
			Name:      "created_total",
			Help:      "Total share links created.",
		}),

		ShareAccessTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "share",
			Name:      "access_total",
			Help:      "Share link accesses by result.",
		}, []string{"result"}),

		SharesRevokedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "share",
			Name:      "revocations_total",
			Help:      "Total revoke requests that removed at least one link.",
		}),

		SharesSweptTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "share",
			Name:      "swept_total",
			Help:      "Expired share links removed by the sweeper.",
		}),

		LedgerPersistDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: serviceName,
			Subsystem: "ledger",
			Name:      "persist_duration_seconds",
			Help:      "Whole-document ledger write latency.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}, []string{"document"}),
	}
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
