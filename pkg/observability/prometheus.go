package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stackpm"

// Prometheus implements every hook interface with Prometheus collectors.
type Prometheus struct {
	registry prometheus.Gatherer

	conflicts        *prometheus.CounterVec
	resolveDuration  prometheus.Histogram
	resolvedPackages prometheus.Gauge

	packagesTotal   *prometheus.CounterVec
	packageDuration prometheus.Histogram

	cacheEvents *prometheus.CounterVec
	cacheBytes  prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpErrors   *prometheus.CounterVec
}

// NewPrometheus registers stackpm collectors on reg.
func NewPrometheus(reg *prometheus.Registry) *Prometheus {
	factory := promauto.With(reg)

	return &Prometheus{
		registry: reg,

		conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolve_conflicts_total",
			Help:      "Version conflicts by which side won",
		}, []string{"winner"}),

		resolveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolve_duration_seconds",
			Help:      "Duration of dependency resolution",
			Buckets:   prometheus.DefBuckets,
		}),

		resolvedPackages: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resolved_packages",
			Help:      "Size of the most recent resolved set",
		}),

		packagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "install_packages_total",
			Help:      "Package fetch-and-extract attempts by status",
		}, []string{"status"}),

		packageDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "install_package_duration_seconds",
			Help:      "Duration of one package fetch-and-extract",
			Buckets:   prometheus.DefBuckets,
		}),

		cacheEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_events_total",
			Help:      "Cache lookups and writes by key type and event",
		}, []string{"key_type", "event"}),

		cacheBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_written_bytes_total",
			Help:      "Bytes written to the metadata cache",
		}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Registry HTTP responses by host and status code",
		}, []string{"host", "code"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Registry HTTP request duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"host"}),

		httpErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Registry HTTP transport failures",
		}, []string{"host"}),
	}
}

// WriteToTextfile writes all collected metrics in the text exposition
// format, suitable for the node_exporter textfile collector.
func (p *Prometheus) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, p.registry)
}

func (p *Prometheus) OnResolveStart(context.Context, int) {}

func (p *Prometheus) OnConflict(_ context.Context, _, existing, _, chosen string) {
	winner := "proposed"
	if chosen == existing {
		winner = "existing"
	}
	p.conflicts.WithLabelValues(winner).Inc()
}

func (p *Prometheus) OnResolveComplete(_ context.Context, resolved int, d time.Duration, err error) {
	p.resolveDuration.Observe(d.Seconds())
	if err == nil {
		p.resolvedPackages.Set(float64(resolved))
	}
}

func (p *Prometheus) OnPackageInstalled(_ context.Context, _, _ string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	p.packagesTotal.WithLabelValues(status).Inc()
	p.packageDuration.Observe(d.Seconds())
}

func (p *Prometheus) OnInstallComplete(context.Context, int, int, time.Duration) {}

func (p *Prometheus) OnCacheHit(_ context.Context, keyType string) {
	p.cacheEvents.WithLabelValues(keyType, "hit").Inc()
}

func (p *Prometheus) OnCacheMiss(_ context.Context, keyType string) {
	p.cacheEvents.WithLabelValues(keyType, "miss").Inc()
}

func (p *Prometheus) OnCacheSet(_ context.Context, keyType string, size int) {
	p.cacheEvents.WithLabelValues(keyType, "set").Inc()
	p.cacheBytes.Add(float64(size))
}

func (p *Prometheus) OnRequest(context.Context, string, string, string) {}

func (p *Prometheus) OnResponse(_ context.Context, _, host, _ string, code int, d time.Duration) {
	p.httpRequests.WithLabelValues(host, strconv.Itoa(code)).Inc()
	p.httpDuration.WithLabelValues(host).Observe(d.Seconds())
}

func (p *Prometheus) OnError(_ context.Context, _, host, _ string, _ error) {
	p.httpErrors.WithLabelValues(host).Inc()
}

var _ AllHooks = (*Prometheus)(nil)
