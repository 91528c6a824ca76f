package loader

import "github.com/prometheus/client_golang/prometheus"

// cacheMetrics is a thin abstraction over Prometheus so the Loader can run
// with or without metrics (Voskan-arena-cache pkg/metrics.go shape). When
// Config.MetricsEnabled is false a no-op sink is used and the hot path does
// not pay for a single atomic increment.
type cacheMetrics interface {
	incHit(cache string)
	incMiss(cache string)
	incPublish(cache string)
}

type noopMetrics struct{}

func (noopMetrics) incHit(string)     {}
func (noopMetrics) incMiss(string)    {}
func (noopMetrics) incPublish(string) {}

type promMetrics struct {
	hits     *prometheus.CounterVec
	misses   *prometheus.CounterVec
	publishes *prometheus.CounterVec
}

// newPromMetrics registers the Loader's counters against reg. Each metric
// is labeled by cache name ("module", "script", "type") so a single
// dashboard panel can break down hit rate per cache.
func newPromMetrics(reg prometheus.Registerer) *promMetrics {
	m := &promMetrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prismvm_loader_cache_hits_total",
			Help: "Number of cache lookups that found an existing entry.",
		}, []string{"cache"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prismvm_loader_cache_misses_total",
			Help: "Number of cache lookups that found nothing.",
		}, []string{"cache"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prismvm_loader_cache_publishes_total",
			Help: "Number of successful first-time publications into a cache.",
		}, []string{"cache"}),
	}
	if reg != nil {
		reg.MustRegister(m.hits, m.misses, m.publishes)
	}
	return m
}

func (m *promMetrics) incHit(cache string)     { m.hits.WithLabelValues(cache).Inc() }
func (m *promMetrics) incMiss(cache string)    { m.misses.WithLabelValues(cache).Inc() }
func (m *promMetrics) incPublish(cache string) { m.publishes.WithLabelValues(cache).Inc() }
