// Package metrics exposes Prometheus instrumentation for the federation.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fedgraph"

// Recorder holds the federation's metrics. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	cacheHits     prometheus.Counter
	cacheMisses   *prometheus.CounterVec
	cacheWrites   prometheus.Counter
	invalidations prometheus.Counter

	sourceFetches  *prometheus.CounterVec
	sourceFailures *prometheus.CounterVec
	closeFailures  *prometheus.CounterVec

	planSize prometheus.Histogram
	writes   *prometheus.CounterVec
}

// New creates the metrics and registers them with reg. Collectors that are
// already registered (a second Recorder on the same registry) are reused.
func New(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Reads served from a fresh cached node",
		}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Reads that had to consult the sources, by reason",
		}, []string{"reason"}),
		cacheWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "writes_total",
			Help:      "Merged nodes written to the cache",
		}),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Cached nodes invalidated after writes",
		}),
		sourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "fetches_total",
			Help:      "Read requests sent to a source",
		}, []string{"source"}),
		sourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "failures_total",
			Help:      "Source requests that failed and degraded to no contribution",
		}, []string{"source"}),
		closeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "close_failures_total",
			Help:      "Connections that failed to close",
		}, []string{"source"}),
		planSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "merge",
			Name:      "plan_contributions",
			Help:      "Contributions per merge plan",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 16, 64},
		}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "writes_total",
			Help:      "Write commands routed to a source, by command kind",
		}, []string{"source", "kind"}),
	}
	if reg == nil {
		return r, nil
	}
	var err error
	if r.cacheHits, err = registerAs(reg, r.cacheHits); err != nil {
		return nil, err
	}
	if r.cacheWrites, err = registerAs(reg, r.cacheWrites); err != nil {
		return nil, err
	}
	if r.invalidations, err = registerAs(reg, r.invalidations); err != nil {
		return nil, err
	}
	if r.planSize, err = registerAs(reg, r.planSize); err != nil {
		return nil, err
	}
	for _, vec := range []**prometheus.CounterVec{&r.cacheMisses, &r.sourceFetches, &r.sourceFailures, &r.closeFailures, &r.writes} {
		if *vec, err = registerAs(reg, *vec); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// registerAs registers c, or returns the collector already registered under
// the same descriptor.
func registerAs[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (r *Recorder) CacheHit() {
	if r == nil {
		return
	}
	r.cacheHits.Inc()
}

// CacheMiss records why a read went to the sources: "absent", "expired",
// "stale-sources" or "no-plan".
func (r *Recorder) CacheMiss(reason string) {
	if r == nil {
		return
	}
	r.cacheMisses.WithLabelValues(reason).Inc()
}

func (r *Recorder) CacheWrite() {
	if r == nil {
		return
	}
	r.cacheWrites.Inc()
}

func (r *Recorder) Invalidation() {
	if r == nil {
		return
	}
	r.invalidations.Inc()
}

func (r *Recorder) SourceFetch(source string) {
	if r == nil {
		return
	}
	r.sourceFetches.WithLabelValues(source).Inc()
}

func (r *Recorder) SourceFailure(source string) {
	if r == nil {
		return
	}
	r.sourceFailures.WithLabelValues(source).Inc()
}

func (r *Recorder) CloseFailure(source string) {
	if r == nil {
		return
	}
	r.closeFailures.WithLabelValues(source).Inc()
}

func (r *Recorder) PlanSize(n int) {
	if r == nil {
		return
	}
	r.planSize.Observe(float64(n))
}

func (r *Recorder) Write(source, kind string) {
	if r == nil {
		return
	}
	r.writes.WithLabelValues(source, kind).Inc()
}
