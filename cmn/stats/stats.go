// Package stats is the metrics surface spec.md §6 budgets outside the
// core proper: counters for every LocalKV/Pool operation and a
// histogram of IOM round-trip latency, exported the way the teacher's
// own stats package exports theirs — as `prometheus/client_golang`
// collectors registered against a single process-wide registry.
/*
 * Copyright (c) 2024, Sandia National Laboratories.
 */
package stats

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tracker holds every collector this module exports. A process
// constructs exactly one and shares it across its LocalKV/Pool
// instances; it is safe for concurrent use.
type Tracker struct {
	registry *prometheus.Registry

	ops       *prometheus.CounterVec // op in {put,get,drop,list}, result is a cmn.Kind string ("Ok", "NotFound", ...)
	cacheHits *prometheus.CounterVec // outcome in {hit,miss}
	iomLatency *prometheus.HistogramVec // op in {write,read,info,list}
}

// New builds a Tracker with its own registry, so embedding applications
// don't collide with prometheus's global DefaultRegisterer.
func New() *Tracker {
	t := &Tracker{
		registry: prometheus.NewRegistry(),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kelpie",
			Name:      "ops_total",
			Help:      "Count of LocalKV/Pool operations by kind and result.",
		}, []string{"op", "result"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kelpie",
			Name:      "cache_total",
			Help:      "Count of local-memory cache hits and misses on get/getForOp.",
		}, []string{"outcome"}),
		iomLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kelpie",
			Name:      "iom_latency_seconds",
			Help:      "Latency of IOM backend calls by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	t.registry.MustRegister(t.ops, t.cacheHits, t.iomLatency)
	return t
}

// Handler exposes the tracker's registry for scraping.
func (t *Tracker) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Op records the result of a single LocalKV/Pool operation, keyed by
// the cmn.Kind string ("Ok", "NotFound", ...) callers already have on
// hand.
func (t *Tracker) Op(op, result string) {
	t.ops.WithLabelValues(op, result).Inc()
}

func (t *Tracker) CacheHit()  { t.cacheHits.WithLabelValues("hit").Inc() }
func (t *Tracker) CacheMiss() { t.cacheHits.WithLabelValues("miss").Inc() }

// ObserveIOM records how long an IOM backend call of the given kind
// took. Call with defer and time.Since for a one-liner at the call
// site: `defer t.ObserveIOM("write", time.Now())`.
func (t *Tracker) ObserveIOM(op string, start time.Time) {
	t.iomLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
