// Package metrics exposes Prometheus collectors for the sort pipeline.
//
// A nil *Metrics is valid and records nothing, so components accept one
// without checking.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "autosort"

// Sort outcomes used as the "outcome" label.
const (
	OutcomeSorted       = "sorted"
	OutcomeCyclic       = "cyclic"
	OutcomeInvalidEntry = "invalid_entry"
	OutcomeGeneric      = "generic"
	OutcomeSkipped      = "skipped"
)

// Session init results used as the "result" label.
const (
	ResultReady       = "ready"
	ResultDegraded    = "degraded" // masterlist update failed
	ResultFailed      = "failed"
	ResultUnsupported = "unsupported"
)

// Metrics groups every collector.
type Metrics struct {
	Sorts        *prometheus.CounterVec
	SortDuration prometheus.Histogram
	ListReloads  prometheus.Counter
	SessionInits *prometheus.CounterVec
}

// New creates the collectors and registers them with reg when it is not
// nil. Registering twice on the same registry panics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Sorts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sorts_total",
			Help:      "Sort requests by outcome.",
		}, []string{"outcome"}),
		SortDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sort_duration_seconds",
			Help:      "Time from activity start to stop for engine sorts.",
			Buckets:   prometheus.DefBuckets,
		}),
		ListReloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "list_reloads_total",
			Help:      "Masterlist/userlist reloads performed by the list cache.",
		}),
		SessionInits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_inits_total",
			Help:      "Engine session initializations by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Sorts, m.SortDuration, m.ListReloads, m.SessionInits)
	}
	return m
}

// ObserveSort counts one sort outcome. d is ignored for skipped sorts.
func (m *Metrics) ObserveSort(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Sorts.WithLabelValues(outcome).Inc()
	if outcome != OutcomeSkipped {
		m.SortDuration.Observe(d.Seconds())
	}
}

// ObserveReload counts one list reload.
func (m *Metrics) ObserveReload() {
	if m == nil {
		return
	}
	m.ListReloads.Inc()
}

// ObserveSessionInit counts one session initialization.
func (m *Metrics) ObserveSessionInit(result string) {
	if m == nil {
		return
	}
	m.SessionInits.WithLabelValues(result).Inc()
}
