// Package metrics holds the prometheus collectors of the link engine.
//
// A nil *Metrics is valid and records nothing, so components take one
// optionally.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "authsync"

// Metrics groups the engine's collectors.
type Metrics struct {
	Reconciliations    prometheus.Counter
	LinksPersisted     prometheus.Counter
	LinksDeleted       prometheus.Counter
	EventsPublished    *prometheus.CounterVec
	UnsupportedChanges prometheus.Counter
	PropagationReplays *prometheus.CounterVec
	OutboxRelayed      prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Reconciliations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Instance link reconciliations performed.",
		}),
		LinksPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_persisted_total",
			Help:      "Instance-authority links created or updated.",
		}),
		LinksDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_deleted_total",
			Help:      "Instance-authority links deleted.",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_events_total",
			Help:      "Change events published, by type and outcome.",
		}, []string{"type", "outcome"}),
		UnsupportedChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unsupported_changes_total",
			Help:      "Authority updates whose propagation was abandoned.",
		}),
		PropagationReplays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consortium_replays_total",
			Help:      "Consortium member replays, by entity and outcome.",
		}, []string{"entity", "outcome"}),
		OutboxRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_relayed_total",
			Help:      "Outbox records forwarded to the broker.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Reconciliations,
			m.LinksPersisted,
			m.LinksDeleted,
			m.EventsPublished,
			m.UnsupportedChanges,
			m.PropagationReplays,
			m.OutboxRelayed,
		)
	}
	return m
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Reconciled records one reconciliation and its link counts.
func (m *Metrics) Reconciled(persisted, deleted int) {
	if m == nil {
		return
	}
	m.Reconciliations.Inc()
	m.LinksPersisted.Add(float64(persisted))
	m.LinksDeleted.Add(float64(deleted))
}

// LinksRemoved records links deleted outside reconciliation.
func (m *Metrics) LinksRemoved(n int) {
	if m == nil {
		return
	}
	m.LinksDeleted.Add(float64(n))
}

// EventPublished records one published event.
func (m *Metrics) EventPublished(eventType string, err error) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(eventType, outcome(err)).Inc()
}

// UnsupportedChange records an abandoned authority update.
func (m *Metrics) UnsupportedChange() {
	if m == nil {
		return
	}
	m.UnsupportedChanges.Inc()
}

// Replayed records one consortium member replay.
func (m *Metrics) Replayed(entity string, err error) {
	if m == nil {
		return
	}
	m.PropagationReplays.WithLabelValues(entity, outcome(err)).Inc()
}

// Relayed records outbox records forwarded.
func (m *Metrics) Relayed(n int) {
	if m == nil {
		return
	}
	m.OutboxRelayed.Add(float64(n))
}
