package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DomainMetrics counts the money-moving operations of the service.
type DomainMetrics struct {
	settlements     *prometheus.CounterVec
	payouts         *prometheus.CounterVec
	outboxPublished prometheus.Counter
	outboxDLQ       prometheus.Counter
}

// NewDomainMetrics registers settlement/payout/outbox counters on the registerer.
func NewDomainMetrics(reg prometheus.Registerer) *DomainMetrics {
	if reg == nil {
		return &DomainMetrics{}
	}
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlements_total",
		Help: "Booking settlements by outcome (settled, already_settled, failed).",
	}, []string{"outcome"})
	payouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_requests_total",
		Help: "Payout requests by resulting status.",
	}, []string{"status"})
	outboxPublished := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_events_published_total",
		Help: "Outbox events successfully published to Pub/Sub.",
	})
	outboxDLQ := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_events_dead_lettered_total",
		Help: "Outbox events parked in the DLQ.",
	})
	reg.MustRegister(settlements, payouts, outboxPublished, outboxDLQ)
	return &DomainMetrics{
		settlements:     settlements,
		payouts:         payouts,
		outboxPublished: outboxPublished,
		outboxDLQ:       outboxDLQ,
	}
}

// IncSettlement counts one settlement attempt by outcome.
func (d *DomainMetrics) IncSettlement(outcome string) {
	if d == nil || d.settlements == nil {
		return
	}
	d.settlements.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncPayout counts one payout request by resulting status.
func (d *DomainMetrics) IncPayout(status string) {
	if d == nil || d.payouts == nil {
		return
	}
	d.payouts.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncOutboxPublished counts one published outbox event.
func (d *DomainMetrics) IncOutboxPublished() {
	if d == nil || d.outboxPublished == nil {
		return
	}
	d.outboxPublished.Inc()
}

// IncOutboxDeadLettered counts one dead-lettered outbox event.
func (d *DomainMetrics) IncOutboxDeadLettered() {
	if d == nil || d.outboxDLQ == nil {
		return
	}
	d.outboxDLQ.Inc()
}
