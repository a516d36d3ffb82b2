// Package metrics exposes prometheus instrumentation for the sync core and
// the ledger, served on /metrics from a private registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	eventsApplied     *prometheus.CounterVec
	duplicatesDropped *prometheus.CounterVec
	pollReconciles    *prometheus.CounterVec
	channelErrors     *prometheus.CounterVec
	activeAttachments *prometheus.GaugeVec

	expensesRecorded prometheus.Counter
	expenseCents     prometheus.Counter
	splitsCreated    prometheus.Counter
	splitsSettled    prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		eventsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hearth_sync_events_applied_total",
			Help: "Change events merged into a view snapshot, by view and kind.",
		}, []string{"view", "kind"}),
		duplicatesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hearth_sync_duplicate_inserts_dropped_total",
			Help: "Insert events dropped because the row was already present.",
		}, []string{"view"}),
		pollReconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hearth_sync_poll_reconciles_total",
			Help: "Polling reconciliation passes that replaced a snapshot.",
		}, []string{"view"}),
		channelErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hearth_sync_channel_errors_total",
			Help: "Push channel failures that degraded a view to polling.",
		}, []string{"view"}),
		activeAttachments: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hearth_sync_active_attachments",
			Help: "Currently attached (view, scope) pairs.",
		}, []string{"view"}),

		expensesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hearth_ledger_expenses_recorded_total",
			Help: "Expenses written to the ledger.",
		}),
		expenseCents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hearth_ledger_expense_cents_total",
			Help: "Total recorded expense amount in cents.",
		}),
		splitsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hearth_ledger_splits_created_total",
			Help: "Debt splits created by expense recording.",
		}),
		splitsSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hearth_ledger_splits_settled_total",
			Help: "Splits marked settled.",
		}),
	}

	m.registry.MustRegister(
		m.eventsApplied,
		m.duplicatesDropped,
		m.pollReconciles,
		m.channelErrors,
		m.activeAttachments,
		m.expensesRecorded,
		m.expenseCents,
		m.splitsCreated,
		m.splitsSettled,
	)
	return m
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// --- realtime.Metrics ---

func (m *Metrics) EventApplied(view, kind string) {
	m.eventsApplied.WithLabelValues(view, kind).Inc()
}

func (m *Metrics) DuplicateDropped(view string) {
	m.duplicatesDropped.WithLabelValues(view).Inc()
}

func (m *Metrics) PollReconcile(view string) {
	m.pollReconciles.WithLabelValues(view).Inc()
}

func (m *Metrics) ChannelError(view string) {
	m.channelErrors.WithLabelValues(view).Inc()
}

func (m *Metrics) AttachmentActive(view string, delta int) {
	m.activeAttachments.WithLabelValues(view).Add(float64(delta))
}

// --- ledger.Metrics ---

func (m *Metrics) ExpenseRecorded(amountCents int64) {
	m.expensesRecorded.Inc()
	m.expenseCents.Add(float64(amountCents))
}

func (m *Metrics) SplitsCreated(n int) {
	m.splitsCreated.Add(float64(n))
}

func (m *Metrics) SplitSettled() {
	m.splitsSettled.Inc()
}
