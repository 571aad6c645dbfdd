package despertador

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the scheduling counters. A nil *Metrics records nothing.
type Metrics struct {
	created   *prometheus.CounterVec
	cancelled *prometheus.CounterVec
	failures  *prometheus.CounterVec
	denied    prometheus.Counter
	events    *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "despertador",
			Name:      "tickets_created_total",
			Help:      "Triggers armed with the notification backend.",
		}, []string{"kind"}),
		cancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "despertador",
			Name:      "tickets_cancelled_total",
			Help:      "Live triggers cancelled or superseded.",
		}, []string{"kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "despertador",
			Name:      "backend_errors_total",
			Help:      "Notification backend calls that failed.",
		}, []string{"op"}),
		denied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "despertador",
			Name:      "schedule_denied_total",
			Help:      "Schedule calls refused by the permission gate.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "despertador",
			Name:      "events_total",
			Help:      "Backend events seen by the dispatcher.",
		}, []string{"type", "outcome"}),
	}
	reg.MustRegister(m.created, m.cancelled, m.failures, m.denied, m.events)
	return m
}

func (m *Metrics) ticketCreated(kind TicketKind) {
	if m != nil {
		m.created.WithLabelValues(kind.String()).Inc()
	}
}

func (m *Metrics) ticketCancelled(kind TicketKind) {
	if m != nil {
		m.cancelled.WithLabelValues(kind.String()).Inc()
	}
}

func (m *Metrics) backendFailed(op string) {
	if m != nil {
		m.failures.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) scheduleDenied() {
	if m != nil {
		m.denied.Inc()
	}
}

func (m *Metrics) event(t EventType, outcome string) {
	if m != nil {
		m.events.WithLabelValues(t.String(), outcome).Inc()
	}
}

var pendingDesc = prometheus.NewDesc(
	"despertador_tickets_pending",
	"Triggers currently armed, by kind.",
	[]string{"kind"}, nil,
)

// PendingCollector reports the Scheduler's live tickets at scrape time.
type PendingCollector struct {
	Scheduler *Scheduler
}

var _ prometheus.Collector = (*PendingCollector)(nil)

func (c *PendingCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- pendingDesc
}

func (c *PendingCollector) Collect(ch chan<- prometheus.Metric) {
	counts := make(map[TicketKind]int, len(TicketKinds))
	for _, t := range c.Scheduler.Pending() {
		counts[t.Kind]++
	}
	for _, kind := range TicketKinds {
		ch <- prometheus.MustNewConstMetric(pendingDesc, prometheus.GaugeValue, float64(counts[kind]), kind.String())
	}
}
