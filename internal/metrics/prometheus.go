package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"labeldesk/internal/dispatch"
)

const defaultNamespace = "labeldesk"

// PrometheusCollector implements dispatch.Metrics backed by Prometheus.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	assignments   *prometheus.CounterVec
	submissions   *prometheus.CounterVec
	skips         *prometheus.CounterVec
	staleEvents   *prometheus.CounterVec
	storeMisses   prometheus.Counter
	noWork        prometheus.Counter
	dropped       prometheus.Counter
	backlogDepth  prometheus.Gauge
	sessionsGauge prometheus.Gauge
}

var _ dispatch.Metrics = (*PrometheusCollector)(nil)

// NewPrometheus creates a collector that registers its metrics with reg on
// first use. A nil reg uses prometheus.DefaultRegisterer; an empty namespace
// uses "labeldesk".
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.assignments = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "dispatch",
			Name:      "assignments_total",
			Help:      "Items delivered to sessions by origin (backlog, redelivery, handoff, previous, refresh).",
		}, []string{"origin"})
		p.submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "dispatch",
			Name:      "submissions_total",
			Help:      "Accepted submissions by whether the result became complete.",
		}, []string{"complete"})
		p.skips = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "dispatch",
			Name:      "skips_total",
			Help:      "Skips by disposition (handoff, queued, refresh, completed).",
		}, []string{"disposition"})
		p.staleEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "dispatch",
			Name:      "stale_events_total",
			Help:      "Session events ignored because they no longer matched engine state.",
		}, []string{"event"})
		p.storeMisses = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "dispatch",
			Name:      "store_misses_total",
			Help:      "Candidates whose metadata or image bytes could not be loaded.",
		})
		p.noWork = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "dispatch",
			Name:      "no_work_total",
			Help:      "Ready requests answered with no work available.",
		})
		p.dropped = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "hub",
			Name:      "notifications_dropped_total",
			Help:      "Notifications dropped because a session buffer was full.",
		})
		p.backlogDepth = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "dispatch",
			Name:      "backlog_depth",
			Help:      "Items waiting in the shared backlog.",
		})
		p.sessionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "dispatch",
			Name:      "sessions_connected",
			Help:      "Currently connected worker sessions.",
		})

		p.reg.MustRegister(
			p.assignments,
			p.submissions,
			p.skips,
			p.staleEvents,
			p.storeMisses,
			p.noWork,
			p.dropped,
			p.backlogDepth,
			p.sessionsGauge,
		)
	})
}

// Assigned counts a delivery to a session.
func (p *PrometheusCollector) Assigned(origin dispatch.Origin) {
	p.ensureRegistered()
	p.assignments.WithLabelValues(string(origin)).Inc()
}

// Submitted counts an accepted submission.
func (p *PrometheusCollector) Submitted(complete bool) {
	p.ensureRegistered()
	p.submissions.WithLabelValues(strconv.FormatBool(complete)).Inc()
}

func (p *PrometheusCollector) Skipped(disposition string) {
	p.ensureRegistered()
	p.skips.WithLabelValues(disposition).Inc()
}

func (p *PrometheusCollector) StaleEvent(event string) {
	p.ensureRegistered()
	p.staleEvents.WithLabelValues(event).Inc()
}

func (p *PrometheusCollector) StoreMiss() {
	p.ensureRegistered()
	p.storeMisses.Inc()
}

func (p *PrometheusCollector) NoWork() {
	p.ensureRegistered()
	p.noWork.Inc()
}

func (p *PrometheusCollector) NotificationDropped() {
	p.ensureRegistered()
	p.dropped.Inc()
}

// BacklogDepth sets the backlog gauge.
func (p *PrometheusCollector) BacklogDepth(n int) {
	p.ensureRegistered()
	p.backlogDepth.Set(float64(n))
}

// Sessions sets the connected sessions gauge.
func (p *PrometheusCollector) Sessions(n int) {
	p.ensureRegistered()
	p.sessionsGauge.Set(float64(n))
}
