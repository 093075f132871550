package metrics

import "github.com/prometheus/client_golang/prometheus"

// WizardMetrics exposes counters/histograms for booking wizard flows.
type WizardMetrics struct {
	recalcTotal     *prometheus.CounterVec
	bookingsTotal   *prometheus.CounterVec
	stepAdvances    *prometheus.CounterVec
	crmCallLatency  *prometheus.HistogramVec
	crmCallFailures *prometheus.CounterVec
}

func NewWizardMetrics(reg prometheus.Registerer) *WizardMetrics {
	m := &WizardMetrics{
		recalcTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clensy",
			Subsystem: "wizard",
			Name:      "price_recalc_total",
			Help:      "Total price recalculations by trigger",
		}, []string{"trigger", "status"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clensy",
			Subsystem: "wizard",
			Name:      "bookings_total",
			Help:      "Total booking finalizations",
		}, []string{"status"}),
		stepAdvances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clensy",
			Subsystem: "wizard",
			Name:      "step_advance_total",
			Help:      "Total forward step transitions",
		}, []string{"step"}),
		crmCallLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clensy",
			Subsystem: "quoting",
			Name:      "call_latency_seconds",
			Help:      "Latency of quoting CRM calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		crmCallFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clensy",
			Subsystem: "quoting",
			Name:      "call_failures_total",
			Help:      "Total failed quoting CRM calls",
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.recalcTotal, m.bookingsTotal, m.stepAdvances, m.crmCallLatency, m.crmCallFailures)
	return m
}

func (m *WizardMetrics) ObserveRecalc(trigger, status string) {
	if m == nil {
		return
	}
	m.recalcTotal.WithLabelValues(trigger, status).Inc()
}

func (m *WizardMetrics) ObserveBooking(status string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(status).Inc()
}

func (m *WizardMetrics) ObserveStepAdvance(step string) {
	if m == nil {
		return
	}
	m.stepAdvances.WithLabelValues(step).Inc()
}

func (m *WizardMetrics) ObserveCRMCall(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.crmCallLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *WizardMetrics) ObserveCRMFailure(operation string) {
	if m == nil {
		return
	}
	m.crmCallFailures.WithLabelValues(operation).Inc()
}
