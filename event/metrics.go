package event

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the prometheus collectors of a Dispatcher. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	publishTotal    *prometheus.CounterVec
	deliveriesTotal *prometheus.CounterVec
	failuresTotal   *prometheus.CounterVec
	invalidTotal    *prometheus.CounterVec
	handlers        *prometheus.GaugeVec
}

// NewMetrics creates the dispatcher collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		publishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "event",
				Name:      "publish_total",
				Help:      "Total number of publish calls that passed validation",
			},
			[]string{"event"},
		),
		deliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "event",
				Name:      "deliveries_total",
				Help:      "Total number of handler invocations",
			},
			[]string{"event"},
		),
		failuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "event",
				Name:      "handler_failures_total",
				Help:      "Total number of handler invocations that returned an error or panicked",
			},
			[]string{"event"},
		),
		invalidTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "event",
				Name:      "invalid_arguments_total",
				Help:      "Total number of missing or invalid operation parameters",
			},
			[]string{"op"},
		),
		handlers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "event",
				Name:      "handlers",
				Help:      "Registered handlers per event",
			},
			[]string{"event"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.publishTotal, m.deliveriesTotal, m.failuresTotal, m.invalidTotal, m.handlers,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) published(event string) {
	if m != nil {
		m.publishTotal.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) delivered(event string) {
	if m != nil {
		m.deliveriesTotal.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) failed(event string) {
	if m != nil {
		m.failuresTotal.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) rejected(op string) {
	if m != nil {
		m.invalidTotal.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) setHandlers(event string, n int) {
	if m == nil {
		return
	}
	if n == 0 {
		m.handlers.DeleteLabelValues(event)
		return
	}
	m.handlers.WithLabelValues(event).Set(float64(n))
}
