package mqtt

import "github.com/prometheus/client_golang/prometheus"

// metricsCollector exports Session activity as Prometheus metrics, for
// fleets of embedded devices that want the same counters and gauges
// their other Go services expose. Session works without one;
// WithMetrics attaches it explicitly.
type metricsCollector struct {
	publishesTotal   *prometheus.CounterVec
	retransmitsTotal prometheus.Counter
	throttleDelay    prometheus.Gauge
}

// NewMetrics builds a collector and registers it with reg. Pass
// prometheus.DefaultRegisterer to use the global registry.
func NewMetrics(reg prometheus.Registerer, namespace string) *metricsCollector {
	m := &metricsCollector{
		publishesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_publishes_total",
			Help:      "PUBLISH packets sent, by QoS level.",
		}, []string{"qos"}),
		retransmitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_retransmits_total",
			Help:      "Messages resent after exceeding the ack timeout.",
		}),
		throttleDelay: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mqtt_throttle_delay_seconds",
			Help:      "Current outbound throttle delay.",
		}),
	}
	reg.MustRegister(m.publishesTotal, m.retransmitsTotal, m.throttleDelay)
	return m
}

func (m *metricsCollector) observePublish(qos QoS) {
	switch qos {
	case QoS0:
		m.publishesTotal.WithLabelValues("0").Inc()
	case QoS1:
		m.publishesTotal.WithLabelValues("1").Inc()
	case QoS2:
		m.publishesTotal.WithLabelValues("2").Inc()
	}
}

func (m *metricsCollector) observeRetransmit() {
	m.retransmitsTotal.Inc()
}

func (m *metricsCollector) observeThrottleDelay(seconds float64) {
	m.throttleDelay.Set(seconds)
}
