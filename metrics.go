package bconn

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of the connection core. A nil *Metrics records nothing.
//
// Metrics:
//   - connections_active: connections currently open
//   - connections_total: connections accepted
//   - received_bytes_total / sent_bytes_total: bytes read from and written to clients
//   - requests_parsed_total: complete requests taken from connection buffers
//   - requests_rejected_total: error responses sent without dispatch, by code
//   - dispatch_failures_total: dispatches that ended in an error response
//   - dispatch_duration_seconds: time spent inside the dispatcher
type Metrics struct {
	connsActive      prometheus.Gauge
	connsTotal       prometheus.Counter
	receivedBytes    prometheus.Counter
	sentBytes        prometheus.Counter
	requestsParsed   prometheus.Counter
	requestsRejected *prometheus.CounterVec
	dispatchFailures prometheus.Counter
	dispatchDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		connsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "connections_active",
			Help:      "Number of client connections currently open",
		}),
		connsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "connections_total",
			Help:      "Total number of client connections accepted",
		}),
		receivedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "received_bytes_total",
			Help:      "Total number of bytes received from clients",
		}),
		sentBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "sent_bytes_total",
			Help:      "Total number of bytes written to clients",
		}),
		requestsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "requests_parsed_total",
			Help:      "Total number of complete requests parsed",
		}),
		requestsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "requests_rejected_total",
			Help:      "Total number of error responses sent without dispatching a request",
		}, []string{"code"}),
		dispatchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "dispatch_failures_total",
			Help:      "Total number of dispatches that failed",
		}),
		dispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent dispatching a request",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{
		m.connsActive, m.connsTotal, m.receivedBytes, m.sentBytes,
		m.requestsParsed, m.requestsRejected, m.dispatchFailures, m.dispatchDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) connOpened() {
	if m == nil {
		return
	}

	m.connsTotal.Inc()
	m.connsActive.Inc()
}

func (m *Metrics) connClosed() {
	if m == nil {
		return
	}

	m.connsActive.Dec()
}

func (m *Metrics) received(n int) {
	if m == nil {
		return
	}

	m.receivedBytes.Add(float64(n))
}

func (m *Metrics) sent(n int) {
	if m == nil {
		return
	}

	m.sentBytes.Add(float64(n))
}

func (m *Metrics) parsed() {
	if m == nil {
		return
	}

	m.requestsParsed.Inc()
}

func (m *Metrics) rejected(c Code) {
	if m == nil {
		return
	}

	m.requestsRejected.WithLabelValues(strconv.Itoa(int(c))).Inc()
}

func (m *Metrics) dispatched(took time.Duration, failed bool) {
	if m == nil {
		return
	}

	m.dispatchDuration.Observe(took.Seconds())
	if failed {
		m.dispatchFailures.Inc()
	}
}
