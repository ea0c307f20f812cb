package bcapp

import (
	"github.com/advdv/bconn"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// NewRegistry creates the Prometheus registry of the app with the Go runtime and process collectors
// registered.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return reg
}

// NewMetrics registers the connection metrics under BC_METRICS_NAMESPACE.
func NewMetrics(reg *prometheus.Registry, env Environment) (*bconn.Metrics, error) {
	m, err := bconn.NewMetrics(reg, env.metricsNamespace())
	if err != nil {
		return nil, errors.Wrap(err, "register connection metrics")
	}

	return m, nil
}
