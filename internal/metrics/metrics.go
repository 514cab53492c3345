package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service counters on a dedicated registry
type Metrics struct {
	registry *prometheus.Registry

	Logins           *prometheus.CounterVec
	LicensesExpired  prometheus.Counter
	SessionRotations prometheus.Counter
}

// New creates the counters together with the Go runtime and process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gym_login_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		LicensesExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "gym_license_expired_total",
			Help: "Licenses moved from active to expired at login.",
		}),
		SessionRotations: factory.NewCounter(prometheus.CounterOpts{
			Name: "gym_session_rotations_total",
			Help: "Sessions replaced by a new login.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
