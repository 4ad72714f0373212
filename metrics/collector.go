// Package metrics records sign-in outcomes as Prometheus metrics by observing
// the coordinator's published states.
package metrics

import (
	"sync"

	"github.com/Rajat-Ahuja1997/last-time/auth"
	"github.com/Rajat-Ahuja1997/last-time/sessions"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector is an auth.Observer backed by Prometheus metrics.
type Collector struct {
	attempts      *prometheus.CounterVec
	failures      *prometheus.CounterVec
	successes     *prometheus.CounterVec
	duration      prometheus.Histogram
	authenticated prometheus.Gauge

	lock    sync.Mutex
	loading *auth.AuthState // Last Loading state, until its attempt finishes
}

// NewCollector creates the collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lasttime_auth_signin_attempts_total",
			Help: "Sign-in attempts started, by provider.",
		}, []string{"provider"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lasttime_auth_signin_failures_total",
			Help: "Sign-in attempts that ended in an error, by provider and error kind.",
		}, []string{"provider", "kind"}),
		successes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lasttime_auth_signin_success_total",
			Help: "Sign-in attempts that produced a stored session, by provider.",
		}, []string{"provider"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lasttime_auth_signin_duration_seconds",
			Help:    "Time spent in the loading state per sign-in attempt.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		authenticated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lasttime_auth_authenticated",
			Help: "1 while a session is published, 0 otherwise.",
		}),
	}

	reg.MustRegister(
		c.attempts,
		c.failures,
		c.successes,
		c.duration,
		c.authenticated,
	)

	return c
}

// Observe records one published state. Pass it to Coordinator.Subscribe.
func (c *Collector) Observe(s auth.AuthState) {
	c.lock.Lock()
	defer c.lock.Unlock()

	switch s.Status {
	case auth.StatusLoading:
		c.attempts.WithLabelValues(s.Provider.String()).Inc()
		loading := s
		c.loading = &loading
	case auth.StatusAuthenticated:
		c.authenticated.Set(1)
		if c.finish(s) {
			c.successes.WithLabelValues(s.Provider.String()).Inc()
		}
	case auth.StatusError:
		if s.Err != nil && c.finish(s) {
			c.failures.WithLabelValues(providerLabel(s.Provider), string(s.Err.Kind)).Inc()
		}
		c.authenticated.Set(0)
	case auth.StatusUnauthenticated:
		c.authenticated.Set(0)
		c.finish(s)
	}
}

// finish closes the pending attempt, if any, and reports whether there was one.
func (c *Collector) finish(s auth.AuthState) bool {
	if c.loading == nil {
		return false
	}
	if elapsed := s.At.Sub(c.loading.At); elapsed >= 0 {
		c.duration.Observe(elapsed.Seconds())
	}
	c.loading = nil
	return true
}

func providerLabel(p sessions.Provider) string {
	if p == "" {
		return "none"
	}
	return p.String()
}
