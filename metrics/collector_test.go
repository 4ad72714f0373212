package metrics_test

import (
	"testing"
	"time"

	"github.com/Rajat-Ahuja1997/last-time/auth"
	"github.com/Rajat-Ahuja1997/last-time/metrics"
	"github.com/Rajat-Ahuja1997/last-time/sessions"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func at(s auth.AuthState, offset time.Duration) auth.AuthState {
	s.At = t0.Add(offset)
	return s
}

// gather indexes every sample by metric name and label values.
func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	out := make(map[string]*dto.Metric)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				key += "|" + lp.GetValue()
			}
			out[key] = m
		}
	}
	return out
}

func TestCollector_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)
	session := sessions.Session{UserID: "u1", Provider: sessions.ProviderGoogle}

	c.Observe(at(auth.Unauthenticated(), 0))
	c.Observe(at(auth.Loading(sessions.ProviderGoogle), time.Second))
	c.Observe(at(auth.Authenticated(session), 3*time.Second))

	c.Observe(at(auth.Loading(sessions.ProviderApple), 10*time.Second))
	c.Observe(at(auth.Failed(&auth.Error{Kind: auth.KindTimeout, Provider: sessions.ProviderApple}), 15*time.Second))

	got := gather(t, reg)
	require.Equal(t, 1.0, got["lasttime_auth_signin_attempts_total|google"].GetCounter().GetValue())
	require.Equal(t, 1.0, got["lasttime_auth_signin_attempts_total|apple"].GetCounter().GetValue())
	require.Equal(t, 1.0, got["lasttime_auth_signin_success_total|google"].GetCounter().GetValue())
	require.Equal(t, 1.0, got["lasttime_auth_signin_failures_total|apple|timeout"].GetCounter().GetValue())
	require.Equal(t, 0.0, got["lasttime_auth_authenticated"].GetGauge().GetValue())

	hist := got["lasttime_auth_signin_duration_seconds"].GetHistogram()
	require.Equal(t, uint64(2), hist.GetSampleCount())
	require.InDelta(t, 7.0, hist.GetSampleSum(), 1e-9)
}

func TestCollector_RestoredSessionIsNotAnAttempt(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.Observe(at(auth.Authenticated(sessions.Session{UserID: "u1", Provider: sessions.ProviderApple}), 0))

	got := gather(t, reg)
	require.Equal(t, 1.0, got["lasttime_auth_authenticated"].GetGauge().GetValue())
	require.NotContains(t, got, "lasttime_auth_signin_success_total|apple")
	require.Zero(t, got["lasttime_auth_signin_duration_seconds"].GetHistogram().GetSampleCount())
}
