// Package metrics exposes Prometheus collectors for the BattleSpy services.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login result labels.
const (
	LoginOK           = "ok"
	LoginUnknownNick  = "unknown_nick"
	LoginBanned       = "banned"
	LoginBadPassword  = "bad_password"
	LoginInvalidQuery = "invalid_query"
	LoginStoreError   = "store_error"
)

// Metrics owns the collector set and its registry.
type Metrics struct {
	registry *prometheus.Registry

	Logins          *prometheus.CounterVec
	SessionsActive  prometheus.Gauge
	AccountsCreated prometheus.Counter
	StatusFlushes   prometheus.Counter

	ProfileSearches prometheus.Counter

	Heartbeats       prometheus.Counter
	ServersValidated prometheus.Counter
	ServersListed    prometheus.Gauge

	LicenseAuths prometheus.Counter
}

// New builds the collector set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,

		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "battlespy",
			Subsystem: "login",
			Name:      "attempts_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),

		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "battlespy",
			Subsystem: "login",
			Name:      "sessions_active",
			Help:      "Authenticated sessions currently online.",
		}),

		AccountsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "battlespy",
			Subsystem: "login",
			Name:      "accounts_created_total",
			Help:      "Accounts created through the newuser command.",
		}),

		StatusFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "battlespy",
			Subsystem: "login",
			Name:      "status_flushes_total",
			Help:      "Deferred status batches written to the account store.",
		}),

		ProfileSearches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "battlespy",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Profile search requests served.",
		}),

		Heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "battlespy",
			Subsystem: "master",
			Name:      "heartbeats_total",
			Help:      "Heartbeat datagrams received.",
		}),

		ServersValidated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "battlespy",
			Subsystem: "master",
			Name:      "servers_validated_total",
			Help:      "Game servers that completed challenge validation.",
		}),

		ServersListed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "battlespy",
			Subsystem: "master",
			Name:      "servers_listed",
			Help:      "Game servers currently in the directory.",
		}),

		LicenseAuths: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "battlespy",
			Subsystem: "license",
			Name:      "auths_total",
			Help:      "CD-key authorization requests answered.",
		}),
	}

	registry.MustRegister(
		m.Logins,
		m.SessionsActive,
		m.AccountsCreated,
		m.StatusFlushes,
		m.ProfileSearches,
		m.Heartbeats,
		m.ServersValidated,
		m.ServersListed,
		m.LicenseAuths,
	)

	return m
}

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
