// Package metrics holds the Prometheus collectors for credential and lock
// outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "access"

// Registry is separate from the default registerer so tests can build
// fresh collectors without duplicate registration panics.
type Registry struct {
	reg *prometheus.Registry

	CredentialsIssued *prometheus.CounterVec
	Verifications     *prometheus.CounterVec
	InvitesCreated    prometheus.Counter
	InviteRedemptions *prometheus.CounterVec
	InviteRevocations prometheus.Counter
	Actuations        *prometheus.CounterVec
	ActuationRetries  prometheus.Counter
	ActuationLatency  *prometheus.HistogramVec
	LockRecords       *prometheus.CounterVec
}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		CredentialsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credentials_issued_total",
			Help:      "Credentials issued, by purpose.",
		}, []string{"purpose"}),
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Credential verifications, by result code.",
		}, []string{"result"}),
		InvitesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invites_created_total",
			Help:      "Invite tokens created.",
		}),
		InviteRedemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invite_redemptions_total",
			Help:      "Invite redemptions, by result code.",
		}, []string{"result"}),
		InviteRevocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invite_revocations_total",
			Help:      "Invite tokens revoked.",
		}),
		Actuations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_actuations_total",
			Help:      "Single lock actuation attempts, by driver and result.",
		}, []string{"driver", "result"}),
		ActuationRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_actuation_retries_total",
			Help:      "Actuation attempts after the first.",
		}),
		ActuationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_actuation_seconds",
			Help:      "Latency of a single actuation attempt.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"driver"}),
		LockRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_records_total",
			Help:      "Lock record callbacks, by how they were handled.",
		}, []string{"status"}),
	}

	r.reg.MustRegister(
		r.CredentialsIssued,
		r.Verifications,
		r.InvitesCreated,
		r.InviteRedemptions,
		r.InviteRevocations,
		r.Actuations,
		r.ActuationRetries,
		r.ActuationLatency,
		r.LockRecords,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Result labels a counter with the outcome of an operation: "ok" on success,
// otherwise the error code string.
func Result(code string) string {
	if code == "" {
		return "ok"
	}
	return code
}
