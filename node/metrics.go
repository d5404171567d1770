package node

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the counters and gauges a Store exposes. Callers
// register these on their own *prometheus.Registry — never the global
// default — so embedding a Store into a larger process never collides
// with that process's own metric names.
type Metrics struct {
	CommitsTotal               prometheus.Counter
	AnchorsTotal               prometheus.Counter
	ProofRequestsTotal         prometheus.Counter
	ProofRateLimitedTotal      prometheus.Counter
	UnanchoredCommitmentsGauge prometheus.Gauge
}

// NewMetrics constructs and registers a Metrics set on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		CommitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commitledger_commits_total",
			Help: "Total number of commitments successfully stored.",
		}),
		AnchorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commitledger_anchors_total",
			Help: "Total number of anchors recorded.",
		}),
		ProofRequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commitledger_proof_requests_total",
			Help: "Total number of proof requests handled by the proof service.",
		}),
		ProofRateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commitledger_proof_rate_limited_total",
			Help: "Total number of proof requests rejected for exceeding the per-peer rate limit.",
		}),
		UnanchoredCommitmentsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "commitledger_unanchored_commitments",
			Help: "Number of commitments not yet covered by any recorded anchor.",
		}),
	}
	reg.MustRegister(
		m.CommitsTotal,
		m.AnchorsTotal,
		m.ProofRequestsTotal,
		m.ProofRateLimitedTotal,
		m.UnanchoredCommitmentsGauge,
	)
	return m
}
