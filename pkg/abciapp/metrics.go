// Copyright 2025 Certen Protocol

package abciapp

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the Prometheus instrumentation for the ABCI app. It is the
// one piece of observability the ambient stack carries even though
// spec.md's Non-goals exclude a Bitcoin network connection and signer
// scheduling -- those Non-goals don't touch metrics.
type metrics struct {
	txTotal          *prometheus.CounterVec
	depositValueSats prometheus.Histogram
	rotations        prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		txTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pegvalidator_tx_total",
			Help: "Transactions processed by the peg validator state machine, by kind and result.",
		}, []string{"kind", "result"}),
		depositValueSats: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pegvalidator_deposit_value_satoshi",
			Help:    "Total satoshi value of all outputs of each successfully applied deposit transaction.",
			Buckets: prometheus.ExponentialBuckets(1000, 10, 8),
		}),
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pegvalidator_signatory_rotations_total",
			Help: "Number of times BeginBlock has pushed a new signatory-set snapshot.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.txTotal, m.depositValueSats, m.rotations)
	}
	return m
}

func (m *metrics) observe(kind string, ok bool) {
	if m == nil {
		return
	}
	result := "rejected"
	if ok {
		result = "accepted"
	}
	m.txTotal.WithLabelValues(kind, result).Inc()
}

func (m *metrics) observeDepositValue(satoshis int64) {
	if m == nil || satoshis <= 0 {
		return
	}
	m.depositValueSats.Observe(float64(satoshis))
}
