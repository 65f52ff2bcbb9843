// Package metrics exposes Prometheus instruments for the derby core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

var (
	joinTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "derby_join_total",
			Help: "Race join attempts by result",
		},
		[]string{"result"},
	)

	betTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "derby_bets_total",
			Help: "Bet placements by result",
		},
		[]string{"result"},
	)

	betStake = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "derby_bet_stake_wron_total",
			Help: "WRON staked on accepted bets",
		},
	)

	finalizeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "derby_finalize_total",
			Help: "Finalize calls by outcome (completed, cancelled, replayed, fail)",
		},
		[]string{"outcome"},
	)

	finalizeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "derby_finalize_duration_ms",
			Help:    "Finalize duration in milliseconds",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"outcome"},
	)
)

func result(err error) string {
	if err != nil {
		return "fail"
	}
	return "success"
}

// RecordJoin counts a join attempt.
func RecordJoin(err error) {
	joinTotal.WithLabelValues(result(err)).Inc()
}

// RecordBet counts a bet attempt and, when accepted, its stake.
func RecordBet(err error, amount decimal.Decimal) {
	betTotal.WithLabelValues(result(err)).Inc()
	if err == nil {
		betStake.Add(amount.InexactFloat64())
	}
}

// RecordFinalize counts a finalize call and observes its duration.
func RecordFinalize(outcome string, started time.Time) {
	finalizeTotal.WithLabelValues(outcome).Inc()
	finalizeDuration.WithLabelValues(outcome).Observe(float64(time.Since(started).Milliseconds()))
}
