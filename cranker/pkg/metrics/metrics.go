package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CrankRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tipdist_cranker_runs_total",
			Help: "Total number of crank runs",
		},
		[]string{"status"},
	)

	CrankRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tipdist_cranker_run_duration_seconds",
			Help:    "Duration of crank runs",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 0.01s to ~41s
		},
	)

	AccountsClosedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tipdist_cranker_accounts_closed_total",
			Help: "Total number of expired accounts closed",
		},
		[]string{"account_type", "status"},
	)

	LamportsReclaimedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tipdist_cranker_lamports_reclaimed_total",
			Help: "Total lamports swept from expired tip distribution accounts",
		},
	)

	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tipdist_cranker_claims_total",
			Help: "Total number of claims submitted",
		},
		[]string{"status"},
	)

	ClaimedLamportsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tipdist_cranker_claimed_lamports_total",
			Help: "Total lamports paid out by submitted claims",
		},
	)

	CurrentEpoch = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tipdist_cranker_current_epoch",
			Help: "Epoch observed on the last crank run",
		},
	)
)
