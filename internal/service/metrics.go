package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики жизненных циклов и согласованности.
var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cm_transitions_total",
		Help: "Количество переходов статусов по сущностям и результату",
	}, []string{"entity", "to", "result"})

	propagationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cm_propagation_failures_total",
		Help: "Количество производных записей, не применённых после всех повторов",
	}, []string{"effect"})

	reconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cm_reconcile_duration_seconds",
		Help:    "Длительность сверки производных данных",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms … ~20s
	})

	propagationDrift = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cm_propagation_drift",
		Help: "Количество расхождений производных данных при последней сверке",
	}, []string{"kind"})
)
