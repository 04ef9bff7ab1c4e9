package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_webhook_events_total",
			Help: "Webhook events handled, by event type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	reconcilerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_reconciler_events_total",
			Help: "Journaled events revisited by the reconciler, by resulting status.",
		},
		[]string{"status"},
	)
)
