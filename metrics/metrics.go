// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TokenVerifyFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dailybrief_token_verify_failures_total",
		Help: "Email link tokens rejected, by expected purpose and reason.",
	}, []string{"purpose", "reason"})

	ConfirmStoreFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dailybrief_confirm_store_failures_total",
		Help: "Confirm requests whose store write failed while the user still saw success.",
	})

	DispatchSends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dailybrief_dispatch_sends_total",
		Help: "Per-recipient dispatch outcomes.",
	}, []string{"outcome"})

	DispatchRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dailybrief_dispatch_runs_total",
		Help: "Dispatch runs by result.",
	}, []string{"result"})

	WebhookEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dailybrief_webhook_events_total",
		Help: "Provider delivery events recorded, by event type.",
	}, []string{"type"})
)

// Dispatch outcomes and results
const (
	OutcomeSent     = "sent"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
	ResultCompleted = "completed"
	ResultNoIssue   = "no_issue"
	ResultLocked    = "locked"
	ResultError     = "error"
)

func init() {
	prometheus.MustRegister(TokenVerifyFailures)
	prometheus.MustRegister(ConfirmStoreFailures)
	prometheus.MustRegister(DispatchSends)
	prometheus.MustRegister(DispatchRuns)
	prometheus.MustRegister(WebhookEvents)
}
