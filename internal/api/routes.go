package api

import (
    "net/http"

    "github.com/prometheus/client_golang/prometheus/promhttp"

    "tourplan/internal/metrics"
)

// Routes returns the full HTTP handler with middleware applied.
func (s *Server) Routes() http.Handler {
    mux := http.NewServeMux()

    // Optimization
    mux.HandleFunc("/v1/optimize", s.OptimizeHandler)
    mux.HandleFunc("/v1/optimize/batch", s.BatchHandler)
    mux.HandleFunc("/v1/tours/score", s.ScoreHandler)
    mux.HandleFunc("/v1/optimizer/config", s.OptimizerConfigHandler)
    mux.HandleFunc("/v1/admin/optimizer/config", s.AdminOptimizerConfigHandler)

    // Runs
    mux.HandleFunc("/v1/runs", s.RunsHandler)
    mux.HandleFunc("/v1/runs/", s.RunByIDHandler) // includes /events/stream
    mux.HandleFunc("/v1/ws", s.WSHandler)

    // Subscriptions
    mux.HandleFunc("/v1/subscriptions", s.SubscriptionsHandler)
    mux.HandleFunc("/v1/subscriptions/", s.SubscriptionByIDHandler)

    // Admin
    mux.HandleFunc("/v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)
    mux.HandleFunc("/v1/admin/webhook-deliveries/", s.WebhookDeliveryRetryHandler)
    mux.HandleFunc("/v1/admin/webhook-dlq", s.WebhookDLQHandler)
    mux.HandleFunc("/v1/admin/webhook-dlq/", s.WebhookDLQHandler)

    // Health and ops
    mux.HandleFunc("/healthz", s.HealthHandler)
    mux.HandleFunc("/readyz", s.ReadyHandler)
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
    mux.HandleFunc("/debug/info", s.DebugJSON)

    return s.recoverer(s.observe(s.rateLimit(s.limitBody(mux))))
}
