package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the API
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )
    // RateLimited counts requests rejected by the rate limiter
    RateLimited = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "http_rate_limited_total", Help: "Requests rejected with 429."},
    )

    // OptimizerRuns counts optimisation runs by outcome (completed, cancelled, invalid)
    OptimizerRuns = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "optimizer_runs_total", Help: "Optimisation runs by outcome."},
        []string{"outcome"},
    )
    // OptimizerDuration records search wall time in seconds
    OptimizerDuration = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "optimizer_run_duration_seconds", Help: "Tabu search duration in seconds.", Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 15, 60}},
    )
    // OptimizerIterations records iterations actually run
    OptimizerIterations = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "optimizer_iterations", Help: "Iterations per run.", Buckets: prometheus.ExponentialBuckets(10, 4, 6)},
    )
    // OptimizerImprovement records (initial-best)/initial per run
    OptimizerImprovement = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "optimizer_improvement_ratio", Help: "Relative cost reduction per run.", Buckets: []float64{0, .01, .05, .1, .2, .3, .5, .75}},
    )
    // OptimizerSize records the number of locations per run
    OptimizerSize = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "optimizer_locations", Help: "Locations per run.", Buckets: []float64{2, 5, 10, 25, 50, 100, 250, 500}},
    )

    // WebhookDeliveries counts webhook delivery outcomes by event type and status
    WebhookDeliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
        []string{"event_type", "status"},
    )
    // WebhookLatency tracks webhook delivery latencies in milliseconds
    WebhookLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
        []string{"event_type", "status"},
    )
)

// ObserveRun records one finished optimisation.
func ObserveRun(outcome string, size, iterations int, initialCost, bestCost, seconds float64) {
    OptimizerRuns.WithLabelValues(outcome).Inc()
    OptimizerDuration.Observe(seconds)
    OptimizerIterations.Observe(float64(iterations))
    OptimizerSize.Observe(float64(size))
    if initialCost > 0 {
        OptimizerImprovement.Observe((initialCost - bestCost) / initialCost)
    }
}

// RegisterDefault registers collectors on Registry. Safe to call repeatedly.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(RateLimited)
        Registry.MustRegister(OptimizerRuns)
        Registry.MustRegister(OptimizerDuration)
        Registry.MustRegister(OptimizerIterations)
        Registry.MustRegister(OptimizerImprovement)
        Registry.MustRegister(OptimizerSize)
        Registry.MustRegister(WebhookDeliveries)
        Registry.MustRegister(WebhookLatency)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
