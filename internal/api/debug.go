package api

import (
    "encoding/json"
    "net/http"
    "time"

    "tourplan/internal/buildinfo"
)

// DebugJSON handles GET /debug/info. Secrets and URLs are reported only as
// presence flags.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    info := map[string]any{
        "build": buildinfo.Info(),
        "time":  time.Now().UTC().Format(time.RFC3339),
        "config": map[string]any{
            "port":               s.Cfg.Server.Port,
            "authMode":           s.Cfg.Auth.Mode,
            "rateRps":            s.Cfg.Server.RateRPS,
            "rateBurst":          s.Cfg.Server.RateBurst,
            "webhookMaxAttempts": s.Cfg.Webhooks.MaxAttempts,
            "traceExporter":      s.Cfg.Telemetry.TraceExporter,
            "optimizer":          s.Cfg.Optimizer,
            "hasDatabaseUrl":     s.Cfg.Database.URL != "",
            "hasRedisUrl":        s.Cfg.Redis.URL != "",
        },
    }
    w.Header().Set("Content-Type", "application/json")
    _ = json.NewEncoder(w).Encode(info)
}
