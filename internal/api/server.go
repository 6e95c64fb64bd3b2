package api

import (
    "context"
    "errors"
    "log/slog"
    "strings"

    "golang.org/x/time/rate"

    "tourplan/internal/auth"
    "tourplan/internal/config"
    "tourplan/internal/store"
    "tourplan/internal/webhooks"
)

type Server struct {
    Cfg    config.Config
    Store  store.Store
    Pub    *webhooks.Publisher
    Auth   *auth.Verifier
    Broker EventBroker
    Log    *slog.Logger

    limiter *rate.Limiter
    closers []func() error
}

// NewServer wires the store, broker and verifier from cfg. With no database
// URL the in-memory store is used; a Redis URL that fails to parse falls
// back to the in-memory broker.
func NewServer(ctx context.Context, cfg config.Config, log *slog.Logger) (*Server, error) {
    if log == nil { log = slog.Default() }
    s := &Server{Cfg: cfg, Log: log, Auth: auth.NewVerifier(cfg.Auth)}

    if strings.TrimSpace(cfg.Database.URL) == "" {
        s.Store = store.NewMemory()
    } else {
        pg, err := store.NewPostgres(cfg.Database.URL)
        if err != nil {
            return nil, err
        }
        if cfg.Database.Migrate {
            if err := pg.MigrateDir(ctx, cfg.Database.MigrationsDir); err != nil {
                _ = pg.Close()
                return nil, err
            }
        }
        s.Store = pg
        s.closers = append(s.closers, pg.Close)
    }

    if cfg.Redis.URL != "" {
        rb, err := NewRedisBroker(cfg.Redis.URL)
        if err != nil {
            log.Warn("redis broker unavailable, using in-memory broker", "err", err)
            s.Broker = NewBroker()
        } else {
            s.Broker = rb
            s.closers = append(s.closers, rb.Close)
        }
    } else {
        s.Broker = NewBroker()
    }

    if cfg.Server.RateRPS > 0 {
        burst := cfg.Server.RateBurst
        if burst <= 0 { burst = int(cfg.Server.RateRPS) + 1 }
        s.limiter = rate.NewLimiter(rate.Limit(cfg.Server.RateRPS), burst)
    }
    s.Pub = webhooks.NewPublisher(s.Store)
    return s, nil
}

// Close releases the database pool and broker connection.
func (s *Server) Close() error {
    var errs []error
    for _, c := range s.closers {
        errs = append(errs, c())
    }
    return errors.Join(errs...)
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
    return webhooks.NewWorker(s.Store, s.Cfg.Webhooks, s.Log)
}
