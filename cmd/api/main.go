package main

import (
    "context"
    "errors"
    "flag"
    "fmt"
    "log/slog"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "tourplan/internal/api"
    "tourplan/internal/buildinfo"
    "tourplan/internal/config"
    "tourplan/internal/metrics"
    "tourplan/internal/telemetry"
)

func main() {
    if err := run(); err != nil {
        fmt.Fprintln(os.Stderr, "tourplan:", err)
        os.Exit(1)
    }
}

func run() error {
    configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config file")
    flag.Parse()

    cfg, err := config.Load(*configPath)
    if err != nil { return err }
    log := cfg.Log.NewLogger(os.Stdout)
    slog.SetDefault(log)

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry, os.Stderr)
    if err != nil { return err }
    metrics.RegisterDefault()

    srvDeps, err := api.NewServer(ctx, cfg, log)
    if err != nil { return fmt.Errorf("init server: %w", err) }
    defer func() { _ = srvDeps.Close() }()

    worker := srvDeps.NewWebhookWorker()
    worker.Start(ctx)

    srv := &http.Server{
        Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
        Handler:           srvDeps.Routes(),
        ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
    }
    errc := make(chan error, 1)
    go func() {
        log.Info("API listening", "addr", srv.Addr, "version", buildinfo.String())
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            errc <- err
        }
        close(errc)
    }()

    select {
    case err := <-errc:
        if err != nil { return fmt.Errorf("server error: %w", err) }
    case <-ctx.Done():
        log.Info("shutting down")
    }

    sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
    defer cancel()
    var errs []error
    errs = append(errs, srv.Shutdown(sctx))
    errs = append(errs, worker.Shutdown(sctx))
    errs = append(errs, shutdownTracing(sctx))
    return errors.Join(errs...)
}
