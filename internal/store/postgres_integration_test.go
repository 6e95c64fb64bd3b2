//go:build postgres_integration

package store

import (
    "errors"
    "os"
    "testing"

    "github.com/google/uuid"
    "tourplan/internal/model"
    "tourplan/internal/opt"
)

func TestPostgresRunsRoundTrip(t *testing.T) {
    dsn := os.Getenv("DATABASE_URL")
    if dsn == "" { t.Skip("DATABASE_URL not set; skipping integration test") }
    p, err := NewPostgres(dsn)
    if err != nil { t.Fatalf("NewPostgres: %v", err) }
    defer p.Close()
    if err := p.Ping(t.Context()); err != nil { t.Fatalf("Ping: %v", err) }
    if err := p.MigrateDir(t.Context(), "../../db/migrations"); err != nil { t.Fatalf("MigrateDir: %v", err) }
    // second run is a no-op
    if err := p.MigrateDir(t.Context(), "../../db/migrations"); err != nil { t.Fatalf("MigrateDir again: %v", err) }

    run := model.Run{ID: uuid.NewString(), TenantID: "t_it", Status: model.RunCompleted, Size: 3, Tour: []int{0, 2, 1, 0}, Cost: 12, InitialCost: 15, Seed: 7, Iterations: 10, Strategy: "random", Metrics: opt.Metrics{Iterations: 10, BestHistory: []float64{12}}}
    if err := p.SaveRun(t.Context(), run); err != nil { t.Fatalf("SaveRun: %v", err) }
    if err := p.SaveRun(t.Context(), run); !errors.Is(err, ErrConflict) { t.Fatalf("want ErrConflict, got %v", err) }
    got, err := p.GetRun(t.Context(), "t_it", run.ID)
    if err != nil { t.Fatalf("GetRun: %v", err) }
    if got.Cost != 12 || len(got.Tour) != 4 || got.Metrics.Iterations != 10 { t.Fatalf("unexpected run: %+v", got) }
    if _, err := p.GetRun(t.Context(), "t_other", run.ID); !errors.Is(err, ErrNotFound) { t.Fatalf("want ErrNotFound, got %v", err) }
    if _, _, err := p.ListRuns(t.Context(), "t_it", "", "", 1); err != nil { t.Fatalf("ListRuns: %v", err) }
}
