package store

import (
    "context"
    "crypto/sha256"
    "database/sql"
    "encoding/hex"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "time"

    "github.com/google/uuid"
    "github.com/jackc/pgx/v5/pgconn"
    _ "github.com/jackc/pgx/v5/stdlib"

    "tourplan/internal/model"
)

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        _ = db.Close()
        return nil, err
    }
    db.SetMaxOpenConns(16)
    db.SetConnMaxIdleTime(5 * time.Minute)
    return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies every *.sql file in dir in lexical order. Applied files
// are recorded in schema_migrations and skipped on later calls.
func (p *Postgres) MigrateDir(ctx context.Context, dir string) error {
    if _, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (name text PRIMARY KEY, applied_at timestamptz NOT NULL DEFAULT now())`); err != nil {
        return fmt.Errorf("create schema_migrations: %w", err)
    }
    files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
    if err != nil { return err }
    sort.Strings(files)
    for _, f := range files {
        name := filepath.Base(f)
        var seen bool
        if err := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name=$1)`, name).Scan(&seen); err != nil {
            return err
        }
        if seen { continue }
        body, err := os.ReadFile(f)
        if err != nil { return err }
        tx, err := p.db.BeginTx(ctx, nil)
        if err != nil { return err }
        if _, err := tx.ExecContext(ctx, string(body)); err != nil {
            _ = tx.Rollback()
            return fmt.Errorf("migration %s: %w", name, err)
        }
        if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
            _ = tx.Rollback()
            return err
        }
        if err := tx.Commit(); err != nil { return err }
    }
    return nil
}

// Runs
func (p *Postgres) SaveRun(ctx context.Context, run model.Run) error {
    ids, _ := json.Marshal(run.IDs)
    tour, _ := json.Marshal(run.Tour)
    mx, err := json.Marshal(run.Metrics)
    if err != nil { return err }
    if run.CreatedAt.IsZero() { run.CreatedAt = time.Now().UTC() }
    _, err = p.db.ExecContext(ctx, `INSERT INTO runs (id, tenant_id, status, size, ids, tour, cost, initial_cost, seed, iterations, strategy, polished, metrics, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
        run.ID, run.TenantID, run.Status, run.Size, ids, tour, run.Cost, run.InitialCost, run.Seed, run.Iterations, run.Strategy, run.Polished, mx, run.CreatedAt)
    var pgErr *pgconn.PgError
    if errors.As(err, &pgErr) && pgErr.Code == "23505" {
        return fmt.Errorf("run %s: %w", run.ID, ErrConflict)
    }
    return err
}

const runColumns = `id, tenant_id, status, size, ids, tour, cost, initial_cost, seed, iterations, strategy, polished, metrics, created_at`

func scanRun(sc interface{ Scan(...any) error }) (model.Run, error) {
    var r model.Run
    var ids, tour, mx []byte
    if err := sc.Scan(&r.ID, &r.TenantID, &r.Status, &r.Size, &ids, &tour, &r.Cost, &r.InitialCost, &r.Seed, &r.Iterations, &r.Strategy, &r.Polished, &mx, &r.CreatedAt); err != nil {
        return model.Run{}, err
    }
    if len(ids) > 0 { _ = json.Unmarshal(ids, &r.IDs) }
    if err := json.Unmarshal(tour, &r.Tour); err != nil { return model.Run{}, err }
    if err := json.Unmarshal(mx, &r.Metrics); err != nil { return model.Run{}, err }
    return r, nil
}

func (p *Postgres) GetRun(ctx context.Context, tenantID, runID string) (model.Run, error) {
    row := p.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE tenant_id=$1 AND id=$2`, tenantID, runID)
    r, err := scanRun(row)
    if errors.Is(err, sql.ErrNoRows) { return model.Run{}, ErrNotFound }
    return r, err
}

func (p *Postgres) ListRuns(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Run, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    q := `SELECT ` + runColumns + ` FROM runs WHERE tenant_id=$1`
    args := []any{tenantID}
    if status != "" { args = append(args, status); q += fmt.Sprintf(` AND status=$%d`, len(args)) }
    if cursor != "" { args = append(args, cursor); q += fmt.Sprintf(` AND id > $%d`, len(args)) }
    args = append(args, limit)
    q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args))
    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Run{}
    var last string
    for rows.Next() {
        r, err := scanRun(rows)
        if err != nil { return nil, "", err }
        out = append(out, r)
        last = r.ID
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

// Subscriptions
func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    id := uuid.New().String()
    ev, _ := json.Marshal(req.Events)
    _, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`, id, req.TenantID, req.URL, ev, req.Secret)
    if err != nil { return model.Subscription{}, err }
    return model.Subscription{ID: id, TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
    filter, _ := json.Marshal([]string{eventType})
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE tenant_id=$1 AND events @> $2::jsonb`, tenantID, string(filter))
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        var s model.Subscription
        var events []byte
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &events); err != nil { return nil, err }
        s.TenantID = tenantID
        _ = json.Unmarshal(events, &s.Events)
        out = append(out, s)
    }
    return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Subscription{}
    var last string
    for rows.Next() {
        var s model.Subscription
        var ev []byte
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil { return nil, "", err }
        s.TenantID = tenantID
        _ = json.Unmarshal(ev, &s.Events)
        out = append(out, s)
        last = s.ID
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
    res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id::text=$2`, tenantID, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

// Webhook deliveries
func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    dk := computeDedupKey(payload)
    var got string
    err := p.db.QueryRowContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now(),$8)
        ON CONFLICT (tenant_id, event_type, url, dedup_key) DO NOTHING RETURNING id::text`, id, tenantID, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload, dk).Scan(&got)
    if errors.Is(err, sql.ErrNoRows) {
        err = p.db.QueryRowContext(ctx, `SELECT id::text FROM webhook_deliveries WHERE tenant_id=$1 AND event_type=$2 AND url=$3 AND dedup_key=$4`, tenantID, eventType, url, dk).Scan(&got)
    }
    if err != nil { return "", err }
    return got, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil { return nil, err }
        out = append(out, d)
    }
    return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    if !success {
        if nextAttemptAt == nil { t := time.Now().Add(1 * time.Minute); nextAttemptAt = &t }
        _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$1, next_attempt_at=$2, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$3`, nullIfEmpty(lastError), *nextAttemptAt, id, responseCode, latencyMs)
        return err
    }
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
    return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func() { _ = tx.Rollback() }()
    if _, err := tx.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`, id, nullIfEmpty(lastError), responseCode, latencyMs); err != nil {
        return err
    }
    // move to DLQ
    if _, err := tx.ExecContext(ctx, `INSERT INTO webhook_dlq (id, tenant_id, delivery_id, event_type, url, last_error, attempts, response_code, latency_ms)
        SELECT $5, tenant_id, id, event_type, url, $2, attempts+1, $3, $4 FROM webhook_deliveries WHERE id=$1`, id, nullIfEmpty(lastError), responseCode, latencyMs, uuid.New().String()); err != nil {
        return err
    }
    return tx.Commit()
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    q := `SELECT id::text, event_type, status, attempts, next_attempt_at, COALESCE(last_error,''), url, COALESCE(response_code,0) FROM webhook_deliveries WHERE tenant_id=$1`
    args := []any{tenantID}
    if status != "" { args = append(args, status); q += fmt.Sprintf(` AND status=$%d`, len(args)) }
    if cursor != "" { args = append(args, cursor); q += fmt.Sprintf(` AND id::text > $%d`, len(args)) }
    args = append(args, limit)
    q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args))
    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []map[string]any{}
    var last string
    for rows.Next() {
        var id, typ, st, lastErr, url string
        var attempts, code int
        var nextAt sql.NullTime
        if err := rows.Scan(&id, &typ, &st, &attempts, &nextAt, &lastErr, &url, &code); err != nil { return nil, "", err }
        m := map[string]any{"id": id, "eventType": typ, "status": st, "attempts": attempts, "url": url}
        if nextAt.Valid { m["nextAttemptAt"] = nextAt.Time }
        if lastErr != "" { m["lastError"] = lastErr }
        if code != 0 { m["responseCode"] = code }
        out = append(out, m)
        last = id
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, rows.Err()
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
    res, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now(), updated_at=now() WHERE tenant_id=$1 AND id::text=$2`, tenantID, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

// Dead-letter queue
func (p *Postgres) ListWebhookDLQ(ctx context.Context, tenantID, eventType, cursor string, limit int) ([]map[string]any, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    q := `SELECT id::text, delivery_id::text, event_type, url, COALESCE(last_error,''), attempts, created_at, COALESCE(response_code,0), COALESCE(latency_ms,0) FROM webhook_dlq WHERE tenant_id=$1`
    args := []any{tenantID}
    if eventType != "" { args = append(args, eventType); q += fmt.Sprintf(` AND event_type=$%d`, len(args)) }
    if cursor != "" { args = append(args, cursor); q += fmt.Sprintf(` AND id::text > $%d`, len(args)) }
    args = append(args, limit)
    q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args))
    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []map[string]any{}
    var last string
    for rows.Next() {
        var id, delID, et, url, errStr string
        var attempts, code, latency int
        var created time.Time
        if err := rows.Scan(&id, &delID, &et, &url, &errStr, &attempts, &created, &code, &latency); err != nil { return nil, "", err }
        out = append(out, map[string]any{"id": id, "deliveryId": delID, "eventType": et, "url": url, "lastError": errStr, "attempts": attempts, "createdAt": created, "responseCode": code, "latencyMs": latency})
        last = id
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, rows.Err()
}

// RequeueWebhookDLQ resets the dead-lettered delivery to pending and drops
// the DLQ entry. The delivery row is reused so the dedup key still holds.
func (p *Postgres) RequeueWebhookDLQ(ctx context.Context, tenantID, id string) error {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func() { _ = tx.Rollback() }()
    var delID string
    err = tx.QueryRowContext(ctx, `DELETE FROM webhook_dlq WHERE tenant_id=$1 AND id::text=$2 RETURNING delivery_id::text`, tenantID, id).Scan(&delID)
    if errors.Is(err, sql.ErrNoRows) { return ErrNotFound }
    if err != nil { return err }
    if _, err := tx.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', attempts=0, next_attempt_at=now(), updated_at=now() WHERE id::text=$1`, delID); err != nil {
        return err
    }
    return tx.Commit()
}

// Optimizer config
func (p *Postgres) GetOptimizerConfig(ctx context.Context, tenantID string) (map[string]any, error) {
    row := p.db.QueryRowContext(ctx, `SELECT config FROM optimizer_config WHERE tenant_id=$1`, tenantID)
    var js []byte
    if err := row.Scan(&js); err != nil {
        if errors.Is(err, sql.ErrNoRows) { return nil, nil }
        return nil, err
    }
    var cfg map[string]any
    if err := json.Unmarshal(js, &cfg); err != nil { return nil, err }
    return cfg, nil
}

func (p *Postgres) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg map[string]any) error {
    js, err := json.Marshal(cfg)
    if err != nil { return err }
    _, err = p.db.ExecContext(ctx, `INSERT INTO optimizer_config (tenant_id, config, updated_at) VALUES ($1, $2, now())
        ON CONFLICT (tenant_id) DO UPDATE SET config=EXCLUDED.config, updated_at=now()`, tenantID, js)
    return err
}

// computeDedupKey uses the payload's "id" when present, else a short hash.
func computeDedupKey(payload []byte) string {
    var m map[string]any
    if json.Unmarshal(payload, &m) == nil {
        if v, ok := m["id"].(string); ok && strings.TrimSpace(v) != "" {
            return v
        }
    }
    sum := sha256.Sum256(payload)
    return hex.EncodeToString(sum[:8])
}

func nullIfEmpty(s string) any { if s == "" { return nil }; return s }
