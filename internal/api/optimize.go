package api

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "math/rand/v2"
    "net/http"
    "time"

    "github.com/google/uuid"
    "go.opentelemetry.io/otel"
    "go.opentelemetry.io/otel/attribute"
    "go.opentelemetry.io/otel/codes"
    "go.opentelemetry.io/otel/trace"
    "golang.org/x/sync/errgroup"

    "tourplan/internal/config"
    "tourplan/internal/geo"
    "tourplan/internal/metrics"
    "tourplan/internal/model"
    "tourplan/internal/opt"
    "tourplan/internal/store"
    "tourplan/internal/webhooks"
)

var tracer = otel.Tracer("tourplan/internal/api")

// runSettings is the subset of optimizer settings a tenant may override.
type runSettings struct {
    Iterations      int     `json:"iterations,omitempty" validate:"omitempty,gte=1,lte=100000"`
    InitialStrategy string  `json:"initialStrategy,omitempty" validate:"omitempty,oneof=random identity nearest"`
    Polish          *bool   `json:"polish,omitempty"`
    PolishPasses    int     `json:"polishPasses,omitempty" validate:"omitempty,gte=1,lte=50"`
    ProgressEvery   int     `json:"progressEvery,omitempty" validate:"omitempty,gte=1"`
    SpeedKph        float64 `json:"speedKph,omitempty" validate:"gte=0,lte=300"`
}

func parseRunSettings(raw map[string]any) (runSettings, error) {
    var rs runSettings
    b, err := json.Marshal(raw)
    if err != nil { return rs, err }
    dec := json.NewDecoder(bytes.NewReader(b))
    dec.DisallowUnknownFields()
    if err := dec.Decode(&rs); err != nil { return rs, err }
    if err := validate.Struct(rs); err != nil { return rs, errors.New(validationDetail(err)) }
    return rs, nil
}

// settingsFor overlays the tenant's stored overrides on the service defaults.
func (s *Server) settingsFor(ctx context.Context, tenant string) (config.OptimizerConfig, error) {
    eff := s.Cfg.Optimizer
    raw, err := s.Store.GetOptimizerConfig(ctx, tenant)
    if err != nil || raw == nil { return eff, err }
    rs, err := parseRunSettings(raw)
    if err != nil {
        // stored before a schema change; ignore rather than fail every run
        s.Log.Warn("ignoring invalid tenant optimizer config", "tenant", tenant, "err", err)
        return eff, nil
    }
    if rs.Iterations > 0 { eff.Iterations = rs.Iterations }
    if rs.InitialStrategy != "" { eff.InitialStrategy = rs.InitialStrategy }
    if rs.Polish != nil { eff.Polish = *rs.Polish }
    if rs.PolishPasses > 0 { eff.PolishPasses = rs.PolishPasses }
    if rs.ProgressEvery > 0 { eff.ProgressEvery = rs.ProgressEvery }
    if rs.SpeedKph > 0 { eff.SpeedKph = rs.SpeedKph }
    return eff, nil
}

// optimize runs one request end to end: build the matrix, search, persist
// the run, and notify the broker and webhook subscribers. A cancelled ctx
// still yields the best tour found so far, recorded as a cancelled run.
func (s *Server) optimize(ctx context.Context, tenant string, req model.OptimizeRequest) (resp model.OptimizeResponse, err error) {
    ctx, span := tracer.Start(ctx, "api.optimize", trace.WithAttributes(attribute.String("tenant", tenant)))
    defer func() {
        if err != nil {
            span.RecordError(err)
            span.SetStatus(codes.Error, err.Error())
        }
        span.End()
    }()

    st, err := s.settingsFor(ctx, tenant)
    if err != nil { return model.OptimizeResponse{}, err }

    runID := req.RunID
    if runID == "" {
        runID = uuid.NewString()
    } else if _, err := s.Store.GetRun(ctx, tenant, runID); err == nil {
        return model.OptimizeResponse{}, fmt.Errorf("run %s: %w", runID, store.ErrConflict)
    } else if !errors.Is(err, store.ErrNotFound) {
        return model.OptimizeResponse{}, err
    }

    span.SetAttributes(attribute.String("run.id", runID))

    m, ids, err := s.buildMatrix(ctx, req, st)
    if err != nil { return model.OptimizeResponse{}, err }

    seed := rand.Int64()
    if req.Seed != nil { seed = *req.Seed }
    iterations := st.Iterations
    if req.Iterations > 0 { iterations = req.Iterations }
    strategy := st.InitialStrategy
    if req.InitialStrategy != "" { strategy = req.InitialStrategy }
    var initial opt.Tour
    if len(req.InitialTour) > 0 {
        initial, strategy = opt.Tour(req.InitialTour), "given"
    }
    polish := st.Polish
    if req.Polish != nil { polish = *req.Polish }

    topic := runTopic(tenant, runID)
    every := max(st.ProgressEvery, 1)
    hook := func(is opt.IterationStats) {
        if (is.Iteration+1)%every != 0 { return }
        s.Broker.Publish(topic, RunEvent{Type: EventRunProgress, RunID: runID, Data: map[string]any{
            "iteration":   is.Iteration + 1,
            "iterations":  iterations,
            "currentCost": is.CurrentCost,
            "bestCost":    is.BestCost,
            "tenure":      is.Tenure,
            "stagnation":  is.Stagnation,
        }})
    }

    started := time.Now()
    sol, err := opt.Solve(ctx, m, opt.SolveOptions{
        Options:      opt.Options{Iterations: iterations, Seed: seed, Hook: hook},
        Initial:      initial,
        Strategy:     strategy,
        Polish:       polish,
        PolishPasses: st.PolishPasses,
    })
    if err != nil {
        metrics.OptimizerRuns.WithLabelValues("invalid").Inc()
        return model.OptimizeResponse{}, err
    }
    if strategy == "" { strategy = opt.StrategyRandom }

    status, event := model.RunCompleted, webhooks.EventRunCompleted
    if sol.Metrics.Cancelled {
        status, event = model.RunCancelled, webhooks.EventRunCancelled
    }
    span.SetAttributes(attribute.String("run.status", status), attribute.Float64("run.cost", sol.Cost))
    metrics.ObserveRun(status, len(m), sol.Metrics.Iterations, sol.Metrics.InitialCost, sol.Cost, time.Since(started).Seconds())

    resp = model.OptimizeResponse{
        RunID:       runID,
        Tour:        []int(sol.Tour),
        Cost:        sol.Cost,
        InitialCost: sol.Metrics.InitialCost,
        Seed:        seed,
        Strategy:    strategy,
        Polished:    sol.Polished,
        Metrics:     sol.Metrics,
    }
    if ids != nil {
        resp.IDs = make([]string, len(sol.Tour))
        for i, loc := range sol.Tour { resp.IDs[i] = ids[loc] }
    }
    if len(req.Locations) > 0 {
        resp.Path, resp.Center = pathAndCenter(req.Locations, sol.Tour)
    }

    // persist and notify even when the client has gone away
    bg := context.WithoutCancel(ctx)
    run := model.Run{
        ID: runID, TenantID: tenant, Status: status, Size: len(m), IDs: resp.IDs, Tour: resp.Tour,
        Cost: resp.Cost, InitialCost: resp.InitialCost, Seed: seed, Iterations: sol.Metrics.Iterations,
        Strategy: strategy, Polished: sol.Polished, Metrics: sol.Metrics, CreatedAt: time.Now().UTC(),
    }
    if err := s.Store.SaveRun(bg, run); err != nil {
        return model.OptimizeResponse{}, err
    }
    summary := map[string]any{"runId": runID, "status": status, "size": run.Size, "cost": run.Cost, "initialCost": run.InitialCost, "tour": run.Tour}
    if run.IDs != nil { summary["ids"] = run.IDs }
    s.Broker.Publish(topic, RunEvent{Type: event, RunID: runID, Data: summary})
    if _, err := s.Pub.Emit(bg, tenant, event, "evt_"+runID, summary); err != nil {
        s.Log.Error("enqueue run webhook", "run_id", runID, "err", err)
    }
    s.Log.Info("run finished",
        "tenant", tenant, "run_id", runID, "status", status, "size", run.Size,
        "iterations", run.Iterations, "initial_cost", run.InitialCost, "cost", run.Cost,
        "duration", time.Since(started))
    return resp, nil
}

// buildMatrix returns the cost matrix for req and the location ids, which
// are nil when the caller supplied a bare matrix without ids.
func (s *Server) buildMatrix(ctx context.Context, req model.OptimizeRequest, st config.OptimizerConfig) (opt.Matrix, []string, error) {
    if len(req.Matrix) > 0 {
        m := opt.Matrix(req.Matrix)
        if _, err := opt.ValidateMatrix(m); err != nil { return nil, nil, err }
        return m, req.IDs, nil
    }
    speed := st.SpeedKph
    if req.SpeedKph > 0 { speed = req.SpeedKph }
    var provider geo.MatrixProvider = geo.Haversine{SpeedKph: speed}
    pts := make([]geo.Point, len(req.Locations))
    ids := make([]string, len(req.Locations))
    for i, l := range req.Locations {
        pts[i] = geo.Point{ID: l.ID, Lat: l.Lat, Lng: l.Lng}
        ids[i] = l.ID
    }
    m, err := provider.Matrix(ctx, pts)
    if err != nil { return nil, nil, err }
    return m, ids, nil
}

func pathAndCenter(locs []model.Location, tour opt.Tour) ([]model.Point, *model.Point) {
    path := make([]model.Point, len(tour))
    for i, idx := range tour {
        path[i] = model.Point{Lat: locs[idx].Lat, Lng: locs[idx].Lng}
    }
    var c model.Point
    for _, l := range locs {
        c.Lat += l.Lat
        c.Lng += l.Lng
    }
    c.Lat /= float64(len(locs))
    c.Lng /= float64(len(locs))
    return path, &c
}

// writeRunError maps optimizer, geo and store errors onto problem responses.
func writeRunError(w http.ResponseWriter, r *http.Request, err error) {
    switch {
    case errors.Is(err, opt.ErrInvalidInput), errors.Is(err, geo.ErrInvalidPoint):
        writeProblem(w, http.StatusUnprocessableEntity, "Invalid input", err.Error(), r.URL.Path)
    case errors.Is(err, store.ErrConflict):
        writeProblem(w, http.StatusConflict, "Run already exists", err.Error(), r.URL.Path)
    default:
        writeProblem(w, http.StatusInternalServerError, "Optimization failed", err.Error(), r.URL.Path)
    }
}

// OptimizeHandler handles POST /v1/optimize
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    p, ok := s.principal(w, r)
    if !ok { return }
    var req model.OptimizeRequest
    if err := decodeJSON(r, &req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := validateOptimizeRequest(&req, s.Cfg.Optimizer.MaxLocations); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
        return
    }
    resp, err := s.optimize(r.Context(), p.Tenant, req)
    if err != nil {
        writeRunError(w, r, err)
        return
    }
    writeJSON(w, http.StatusOK, resp)
}

// BatchHandler handles POST /v1/optimize/batch. Jobs run concurrently, each
// with its own search state; a failing job does not affect the others.
func (s *Server) BatchHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    p, ok := s.principal(w, r)
    if !ok { return }
    var req model.BatchRequest
    if err := decodeJSON(r, &req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if n := len(req.Jobs); n == 0 || n > s.Cfg.Optimizer.MaxBatchJobs {
        writeProblem(w, http.StatusBadRequest, "Invalid batch", fmt.Sprintf("jobs must number between 1 and %d, got %d", s.Cfg.Optimizer.MaxBatchJobs, n), r.URL.Path)
        return
    }

    items := make([]model.BatchItem, len(req.Jobs))
    var g errgroup.Group
    g.SetLimit(max(s.Cfg.Optimizer.BatchParallelism, 1))
    for i := range req.Jobs {
        job := req.Jobs[i]
        g.Go(func() error {
            items[i].Index = i
            if err := validateOptimizeRequest(&job, s.Cfg.Optimizer.MaxLocations); err != nil {
                items[i].Error = err.Error()
                return nil
            }
            resp, err := s.optimize(r.Context(), p.Tenant, job)
            if err != nil {
                items[i].Error = err.Error()
                return nil
            }
            items[i].Result = &resp
            return nil
        })
    }
    _ = g.Wait()

    out := model.BatchResponse{Items: items}
    for _, it := range items {
        if it.Error != "" { out.Failed++ } else { out.Succeeded++ }
    }
    writeJSON(w, http.StatusOK, out)
}

// ScoreHandler handles POST /v1/tours/score
func (s *Server) ScoreHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    if _, ok := s.principal(w, r); !ok { return }
    var req model.ScoreRequest
    if err := decodeJSON(r, &req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := validate.Struct(req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid score request", validationDetail(err), r.URL.Path)
        return
    }
    cost, closed, err := scoreTour(opt.Matrix(req.Matrix), opt.Tour(req.Tour))
    if err != nil {
        writeRunError(w, r, err)
        return
    }
    writeJSON(w, http.StatusOK, model.ScoreResponse{Cost: cost, Closed: closed})
}

// scoreTour accepts an open tour of N locations or a closed one of N+1.
func scoreTour(m opt.Matrix, t opt.Tour) (float64, []int, error) {
    n, err := opt.ValidateMatrix(m)
    if err != nil { return 0, nil, err }
    if len(t) == n+1 && t[0] == t[n] {
        t = t[:n]
    }
    if err := opt.ValidatePermutation(t, n); err != nil { return 0, nil, err }
    return opt.Value(m, t), t.Closed(), nil
}
