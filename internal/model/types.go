package model

import (
    "time"

    "tourplan/internal/opt"
)

// Location is a named coordinate supplied by the caller.
type Location struct {
    ID  string  `json:"id" validate:"required,max=128"`
    Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
    Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

// OptimizeRequest carries either a cost matrix or locations to build one from.
type OptimizeRequest struct {
    RunID           string      `json:"runId,omitempty" validate:"omitempty,max=64,printascii,excludesall=/"`
    Matrix          [][]float64 `json:"matrix,omitempty"`
    IDs             []string    `json:"ids,omitempty"`
    Locations       []Location  `json:"locations,omitempty" validate:"omitempty,dive"`
    InitialTour     []int       `json:"initialTour,omitempty"`
    InitialStrategy string      `json:"initialStrategy,omitempty" validate:"omitempty,oneof=random identity nearest"`
    Iterations      int         `json:"iterations,omitempty" validate:"gte=0,lte=100000"`
    Seed            *int64      `json:"seed,omitempty"`
    Polish          *bool       `json:"polish,omitempty"`
    SpeedKph        float64     `json:"speedKph,omitempty" validate:"gte=0,lte=300"`
}

// Point is a coordinate echoed back in tour order.
type Point struct {
    Lat float64 `json:"lat"`
    Lng float64 `json:"lng"`
}

type OptimizeResponse struct {
    RunID       string      `json:"runId"`
    Tour        []int       `json:"tour"`
    IDs         []string    `json:"ids,omitempty"`
    Path        []Point     `json:"path,omitempty"`
    Center      *Point      `json:"center,omitempty"`
    Cost        float64     `json:"cost"`
    InitialCost float64     `json:"initialCost"`
    Seed        int64       `json:"seed"`
    Strategy    string      `json:"strategy"`
    Polished    bool        `json:"polished"`
    Metrics     opt.Metrics `json:"metrics"`
}

type BatchRequest struct {
    Jobs []OptimizeRequest `json:"jobs" validate:"required,min=1,dive"`
}

// BatchItem holds either a result or an error for the job at Index.
type BatchItem struct {
    Index  int               `json:"index"`
    Result *OptimizeResponse `json:"result,omitempty"`
    Error  string            `json:"error,omitempty"`
}

type BatchResponse struct {
    Items     []BatchItem `json:"items"`
    Succeeded int         `json:"succeeded"`
    Failed    int         `json:"failed"`
}

// ScoreRequest scores Tour against Matrix. A closed tour (first == last,
// length N+1) is accepted.
type ScoreRequest struct {
    Matrix [][]float64 `json:"matrix" validate:"required,min=1"`
    Tour   []int       `json:"tour" validate:"required,min=1"`
}

type ScoreResponse struct {
    Cost   float64 `json:"cost"`
    Closed []int   `json:"closed"`
}

// Run statuses.
const (
    RunCompleted = "completed"
    RunCancelled = "cancelled"
)

// Run is a persisted optimisation result.
type Run struct {
    ID          string      `json:"id"`
    TenantID    string      `json:"tenantId"`
    Status      string      `json:"status"`
    Size        int         `json:"size"`
    IDs         []string    `json:"ids,omitempty"`
    Tour        []int       `json:"tour"`
    Cost        float64     `json:"cost"`
    InitialCost float64     `json:"initialCost"`
    Seed        int64       `json:"seed"`
    Iterations  int         `json:"iterations"`
    Strategy    string      `json:"strategy"`
    Polished    bool        `json:"polished"`
    Metrics     opt.Metrics `json:"metrics"`
    CreatedAt   time.Time   `json:"createdAt"`
}

type SubscriptionRequest struct {
    TenantID string   `json:"tenantId"`
    URL      string   `json:"url" validate:"required,url"`
    Events   []string `json:"events" validate:"required,min=1,dive,oneof=run.completed run.cancelled"`
    Secret   string   `json:"secret"`
}

type Subscription struct {
    ID       string   `json:"id"`
    TenantID string   `json:"tenantId"`
    URL      string   `json:"url"`
    Events   []string `json:"events"`
    Secret   string   `json:"secret,omitempty"`
}
