// Package integrations defines the sources a run's locations can come from.
package integrations

import (
	"context"
	"errors"
	"fmt"

	"tourplan/internal/geo"
)

// ErrUnknownLocation is returned by Select for ids missing from the batch.
var ErrUnknownLocation = errors.New("unknown location id")

// LocationSource supplies the identifiers and coordinates to optimise over.
type LocationSource interface {
	Name() string
	FetchLocations(ctx context.Context) (LocationBatch, error)
}

type LocationBatch struct {
	Locations []geo.Point
	Skipped   []SkippedRow
}

// SkippedRow records an input row that could not be used.
type SkippedRow struct {
	Line   int
	Reason string
}

// Select returns the locations named by ids, in the order given. An empty ids
// keeps the whole batch.
func (b LocationBatch) Select(ids []string) ([]geo.Point, error) {
	if len(ids) == 0 {
		return append([]geo.Point(nil), b.Locations...), nil
	}
	byID := make(map[string]geo.Point, len(b.Locations))
	for _, p := range b.Locations {
		byID[p.ID] = p
	}
	out := make([]geo.Point, 0, len(ids))
	seen := map[string]bool{}
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownLocation, id)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, p)
	}
	return out, nil
}
