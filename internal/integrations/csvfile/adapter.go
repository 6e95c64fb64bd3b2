// Package csvfile reads locations from CSV files.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"tourplan/internal/geo"
	"tourplan/internal/integrations"
)

// ErrNoLocations is returned when a file yields no usable rows.
var ErrNoLocations = errors.New("no usable locations")

var (
	idNames  = []string{"id", "objectid", "name", "stop", "stopid"}
	latNames = []string{"lat", "latitude", "y"}
	lngNames = []string{"lng", "lon", "long", "longitude", "x"}
)

// Adapter reads a CSV file with a header row. Columns are matched by name
// (id/lat/lng and common aliases); when the header names none of them the
// layout falls back to positional id, longitude, latitude.
type Adapter struct {
	Path string
}

func (a Adapter) Name() string { return "csv-file" }

func (a Adapter) FetchLocations(ctx context.Context) (integrations.LocationBatch, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return integrations.LocationBatch{}, err
	}
	defer func() { _ = f.Close() }()
	return Parse(ctx, f)
}

// Parse reads locations from r. Rows with bad coordinates are reported in
// Skipped rather than failing the whole file.
func Parse(ctx context.Context, r io.Reader) (integrations.LocationBatch, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return integrations.LocationBatch{}, ErrNoLocations
		}
		return integrations.LocationBatch{}, fmt.Errorf("read header: %w", err)
	}
	idCol, latCol, lngCol := columns(header)

	var batch integrations.LocationBatch
	seen := map[string]bool{}
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return integrations.LocationBatch{}, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return integrations.LocationBatch{}, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) <= max(idCol, latCol, lngCol) {
			batch.Skipped = append(batch.Skipped, integrations.SkippedRow{Line: line, Reason: "missing columns"})
			continue
		}
		id := strings.TrimSpace(rec[idCol])
		if id == "" {
			batch.Skipped = append(batch.Skipped, integrations.SkippedRow{Line: line, Reason: "empty id"})
			continue
		}
		if seen[id] {
			batch.Skipped = append(batch.Skipped, integrations.SkippedRow{Line: line, Reason: "duplicate id " + id})
			continue
		}
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(rec[latCol]), 64)
		lng, errLng := strconv.ParseFloat(strings.TrimSpace(rec[lngCol]), 64)
		if errLat != nil || errLng != nil {
			batch.Skipped = append(batch.Skipped, integrations.SkippedRow{Line: line, Reason: "bad coordinate"})
			continue
		}
		p := geo.Point{ID: id, Lat: lat, Lng: lng}
		if err := geo.Validate(p); err != nil {
			batch.Skipped = append(batch.Skipped, integrations.SkippedRow{Line: line, Reason: err.Error()})
			continue
		}
		seen[id] = true
		batch.Locations = append(batch.Locations, p)
	}
	if len(batch.Locations) == 0 {
		return batch, ErrNoLocations
	}
	return batch, nil
}

func columns(header []string) (id, lat, lng int) {
	id, lat, lng = find(header, idNames), find(header, latNames), find(header, lngNames)
	if lat < 0 || lng < 0 {
		return 0, 2, 1
	}
	if id < 0 {
		id = 0
	}
	return id, lat, lng
}

func find(header []string, names []string) int {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for _, n := range names {
			if h == n {
				return i
			}
		}
	}
	return -1
}
