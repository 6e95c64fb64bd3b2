// Package geo turns coordinates into cost matrices for the optimizer.
package geo

import (
	"context"
	"errors"
	"fmt"
	"math"

	"tourplan/internal/opt"
)

// ErrInvalidPoint is returned for coordinates outside the valid lat/lng range.
var ErrInvalidPoint = errors.New("invalid point")

const earthRadiusMeters = 6371000.0

type Point struct {
	ID  string
	Lat float64
	Lng float64
}

// MatrixProvider produces an N x N cost matrix for points, in input order.
type MatrixProvider interface {
	Matrix(ctx context.Context, points []Point) (opt.Matrix, error)
}

// HaversineMeters returns the great-circle distance between two coordinates.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// Haversine is a MatrixProvider using straight-line distance. With SpeedKph
// set, costs are travel seconds at that speed instead of meters.
type Haversine struct {
	SpeedKph float64
}

func (h Haversine) Matrix(ctx context.Context, points []Point) (opt.Matrix, error) {
	for i, p := range points {
		if err := Validate(p); err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
	}
	n := len(points)
	m := make(opt.Matrix, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := i + 1; j < n; j++ {
			d := HaversineMeters(points[i].Lat, points[i].Lng, points[j].Lat, points[j].Lng)
			if h.SpeedKph > 0 {
				d = d / (h.SpeedKph * 1000 / 3600)
			}
			m[i][j], m[j][i] = d, d
		}
	}
	return m, nil
}

// Validate rejects NaN and out-of-range coordinates.
func Validate(p Point) error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: %q (%v, %v)", ErrInvalidPoint, p.ID, p.Lat, p.Lng)
	}
	return nil
}
