package csvfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourplan/internal/integrations"
)

func TestParse_NamedColumns(t *testing.T) {
	in := "Latitude,Name,Longitude\n40.1,depot,-74.2\n40.3,b,-74.0\n"
	batch, err := Parse(context.Background(), strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, batch.Locations, 2)
	assert.Equal(t, "depot", batch.Locations[0].ID)
	assert.Equal(t, 40.1, batch.Locations[0].Lat)
	assert.Equal(t, -74.2, batch.Locations[0].Lng)
}

func TestParse_PositionalIDLonLat(t *testing.T) {
	in := "OBJECTID_1,POINT_X,POINT_Y\nA,-122.4,37.7\nB,-122.5,37.8\n"
	batch, err := Parse(context.Background(), strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, batch.Locations, 2)
	assert.Equal(t, "A", batch.Locations[0].ID)
	assert.Equal(t, 37.7, batch.Locations[0].Lat)
	assert.Equal(t, -122.4, batch.Locations[0].Lng)
}

func TestParse_SkipsBadRows(t *testing.T) {
	in := strings.Join([]string{
		"id,lat,lng",
		"a,1,2",
		"b,notanumber,2",
		",1,2",
		"a,3,4",
		"c,95,0",
		"d,1",
		"e,5,6",
	}, "\n")
	batch, err := Parse(context.Background(), strings.NewReader(in))
	require.NoError(t, err)
	var ids []string
	for _, p := range batch.Locations {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"a", "e"}, ids)
	require.Len(t, batch.Skipped, 5)
	assert.Equal(t, 3, batch.Skipped[0].Line)
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse(context.Background(), strings.NewReader(""))
	assert.ErrorIs(t, err, ErrNoLocations)

	_, err = Parse(context.Background(), strings.NewReader("id,lat,lng\n"))
	assert.ErrorIs(t, err, ErrNoLocations)
}

func TestAdapter_FetchAndSelect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stops.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,lat,lng\na,1,1\nb,2,2\nc,3,3\n"), 0o600))

	var src integrations.LocationSource = Adapter{Path: path}
	assert.Equal(t, "csv-file", src.Name())
	batch, err := src.FetchLocations(context.Background())
	require.NoError(t, err)

	sel, err := batch.Select([]string{"c", "a", "c"})
	require.NoError(t, err)
	require.Len(t, sel, 2)
	assert.Equal(t, "c", sel[0].ID)
	assert.Equal(t, "a", sel[1].ID)

	all, err := batch.Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = batch.Select([]string{"zzz"})
	assert.ErrorIs(t, err, integrations.ErrUnknownLocation)
}
