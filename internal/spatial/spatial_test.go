package spatial

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lightingmap.app/internal/lighting"
	"lightingmap.app/internal/store/memory"
)

var trentino = Bounds{North: 46.0, South: 45.8, East: 11.0, West: 10.7}

func points() []lighting.LightPoint {
	return []lighting.LightPoint{
		{ID: "a", NumeroPalo: "10", Lat: "45,88", Lng: "10,84", OpenReportIDs: []string{"r1"}},
		{ID: "b", NumeroPalo: "2", Lat: "45.8801", Lng: "10.8401"},
		{ID: "c", NumeroPalo: "3", Lat: "45.95", Lng: "10.95", OperationIDs: []string{"o1"}},
		{ID: "d", NumeroPalo: "4", Lat: "", Lng: "10.9"},
		{ID: "e", NumeroPalo: "5", Lat: "44.0", Lng: "10.9"},
		{ID: "f", NumeroPalo: "6", Lat: "north", Lng: "10.9"},
	}
}

func ids(ms []Marker) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.ID)
	}
	return out
}

func TestQueryValidate(t *testing.T) {
	cases := []struct {
		name string
		q    Query
		ok   bool
	}{
		{"valid", Query{Bounds: trentino, Zoom: 12}, true},
		{"inverted lat", Query{Bounds: Bounds{North: 45, South: 46, East: 11, West: 10}}, false},
		{"inverted lng", Query{Bounds: Bounds{North: 46, South: 45, East: 10, West: 11}}, false},
		{"lat range", Query{Bounds: Bounds{North: 91, South: 45, East: 11, West: 10}}, false},
		{"lng range", Query{Bounds: Bounds{North: 46, South: 45, East: 181, West: 10}}, false},
		{"zoom", Query{Bounds: trentino, Zoom: 23}, false},
		{"negative zoom", Query{Bounds: trentino, Zoom: -1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.q.Validate()
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, lighting.ErrValidation))
		})
	}
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("")
	require.NoError(t, err)
	assert.Equal(t, FilterAll, f)
	f, err = ParseFilter("with_operations")
	require.NoError(t, err)
	assert.Equal(t, FilterWithOperations, f)
	_, err = ParseFilter("BROKEN")
	assert.True(t, errors.Is(err, lighting.ErrValidation))
}

func TestViewportOrdersByPoleAndSkipsBadCoordinates(t *testing.T) {
	res := Viewport(points(), Query{Bounds: trentino, Filter: FilterAll})
	assert.Equal(t, []string{"b", "c", "a"}, ids(res.Markers))
	assert.Equal(t, 3, res.TotalCount)
	assert.InDelta(t, 45.88, res.Markers[2].Lat, 1e-9)
	assert.Equal(t, 1, res.Markers[2].OpenReports)
}

func TestViewportFilters(t *testing.T) {
	res := Viewport(points(), Query{Bounds: trentino, Filter: FilterWithOpenReports})
	assert.Equal(t, []string{"a"}, ids(res.Markers))
	res = Viewport(points(), Query{Bounds: trentino, Filter: FilterWithoutOpenReports})
	assert.Equal(t, []string{"b", "c"}, ids(res.Markers))
	res = Viewport(points(), Query{Bounds: trentino, Filter: FilterWithOperations})
	assert.Equal(t, []string{"c"}, ids(res.Markers))
}

func TestClustersGroupNearbyPoints(t *testing.T) {
	res := Clusters(points(), Query{Bounds: trentino, Zoom: 10})
	assert.Equal(t, 3, res.TotalCount)
	require.Len(t, res.Clusters, 1)
	cl := res.Clusters[0]
	assert.Equal(t, 2, cl.Count)
	assert.Equal(t, 1, cl.OpenReports)
	assert.InDelta(t, 45.88005, cl.Lat, 1e-9)
	assert.InDelta(t, 45.8801, cl.Bounds.North, 1e-9)
	assert.InDelta(t, 45.88, cl.Bounds.South, 1e-9)
	assert.Equal(t, []string{"c"}, ids(res.Markers))
}

func TestClustersDisabledAtHighZoom(t *testing.T) {
	res := Clusters(points(), Query{Bounds: trentino, Zoom: NoClusterZoom})
	assert.Empty(t, res.Clusters)
	assert.Equal(t, []string{"b", "c", "a"}, ids(res.Markers))
}

func TestTownPoints(t *testing.T) {
	s := memory.New()
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx lighting.Tx) error {
		town := lighting.Town{Name: "Riva"}
		if err := tx.CreateTown(ctx, &town); err != nil {
			return err
		}
		lps := []lighting.LightPoint{{NumeroPalo: "1", Lat: "45.9", Lng: "10.8"}}
		if err := tx.InsertLightPoints(ctx, town.ID, lps); err != nil {
			return err
		}
		town.LightPointIDs = []string{lps[0].ID}
		return tx.UpdateTown(ctx, &town)
	}))

	lps, err := TownPoints(context.Background(), s, "Riva")
	require.NoError(t, err)
	assert.Len(t, lps, 1)

	_, err = TownPoints(context.Background(), s, "Arco")
	assert.True(t, errors.Is(err, lighting.ErrNotFound))
}
