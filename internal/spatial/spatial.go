// Package spatial answers map queries over a town's light points.
package spatial

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"

	"lightingmap.app/internal/lighting"
)

const (
	MaxZoom = 22
	// NoClusterZoom and above returns every point as a marker.
	NoClusterZoom = 17
)

// Filter narrows the light points a query returns.
type Filter string

const (
	FilterAll                Filter = "ALL"
	FilterWithOpenReports    Filter = "WITH_OPEN_REPORTS"
	FilterWithoutOpenReports Filter = "WITHOUT_OPEN_REPORTS"
	FilterWithOperations     Filter = "WITH_OPERATIONS"
)

// ParseFilter defaults to ALL when s is blank.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToUpper(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterWithOpenReports, FilterWithoutOpenReports, FilterWithOperations:
		return f, nil
	}
	return "", lighting.Invalidf("unknown filter %q", s)
}

func (f Filter) match(lp lighting.LightPoint) bool {
	switch f {
	case FilterWithOpenReports:
		return len(lp.OpenReportIDs) > 0
	case FilterWithoutOpenReports:
		return len(lp.OpenReportIDs) == 0
	case FilterWithOperations:
		return len(lp.OperationIDs) > 0
	}
	return true
}

// Bounds is a latitude/longitude box. Boxes crossing the antimeridian are
// not supported.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Validate rejects inverted or out-of-range boxes.
func (b Bounds) Validate() error {
	switch {
	case b.North < -90 || b.North > 90 || b.South < -90 || b.South > 90:
		return lighting.Invalidf("latitude must be within ±90")
	case b.East < -180 || b.East > 180 || b.West < -180 || b.West > 180:
		return lighting.Invalidf("longitude must be within ±180")
	case b.North < b.South:
		return lighting.Invalidf("north must not be below south")
	case b.West > b.East:
		return lighting.Invalidf("west must not exceed east")
	}
	return nil
}

func (b Bounds) contains(lat, lng float64) bool {
	return lat <= b.North && lat >= b.South && lng <= b.East && lng >= b.West
}

// Query is a viewport request.
type Query struct {
	Bounds Bounds
	Filter Filter
	Zoom   int
}

// Validate checks the box and zoom level.
func (q Query) Validate() error {
	if err := q.Bounds.Validate(); err != nil {
		return err
	}
	if q.Zoom < 0 || q.Zoom > MaxZoom {
		return lighting.Invalidf("zoom must be within 0..%d", MaxZoom)
	}
	return nil
}

// Marker is one light point on the map.
type Marker struct {
	ID          string  `json:"_id"`
	Marker      string  `json:"marker"`
	NumeroPalo  string  `json:"numero_palo"`
	Indirizzo   string  `json:"indirizzo"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	OpenReports int     `json:"open_reports"`
	Operations  int     `json:"operations"`
}

// Cluster aggregates the points of one grid cell.
type Cluster struct {
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Count       int     `json:"count"`
	OpenReports int     `json:"open_reports"`
	Bounds      Bounds  `json:"bounds"`
}

// Result is the answer to a viewport or cluster query.
type Result struct {
	Clusters   []Cluster `json:"clusters,omitempty"`
	Markers    []Marker  `json:"markers"`
	TotalCount int       `json:"total_count"`
}

// ParseCoordinate reads a decimal degree, accepting a comma separator.
func ParseCoordinate(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Viewport returns the markers of lps inside the box that match the filter,
// ordered by pole number. Points without usable coordinates are skipped.
func Viewport(lps []lighting.LightPoint, q Query) Result {
	visible := make([]lighting.LightPoint, 0, len(lps))
	for _, lp := range lps {
		if _, _, ok := locate(lp, q); ok {
			visible = append(visible, lp)
		}
	}
	lighting.SortByPole(visible)
	markers := make([]Marker, 0, len(visible))
	for _, lp := range visible {
		markers = append(markers, newMarker(lp))
	}
	return Result{Markers: markers, TotalCount: len(markers)}
}

// Clusters groups the visible points into square cells of 360/2^zoom/4
// degrees. Cells holding one point come back as markers; from
// NoClusterZoom every point does.
func Clusters(lps []lighting.LightPoint, q Query) Result {
	if q.Zoom >= NoClusterZoom {
		return Viewport(lps, q)
	}
	size := 360 / math.Pow(2, float64(q.Zoom)) / 4

	type cell struct{ row, col int64 }
	groups := make(map[cell][]lighting.LightPoint)
	var order []cell
	total := 0
	for _, lp := range lps {
		lat, lng, ok := locate(lp, q)
		if !ok {
			continue
		}
		total++
		c := cell{row: int64(math.Floor(lat / size)), col: int64(math.Floor(lng / size))}
		if _, seen := groups[c]; !seen {
			order = append(order, c)
		}
		groups[c] = append(groups[c], lp)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].row != order[j].row {
			return order[i].row > order[j].row
		}
		return order[i].col < order[j].col
	})

	res := Result{Markers: []Marker{}, TotalCount: total}
	var singles []lighting.LightPoint
	for _, c := range order {
		members := groups[c]
		if len(members) == 1 {
			singles = append(singles, members[0])
			continue
		}
		cl := Cluster{Count: len(members), Bounds: Bounds{North: -90, South: 90, East: -180, West: 180}}
		for _, lp := range members {
			lat, _ := ParseCoordinate(lp.Lat)
			lng, _ := ParseCoordinate(lp.Lng)
			cl.Lat += lat
			cl.Lng += lng
			cl.OpenReports += len(lp.OpenReportIDs)
			cl.Bounds.North = math.Max(cl.Bounds.North, lat)
			cl.Bounds.South = math.Min(cl.Bounds.South, lat)
			cl.Bounds.East = math.Max(cl.Bounds.East, lng)
			cl.Bounds.West = math.Min(cl.Bounds.West, lng)
		}
		cl.Lat /= float64(cl.Count)
		cl.Lng /= float64(cl.Count)
		res.Clusters = append(res.Clusters, cl)
	}
	lighting.SortByPole(singles)
	for _, lp := range singles {
		res.Markers = append(res.Markers, newMarker(lp))
	}
	return res
}

func locate(lp lighting.LightPoint, q Query) (float64, float64, bool) {
	if !q.Filter.match(lp) {
		return 0, 0, false
	}
	lat, ok := ParseCoordinate(lp.Lat)
	if !ok {
		return 0, 0, false
	}
	lng, ok := ParseCoordinate(lp.Lng)
	if !ok {
		return 0, 0, false
	}
	return lat, lng, q.Bounds.contains(lat, lng)
}

func newMarker(lp lighting.LightPoint) Marker {
	lat, _ := ParseCoordinate(lp.Lat)
	lng, _ := ParseCoordinate(lp.Lng)
	return Marker{
		ID:          lp.ID,
		Marker:      lp.Marker,
		NumeroPalo:  lp.NumeroPalo,
		Indirizzo:   lp.Indirizzo,
		Lat:         lat,
		Lng:         lng,
		OpenReports: len(lp.OpenReportIDs),
		Operations:  len(lp.OperationIDs),
	}
}

// TownPoints loads every light point referenced by the named town.
func TownPoints(ctx context.Context, store lighting.Store, townName string) ([]lighting.LightPoint, error) {
	var lps []lighting.LightPoint
	err := store.View(ctx, func(ctx context.Context, tx lighting.Tx) error {
		town, err := tx.GetTownByName(ctx, strings.TrimSpace(townName))
		if err != nil {
			return err
		}
		lps, err = tx.ListLightPoints(ctx, town.LightPointIDs)
		return err
	})
	return lps, err
}
