package memory

import (
	"context"

	"lightingmap.app/internal/ids"
	"lightingmap.app/internal/lighting"
)

func (t *tx) indexPole(townID, pole, id string) {
	k := poleKey{town: townID, pole: lighting.PoleKey(pole)}
	if k.pole == "" {
		return
	}
	cur := t.state.poles[k]
	next := make([]string, 0, len(cur)+1)
	next = append(next, cur...)
	t.state.poles[k] = append(next, id)
	t.touched[k] = struct{}{}
}

func (t *tx) unindexPole(townID, pole, id string) {
	k := poleKey{town: townID, pole: lighting.PoleKey(pole)}
	if k.pole == "" {
		return
	}
	next := lighting.Without(t.state.poles[k], id)
	if len(next) == 0 {
		delete(t.state.poles, k)
		return
	}
	t.state.poles[k] = next
}

func (t *tx) InsertLightPoints(_ context.Context, townID string, lps []lighting.LightPoint) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.towns[townID]; !ok {
		return lighting.NotFoundf("town %s", townID)
	}
	for i := range lps {
		lp := &lps[i]
		if lp.ID == "" {
			lp.ID = ids.New()
		}
		if _, ok := t.state.lights[lp.ID]; ok {
			return lighting.Conflictf("light point %s already exists", lp.ID)
		}
		lp.TownID = townID
		lp.Version = 1
		t.state.lights[lp.ID] = lp.Clone()
		t.indexPole(townID, lp.NumeroPalo, lp.ID)
	}
	return nil
}

func (t *tx) UpdateLightPointFields(_ context.Context, id string, fields map[string]string) error {
	if err := t.writable(); err != nil {
		return err
	}
	cur, ok := t.state.lights[id]
	if !ok {
		return lighting.NotFoundf("light point %s", id)
	}
	next := cur.Clone()
	next.Apply(fields)
	next.Version++
	if lighting.PoleKey(next.NumeroPalo) != lighting.PoleKey(cur.NumeroPalo) {
		t.unindexPole(cur.TownID, cur.NumeroPalo, id)
		t.indexPole(cur.TownID, next.NumeroPalo, id)
	}
	t.state.lights[id] = next
	return nil
}

func (t *tx) GetLightPoint(_ context.Context, id string) (lighting.LightPoint, error) {
	lp, ok := t.state.lights[id]
	if !ok {
		return lighting.LightPoint{}, lighting.NotFoundf("light point %s", id)
	}
	return lp.Clone(), nil
}

func (t *tx) ListLightPoints(_ context.Context, lightPointIDs []string) ([]lighting.LightPoint, error) {
	out := make([]lighting.LightPoint, 0, len(lightPointIDs))
	for _, id := range lightPointIDs {
		if lp, ok := t.state.lights[id]; ok {
			out = append(out, lp.Clone())
		}
	}
	return out, nil
}

func (t *tx) FindLightPointByPole(_ context.Context, townID, pole string) (lighting.LightPoint, error) {
	k := poleKey{town: townID, pole: lighting.PoleKey(pole)}
	matches := t.state.poles[k]
	if k.pole == "" || len(matches) == 0 {
		return lighting.LightPoint{}, lighting.NotFoundf("light point with pole number %q", pole)
	}
	return t.state.lights[matches[0]].Clone(), nil
}

func (t *tx) DeleteLightPoints(_ context.Context, lightPointIDs []string) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	n := 0
	for _, id := range lightPointIDs {
		lp, ok := t.state.lights[id]
		if !ok {
			continue
		}
		t.unindexPole(lp.TownID, lp.NumeroPalo, id)
		delete(t.state.lights, id)
		n++
	}
	return n, nil
}

func (t *tx) SaveLightPointRefs(_ context.Context, lp *lighting.LightPoint) error {
	if err := t.writable(); err != nil {
		return err
	}
	cur, ok := t.state.lights[lp.ID]
	if !ok {
		return lighting.NotFoundf("light point %s", lp.ID)
	}
	if cur.Version != lp.Version {
		return lighting.ErrVersionConflict
	}
	next := cur.Clone()
	src := lp.Clone()
	next.OpenReportIDs = src.OpenReportIDs
	next.ResolvedReportIDs = src.ResolvedReportIDs
	next.OperationIDs = src.OperationIDs
	next.Version++
	lp.Version = next.Version
	t.state.lights[lp.ID] = next
	return nil
}
