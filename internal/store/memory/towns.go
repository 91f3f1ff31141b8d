package memory

import (
	"context"
	"sort"
	"strings"

	"lightingmap.app/internal/ids"
	"lightingmap.app/internal/lighting"
)

func (t *tx) CreateTown(_ context.Context, town *lighting.Town) error {
	if err := t.writable(); err != nil {
		return err
	}
	town.Name = strings.TrimSpace(town.Name)
	if _, ok := t.state.townNames[town.Name]; ok {
		return lighting.Conflictf("town %q already exists", town.Name)
	}
	if town.ID == "" {
		town.ID = ids.New()
	}
	if _, ok := t.state.towns[town.ID]; ok {
		return lighting.Conflictf("town %s already exists", town.ID)
	}
	town.Version = 1
	if town.CreatedAt.IsZero() {
		town.CreatedAt = t.now
	}
	town.UpdatedAt = t.now
	t.state.towns[town.ID] = town.Clone()
	t.state.townNames[town.Name] = town.ID
	return nil
}

func (t *tx) GetTown(_ context.Context, id string) (lighting.Town, error) {
	town, ok := t.state.towns[id]
	if !ok {
		return lighting.Town{}, lighting.NotFoundf("town %s", id)
	}
	return town.Clone(), nil
}

func (t *tx) GetTownByName(ctx context.Context, name string) (lighting.Town, error) {
	id, ok := t.state.townNames[strings.TrimSpace(name)]
	if !ok {
		return lighting.Town{}, lighting.NotFoundf("town %q", name)
	}
	return t.GetTown(ctx, id)
}

func (t *tx) ListTowns(_ context.Context) ([]lighting.Town, error) {
	out := make([]lighting.Town, 0, len(t.state.towns))
	for _, town := range t.state.towns {
		out = append(out, town.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return lighting.CompareText(out[i].Name, out[j].Name) < 0
	})
	return out, nil
}

func (t *tx) UpdateTown(_ context.Context, town *lighting.Town) error {
	if err := t.writable(); err != nil {
		return err
	}
	cur, ok := t.state.towns[town.ID]
	if !ok {
		return lighting.NotFoundf("town %s", town.ID)
	}
	if cur.Version != town.Version {
		return lighting.ErrVersionConflict
	}
	town.Name = strings.TrimSpace(town.Name)
	if town.Name != cur.Name {
		if _, taken := t.state.townNames[town.Name]; taken {
			return lighting.Conflictf("town %q already exists", town.Name)
		}
		delete(t.state.townNames, cur.Name)
		t.state.townNames[town.Name] = town.ID
	}
	town.Version = cur.Version + 1
	town.CreatedAt = cur.CreatedAt
	town.UpdatedAt = t.now
	t.state.towns[town.ID] = town.Clone()
	return nil
}

func (t *tx) DeleteTown(_ context.Context, id string) error {
	if err := t.writable(); err != nil {
		return err
	}
	cur, ok := t.state.towns[id]
	if !ok {
		return lighting.NotFoundf("town %s", id)
	}
	delete(t.state.towns, id)
	delete(t.state.townNames, cur.Name)
	return nil
}

func (t *tx) PullLightPointsFromTowns(_ context.Context, lightPointIDs []string) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	if len(lightPointIDs) == 0 {
		return 0, nil
	}
	n := 0
	for id, town := range t.state.towns {
		kept := lighting.Without(town.LightPointIDs, lightPointIDs...)
		if len(kept) == len(town.LightPointIDs) {
			continue
		}
		town = town.Clone()
		town.LightPointIDs = kept
		town.Version++
		town.UpdatedAt = t.now
		t.state.towns[id] = town
		n++
	}
	return n, nil
}

func (t *tx) UnlinkOrganizationFromTowns(_ context.Context, orgID string) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	n := 0
	for id, town := range t.state.towns {
		if town.OrganizationAdmin != orgID && !lighting.Contains(town.MaintainerOrgIDs, orgID) {
			continue
		}
		town = town.Clone()
		if town.OrganizationAdmin == orgID {
			town.OrganizationAdmin = ""
		}
		town.MaintainerOrgIDs = lighting.Without(town.MaintainerOrgIDs, orgID)
		town.Version++
		town.UpdatedAt = t.now
		t.state.towns[id] = town
		n++
	}
	return n, nil
}
