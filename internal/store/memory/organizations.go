package memory

import (
	"context"
	"sort"

	"lightingmap.app/internal/ids"
	"lightingmap.app/internal/lighting"
)

func (t *tx) CreateOrganization(_ context.Context, o *lighting.Organization) error {
	if err := t.writable(); err != nil {
		return err
	}
	if o.ID == "" {
		o.ID = ids.New()
	}
	if _, ok := t.state.orgs[o.ID]; ok {
		return lighting.Conflictf("organization %s already exists", o.ID)
	}
	o.CreatedAt = t.now
	o.UpdatedAt = t.now
	t.state.orgs[o.ID] = o.Clone()
	return nil
}

func (t *tx) GetOrganization(_ context.Context, id string) (lighting.Organization, error) {
	o, ok := t.state.orgs[id]
	if !ok {
		return lighting.Organization{}, lighting.NotFoundf("organization %s", id)
	}
	return o.Clone(), nil
}

func (t *tx) ListOrganizations(_ context.Context) ([]lighting.Organization, error) {
	out := make([]lighting.Organization, 0, len(t.state.orgs))
	for _, o := range t.state.orgs {
		out = append(out, o.Clone())
	}
	sortOrganizations(out)
	return out, nil
}

func (t *tx) ListOrganizationsByTown(_ context.Context, townID string) ([]lighting.Organization, error) {
	var out []lighting.Organization
	for _, o := range t.state.orgs {
		if servesTown(o, townID) {
			out = append(out, o.Clone())
		}
	}
	sortOrganizations(out)
	return out, nil
}

func servesTown(o lighting.Organization, townID string) bool {
	if o.TownID == townID {
		return true
	}
	for _, c := range o.Contracts {
		if c.TownID == townID {
			return true
		}
	}
	return false
}

func sortOrganizations(out []lighting.Organization) {
	sort.Slice(out, func(i, j int) bool {
		if c := lighting.CompareText(out[i].Name, out[j].Name); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
}

func (t *tx) UpdateOrganization(_ context.Context, o *lighting.Organization) error {
	if err := t.writable(); err != nil {
		return err
	}
	cur, ok := t.state.orgs[o.ID]
	if !ok {
		return lighting.NotFoundf("organization %s", o.ID)
	}
	o.CreatedAt = cur.CreatedAt
	o.UpdatedAt = t.now
	t.state.orgs[o.ID] = o.Clone()
	return nil
}

func (t *tx) DeleteOrganization(_ context.Context, id string) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.orgs[id]; !ok {
		return lighting.NotFoundf("organization %s", id)
	}
	delete(t.state.orgs, id)
	return nil
}

func (t *tx) PullUserFromOrganizations(_ context.Context, userID string) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	n := 0
	for id, o := range t.state.orgs {
		if o.ResponsibleID != userID && !lighting.Contains(o.MemberIDs, userID) {
			continue
		}
		o = o.Clone()
		o.MemberIDs = lighting.Without(o.MemberIDs, userID)
		if o.ResponsibleID == userID {
			o.ResponsibleID = ""
		}
		o.UpdatedAt = t.now
		t.state.orgs[id] = o
		n++
	}
	return n, nil
}

func (t *tx) ClearTownFromOrganizations(_ context.Context, townID string) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	n := 0
	for id, o := range t.state.orgs {
		if !servesTown(o, townID) {
			continue
		}
		o = o.Clone()
		if o.TownID == townID {
			o.TownID = ""
		}
		kept := o.Contracts[:0]
		for _, c := range o.Contracts {
			if c.TownID != townID {
				kept = append(kept, c)
			}
		}
		o.Contracts = kept
		o.UpdatedAt = t.now
		t.state.orgs[id] = o
		n++
	}
	return n, nil
}
