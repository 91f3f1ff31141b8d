package memory

import (
	"context"
	"sort"

	"lightingmap.app/internal/ids"
	"lightingmap.app/internal/lighting"
)

func (t *tx) CreateUser(_ context.Context, u *lighting.User) error {
	if err := t.writable(); err != nil {
		return err
	}
	u.Email = lighting.NormalizeEmail(u.Email)
	if _, ok := t.state.emails[u.Email]; ok {
		return lighting.Conflictf("email %s already registered", u.Email)
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = t.now
	}
	t.state.users[u.ID] = u.Clone()
	t.state.emails[u.Email] = u.ID
	return nil
}

func (t *tx) GetUser(_ context.Context, id string) (lighting.User, error) {
	u, ok := t.state.users[id]
	if !ok {
		return lighting.User{}, lighting.NotFoundf("user %s", id)
	}
	return u.Clone(), nil
}

func (t *tx) GetUserByEmail(ctx context.Context, email string) (lighting.User, error) {
	id, ok := t.state.emails[lighting.NormalizeEmail(email)]
	if !ok {
		return lighting.User{}, lighting.NotFoundf("user %s", email)
	}
	return t.GetUser(ctx, id)
}

func (t *tx) ListUsers(_ context.Context, f lighting.UserFilter) ([]lighting.User, error) {
	var out []lighting.User
	for _, u := range t.state.users {
		if f.Approved != nil && u.IsApproved != *f.Approved {
			continue
		}
		if f.TownID != "" && !lighting.Contains(u.TownIDs, f.TownID) {
			continue
		}
		if f.OrgID != "" && u.OrganizationID != f.OrgID {
			continue
		}
		out = append(out, u.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if c := lighting.CompareText(out[i].Surname, out[j].Surname); c != 0 {
			return c < 0
		}
		if c := lighting.CompareText(out[i].Name, out[j].Name); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tx) UpdateUser(_ context.Context, u lighting.User) error {
	if err := t.writable(); err != nil {
		return err
	}
	cur, ok := t.state.users[u.ID]
	if !ok {
		return lighting.NotFoundf("user %s", u.ID)
	}
	u.Email = lighting.NormalizeEmail(u.Email)
	if u.Email != cur.Email {
		if _, taken := t.state.emails[u.Email]; taken {
			return lighting.Conflictf("email %s already registered", u.Email)
		}
		delete(t.state.emails, cur.Email)
		t.state.emails[u.Email] = u.ID
	}
	u.CreatedAt = cur.CreatedAt
	t.state.users[u.ID] = u.Clone()
	return nil
}

func (t *tx) DeleteUsers(_ context.Context, userIDs []string) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	n := 0
	for _, id := range userIDs {
		u, ok := t.state.users[id]
		if !ok {
			continue
		}
		delete(t.state.users, id)
		delete(t.state.emails, u.Email)
		n++
	}
	return n, nil
}

func (t *tx) PullTownFromUsers(_ context.Context, townID string) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	n := 0
	for id, u := range t.state.users {
		if !lighting.Contains(u.TownIDs, townID) {
			continue
		}
		u = u.Clone()
		u.TownIDs = lighting.Without(u.TownIDs, townID)
		t.state.users[id] = u
		n++
	}
	return n, nil
}

func (t *tx) ClearUsersOrganization(_ context.Context, orgID string) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	n := 0
	for id, u := range t.state.users {
		if u.OrganizationID != orgID {
			continue
		}
		u = u.Clone()
		u.OrganizationID = ""
		t.state.users[id] = u
		n++
	}
	return n, nil
}
