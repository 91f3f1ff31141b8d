package relations

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lightingmap.app/internal/lighting"
	"lightingmap.app/internal/notify"
	"lightingmap.app/internal/store/memory"
)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (r *recordingNotifier) Fire(msg notify.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func seedTown(t *testing.T, s lighting.Store, name string, poles ...string) (lighting.Town, []lighting.LightPoint) {
	t.Helper()
	var town lighting.Town
	var lps []lighting.LightPoint
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx lighting.Tx) error {
		town = lighting.Town{Name: name}
		if err := tx.CreateTown(ctx, &town); err != nil {
			return err
		}
		for _, p := range poles {
			lps = append(lps, lighting.LightPoint{NumeroPalo: p})
		}
		if err := tx.InsertLightPoints(ctx, town.ID, lps); err != nil {
			return err
		}
		for _, lp := range lps {
			town.LightPointIDs = append(town.LightPointIDs, lp.ID)
		}
		return tx.UpdateTown(ctx, &town)
	})
	require.NoError(t, err)
	return town, lps
}

func seedUser(t *testing.T, s lighting.Store, u lighting.User) lighting.User {
	t.Helper()
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx lighting.Tx) error {
		return tx.CreateUser(ctx, &u)
	}))
	return u
}

func loadTown(t *testing.T, s lighting.Store, id string) lighting.Town {
	t.Helper()
	var town lighting.Town
	require.NoError(t, s.View(context.Background(), func(ctx context.Context, tx lighting.Tx) error {
		var err error
		town, err = tx.GetTown(ctx, id)
		return err
	}))
	return town
}

func loadUser(t *testing.T, s lighting.Store, id string) (lighting.User, error) {
	t.Helper()
	var u lighting.User
	err := s.View(context.Background(), func(ctx context.Context, tx lighting.Tx) error {
		var err error
		u, err = tx.GetUser(ctx, id)
		return err
	})
	return u, err
}

func loadOrg(t *testing.T, s lighting.Store, id string) lighting.Organization {
	t.Helper()
	var o lighting.Organization
	require.NoError(t, s.View(context.Background(), func(ctx context.Context, tx lighting.Tx) error {
		var err error
		o, err = tx.GetOrganization(ctx, id)
		return err
	}))
	return o
}

func TestDeleteLightPointPullsReference(t *testing.T) {
	s := memory.New()
	m := NewMaintainer(s, nil)
	town, lps := seedTown(t, s, "Riva", "1", "2")

	require.NoError(t, m.DeleteLightPoint(context.Background(), lps[0].ID))
	assert.Equal(t, []string{lps[1].ID}, loadTown(t, s, town.ID).LightPointIDs)

	err := m.DeleteLightPoint(context.Background(), lps[0].ID)
	assert.True(t, errors.Is(err, lighting.ErrNotFound))
}

func TestPullLightPointIsIdempotent(t *testing.T) {
	s := memory.New()
	m := NewMaintainer(s, nil)
	town, lps := seedTown(t, s, "Riva", "1", "2")

	require.NoError(t, m.PullLightPoint(context.Background(), town.ID, lps[1].ID))
	after := loadTown(t, s, town.ID)
	assert.Equal(t, []string{lps[0].ID}, after.LightPointIDs)

	require.NoError(t, m.PullLightPoint(context.Background(), town.ID, lps[1].ID))
	assert.Equal(t, after.Version, loadTown(t, s, town.ID).Version)
}

func TestDeleteTownCascades(t *testing.T) {
	s := memory.New()
	m := NewMaintainer(s, nil)
	town, lps := seedTown(t, s, "Riva", "1", "2", "3")
	other, _ := seedTown(t, s, "Arco", "1")
	u := seedUser(t, s, lighting.User{Email: "a@example.com", TownIDs: []string{town.ID, other.ID}})

	org, err := m.CreateOrganization(context.Background(), OrganizationInput{Name: "Comune di Riva", Type: "townhall", TownID: town.ID})
	require.NoError(t, err)
	assert.Equal(t, org.ID, loadTown(t, s, town.ID).OrganizationAdmin)

	out, err := m.DeleteTown(context.Background(), TownRef{Name: " Riva "})
	require.NoError(t, err)
	assert.Equal(t, TownDeletion{TownID: town.ID, LightPointsDeleted: 3, UsersUpdated: 1, OrganizationsUpdated: 1}, out)

	got, err := loadUser(t, s, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{other.ID}, got.TownIDs)
	assert.Empty(t, loadOrg(t, s, org.ID).TownID)

	err = s.View(context.Background(), func(ctx context.Context, tx lighting.Tx) error {
		found, err := tx.ListLightPoints(ctx, []string{lps[0].ID, lps[1].ID, lps[2].ID})
		assert.Empty(t, found)
		_, terr := tx.GetTown(ctx, town.ID)
		assert.True(t, errors.Is(terr, lighting.ErrNotFound))
		return err
	})
	require.NoError(t, err)

	_, err = m.DeleteTown(context.Background(), TownRef{ID: town.ID})
	assert.True(t, errors.Is(err, lighting.ErrNotFound))
}

func TestDeleteOrganizationUnlink(t *testing.T) {
	s := memory.New()
	m := NewMaintainer(s, nil)
	town, _ := seedTown(t, s, "Riva", "1")
	u := seedUser(t, s, lighting.User{Email: "tech@example.com"})

	org, err := m.CreateOrganization(context.Background(), OrganizationInput{
		Name:     "Luce Srl",
		Type:     "ENTERPRISE",
		Contract: &lighting.Contract{TownID: town.ID, Price: 1200},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{org.ID}, loadTown(t, s, town.ID).MaintainerOrgIDs)

	_, err = m.AddMembers(context.Background(), org.ID, []string{u.ID})
	require.NoError(t, err)

	out, err := m.DeleteOrganization(context.Background(), org.ID, Unlink)
	require.NoError(t, err)
	assert.Equal(t, OrgDeletion{UsersUnlinked: 1, TownsUpdated: 1}, out)

	got, err := loadUser(t, s, u.ID)
	require.NoError(t, err)
	assert.Empty(t, got.OrganizationID)
	assert.Empty(t, loadTown(t, s, town.ID).MaintainerOrgIDs)
}

func TestDeleteOrganizationCascade(t *testing.T) {
	s := memory.New()
	m := NewMaintainer(s, nil)
	member := seedUser(t, s, lighting.User{Email: "m@example.com"})
	pointing := seedUser(t, s, lighting.User{Email: "p@example.com"})
	bystander := seedUser(t, s, lighting.User{Email: "b@example.com"})

	org, err := m.CreateOrganization(context.Background(), OrganizationInput{Name: "Luce Srl", Type: "ENTERPRISE"})
	require.NoError(t, err)
	other, err := m.CreateOrganization(context.Background(), OrganizationInput{Name: "Altro", Type: "ENTERPRISE"})
	require.NoError(t, err)

	_, err = m.AddMembers(context.Background(), org.ID, []string{member.ID, pointing.ID})
	require.NoError(t, err)
	// member also belongs to another organization's roster
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx lighting.Tx) error {
		o, err := tx.GetOrganization(ctx, other.ID)
		if err != nil {
			return err
		}
		o.MemberIDs = []string{member.ID, bystander.ID}
		o.ResponsibleID = member.ID
		return tx.UpdateOrganization(ctx, &o)
	}))

	out, err := m.DeleteOrganization(context.Background(), org.ID, Cascade)
	require.NoError(t, err)
	assert.Equal(t, 2, out.UsersDeleted)

	_, err = loadUser(t, s, member.ID)
	assert.True(t, errors.Is(err, lighting.ErrNotFound))
	_, err = loadUser(t, s, bystander.ID)
	assert.NoError(t, err)

	left := loadOrg(t, s, other.ID)
	assert.Equal(t, []string{bystander.ID}, left.MemberIDs)
	assert.Empty(t, left.ResponsibleID)

	_, err = m.DeleteOrganization(context.Background(), org.ID, Cascade)
	assert.True(t, errors.Is(err, lighting.ErrNotFound))
}

func TestMovedMemberSurvivesCascade(t *testing.T) {
	s := memory.New()
	m := NewMaintainer(s, nil)
	ctx := context.Background()
	u := seedUser(t, s, lighting.User{Email: "tecnico@example.com"})

	x, err := m.CreateOrganization(ctx, OrganizationInput{Name: "Vecchia Luce", Type: "ENTERPRISE"})
	require.NoError(t, err)
	y, err := m.CreateOrganization(ctx, OrganizationInput{Name: "Nuova Luce", Type: "ENTERPRISE"})
	require.NoError(t, err)

	_, err = m.AddMembers(ctx, x.ID, []string{u.ID})
	require.NoError(t, err)
	_, err = m.AddMembers(ctx, y.ID, []string{u.ID})
	require.NoError(t, err)

	assert.Empty(t, loadOrg(t, s, x.ID).MemberIDs)
	moved, err := loadUser(t, s, u.ID)
	require.NoError(t, err)
	assert.Equal(t, y.ID, moved.OrganizationID)

	// a stale roster entry left behind must not doom the user either
	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
		o, err := tx.GetOrganization(ctx, x.ID)
		if err != nil {
			return err
		}
		o.MemberIDs = []string{u.ID}
		return tx.UpdateOrganization(ctx, &o)
	}))

	out, err := m.DeleteOrganization(ctx, x.ID, Cascade)
	require.NoError(t, err)
	assert.Equal(t, 0, out.UsersDeleted)

	_, err = loadUser(t, s, u.ID)
	assert.NoError(t, err)
	assert.Equal(t, []string{u.ID}, loadOrg(t, s, y.ID).MemberIDs)
}

func TestDeleteUserPullsMembership(t *testing.T) {
	s := memory.New()
	m := NewMaintainer(s, nil)
	u := seedUser(t, s, lighting.User{Email: "m@example.com"})
	org, err := m.CreateOrganization(context.Background(), OrganizationInput{Name: "Luce Srl", Type: "ENTERPRISE"})
	require.NoError(t, err)
	_, err = m.AddMembers(context.Background(), org.ID, []string{u.ID})
	require.NoError(t, err)

	require.NoError(t, m.DeleteUserByEmail(context.Background(), "M@example.com"))
	assert.Empty(t, loadOrg(t, s, org.ID).MemberIDs)

	err = m.DeleteUser(context.Background(), u.ID)
	assert.True(t, errors.Is(err, lighting.ErrNotFound))
}

func TestSweepOrphans(t *testing.T) {
	s := memory.New()
	m := NewMaintainer(s, nil)
	town, lps := seedTown(t, s, "Riva", "1", "2", "3")
	clean, _ := seedTown(t, s, "Arco", "1")

	// delete a point without touching the town list
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx lighting.Tx) error {
		_, err := tx.DeleteLightPoints(ctx, []string{lps[1].ID})
		return err
	}))
	cleanVersion := loadTown(t, s, clean.ID).Version

	res, err := m.SweepOrphans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.TownsUpdated)
	assert.Equal(t, 1, res.ReferencesRemoved)
	assert.Equal(t, []string{lps[1].ID}, res.Removed)
	assert.Equal(t, []string{lps[0].ID, lps[2].ID}, loadTown(t, s, town.ID).LightPointIDs)
	assert.Equal(t, cleanVersion, loadTown(t, s, clean.ID).Version)

	res, err = m.SweepOrphans(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.TownsUpdated)
	assert.Zero(t, res.ReferencesRemoved)
}

func TestOrganizationMembership(t *testing.T) {
	s := memory.New()
	m := NewMaintainer(s, nil)
	town, _ := seedTown(t, s, "Riva")
	u := seedUser(t, s, lighting.User{Email: "m@example.com"})

	_, err := m.CreateOrganization(context.Background(), OrganizationInput{Name: " ", Type: "ENTERPRISE"})
	assert.True(t, errors.Is(err, lighting.ErrValidation))
	_, err = m.CreateOrganization(context.Background(), OrganizationInput{Name: "X", Type: "COOP"})
	assert.True(t, errors.Is(err, lighting.ErrValidation))

	org, err := m.CreateOrganization(context.Background(), OrganizationInput{Name: "Luce Srl", Type: "ENTERPRISE"})
	require.NoError(t, err)

	org, err = m.AddMembers(context.Background(), org.ID, []string{u.ID, u.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{u.ID}, org.MemberIDs)

	_, err = m.AddMembers(context.Background(), org.ID, []string{"missing"})
	assert.True(t, errors.Is(err, lighting.ErrNotFound))

	org, user, err := m.RemoveMember(context.Background(), org.ID, u.ID)
	require.NoError(t, err)
	assert.Empty(t, org.MemberIDs)
	assert.Empty(t, user.OrganizationID)

	org, err = m.AddContract(context.Background(), org.ID, lighting.Contract{TownID: town.ID})
	require.NoError(t, err)
	assert.Len(t, org.Contracts, 1)
	assert.Equal(t, []string{org.ID}, loadTown(t, s, town.ID).MaintainerOrgIDs)

	_, err = m.AssociateTown(context.Background(), org.ID, "missing")
	assert.True(t, errors.Is(err, lighting.ErrNotFound))
	assert.Empty(t, loadOrg(t, s, org.ID).TownID)

	_, err = m.AssociateTown(context.Background(), org.ID, town.ID)
	require.NoError(t, err)
	assert.Equal(t, org.ID, loadTown(t, s, town.ID).OrganizationAdmin)
}

func TestValidateUserNotifies(t *testing.T) {
	s := memory.New()
	n := &recordingNotifier{}
	m := NewMaintainer(s, n)
	seedUser(t, s, lighting.User{Name: "Ada", Email: "ada@example.com"})

	u, err := m.ValidateUser(context.Background(), "ADA@example.com", "maintainer")
	require.NoError(t, err)
	assert.True(t, u.IsApproved)
	assert.Equal(t, lighting.RoleMaintainer, u.Role)

	require.Len(t, n.msgs, 1)
	assert.Equal(t, notify.EventUserValidated, n.msgs[0].Event)
	assert.Equal(t, []string{"ada@example.com"}, n.msgs[0].To)

	_, err = m.ValidateUser(context.Background(), "ada@example.com", "ROOT")
	assert.True(t, errors.Is(err, lighting.ErrValidation))
	_, err = m.ValidateUser(context.Background(), "nobody@example.com", "")
	assert.True(t, errors.Is(err, lighting.ErrNotFound))
}

func TestUserTownList(t *testing.T) {
	s := memory.New()
	m := NewMaintainer(s, nil)
	town, _ := seedTown(t, s, "Riva")
	pending := seedUser(t, s, lighting.User{Email: "p@example.com"})
	ok := seedUser(t, s, lighting.User{Email: "ok@example.com", IsApproved: true})

	err := m.AddTown(context.Background(), pending.Email, "Riva")
	assert.True(t, errors.Is(err, lighting.ErrNotFound))

	require.NoError(t, m.AddTown(context.Background(), ok.Email, "Riva"))
	err = m.AddTown(context.Background(), ok.Email, "Riva")
	assert.True(t, errors.Is(err, lighting.ErrConflict))

	got, err := loadUser(t, s, ok.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{town.ID}, got.TownIDs)

	require.NoError(t, m.RemoveTown(context.Background(), ok.Email, "Riva"))
	err = m.RemoveTown(context.Background(), ok.Email, "Riva")
	assert.True(t, errors.Is(err, lighting.ErrConflict))

	err = m.AddTown(context.Background(), ok.Email, "Nowhere")
	assert.True(t, errors.Is(err, lighting.ErrNotFound))
}

func TestCreateAndUpdateLightPoint(t *testing.T) {
	s := memory.New()
	m := NewMaintainer(s, nil)
	town, lps := seedTown(t, s, "Riva", "1")

	lp, err := m.CreateLightPoint(context.Background(), "Riva", map[string]string{"numero_palo": "2", "indirizzo": "Via Roma"})
	require.NoError(t, err)
	assert.Equal(t, "Via Roma", lp.Indirizzo)
	assert.Equal(t, []string{lps[0].ID, lp.ID}, loadTown(t, s, town.ID).LightPointIDs)

	_, err = m.CreateLightPoint(context.Background(), "Riva", map[string]string{"numero_palo": "1"})
	assert.True(t, errors.Is(err, lighting.ErrValidation))
	_, err = m.CreateLightPoint(context.Background(), "Arco", nil)
	assert.True(t, errors.Is(err, lighting.ErrNotFound))

	_, err = m.UpdateLightPoint(context.Background(), lp.ID, map[string]string{"numero_palo": " 1 "})
	assert.True(t, errors.Is(err, lighting.ErrValidation))

	got, err := m.UpdateLightPoint(context.Background(), lp.ID, map[string]string{"numero_palo": "3", "note": "new bracket"})
	require.NoError(t, err)
	assert.Equal(t, "3", got.NumeroPalo)
	assert.Equal(t, "new bracket", got.Note)
	assert.Equal(t, "Via Roma", got.Indirizzo)

	_, err = m.UpdateLightPoint(context.Background(), "missing", map[string]string{"note": "x"})
	assert.True(t, errors.Is(err, lighting.ErrNotFound))
}
