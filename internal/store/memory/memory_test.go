package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lightingmap.app/internal/lighting"
)

func seedTown(t *testing.T, s *Store, name string, poles ...string) (lighting.Town, []lighting.LightPoint) {
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

func TestWithinTxRollsBackOnError(t *testing.T) {
	s := New()
	town, _ := seedTown(t, s, "Riva", "1")

	boom := errors.New("boom")
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx lighting.Tx) error {
		lps := []lighting.LightPoint{{NumeroPalo: "2"}}
		if err := tx.InsertLightPoints(ctx, town.ID, lps); err != nil {
			return err
		}
		cur, err := tx.GetTown(ctx, town.ID)
		if err != nil {
			return err
		}
		cur.LightPointIDs = append(cur.LightPointIDs, lps[0].ID)
		if err := tx.UpdateTown(ctx, &cur); err != nil {
			return err
		}
		return boom
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, lighting.ErrTransaction))
	assert.True(t, errors.Is(err, boom))

	_ = s.View(context.Background(), func(ctx context.Context, tx lighting.Tx) error {
		got, err := tx.GetTown(ctx, town.ID)
		require.NoError(t, err)
		assert.Len(t, got.LightPointIDs, 1)
		assert.Equal(t, town.Version, got.Version)
		_, err = tx.FindLightPointByPole(ctx, town.ID, "2")
		assert.ErrorIs(t, err, lighting.ErrNotFound)
		return nil
	})
}

func TestUpdateTownVersionConflict(t *testing.T) {
	s := New()
	town, _ := seedTown(t, s, "Riva")
	ctx := context.Background()

	stale := town
	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
		return tx.UpdateTown(ctx, &town)
	}))
	err := s.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
		return tx.UpdateTown(ctx, &stale)
	})
	assert.ErrorIs(t, err, lighting.ErrVersionConflict)
	assert.ErrorIs(t, err, lighting.ErrConflict)
}

func TestDuplicateTownName(t *testing.T) {
	s := New()
	seedTown(t, s, "Riva")
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx lighting.Tx) error {
		return tx.CreateTown(ctx, &lighting.Town{Name: " Riva "})
	})
	assert.ErrorIs(t, err, lighting.ErrConflict)
}

func TestPoleIndexUniqueAtCommit(t *testing.T) {
	s := New()
	town, lps := seedTown(t, s, "Riva", "10", "11")
	ctx := context.Background()

	// Swapping two pole numbers passes through a transient duplicate.
	err := s.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
		if err := tx.UpdateLightPointFields(ctx, lps[0].ID, map[string]string{lighting.FieldNumeroPalo: "11"}); err != nil {
			return err
		}
		return tx.UpdateLightPointFields(ctx, lps[1].ID, map[string]string{lighting.FieldNumeroPalo: "10"})
	})
	require.NoError(t, err)

	err = s.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
		return tx.InsertLightPoints(ctx, town.ID, []lighting.LightPoint{{NumeroPalo: " 10 "}})
	})
	assert.ErrorIs(t, err, lighting.ErrConflict)

	_ = s.View(ctx, func(ctx context.Context, tx lighting.Tx) error {
		lp, err := tx.FindLightPointByPole(ctx, town.ID, "10")
		require.NoError(t, err)
		assert.Equal(t, lps[1].ID, lp.ID)
		_, err = tx.FindLightPointByPole(ctx, town.ID, "")
		assert.ErrorIs(t, err, lighting.ErrNotFound)
		return nil
	})
}

func TestViewIsReadOnly(t *testing.T) {
	s := New()
	err := s.View(context.Background(), func(ctx context.Context, tx lighting.Tx) error {
		return tx.CreateTown(ctx, &lighting.Town{Name: "Arco"})
	})
	assert.ErrorIs(t, err, lighting.ErrReadOnly)
}

func TestPullLightPointsIsIdempotent(t *testing.T) {
	s := New()
	town, lps := seedTown(t, s, "Riva", "1", "2")
	ctx := context.Background()

	pull := func() int {
		var n int
		require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
			var err error
			n, err = tx.PullLightPointsFromTowns(ctx, []string{lps[0].ID})
			return err
		}))
		return n
	}
	assert.Equal(t, 1, pull())
	assert.Equal(t, 0, pull())

	_ = s.View(ctx, func(ctx context.Context, tx lighting.Tx) error {
		got, err := tx.GetTown(ctx, town.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{lps[1].ID}, got.LightPointIDs)
		return nil
	})
}

func TestSaveLightPointRefsConditional(t *testing.T) {
	s := New()
	_, lps := seedTown(t, s, "Riva", "1")
	ctx := context.Background()

	lp := lps[0]
	lp.OpenReportIDs = []string{"r1"}
	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
		return tx.SaveLightPointRefs(ctx, &lp)
	}))
	assert.Equal(t, int64(2), lp.Version)

	stale := lps[0]
	err := s.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
		return tx.SaveLightPointRefs(ctx, &stale)
	})
	assert.ErrorIs(t, err, lighting.ErrVersionConflict)
}

func TestUsersAndOrganizations(t *testing.T) {
	s := New()
	ctx := context.Background()
	town, _ := seedTown(t, s, "Riva")

	var u lighting.User
	var org lighting.Organization
	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
		u = lighting.User{Email: " Ops@Riva.IT ", TownIDs: []string{town.ID}}
		if err := tx.CreateUser(ctx, &u); err != nil {
			return err
		}
		org = lighting.Organization{Name: "Luce Srl", Type: lighting.OrgEnterprise, MemberIDs: []string{u.ID}, ResponsibleID: u.ID,
			Contracts: []lighting.Contract{{TownID: town.ID}, {TownID: "other"}}}
		return tx.CreateOrganization(ctx, &org)
	}))

	err := s.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
		return tx.CreateUser(ctx, &lighting.User{Email: "ops@riva.it"})
	})
	assert.ErrorIs(t, err, lighting.ErrConflict)

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
		n, err := tx.PullUserFromOrganizations(ctx, u.ID)
		assert.Equal(t, 1, n)
		if err != nil {
			return err
		}
		n, err = tx.ClearTownFromOrganizations(ctx, town.ID)
		assert.Equal(t, 1, n)
		return err
	}))
	_ = s.View(ctx, func(ctx context.Context, tx lighting.Tx) error {
		got, err := tx.GetOrganization(ctx, org.ID)
		require.NoError(t, err)
		assert.Empty(t, got.MemberIDs)
		assert.Empty(t, got.ResponsibleID)
		require.Len(t, got.Contracts, 1)
		assert.Equal(t, "other", got.Contracts[0].TownID)

		byEmail, err := tx.GetUserByEmail(ctx, "OPS@riva.it")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byEmail.ID)
		return nil
	})
}

func TestAccessLogsNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, action := range []string{"A", "B", "C"} {
		require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
			return tx.InsertAccessLog(ctx, &lighting.AccessLog{Action: action})
		}))
	}
	_ = s.View(ctx, func(ctx context.Context, tx lighting.Tx) error {
		logs, err := tx.ListAccessLogs(ctx, 2)
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, "C", logs[0].Action)
		assert.Equal(t, "B", logs[1].Action)
		return nil
	})
}

func TestCounters(t *testing.T) {
	s := New()
	ctx := context.Background()
	w := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	n, _ := s.Increment(ctx, "k", w)
	assert.Equal(t, int64(1), n)
	n, _ = s.Increment(ctx, "k", w)
	assert.Equal(t, int64(2), n)
	purged, _ := s.PurgeCounters(ctx, w.Add(time.Hour))
	assert.Equal(t, int64(1), purged)
}

func TestCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
