package relations

import (
	"context"
	"errors"
	"strings"

	"lightingmap.app/internal/lighting"
)

// CreateLightPoint stores a point from canonical fields and appends it to
// the named town.
func (m *Maintainer) CreateLightPoint(ctx context.Context, townName string, fields map[string]string) (lighting.LightPoint, error) {
	var lp lighting.LightPoint
	err := lighting.RetryOnConflict(ctx, conflictRetries, func(ctx context.Context) error {
		return m.store.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
			town, err := tx.GetTownByName(ctx, strings.TrimSpace(townName))
			if err != nil {
				return err
			}
			lp = lighting.LightPoint{}
			lp.Apply(fields)
			if err := poleAvailable(ctx, tx, town, lp.NumeroPalo, ""); err != nil {
				return err
			}
			pts := []lighting.LightPoint{lp}
			if err := tx.InsertLightPoints(ctx, town.ID, pts); err != nil {
				return err
			}
			lp = pts[0]
			town.LightPointIDs = append(town.LightPointIDs, lp.ID)
			return tx.UpdateTown(ctx, &town)
		})
	})
	if err != nil {
		return lighting.LightPoint{}, err
	}
	return lp, nil
}

// UpdateLightPoint overwrites the given canonical fields of one point.
func (m *Maintainer) UpdateLightPoint(ctx context.Context, id string, fields map[string]string) (lighting.LightPoint, error) {
	var lp lighting.LightPoint
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
		cur, err := tx.GetLightPoint(ctx, id)
		if err != nil {
			return err
		}
		if pole, ok := fields[lighting.FieldNumeroPalo]; ok && lighting.PoleKey(pole) != lighting.PoleKey(cur.NumeroPalo) {
			town, err := tx.GetTown(ctx, cur.TownID)
			if err != nil {
				return err
			}
			if err := poleAvailable(ctx, tx, town, pole, cur.ID); err != nil {
				return err
			}
		}
		if err := tx.UpdateLightPointFields(ctx, id, fields); err != nil {
			return err
		}
		lp, err = tx.GetLightPoint(ctx, id)
		return err
	})
	if err != nil {
		return lighting.LightPoint{}, err
	}
	return lp, nil
}

func poleAvailable(ctx context.Context, tx lighting.Tx, town lighting.Town, pole, self string) error {
	if lighting.PoleKey(pole) == "" {
		return nil
	}
	other, err := tx.FindLightPointByPole(ctx, town.ID, pole)
	switch {
	case errors.Is(err, lighting.ErrNotFound):
		return nil
	case err != nil:
		return err
	case other.ID != self:
		return lighting.Invalidf("pole number %q already used in town %q", lighting.PoleKey(pole), town.Name)
	}
	return nil
}
