package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"lightingmap.app/internal/ids"
	"lightingmap.app/internal/lighting"
)

const townColumns = `id, name, region, province, lat, lng, light_point_ids, organization_admin,
	maintainer_org_ids, version, created_at, updated_at`

func scanTown(row scanner) (lighting.Town, error) {
	var (
		t        lighting.Town
		lat, lng sql.NullFloat64
		lights   pq.StringArray
		maint    pq.StringArray
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Region, &t.Province, &lat, &lng, &lights, &t.OrganizationAdmin,
		&maint, &t.Version, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return lighting.Town{}, err
	}
	if lat.Valid && lng.Valid {
		t.Coordinates = &lighting.Coordinates{Lat: lat.Float64, Lng: lng.Float64}
	}
	t.LightPointIDs = []string(lights)
	t.MaintainerOrgIDs = []string(maint)
	return t, nil
}

func coords(c *lighting.Coordinates) (sql.NullFloat64, sql.NullFloat64) {
	if c == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: c.Lat, Valid: true}, sql.NullFloat64{Float64: c.Lng, Valid: true}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func (t *tx) CreateTown(ctx context.Context, town *lighting.Town) error {
	if err := t.writable(); err != nil {
		return err
	}
	town.Name = strings.TrimSpace(town.Name)
	if town.ID == "" {
		town.ID = ids.New()
	}
	lat, lng := coords(town.Coordinates)
	err := t.q.QueryRowContext(ctx, `
		insert into towns (id, name, region, province, lat, lng, light_point_ids, organization_admin, maintainer_org_ids)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning version, created_at, updated_at
	`, town.ID, town.Name, town.Region, town.Province, lat, lng, pq.Array(nonNil(town.LightPointIDs)),
		town.OrganizationAdmin, pq.Array(nonNil(town.MaintainerOrgIDs))).Scan(&town.Version, &town.CreatedAt, &town.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return lighting.Conflictf("town %q already exists", town.Name)
		}
		return fmt.Errorf("insert town: %w", err)
	}
	return nil
}

func (t *tx) GetTown(ctx context.Context, id string) (lighting.Town, error) {
	town, err := scanTown(t.q.QueryRowContext(ctx, `select `+townColumns+` from towns where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return lighting.Town{}, lighting.NotFoundf("town %s", id)
	}
	return town, err
}

func (t *tx) GetTownByName(ctx context.Context, name string) (lighting.Town, error) {
	town, err := scanTown(t.q.QueryRowContext(ctx, `select `+townColumns+` from towns where name = $1`, strings.TrimSpace(name)))
	if errors.Is(err, sql.ErrNoRows) {
		return lighting.Town{}, lighting.NotFoundf("town %q", name)
	}
	return town, err
}

func (t *tx) ListTowns(ctx context.Context) ([]lighting.Town, error) {
	rows, err := t.q.QueryContext(ctx, `select `+townColumns+` from towns order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lighting.Town
	for rows.Next() {
		town, err := scanTown(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, town)
	}
	return out, rows.Err()
}

func (t *tx) UpdateTown(ctx context.Context, town *lighting.Town) error {
	if err := t.writable(); err != nil {
		return err
	}
	town.Name = strings.TrimSpace(town.Name)
	lat, lng := coords(town.Coordinates)
	err := t.q.QueryRowContext(ctx, `
		update towns
		set name = $2, region = $3, province = $4, lat = $5, lng = $6, light_point_ids = $7,
		    organization_admin = $8, maintainer_org_ids = $9, version = version + 1, updated_at = now()
		where id = $1 and version = $10
		returning version, created_at, updated_at
	`, town.ID, town.Name, town.Region, town.Province, lat, lng, pq.Array(nonNil(town.LightPointIDs)),
		town.OrganizationAdmin, pq.Array(nonNil(town.MaintainerOrgIDs)), town.Version).Scan(&town.Version, &town.CreatedAt, &town.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		var one int
		if err := t.q.QueryRowContext(ctx, `select 1 from towns where id = $1`, town.ID).Scan(&one); errors.Is(err, sql.ErrNoRows) {
			return lighting.NotFoundf("town %s", town.ID)
		} else if err != nil {
			return err
		}
		return lighting.ErrVersionConflict
	}
	if err != nil {
		return mapError(err, "update town")
	}
	return nil
}

func (t *tx) DeleteTown(ctx context.Context, id string) error {
	if err := t.writable(); err != nil {
		return err
	}
	res, err := t.q.ExecContext(ctx, `delete from towns where id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete town: %w", err)
	}
	return affected(res, "town "+id)
}

func (t *tx) PullLightPointsFromTowns(ctx context.Context, lightPointIDs []string) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	if len(lightPointIDs) == 0 {
		return 0, nil
	}
	res, err := t.q.ExecContext(ctx, `
		update towns
		set light_point_ids = array(
		        select u.id from unnest(light_point_ids) with ordinality as u(id, pos)
		        where u.id <> all($1::text[]) order by u.pos),
		    version = version + 1, updated_at = now()
		where light_point_ids && $1::text[]
	`, pq.Array(lightPointIDs))
	if err != nil {
		return 0, fmt.Errorf("pull light points: %w", err)
	}
	return count(res)
}

func (t *tx) UnlinkOrganizationFromTowns(ctx context.Context, orgID string) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	res, err := t.q.ExecContext(ctx, `
		update towns
		set organization_admin = case when organization_admin = $1 then '' else organization_admin end,
		    maintainer_org_ids = array_remove(maintainer_org_ids, $1),
		    version = version + 1, updated_at = now()
		where organization_admin = $1 or $1 = any(maintainer_org_ids)
	`, orgID)
	if err != nil {
		return 0, fmt.Errorf("unlink organization: %w", err)
	}
	return count(res)
}
