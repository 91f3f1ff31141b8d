package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"lightingmap.app/internal/ids"
	"lightingmap.app/internal/lighting"
)

const organizationColumns = `id, name, description, type, logo, member_ids, responsible_id, town_id,
	contracts, address, lat, lng, created_at, updated_at`

func scanOrganization(row scanner) (lighting.Organization, error) {
	var (
		o                  lighting.Organization
		members            pq.StringArray
		contracts, address []byte
		lat, lng           sql.NullFloat64
	)
	if err := row.Scan(&o.ID, &o.Name, &o.Description, &o.Type, &o.Logo, &members, &o.ResponsibleID, &o.TownID,
		&contracts, &address, &lat, &lng, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return lighting.Organization{}, err
	}
	o.MemberIDs = []string(members)
	if len(contracts) > 0 {
		if err := json.Unmarshal(contracts, &o.Contracts); err != nil {
			return lighting.Organization{}, fmt.Errorf("decode contracts: %w", err)
		}
	}
	if len(address) > 0 && string(address) != "null" {
		o.Address = &lighting.Address{}
		if err := json.Unmarshal(address, o.Address); err != nil {
			return lighting.Organization{}, fmt.Errorf("decode address: %w", err)
		}
	}
	if lat.Valid && lng.Valid {
		o.Location = &lighting.Coordinates{Lat: lat.Float64, Lng: lng.Float64}
	}
	return o, nil
}

func organizationArgs(o *lighting.Organization) ([]any, error) {
	contracts := o.Contracts
	if contracts == nil {
		contracts = []lighting.Contract{}
	}
	rawContracts, err := json.Marshal(contracts)
	if err != nil {
		return nil, fmt.Errorf("encode contracts: %w", err)
	}
	var rawAddress []byte
	if o.Address != nil {
		if rawAddress, err = json.Marshal(o.Address); err != nil {
			return nil, fmt.Errorf("encode address: %w", err)
		}
	}
	lat, lng := coords(o.Location)
	return []any{o.ID, o.Name, o.Description, o.Type, o.Logo, pq.Array(nonNil(o.MemberIDs)), o.ResponsibleID, o.TownID,
		rawContracts, rawAddress, lat, lng}, nil
}

func (t *tx) CreateOrganization(ctx context.Context, o *lighting.Organization) error {
	if err := t.writable(); err != nil {
		return err
	}
	if o.ID == "" {
		o.ID = ids.New()
	}
	args, err := organizationArgs(o)
	if err != nil {
		return err
	}
	err = t.q.QueryRowContext(ctx, `
		insert into organizations (id, name, description, type, logo, member_ids, responsible_id, town_id,
		                           contracts, address, lat, lng)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		returning created_at, updated_at
	`, args...).Scan(&o.CreatedAt, &o.UpdatedAt)
	return mapError(err, "insert organization")
}

func (t *tx) GetOrganization(ctx context.Context, id string) (lighting.Organization, error) {
	o, err := scanOrganization(t.q.QueryRowContext(ctx, `select `+organizationColumns+` from organizations where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return lighting.Organization{}, lighting.NotFoundf("organization %s", id)
	}
	return o, err
}

func (t *tx) queryOrganizations(ctx context.Context, query string, args ...any) ([]lighting.Organization, error) {
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lighting.Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (t *tx) ListOrganizations(ctx context.Context) ([]lighting.Organization, error) {
	return t.queryOrganizations(ctx, `select `+organizationColumns+` from organizations order by name, id`)
}

func (t *tx) ListOrganizationsByTown(ctx context.Context, townID string) ([]lighting.Organization, error) {
	return t.queryOrganizations(ctx, `
		select `+organizationColumns+` from organizations
		where town_id = $1 or contracts @> jsonb_build_array(jsonb_build_object('townhall_associated', $1::text))
		order by name, id
	`, townID)
}

func (t *tx) UpdateOrganization(ctx context.Context, o *lighting.Organization) error {
	if err := t.writable(); err != nil {
		return err
	}
	args, err := organizationArgs(o)
	if err != nil {
		return err
	}
	err = t.q.QueryRowContext(ctx, `
		update organizations
		set name = $2, description = $3, type = $4, logo = $5, member_ids = $6, responsible_id = $7,
		    town_id = $8, contracts = $9, address = $10, lat = $11, lng = $12, updated_at = now()
		where id = $1
		returning created_at, updated_at
	`, args...).Scan(&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return lighting.NotFoundf("organization %s", o.ID)
	}
	return mapError(err, "update organization")
}

func (t *tx) DeleteOrganization(ctx context.Context, id string) error {
	if err := t.writable(); err != nil {
		return err
	}
	res, err := t.q.ExecContext(ctx, `delete from organizations where id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	return affected(res, "organization "+id)
}

func (t *tx) PullUserFromOrganizations(ctx context.Context, userID string) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	res, err := t.q.ExecContext(ctx, `
		update organizations
		set member_ids = array_remove(member_ids, $1),
		    responsible_id = case when responsible_id = $1 then '' else responsible_id end,
		    updated_at = now()
		where responsible_id = $1 or $1 = any(member_ids)
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("pull user from organizations: %w", err)
	}
	return count(res)
}

func (t *tx) ClearTownFromOrganizations(ctx context.Context, townID string) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	res, err := t.q.ExecContext(ctx, `
		update organizations
		set town_id = case when town_id = $1 then '' else town_id end,
		    contracts = coalesce((
		        select jsonb_agg(c order by pos) from jsonb_array_elements(contracts) with ordinality as e(c, pos)
		        where c->>'townhall_associated' is distinct from $1), '[]'::jsonb),
		    updated_at = now()
		where town_id = $1 or contracts @> jsonb_build_array(jsonb_build_object('townhall_associated', $1::text))
	`, townID)
	if err != nil {
		return 0, fmt.Errorf("clear town from organizations: %w", err)
	}
	return count(res)
}
