package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"lightingmap.app/internal/ids"
	"lightingmap.app/internal/lighting"
)

var lightPointColumns = "id, town_id, " + strings.Join(lighting.Fields, ", ") +
	", open_report_ids, resolved_report_ids, operation_ids, version"

func scanLightPoint(row scanner) (lighting.LightPoint, error) {
	var (
		lp                     lighting.LightPoint
		open, resolved, opsIDs pq.StringArray
	)
	dest := make([]any, 0, len(lighting.Fields)+6)
	dest = append(dest, &lp.ID, &lp.TownID)
	for _, f := range lighting.Fields {
		dest = append(dest, lp.FieldPtr(f))
	}
	dest = append(dest, &open, &resolved, &opsIDs, &lp.Version)
	if err := row.Scan(dest...); err != nil {
		return lighting.LightPoint{}, err
	}
	lp.OpenReportIDs = []string(open)
	lp.ResolvedReportIDs = []string(resolved)
	lp.OperationIDs = []string(opsIDs)
	return lp, nil
}

func (t *tx) InsertLightPoints(ctx context.Context, townID string, lps []lighting.LightPoint) error {
	if err := t.writable(); err != nil {
		return err
	}
	if len(lps) == 0 {
		return nil
	}
	perRow := len(lighting.Fields) + 5
	values := make([]string, 0, len(lps))
	args := make([]any, 0, len(lps)*perRow)
	for i := range lps {
		lp := &lps[i]
		if lp.ID == "" {
			lp.ID = ids.New()
		}
		lp.TownID = townID
		lp.Version = 1
		values = append(values, "("+placeholders(len(args)+1, perRow)+")")
		args = append(args, lp.ID, townID)
		for _, f := range lighting.Fields {
			args = append(args, lp.Get(f))
		}
		args = append(args, pq.Array(nonNil(lp.OpenReportIDs)), pq.Array(nonNil(lp.ResolvedReportIDs)), pq.Array(nonNil(lp.OperationIDs)))
	}
	query := `insert into light_points (id, town_id, ` + strings.Join(lighting.Fields, ", ") +
		`, open_report_ids, resolved_report_ids, operation_ids) values ` + strings.Join(values, ", ")
	if _, err := t.q.ExecContext(ctx, query, args...); err != nil {
		return mapError(err, "insert light points")
	}
	return nil
}

func (t *tx) UpdateLightPointFields(ctx context.Context, id string, fields map[string]string) error {
	if err := t.writable(); err != nil {
		return err
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		if lighting.IsField(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	sets := make([]string, 0, len(names)+1)
	args := []any{id}
	for _, name := range names {
		args = append(args, fields[name])
		sets = append(sets, fmt.Sprintf("%s = $%d", name, len(args)))
	}
	sets = append(sets, "version = version + 1")
	res, err := t.q.ExecContext(ctx, `update light_points set `+strings.Join(sets, ", ")+` where id = $1`, args...)
	if err != nil {
		return mapError(err, "update light point")
	}
	return affected(res, "light point "+id)
}

func (t *tx) GetLightPoint(ctx context.Context, id string) (lighting.LightPoint, error) {
	lp, err := scanLightPoint(t.q.QueryRowContext(ctx, `select `+lightPointColumns+` from light_points where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return lighting.LightPoint{}, lighting.NotFoundf("light point %s", id)
	}
	return lp, err
}

func (t *tx) ListLightPoints(ctx context.Context, lightPointIDs []string) ([]lighting.LightPoint, error) {
	if len(lightPointIDs) == 0 {
		return nil, nil
	}
	rows, err := t.q.QueryContext(ctx, `select `+lightPointColumns+` from light_points where id = any($1::text[])`, pq.Array(lightPointIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]lighting.LightPoint, len(lightPointIDs))
	for rows.Next() {
		lp, err := scanLightPoint(rows)
		if err != nil {
			return nil, err
		}
		byID[lp.ID] = lp
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]lighting.LightPoint, 0, len(byID))
	for _, id := range lightPointIDs {
		if lp, ok := byID[id]; ok {
			out = append(out, lp)
			delete(byID, id)
		}
	}
	return out, nil
}

func (t *tx) FindLightPointByPole(ctx context.Context, townID, pole string) (lighting.LightPoint, error) {
	key := lighting.PoleKey(pole)
	if key == "" {
		return lighting.LightPoint{}, lighting.NotFoundf("light point with pole number %q", pole)
	}
	lp, err := scanLightPoint(t.q.QueryRowContext(ctx, `
		select `+lightPointColumns+` from light_points
		where town_id = $1 and pole_key = $2
		order by id limit 1
	`, townID, key))
	if errors.Is(err, sql.ErrNoRows) {
		return lighting.LightPoint{}, lighting.NotFoundf("light point with pole number %q", pole)
	}
	return lp, err
}

func (t *tx) DeleteLightPoints(ctx context.Context, lightPointIDs []string) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	if len(lightPointIDs) == 0 {
		return 0, nil
	}
	res, err := t.q.ExecContext(ctx, `delete from light_points where id = any($1::text[])`, pq.Array(lightPointIDs))
	if err != nil {
		return 0, fmt.Errorf("delete light points: %w", err)
	}
	return count(res)
}

func (t *tx) SaveLightPointRefs(ctx context.Context, lp *lighting.LightPoint) error {
	if err := t.writable(); err != nil {
		return err
	}
	err := t.q.QueryRowContext(ctx, `
		update light_points
		set open_report_ids = $2, resolved_report_ids = $3, operation_ids = $4, version = version + 1
		where id = $1 and version = $5
		returning version
	`, lp.ID, pq.Array(nonNil(lp.OpenReportIDs)), pq.Array(nonNil(lp.ResolvedReportIDs)),
		pq.Array(nonNil(lp.OperationIDs)), lp.Version).Scan(&lp.Version)
	if errors.Is(err, sql.ErrNoRows) {
		var one int
		if err := t.q.QueryRowContext(ctx, `select 1 from light_points where id = $1`, lp.ID).Scan(&one); errors.Is(err, sql.ErrNoRows) {
			return lighting.NotFoundf("light point %s", lp.ID)
		} else if err != nil {
			return err
		}
		return lighting.ErrVersionConflict
	}
	return err
}
