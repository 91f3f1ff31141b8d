package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"lightingmap.app/internal/ids"
	"lightingmap.app/internal/lighting"
)

const reportColumns = `id, light_point_id, report_type, description, report_date, report_time,
	is_solved, created_by, resolved_by, resolved_at`

func scanReport(row scanner) (lighting.Report, error) {
	var (
		r          lighting.Report
		resolvedAt sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.LightPointID, &r.Type, &r.Description, &r.Date, &r.Time,
		&r.IsSolved, &r.CreatedBy, &r.ResolvedBy, &resolvedAt); err != nil {
		return lighting.Report{}, err
	}
	r.ResolvedAt = timePtr(resolvedAt)
	return r, nil
}

func (t *tx) CreateReport(ctx context.Context, r *lighting.Report) error {
	if err := t.writable(); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = ids.New()
	}
	if r.Date.IsZero() {
		r.Date = time.Now().UTC()
	}
	_, err := t.q.ExecContext(ctx, `
		insert into reports (`+reportColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, r.ID, r.LightPointID, r.Type, r.Description, r.Date, r.Time, r.IsSolved, r.CreatedBy, r.ResolvedBy, nullTime(r.ResolvedAt))
	return mapError(err, "insert report")
}

func (t *tx) GetReport(ctx context.Context, id string) (lighting.Report, error) {
	r, err := scanReport(t.q.QueryRowContext(ctx, `select `+reportColumns+` from reports where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return lighting.Report{}, lighting.NotFoundf("report %s", id)
	}
	return r, err
}

func (t *tx) ListReports(ctx context.Context, reportIDs []string) ([]lighting.Report, error) {
	if len(reportIDs) == 0 {
		return nil, nil
	}
	rows, err := t.q.QueryContext(ctx, `
		select `+reportColumns+` from reports
		where id = any($1::text[])
		order by report_date, id
	`, pq.Array(reportIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lighting.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *tx) ResolveReport(ctx context.Context, id, resolvedBy string, at time.Time) error {
	if err := t.writable(); err != nil {
		return err
	}
	res, err := t.q.ExecContext(ctx, `
		update reports set is_solved = true, resolved_by = $2, resolved_at = $3 where id = $1
	`, id, resolvedBy, at.UTC())
	if err != nil {
		return fmt.Errorf("resolve report: %w", err)
	}
	return affected(res, "report "+id)
}

const operationColumns = `id, light_point_id, responsible_id, operation_type, maintenance_type, note,
	report_id, placeholder_description, is_solved, operation_date`

func scanOperation(row scanner) (lighting.Operation, error) {
	var (
		op          lighting.Operation
		reportID    sql.NullString
		placeholder sql.NullString
	)
	if err := row.Scan(&op.ID, &op.LightPointID, &op.ResponsibleID, &op.Type, &op.MaintenanceType, &op.Note,
		&reportID, &placeholder, &op.IsSolved, &op.Date); err != nil {
		return lighting.Operation{}, err
	}
	if reportID.Valid {
		op.ReportID = &reportID.String
	}
	if placeholder.Valid {
		op.Placeholder = &lighting.PlaceholderReport{Description: placeholder.String}
	}
	return op, nil
}

func (t *tx) CreateOperation(ctx context.Context, op *lighting.Operation) error {
	if err := t.writable(); err != nil {
		return err
	}
	if op.ID == "" {
		op.ID = ids.New()
	}
	if op.Date.IsZero() {
		op.Date = time.Now().UTC()
	}
	var reportID, placeholder sql.NullString
	if op.ReportID != nil {
		reportID = sql.NullString{String: *op.ReportID, Valid: true}
	}
	if op.Placeholder != nil {
		placeholder = sql.NullString{String: op.Placeholder.Description, Valid: true}
	}
	_, err := t.q.ExecContext(ctx, `
		insert into operations (`+operationColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, op.ID, op.LightPointID, op.ResponsibleID, op.Type, op.MaintenanceType, op.Note, reportID, placeholder, op.IsSolved, op.Date)
	return mapError(err, "insert operation")
}

func (t *tx) ListOperations(ctx context.Context, opIDs []string) ([]lighting.Operation, error) {
	if len(opIDs) == 0 {
		return nil, nil
	}
	rows, err := t.q.QueryContext(ctx, `
		select `+operationColumns+` from operations
		where id = any($1::text[])
		order by operation_date, id
	`, pq.Array(opIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lighting.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}
