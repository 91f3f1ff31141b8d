package memory

import (
	"context"
	"time"

	"lightingmap.app/internal/ids"
	"lightingmap.app/internal/lighting"
)

func (t *tx) CreateReport(_ context.Context, r *lighting.Report) error {
	if err := t.writable(); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = ids.New()
	}
	if _, ok := t.state.reports[r.ID]; ok {
		return lighting.Conflictf("report %s already exists", r.ID)
	}
	if r.Date.IsZero() {
		r.Date = t.now
	}
	t.state.reports[r.ID] = *r
	return nil
}

func (t *tx) GetReport(_ context.Context, id string) (lighting.Report, error) {
	r, ok := t.state.reports[id]
	if !ok {
		return lighting.Report{}, lighting.NotFoundf("report %s", id)
	}
	return r, nil
}

func (t *tx) ListReports(_ context.Context, reportIDs []string) ([]lighting.Report, error) {
	out := make([]lighting.Report, 0, len(reportIDs))
	for _, id := range reportIDs {
		if r, ok := t.state.reports[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *tx) ResolveReport(_ context.Context, id, resolvedBy string, at time.Time) error {
	if err := t.writable(); err != nil {
		return err
	}
	r, ok := t.state.reports[id]
	if !ok {
		return lighting.NotFoundf("report %s", id)
	}
	at = at.UTC()
	r.IsSolved = true
	r.ResolvedBy = resolvedBy
	r.ResolvedAt = &at
	t.state.reports[id] = r
	return nil
}

func (t *tx) CreateOperation(_ context.Context, op *lighting.Operation) error {
	if err := t.writable(); err != nil {
		return err
	}
	if op.ID == "" {
		op.ID = ids.New()
	}
	if _, ok := t.state.ops[op.ID]; ok {
		return lighting.Conflictf("operation %s already exists", op.ID)
	}
	if op.Date.IsZero() {
		op.Date = t.now
	}
	t.state.ops[op.ID] = cloneOperation(*op)
	return nil
}

func (t *tx) ListOperations(_ context.Context, opIDs []string) ([]lighting.Operation, error) {
	out := make([]lighting.Operation, 0, len(opIDs))
	for _, id := range opIDs {
		if op, ok := t.state.ops[id]; ok {
			out = append(out, cloneOperation(op))
		}
	}
	return out, nil
}

func cloneOperation(op lighting.Operation) lighting.Operation {
	if op.ReportID != nil {
		v := *op.ReportID
		op.ReportID = &v
	}
	if op.Placeholder != nil {
		p := *op.Placeholder
		op.Placeholder = &p
	}
	return op
}
