package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"lightingmap.app/internal/archive"
	"lightingmap.app/internal/auth"
	"lightingmap.app/internal/lighting"
	"lightingmap.app/internal/notify"
	"lightingmap.app/internal/obs"
)

const (
	DefaultBatchSize = 200
	archiveTimeout   = time.Minute
)

// Engine applies reconciliations and bulk town creations, each in one unit
// of work.
type Engine struct {
	store      lighting.Store
	batchSize  int
	archiver   archive.Archiver
	notifier   notify.Notifier
	adminEmail string
	now        func() time.Time
	wg         sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithBatchSize bounds the rows written per store call.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithArchiver stores an export of every committed run.
func WithArchiver(a archive.Archiver) Option {
	return func(e *Engine) {
		if a != nil {
			e.archiver = a
		}
	}
}

// WithNotifier sends upload outcomes to the caller and adminEmail.
func WithNotifier(n notify.Notifier, adminEmail string) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
		e.adminEmail = adminEmail
	}
}

func NewEngine(store lighting.Store, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		batchSize: DefaultBatchSize,
		archiver:  archive.Nop{},
		notifier:  notify.Discard,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BatchSize reports the configured batch size.
func (e *Engine) BatchSize() int { return e.batchSize }

// Wait blocks until post-commit archiving has finished.
func (e *Engine) Wait() { e.wg.Wait() }

// Reconcile converges the light points of the named town to rows. The town
// must exist. Deletes, updates, inserts and the town list write commit
// together; a failing batch yields a *BatchError and leaves nothing behind.
func (e *Engine) Reconcile(ctx context.Context, townName string, rows []Row) (Result, error) {
	townName = strings.TrimSpace(townName)
	log := obs.Logger().WithFields(logrus.Fields{"operation": "reconcile.Reconcile", "town": townName, "rows": len(rows)})

	var res Result
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
		res = Result{Town: townName}
		town, err := tx.GetTownByName(ctx, townName)
		if err != nil {
			return err
		}
		res.TownID = town.ID

		existing, err := tx.ListLightPoints(ctx, town.LightPointIDs)
		if err != nil {
			return err
		}
		plan, err := NewPlan(existing, rows)
		if err != nil {
			return err
		}
		if err := e.applyDeletes(ctx, tx, plan.Deletes, &res); err != nil {
			return err
		}
		if err := e.applyUpserts(ctx, tx, town.ID, plan.Upserts, PhaseUpsert, &res); err != nil {
			return err
		}

		town.LightPointIDs = plan.LightPointIDs()
		if err := tx.UpdateTown(ctx, &town); err != nil {
			return err
		}
		if _, err := tx.PullLightPointsFromTowns(ctx, plan.Deletes); err != nil {
			return err
		}

		byID := make(map[string]lighting.LightPoint, len(existing))
		for _, lp := range existing {
			byID[lp.ID] = lp
		}
		for _, id := range plan.Deletes {
			res.deletedPoints = append(res.deletedPoints, byID[id])
		}
		res.Deleted = plan.Deletes
		for _, u := range plan.Upserts {
			if u.Insert {
				res.Inserted = append(res.Inserted, Inserted{ID: u.ID, Row: u.Row})
				continue
			}
			res.Updated = append(res.Updated, u.ID)
			res.updatedRows = append(res.updatedRows, u.Row)
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Error("reconciliation failed")
		if res.TownID != "" {
			e.notifyFailure(ctx, "reconcile", townName, err)
		}
		return Result{}, err
	}

	log.WithFields(logrus.Fields{"deleted": len(res.Deleted), "updated": len(res.Updated), "inserted": len(res.Inserted)}).Info("reconciliation committed")
	e.committed(ctx, "reconcile", res)
	return res, nil
}

// Preview computes the plan for rows without writing anything.
func (e *Engine) Preview(ctx context.Context, townName string, rows []Row) (Result, error) {
	townName = strings.TrimSpace(townName)
	var res Result
	err := e.store.View(ctx, func(ctx context.Context, tx lighting.Tx) error {
		town, err := tx.GetTownByName(ctx, townName)
		if err != nil {
			return err
		}
		existing, err := tx.ListLightPoints(ctx, town.LightPointIDs)
		if err != nil {
			return err
		}
		plan, err := NewPlan(existing, rows)
		if err != nil {
			return err
		}
		res = Result{TownID: town.ID, Town: town.Name, Deleted: plan.Deletes, Updated: plan.Updated()}
		for _, u := range plan.Inserted() {
			res.Inserted = append(res.Inserted, Inserted{ID: u.ID, Row: u.Row})
		}
		return nil
	})
	return res, err
}

// TownInput describes a town to create.
type TownInput struct {
	Name        string                `json:"name"`
	Region      string                `json:"region"`
	Province    string                `json:"province"`
	Coordinates *lighting.Coordinates `json:"coordinates,omitempty"`
}

// CreateTown stores a new town and bulk inserts rows as its light points in
// one unit of work. A duplicate name is a conflict.
func (e *Engine) CreateTown(ctx context.Context, in TownInput, rows []Row) (lighting.Town, Result, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return lighting.Town{}, Result{}, lighting.Invalidf("town name is required")
	}
	log := obs.Logger().WithFields(logrus.Fields{"operation": "reconcile.CreateTown", "town": in.Name, "rows": len(rows)})

	plan, err := NewPlan(nil, rows)
	if err != nil {
		return lighting.Town{}, Result{}, err
	}

	var (
		town    lighting.Town
		res     Result
		created bool
	)
	err = e.store.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
		res = Result{Town: in.Name}
		if _, err := tx.GetTownByName(ctx, in.Name); err == nil {
			return lighting.Conflictf("town %q already exists", in.Name)
		} else if !errors.Is(err, lighting.ErrNotFound) {
			return err
		}
		town = lighting.Town{Name: in.Name, Region: in.Region, Province: in.Province, Coordinates: in.Coordinates}
		if err := tx.CreateTown(ctx, &town); err != nil {
			return err
		}
		created = true
		res.TownID = town.ID

		if err := e.applyUpserts(ctx, tx, town.ID, plan.Upserts, PhaseInsert, &res); err != nil {
			return err
		}
		town.LightPointIDs = plan.LightPointIDs()
		if err := tx.UpdateTown(ctx, &town); err != nil {
			return err
		}
		for _, u := range plan.Upserts {
			res.Inserted = append(res.Inserted, Inserted{ID: u.ID, Row: u.Row})
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Error("town creation failed")
		if created {
			e.notifyFailure(ctx, "create", in.Name, err)
		}
		return lighting.Town{}, Result{}, err
	}

	log.WithField("inserted", len(res.Inserted)).Info("town created")
	e.committed(ctx, "create", res)
	return town, res, nil
}

func (e *Engine) applyDeletes(ctx context.Context, tx lighting.Tx, deletes []string, res *Result) error {
	for i, batch := range chunk(deletes, e.batchSize) {
		if _, err := tx.DeleteLightPoints(ctx, batch); err != nil {
			return e.batchFailed(res, PhaseDelete, i+1, len(batch), "_id "+batch[0], err)
		}
		e.batchDone(res, PhaseDelete, i+1, len(batch))
	}
	return nil
}

func (e *Engine) applyUpserts(ctx context.Context, tx lighting.Tx, townID string, upserts []Upsert, phase string, res *Result) error {
	for i, batch := range chunk(upserts, e.batchSize) {
		if row, err := upsertBatch(ctx, tx, townID, batch); err != nil {
			return e.batchFailed(res, phase, i+1, len(batch), row.Describe(), err)
		}
		e.batchDone(res, phase, i+1, len(batch))
	}
	return nil
}

// upsertBatch applies updates one by one and inserts in a single call. It
// returns the row blamed for a failure.
func upsertBatch(ctx context.Context, tx lighting.Tx, townID string, batch []Upsert) (Row, error) {
	var (
		points []lighting.LightPoint
		rows   []Row
	)
	for _, u := range batch {
		if u.Insert {
			points = append(points, u.NewPoint())
			rows = append(rows, u.Row)
			continue
		}
		if err := tx.UpdateLightPointFields(ctx, u.ID, u.Row.Fields); err != nil {
			return u.Row, err
		}
	}
	if len(points) > 0 {
		if err := tx.InsertLightPoints(ctx, townID, points); err != nil {
			return rows[0], err
		}
	}
	return Row{}, nil
}

func (e *Engine) batchDone(res *Result, phase string, batch, size int) {
	res.Batches = append(res.Batches, BatchStatus{Phase: phase, Batch: batch, Size: size, Status: "ok"})
	obs.ReconcileBatches.WithLabelValues(phase, "ok").Inc()
}

func (e *Engine) batchFailed(res *Result, phase string, batch, size int, row string, err error) error {
	res.Batches = append(res.Batches, BatchStatus{Phase: phase, Batch: batch, Size: size, Status: "failed"})
	obs.ReconcileBatches.WithLabelValues(phase, "failed").Inc()
	return &BatchError{Phase: phase, Batch: batch, Row: row, Err: err}
}

func (e *Engine) recipients(ctx context.Context) []string {
	var to []string
	if p, ok := auth.PrincipalFromContext(ctx); ok && p.Email != "" {
		to = append(to, p.Email)
	}
	if e.adminEmail != "" {
		to = append(to, e.adminEmail)
	}
	return to
}

// committed records metrics, then archives the export and announces the
// upload in the background.
func (e *Engine) committed(ctx context.Context, kind string, res Result) {
	obs.ReconcileRows.WithLabelValues("deleted").Add(float64(len(res.Deleted)))
	obs.ReconcileRows.WithLabelValues("updated").Add(float64(len(res.Updated)))
	obs.ReconcileRows.WithLabelValues("inserted").Add(float64(len(res.Inserted)))

	to := e.recipients(ctx)
	export := res.Export(kind, e.now())
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
		defer cancel()

		body := res.Text()
		loc, err := e.archiver.Archive(actx, export)
		switch {
		case err != nil:
			obs.Logger().WithFields(logrus.Fields{"operation": "reconcile.archive", "town": res.Town}).WithError(err).Warn("archive export failed")
		case loc != "":
			body += "Export: " + loc + "\n"
		}
		e.notifier.Fire(notify.Message{
			Event:   notify.EventUploadSucceeded,
			To:      to,
			Subject: "Upload completed: " + res.Town,
			Body:    body,
		})
	}()
}

func (e *Engine) notifyFailure(ctx context.Context, kind, town string, err error) {
	subject := "Upload failed: " + town
	if be, ok := AsBatchError(err); ok {
		subject = fmt.Sprintf("Upload failed at %s batch %d: %s", be.Phase, be.Batch, town)
	}
	e.notifier.Fire(notify.Message{
		Event:   notify.EventUploadFailed,
		To:      e.recipients(ctx),
		Subject: subject,
		Body:    "Town: " + town + "\nKind: " + kind + "\nError: " + err.Error() + "\n",
	})
}

func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
