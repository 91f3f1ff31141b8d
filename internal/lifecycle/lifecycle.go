// Package lifecycle moves fault reports from open to resolved through
// maintenance operations on a light point.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"lightingmap.app/internal/audit"
	"lightingmap.app/internal/auth"
	"lightingmap.app/internal/lighting"
	"lightingmap.app/internal/notify"
	"lightingmap.app/internal/obs"
)

// Appends commute, so a lost version race is simply replayed.
const conflictRetries = 3

// Service records reports and operations, one unit of work each.
type Service struct {
	store    lighting.Store
	recorder *audit.Recorder
	notifier notify.Notifier
	now      func() time.Time
}

// NewService wires the lifecycle. recorder and notifier may be nil.
func NewService(store lighting.Store, recorder *audit.Recorder, notifier notify.Notifier) *Service {
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Service{store: store, recorder: recorder, notifier: notifier, now: time.Now}
}

// ReportInput opens a fault on the light point with pole PoleNumber in the
// named town.
type ReportInput struct {
	TownName    string
	PoleNumber  string
	ReportType  string
	Description string
	Date        time.Time
}

// OperationInput records work done by the user with Email. A nil ReportID
// files the operation without a report; any non-nil id, blank included, must
// name an open report on the light point.
type OperationInput struct {
	TownName        string
	PoleNumber      string
	Email           string
	OperationType   string
	MaintenanceType string
	Note            string
	IsSolved        bool
	ReportID        *string
	Date            time.Time
}

// target is a light point resolved through its town by pole number.
type target struct {
	town lighting.Town
	lp   lighting.LightPoint
}

func resolve(ctx context.Context, tx lighting.Tx, townName, pole string) (target, error) {
	town, err := tx.GetTownByName(ctx, strings.TrimSpace(townName))
	if err != nil {
		return target{}, err
	}
	lp, err := tx.FindLightPointByPole(ctx, town.ID, lighting.PoleKey(pole))
	if err != nil {
		return target{}, err
	}
	if !lighting.Contains(town.LightPointIDs, lp.ID) {
		return target{}, lighting.NotFoundf("light point %q in town %q", pole, town.Name)
	}
	return target{town: town, lp: lp}, nil
}

// save writes the light point collections and bumps the town version.
func (t *target) save(ctx context.Context, tx lighting.Tx) error {
	if err := tx.SaveLightPointRefs(ctx, &t.lp); err != nil {
		return err
	}
	return tx.UpdateTown(ctx, &t.town)
}

// AddReport appends a new open report to the light point.
func (s *Service) AddReport(ctx context.Context, in ReportInput) (lighting.Report, error) {
	resource := resourceName(in.TownName, in.PoleNumber)
	rep, to, err := s.addReport(ctx, in)
	s.finish(ctx, "report", audit.ActionReportCreated, resource, err)
	if err != nil {
		return lighting.Report{}, err
	}
	s.notifier.Fire(notify.Message{
		Event:   notify.EventReportOpened,
		To:      to,
		Subject: fmt.Sprintf("New report on pole %s in %s", in.PoleNumber, strings.TrimSpace(in.TownName)),
		Body: fmt.Sprintf("A %s report was opened on %s.\n\nDescription: %s\nDate: %s %s\n",
			rep.Type, resource, rep.Description, rep.Date.Format("2006-01-02"), rep.Time),
	})
	return rep, nil
}

func (s *Service) addReport(ctx context.Context, in ReportInput) (lighting.Report, []string, error) {
	typ, err := lighting.ParseReportType(in.ReportType)
	if err != nil {
		return lighting.Report{}, nil, err
	}
	if strings.TrimSpace(in.PoleNumber) == "" {
		return lighting.Report{}, nil, lighting.Invalidf("numero_palo is required")
	}
	date := in.Date
	if date.IsZero() {
		date = s.now()
	}
	date = date.UTC()

	var (
		rep lighting.Report
		to  []string
	)
	err = lighting.RetryOnConflict(ctx, conflictRetries, func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
			t, err := resolve(ctx, tx, in.TownName, in.PoleNumber)
			if err != nil {
				return err
			}
			rep = lighting.Report{
				LightPointID: t.lp.ID,
				Type:         typ,
				Description:  in.Description,
				Date:         date,
				Time:         date.Format("15:04"),
			}
			if userID, ok := auth.UserIDFromContext(ctx); ok {
				rep.CreatedBy = userID
			}
			if err := tx.CreateReport(ctx, &rep); err != nil {
				return err
			}
			t.lp.OpenReportIDs = append(t.lp.OpenReportIDs, rep.ID)
			if err := t.save(ctx, tx); err != nil {
				return err
			}
			to, err = maintainerEmails(ctx, tx, t.town.ID)
			return err
		})
	})
	return rep, to, err
}

// maintainerEmails lists approved maintainers and administrators of the town.
func maintainerEmails(ctx context.Context, tx lighting.Tx, townID string) ([]string, error) {
	approved := true
	users, err := tx.ListUsers(ctx, lighting.UserFilter{Approved: &approved, TownID: townID})
	if err != nil {
		return nil, err
	}
	var out []string
	for _, u := range users {
		if u.Role.AtLeast(lighting.RoleMaintainer) {
			out = append(out, u.Email)
		}
	}
	return out, nil
}

// AddOperation records an operation on the light point and, when it solves
// a real open report, moves that report to the resolved collection.
func (s *Service) AddOperation(ctx context.Context, in OperationInput) (lighting.Operation, error) {
	resource := resourceName(in.TownName, in.PoleNumber)
	op, resolved, err := s.addOperation(ctx, in)
	s.finish(ctx, "operation", audit.ActionOperationCreated, resource, err)
	if err != nil {
		return lighting.Operation{}, err
	}
	if resolved != nil && resolved.email != "" {
		s.notifier.Fire(notify.Message{
			Event:   notify.EventReportResolved,
			To:      []string{resolved.email},
			Subject: fmt.Sprintf("Report resolved on pole %s in %s", in.PoleNumber, strings.TrimSpace(in.TownName)),
			Body: fmt.Sprintf("The %s report you opened on %s was resolved on %s.\n\nNote: %s\n",
				resolved.report.Type, resource, op.Date.Format("2006-01-02"), op.Note),
		})
	}
	return op, nil
}

type resolution struct {
	report lighting.Report
	email  string
}

func (s *Service) addOperation(ctx context.Context, in OperationInput) (lighting.Operation, *resolution, error) {
	opType, err := lighting.ParseOperationType(in.OperationType)
	if err != nil {
		return lighting.Operation{}, nil, err
	}
	mtype, err := lighting.ParseMaintenanceType(in.MaintenanceType)
	if err != nil {
		return lighting.Operation{}, nil, err
	}
	if strings.TrimSpace(in.Email) == "" {
		return lighting.Operation{}, nil, lighting.Invalidf("email is required")
	}
	date := in.Date
	if date.IsZero() {
		date = s.now()
	}
	date = date.UTC()
	var reportID string
	if in.ReportID != nil {
		reportID = strings.TrimSpace(*in.ReportID)
	}

	var (
		op       lighting.Operation
		resolved *resolution
	)
	err = lighting.RetryOnConflict(ctx, conflictRetries, func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
			resolved = nil
			t, err := resolve(ctx, tx, in.TownName, in.PoleNumber)
			if err != nil {
				return err
			}
			user, err := tx.GetUserByEmail(ctx, in.Email)
			if err != nil {
				return err
			}

			op = lighting.Operation{
				LightPointID:    t.lp.ID,
				ResponsibleID:   user.ID,
				Type:            opType,
				MaintenanceType: mtype,
				Note:            in.Note,
				IsSolved:        in.IsSolved,
				Date:            date,
			}
			var report *lighting.Report
			if in.ReportID != nil {
				if reportID == "" || !lighting.Contains(t.lp.OpenReportIDs, reportID) {
					return lighting.NotFoundf("open report %s on light point %q", reportID, in.PoleNumber)
				}
				r, err := tx.GetReport(ctx, reportID)
				if err != nil {
					return err
				}
				report = &r
				op.ReportID = &r.ID
			} else {
				op.Placeholder = &lighting.PlaceholderReport{Description: lighting.PlaceholderDescription}
			}
			if err := tx.CreateOperation(ctx, &op); err != nil {
				return err
			}

			if in.IsSolved && report != nil {
				if err := tx.ResolveReport(ctx, report.ID, user.ID, date); err != nil {
					return err
				}
				t.lp.OpenReportIDs = lighting.Without(t.lp.OpenReportIDs, report.ID)
				t.lp.ResolvedReportIDs = append(t.lp.ResolvedReportIDs, report.ID)
				resolved = &resolution{report: *report}
				if report.CreatedBy != "" {
					creator, err := tx.GetUser(ctx, report.CreatedBy)
					switch {
					case err == nil:
						resolved.email = creator.Email
					case !errors.Is(err, lighting.ErrNotFound):
						return err
					}
				}
			}
			t.lp.OperationIDs = append(t.lp.OperationIDs, op.ID)
			return t.save(ctx, tx)
		})
	})
	return op, resolved, err
}

func (s *Service) finish(ctx context.Context, kind, action, resource string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
		obs.Logger().WithFields(logrus.Fields{"operation": "lifecycle." + kind, "resource": resource}).WithError(err).Warn("lifecycle step failed")
	}
	obs.Lifecycle.WithLabelValues(kind, outcome).Inc()
	s.recorder.Record(ctx, action, resource, err)
}

func resourceName(town, pole string) string {
	return fmt.Sprintf("%s/%s", strings.TrimSpace(town), strings.TrimSpace(pole))
}
