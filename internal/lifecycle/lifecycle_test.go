package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lightingmap.app/internal/audit"
	"lightingmap.app/internal/auth"
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

func (r *recordingNotifier) events() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Event, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m.Event)
	}
	return out
}

type fixture struct {
	store    *memory.Store
	svc      *Service
	notifier *recordingNotifier
	town     lighting.Town
	lp       lighting.LightPoint
	reporter lighting.User
	tech     lighting.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := memory.New()
	f := &fixture{store: s, notifier: &recordingNotifier{}}
	f.svc = NewService(s, audit.NewRecorder(s), f.notifier)

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx lighting.Tx) error {
		f.town = lighting.Town{Name: "Riva"}
		if err := tx.CreateTown(ctx, &f.town); err != nil {
			return err
		}
		lps := []lighting.LightPoint{{NumeroPalo: "12"}}
		if err := tx.InsertLightPoints(ctx, f.town.ID, lps); err != nil {
			return err
		}
		f.lp = lps[0]
		f.town.LightPointIDs = []string{f.lp.ID}
		if err := tx.UpdateTown(ctx, &f.town); err != nil {
			return err
		}
		f.reporter = lighting.User{Email: "citizen@example.com", Role: lighting.RoleDefaultUser, IsApproved: true}
		if err := tx.CreateUser(ctx, &f.reporter); err != nil {
			return err
		}
		f.tech = lighting.User{Email: "tech@example.com", Role: lighting.RoleMaintainer, IsApproved: true, TownIDs: []string{f.town.ID}}
		return tx.CreateUser(ctx, &f.tech)
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) as(u lighting.User) context.Context {
	return auth.ContextWithPrincipal(context.Background(), auth.Principal{UserID: u.ID, Email: u.Email, Role: u.Role})
}

func (f *fixture) lightPoint(t *testing.T) lighting.LightPoint {
	t.Helper()
	var lp lighting.LightPoint
	require.NoError(t, f.store.View(context.Background(), func(ctx context.Context, tx lighting.Tx) error {
		var err error
		lp, err = tx.GetLightPoint(ctx, f.lp.ID)
		return err
	}))
	return lp
}

func (f *fixture) accessLogs(t *testing.T) []lighting.AccessLog {
	t.Helper()
	var logs []lighting.AccessLog
	require.NoError(t, f.store.View(context.Background(), func(ctx context.Context, tx lighting.Tx) error {
		var err error
		logs, err = tx.ListAccessLogs(ctx, 10)
		return err
	}))
	return logs
}

func TestAddReport(t *testing.T) {
	f := newFixture(t)
	at := time.Date(2024, 5, 3, 21, 7, 0, 0, time.UTC)

	rep, err := f.svc.AddReport(f.as(f.reporter), ReportInput{TownName: "Riva", PoleNumber: " 12 ", Description: "lamp out", Date: at})
	require.NoError(t, err)
	assert.Equal(t, lighting.ReportLightPointOff, rep.Type)
	assert.Equal(t, "21:07", rep.Time)
	assert.Equal(t, f.reporter.ID, rep.CreatedBy)
	assert.False(t, rep.IsSolved)

	lp := f.lightPoint(t)
	assert.Equal(t, []string{rep.ID}, lp.OpenReportIDs)

	assert.Equal(t, []notify.Event{notify.EventReportOpened}, f.notifier.events())
	assert.Equal(t, []string{"tech@example.com"}, f.notifier.msgs[0].To)

	logs := f.accessLogs(t)
	require.Len(t, logs, 1)
	assert.Equal(t, audit.ActionReportCreated, logs[0].Action)
	assert.Equal(t, lighting.OutcomeSuccess, logs[0].Outcome)
	assert.Equal(t, "Riva/12", logs[0].Resource)
}

func TestAddReportFailures(t *testing.T) {
	f := newFixture(t)
	ctx := f.as(f.reporter)

	_, err := f.svc.AddReport(ctx, ReportInput{TownName: "Nowhere", PoleNumber: "12"})
	assert.True(t, errors.Is(err, lighting.ErrNotFound))
	_, err = f.svc.AddReport(ctx, ReportInput{TownName: "Riva", PoleNumber: "99"})
	assert.True(t, errors.Is(err, lighting.ErrNotFound))
	_, err = f.svc.AddReport(ctx, ReportInput{TownName: "Riva", PoleNumber: "12", ReportType: "ALIENS"})
	assert.True(t, errors.Is(err, lighting.ErrValidation))

	assert.Empty(t, f.lightPoint(t).OpenReportIDs)
	assert.Empty(t, f.notifier.events())
	for _, l := range f.accessLogs(t) {
		assert.Equal(t, lighting.OutcomeFailure, l.Outcome)
	}
}

func TestAddOperationResolvesReport(t *testing.T) {
	f := newFixture(t)
	rep, err := f.svc.AddReport(f.as(f.reporter), ReportInput{TownName: "Riva", PoleNumber: "12", ReportType: "damaged_support"})
	require.NoError(t, err)

	op, err := f.svc.AddOperation(f.as(f.tech), OperationInput{
		TownName:   "Riva",
		PoleNumber: "12",
		Email:      "TECH@example.com",
		IsSolved:   true,
		ReportID:   &rep.ID,
		Note:       "replaced bulb",
	})
	require.NoError(t, err)
	assert.Equal(t, lighting.OpOther, op.Type)
	assert.Equal(t, lighting.MaintenanceOrdinary, op.MaintenanceType)
	assert.Equal(t, f.tech.ID, op.ResponsibleID)
	require.NotNil(t, op.ReportID)
	assert.Equal(t, rep.ID, *op.ReportID)
	assert.Nil(t, op.Placeholder)

	lp := f.lightPoint(t)
	assert.Empty(t, lp.OpenReportIDs)
	assert.Equal(t, []string{rep.ID}, lp.ResolvedReportIDs)
	assert.Equal(t, []string{op.ID}, lp.OperationIDs)

	require.NoError(t, f.store.View(context.Background(), func(ctx context.Context, tx lighting.Tx) error {
		got, err := tx.GetReport(ctx, rep.ID)
		if err != nil {
			return err
		}
		assert.True(t, got.IsSolved)
		assert.Equal(t, f.tech.ID, got.ResolvedBy)
		return nil
	}))

	assert.Equal(t, []notify.Event{notify.EventReportOpened, notify.EventReportResolved}, f.notifier.events())
	assert.Equal(t, []string{"citizen@example.com"}, f.notifier.msgs[1].To)
}

func TestAddOperationWithoutReport(t *testing.T) {
	f := newFixture(t)
	op, err := f.svc.AddOperation(f.as(f.tech), OperationInput{
		TownName:        "Riva",
		PoleNumber:      "12",
		Email:           "tech@example.com",
		OperationType:   "made_safe_but_needs_restoring",
		MaintenanceType: "extraordinary",
		IsSolved:        true,
	})
	require.NoError(t, err)
	assert.Nil(t, op.ReportID)
	require.NotNil(t, op.Placeholder)
	assert.Equal(t, lighting.PlaceholderDescription, op.Placeholder.Description)
	assert.Equal(t, lighting.MaintenanceExtraordinary, op.MaintenanceType)

	lp := f.lightPoint(t)
	assert.Equal(t, []string{op.ID}, lp.OperationIDs)
	assert.Empty(t, lp.ResolvedReportIDs)
	assert.Empty(t, f.notifier.events())
}

func TestAddOperationUnsolvedKeepsReportOpen(t *testing.T) {
	f := newFixture(t)
	rep, err := f.svc.AddReport(f.as(f.reporter), ReportInput{TownName: "Riva", PoleNumber: "12"})
	require.NoError(t, err)

	_, err = f.svc.AddOperation(f.as(f.tech), OperationInput{TownName: "Riva", PoleNumber: "12", Email: "tech@example.com", ReportID: &rep.ID})
	require.NoError(t, err)

	lp := f.lightPoint(t)
	assert.Equal(t, []string{rep.ID}, lp.OpenReportIDs)
	assert.Empty(t, lp.ResolvedReportIDs)
	assert.Len(t, lp.OperationIDs, 1)
}

func TestAddOperationFailuresLeaveNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx := f.as(f.tech)
	unknown := "01J000000000000000000000XX"
	blank := "  "

	cases := []struct {
		name string
		in   OperationInput
		want error
	}{
		{"unknown town", OperationInput{TownName: "Nowhere", PoleNumber: "12", Email: "tech@example.com"}, lighting.ErrNotFound},
		{"unknown pole", OperationInput{TownName: "Riva", PoleNumber: "7", Email: "tech@example.com"}, lighting.ErrNotFound},
		{"unknown user", OperationInput{TownName: "Riva", PoleNumber: "12", Email: "ghost@example.com"}, lighting.ErrNotFound},
		{"unknown report", OperationInput{TownName: "Riva", PoleNumber: "12", Email: "tech@example.com", ReportID: &unknown}, lighting.ErrNotFound},
		{"blank report id", OperationInput{TownName: "Riva", PoleNumber: "12", Email: "tech@example.com", ReportID: &blank}, lighting.ErrNotFound},
		{"bad type", OperationInput{TownName: "Riva", PoleNumber: "12", Email: "tech@example.com", OperationType: "PAINT"}, lighting.ErrValidation},
		{"bad maintenance", OperationInput{TownName: "Riva", PoleNumber: "12", Email: "tech@example.com", MaintenanceType: "WEEKLY"}, lighting.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.AddOperation(ctx, tc.in)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
	assert.Empty(t, f.lightPoint(t).OperationIDs)

	logs := f.accessLogs(t)
	require.Len(t, logs, len(cases))
	for _, l := range logs {
		assert.Equal(t, audit.ActionOperationCreated, l.Action)
		assert.Equal(t, lighting.OutcomeFailure, l.Outcome)
	}
}

func TestConcurrentOperationsKeepEveryAppend(t *testing.T) {
	f := newFixture(t)
	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.AddOperation(f.as(f.tech), OperationInput{TownName: "Riva", PoleNumber: "12", Email: "tech@example.com"})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Len(t, f.lightPoint(t).OperationIDs, n)
}
