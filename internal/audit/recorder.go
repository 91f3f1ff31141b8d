package audit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"lightingmap.app/internal/auth"
	"lightingmap.app/internal/ids"
	"lightingmap.app/internal/lighting"
	"lightingmap.app/internal/obs"
)

// Actions recorded in the access log.
const (
	ActionReportCreated    = "REPORT_CREATED"
	ActionOperationCreated = "OPERATION_CREATED"
	ActionTownReconciled   = "TOWN_RECONCILED"
	ActionTownCreated      = "TOWN_CREATED"
	ActionTownDeleted      = "TOWN_DELETED"
	ActionOrphanSweep      = "ORPHAN_SWEEP"
	ActionLogin            = "LOGIN"
)

// Recorder persists access log records and mirrors them as audit lines.
// Persistence failures are logged, not returned.
type Recorder struct {
	store lighting.Store
	now   func() time.Time
}

func NewRecorder(store lighting.Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Record stores one AccessLog tagged with outcome. A nil cause means SUCCESS.
func (r *Recorder) Record(ctx context.Context, action, resource string, cause error) {
	outcome := lighting.OutcomeSuccess
	details := ""
	if cause != nil {
		outcome = lighting.OutcomeFailure
		details = cause.Error()
	}
	now := time.Now
	if r != nil && r.now != nil {
		now = r.now
	}
	c := clientFromContext(ctx)
	rec := lighting.AccessLog{
		ID:        ids.New(),
		Action:    action,
		Resource:  resource,
		Timestamp: now().UTC(),
		IPAddress: c.ip,
		UserAgent: c.userAgent,
		Outcome:   outcome,
		Details:   details,
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		rec.UserID = userID
	}

	_ = LogEvent(ctx, action, map[string]any{"resource": resource, "outcome": string(outcome), "details": details})

	if r == nil || r.store == nil {
		return
	}
	// The request may already be cancelled when a failure is recorded.
	err := r.store.WithinTx(context.WithoutCancel(ctx), func(ctx context.Context, tx lighting.Tx) error {
		return tx.InsertAccessLog(ctx, &rec)
	})
	if err != nil {
		obs.Logger().WithFields(logrus.Fields{"operation": "audit.Record", "action": action}).WithError(err).Error("persist access log")
	}
}
