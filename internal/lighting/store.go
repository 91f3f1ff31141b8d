package lighting

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Towns persists Town records. UpdateTown is conditional on t.Version and
// bumps it on success; a stale version yields ErrVersionConflict.
type Towns interface {
	CreateTown(ctx context.Context, t *Town) error
	GetTown(ctx context.Context, id string) (Town, error)
	GetTownByName(ctx context.Context, name string) (Town, error)
	ListTowns(ctx context.Context) ([]Town, error)
	UpdateTown(ctx context.Context, t *Town) error
	DeleteTown(ctx context.Context, id string) error
	// PullLightPointsFromTowns removes ids from every town list holding them.
	// It returns the number of towns changed; absent ids are ignored.
	PullLightPointsFromTowns(ctx context.Context, ids []string) (int, error)
	// UnlinkOrganizationFromTowns clears orgID from admin and maintainer fields.
	UnlinkOrganizationFromTowns(ctx context.Context, orgID string) (int, error)
}

// LightPoints persists LightPoint records.
type LightPoints interface {
	// InsertLightPoints stores new points owned by townID. Ids must be set.
	InsertLightPoints(ctx context.Context, townID string, lps []LightPoint) error
	// UpdateLightPointFields overwrites only the named attributes.
	UpdateLightPointFields(ctx context.Context, id string, fields map[string]string) error
	GetLightPoint(ctx context.Context, id string) (LightPoint, error)
	// ListLightPoints returns the points that exist, in the order of ids.
	ListLightPoints(ctx context.Context, ids []string) ([]LightPoint, error)
	FindLightPointByPole(ctx context.Context, townID, pole string) (LightPoint, error)
	DeleteLightPoints(ctx context.Context, ids []string) (int, error)
	// SaveLightPointRefs writes the three reference collections, conditional
	// on lp.Version, and bumps lp.Version.
	SaveLightPointRefs(ctx context.Context, lp *LightPoint) error
}

// Reports persists fault reports.
type Reports interface {
	CreateReport(ctx context.Context, r *Report) error
	GetReport(ctx context.Context, id string) (Report, error)
	ListReports(ctx context.Context, ids []string) ([]Report, error)
	ResolveReport(ctx context.Context, id, resolvedBy string, at time.Time) error
}

// Operations persists maintenance operations.
type Operations interface {
	CreateOperation(ctx context.Context, op *Operation) error
	ListOperations(ctx context.Context, ids []string) ([]Operation, error)
}

// UserFilter narrows ListUsers. Zero values match everything.
type UserFilter struct {
	Approved *bool
	TownID   string
	OrgID    string
}

// Users persists accounts. Emails are unique after NormalizeEmail.
type Users interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context, f UserFilter) ([]User, error)
	UpdateUser(ctx context.Context, u User) error
	DeleteUsers(ctx context.Context, ids []string) (int, error)
	PullTownFromUsers(ctx context.Context, townID string) (int, error)
	ClearUsersOrganization(ctx context.Context, orgID string) (int, error)
}

// Organizations persists organizations.
type Organizations interface {
	CreateOrganization(ctx context.Context, o *Organization) error
	GetOrganization(ctx context.Context, id string) (Organization, error)
	ListOrganizations(ctx context.Context) ([]Organization, error)
	// ListOrganizationsByTown matches the TOWNHALL town or any contract town.
	ListOrganizationsByTown(ctx context.Context, townID string) ([]Organization, error)
	UpdateOrganization(ctx context.Context, o *Organization) error
	DeleteOrganization(ctx context.Context, id string) error
	// PullUserFromOrganizations drops userID from members and responsible.
	PullUserFromOrganizations(ctx context.Context, userID string) (int, error)
	// ClearTownFromOrganizations drops townID from townhallId and contracts.
	ClearTownFromOrganizations(ctx context.Context, townID string) (int, error)
}

// Subscriptions persists push endpoints, unique by endpoint.
type Subscriptions interface {
	UpsertSubscription(ctx context.Context, s *Subscription) error
	DeactivateSubscription(ctx context.Context, endpoint string) error
	ListActiveSubscriptions(ctx context.Context, userID string) ([]Subscription, error)
}

// AccessLogs persists audit records.
type AccessLogs interface {
	InsertAccessLog(ctx context.Context, l *AccessLog) error
	ListAccessLogs(ctx context.Context, limit int) ([]AccessLog, error)
}

// Tx is the repository surface available inside one unit of work.
type Tx interface {
	Towns
	LightPoints
	Reports
	Operations
	Users
	Organizations
	Subscriptions
	AccessLogs
}

// Store runs units of work. WithinTx commits when fn returns nil and rolls
// back otherwise; View runs fn against a read-only Tx.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
}

// ErrReadOnly is returned by mutating calls made through View.
var ErrReadOnly = errors.New("read-only unit of work")

// AsTxError keeps domain errors intact and marks anything else as a
// transaction failure.
func AsTxError(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{
		ErrNotFound, ErrConflict, ErrValidation, ErrPermissionDenied, ErrTransaction,
		context.Canceled, context.DeadlineExceeded,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrTransaction, err)
}
