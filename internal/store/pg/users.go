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

const userColumns = `id, name, surname, email, password_hash, role, is_approved, email_verified,
	town_ids, organization_id, reset_token, reset_expires, created_at`

func scanUser(row scanner) (lighting.User, error) {
	var (
		u       lighting.User
		towns   pq.StringArray
		expires sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Surname, &u.Email, &u.PasswordHash, &u.Role, &u.IsApproved, &u.EmailVerified,
		&towns, &u.OrganizationID, &u.ResetToken, &expires, &u.CreatedAt); err != nil {
		return lighting.User{}, err
	}
	u.TownIDs = []string(towns)
	u.ResetExpires = timePtr(expires)
	return u, nil
}

func (t *tx) CreateUser(ctx context.Context, u *lighting.User) error {
	if err := t.writable(); err != nil {
		return err
	}
	u.Email = lighting.NormalizeEmail(u.Email)
	if u.ID == "" {
		u.ID = ids.New()
	}
	err := t.q.QueryRowContext(ctx, `
		insert into users (id, name, surname, email, password_hash, role, is_approved, email_verified,
		                   town_ids, organization_id, reset_token, reset_expires)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		returning created_at
	`, u.ID, u.Name, u.Surname, u.Email, u.PasswordHash, u.Role, u.IsApproved, u.EmailVerified,
		pq.Array(nonNil(u.TownIDs)), u.OrganizationID, u.ResetToken, nullTime(u.ResetExpires)).Scan(&u.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return lighting.Conflictf("email %s already registered", u.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (t *tx) GetUser(ctx context.Context, id string) (lighting.User, error) {
	u, err := scanUser(t.q.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return lighting.User{}, lighting.NotFoundf("user %s", id)
	}
	return u, err
}

func (t *tx) GetUserByEmail(ctx context.Context, email string) (lighting.User, error) {
	u, err := scanUser(t.q.QueryRowContext(ctx, `select `+userColumns+` from users where email = $1`, lighting.NormalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return lighting.User{}, lighting.NotFoundf("user %s", email)
	}
	return u, err
}

func (t *tx) ListUsers(ctx context.Context, f lighting.UserFilter) ([]lighting.User, error) {
	var (
		where []string
		args  []any
	)
	if f.Approved != nil {
		args = append(args, *f.Approved)
		where = append(where, fmt.Sprintf("is_approved = $%d", len(args)))
	}
	if f.TownID != "" {
		args = append(args, f.TownID)
		where = append(where, fmt.Sprintf("$%d = any(town_ids)", len(args)))
	}
	if f.OrgID != "" {
		args = append(args, f.OrgID)
		where = append(where, fmt.Sprintf("organization_id = $%d", len(args)))
	}
	query := `select ` + userColumns + ` from users`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	query += ` order by surname, name, id`

	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lighting.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (t *tx) UpdateUser(ctx context.Context, u lighting.User) error {
	if err := t.writable(); err != nil {
		return err
	}
	res, err := t.q.ExecContext(ctx, `
		update users
		set name = $2, surname = $3, email = $4, password_hash = $5, role = $6, is_approved = $7,
		    email_verified = $8, town_ids = $9, organization_id = $10, reset_token = $11, reset_expires = $12
		where id = $1
	`, u.ID, u.Name, u.Surname, lighting.NormalizeEmail(u.Email), u.PasswordHash, u.Role, u.IsApproved,
		u.EmailVerified, pq.Array(nonNil(u.TownIDs)), u.OrganizationID, u.ResetToken, nullTime(u.ResetExpires))
	if err != nil {
		return mapError(err, "update user")
	}
	return affected(res, "user "+u.ID)
}

func (t *tx) DeleteUsers(ctx context.Context, userIDs []string) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	if len(userIDs) == 0 {
		return 0, nil
	}
	res, err := t.q.ExecContext(ctx, `delete from users where id = any($1::text[])`, pq.Array(userIDs))
	if err != nil {
		return 0, fmt.Errorf("delete users: %w", err)
	}
	return count(res)
}

func (t *tx) PullTownFromUsers(ctx context.Context, townID string) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	res, err := t.q.ExecContext(ctx, `
		update users set town_ids = array_remove(town_ids, $1) where $1 = any(town_ids)
	`, townID)
	if err != nil {
		return 0, fmt.Errorf("pull town from users: %w", err)
	}
	return count(res)
}

func (t *tx) ClearUsersOrganization(ctx context.Context, orgID string) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	res, err := t.q.ExecContext(ctx, `update users set organization_id = '' where organization_id = $1`, orgID)
	if err != nil {
		return 0, fmt.Errorf("clear users organization: %w", err)
	}
	return count(res)
}
