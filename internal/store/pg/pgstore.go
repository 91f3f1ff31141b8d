package pg

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"lightingmap.app/internal/lighting"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the DDL applied by EnsureSchema.
func Schema() string { return schemaSQL }

type Store struct {
	db *sql.DB
}

var _ lighting.Store = (*Store)(nil)

func Open(dsn string, maxOpenConns int) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if maxOpenConns <= 0 {
		maxOpenConns = 20
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns / 2)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// EnsureSchema creates missing tables and indexes. It never alters existing ones.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// WithinTx runs fn in one database transaction. Pole number uniqueness is
// checked at commit.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx lighting.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return lighting.AsTxError(fmt.Errorf("begin: %w", err))
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &tx{q: sqlTx}); err != nil {
		return lighting.AsTxError(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return lighting.AsTxError(mapError(err, "commit"))
	}
	return nil
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx lighting.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read-only: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()
	return fn(ctx, &tx{q: sqlTx, readOnly: true})
}

type tx struct {
	q        *sql.Tx
	readOnly bool
}

func (t *tx) writable() error {
	if t.readOnly {
		return lighting.ErrReadOnly
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// mapError translates constraint violations into domain errors.
func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			if pgErr.ConstraintName == "light_points_town_pole_key" {
				return lighting.Conflictf("duplicate pole number: %s", pgErr.Detail)
			}
			return lighting.Conflictf("%s: %s", what, pgErr.Detail)
		case pgErrForeignKeyViolation:
			return lighting.NotFoundf("%s: %s", what, pgErr.Detail)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

// affected returns ErrNotFound when res touched no row.
func affected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return lighting.NotFoundf("%s", what)
	}
	return nil
}

func count(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	return int(n), err
}

func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
