// Package postgres implements goIdentity.IdentityStore on PostgreSQL through
// database/sql and the pgx stdlib driver. Schema changes ship as embedded
// goose migrations; see Migrate.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const uniqueViolation = "23505"

const selectColumns = `SELECT id, username, password_hash, auth_key,
	COALESCE(access_token, ''), COALESCE(password_reset_token, ''),
	status, created_at, updated_at, allowance, allowance_updated_at
	FROM identities`

// Store is a PostgreSQL identity store. The *sql.DB is owned by the caller.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects with the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", goIdentity.ErrStoreUnavailable, err)
}

// validID reports whether id can match the uuid primary key. Lookups by a
// malformed id are misses, not driver errors.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *Store) FindByID(ctx context.Context, id string) (goIdentity.IdentityRecord, error) {
	if !validID(id) {
		return goIdentity.IdentityRecord{}, goIdentity.ErrNotFound
	}
	return s.findOne(ctx, selectColumns+` WHERE id = $1::uuid AND status = $2`, id)
}

func (s *Store) FindByUsername(ctx context.Context, username string) (goIdentity.IdentityRecord, error) {
	return s.findOne(ctx, selectColumns+` WHERE username = $1 AND status = $2`, username)
}

func (s *Store) FindByAccessToken(ctx context.Context, token string) (goIdentity.IdentityRecord, error) {
	return s.findOne(ctx, selectColumns+` WHERE access_token = $1 AND status = $2`, token)
}

func (s *Store) FindByPasswordResetToken(ctx context.Context, token string) (goIdentity.IdentityRecord, error) {
	return s.findOne(ctx, selectColumns+` WHERE password_reset_token = $1 AND status = $2`, token)
}

func (s *Store) findOne(ctx context.Context, query, arg string) (goIdentity.IdentityRecord, error) {
	if arg == "" {
		return goIdentity.IdentityRecord{}, goIdentity.ErrNotFound
	}

	row := s.db.QueryRowContext(ctx, query, arg, int(goIdentity.StatusActive))

	var (
		rec       goIdentity.IdentityRecord
		status    int
		allowance sql.NullInt64
		stamp     sql.NullInt64
	)
	err := row.Scan(
		&rec.ID, &rec.Username, &rec.PasswordHash, &rec.AuthKey,
		&rec.AccessToken, &rec.PasswordResetToken,
		&status, &rec.CreatedAt, &rec.UpdatedAt, &allowance, &stamp,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return goIdentity.IdentityRecord{}, goIdentity.ErrNotFound
		}
		return goIdentity.IdentityRecord{}, unavailable(err)
	}

	rec.Status = goIdentity.Status(status)
	if allowance.Valid && stamp.Valid {
		rec.Allowance = &goIdentity.Allowance{Remaining: int(allowance.Int64), UpdatedAt: stamp.Int64}
	}
	return rec, nil
}

// Save upserts rec in one statement. The allowance columns are never
// written here.
func (s *Store) Save(ctx context.Context, rec goIdentity.IdentityRecord) error {
	const q = `INSERT INTO identities
		(id, username, password_hash, auth_key, access_token, password_reset_token, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			password_hash = EXCLUDED.password_hash,
			auth_key = EXCLUDED.auth_key,
			access_token = EXCLUDED.access_token,
			password_reset_token = EXCLUDED.password_reset_token,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`

	_, err := s.db.ExecContext(ctx, q,
		rec.ID, rec.Username, rec.PasswordHash, rec.AuthKey,
		rec.AccessToken, rec.PasswordResetToken,
		int(rec.Status), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return goIdentity.ErrIdentityExists
		}
		return unavailable(err)
	}
	return nil
}

func (s *Store) LoadAllowance(ctx context.Context, id string) (goIdentity.Allowance, bool, error) {
	if !validID(id) {
		return goIdentity.Allowance{}, false, goIdentity.ErrNotFound
	}

	var allowance, stamp sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT allowance, allowance_updated_at FROM identities WHERE id = $1::uuid`, id,
	).Scan(&allowance, &stamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return goIdentity.Allowance{}, false, goIdentity.ErrNotFound
		}
		return goIdentity.Allowance{}, false, unavailable(err)
	}

	if !allowance.Valid || !stamp.Valid {
		return goIdentity.Allowance{}, false, nil
	}
	return goIdentity.Allowance{Remaining: int(allowance.Int64), UpdatedAt: stamp.Int64}, true, nil
}

// SaveAllowance writes both columns in a single UPDATE.
func (s *Store) SaveAllowance(ctx context.Context, id string, a goIdentity.Allowance) error {
	if a.Remaining < 0 {
		return goIdentity.ErrInvalidAllowance
	}
	if !validID(id) {
		return goIdentity.ErrNotFound
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE identities SET allowance = $2, allowance_updated_at = $3 WHERE id = $1::uuid`,
		id, a.Remaining, a.UpdatedAt,
	)
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return goIdentity.ErrNotFound
	}
	return nil
}
