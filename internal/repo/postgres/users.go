package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/geocoder89/sevico/internal/domain/user"
	"github.com/geocoder89/sevico/internal/observability"
)

// poolIface is the part of *pgxpool.Pool the repo needs.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

const userColumns = `id::text, email, password_hash, fullname, avatar, dob, is_verified,
	verification_code, verification_code_expires_at,
	password_reset_token, password_reset_token_expires_at,
	version, created_at, updated_at`

type UsersRepo struct {
	pool poolIface
	prom *observability.Prom
}

func NewUsersRepo(pool poolIface, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveStore(op, fn)
	}
	return fn()
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) error {
	err := r.observe("users.create", func() error {
		_, err := r.pool.Exec(ctx, `INSERT INTO users (
			id, email, password_hash, fullname, avatar, dob, is_verified,
			verification_code, verification_code_expires_at,
			password_reset_token, password_reset_token_expires_at,
			version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
			u.ID, u.Email, u.PasswordHash, u.FullName, u.Avatar, u.DOB, u.IsVerified,
			u.VerificationCode, u.VerificationCodeExpiresAt,
			u.PasswordResetToken, u.PasswordResetTokenExpiresAt,
			u.Version, u.CreatedAt, u.UpdatedAt,
		)
		return err
	})

	if err != nil {
		if IsUniqueViolation(err) {
			return user.ErrAlreadyExists
		}
		return err
	}

	return nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User

	err := r.observe("users.get_by_email", func() error {
		return scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = $1`,
			email,
		), &u)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}

	return u, nil
}

// Update writes u only while the stored version still matches u.Version.
func (r *UsersRepo) Update(ctx context.Context, u user.User) (user.User, error) {
	var stored user.User

	err := r.observe("users.update", func() error {
		return scanUser(r.pool.QueryRow(ctx, `UPDATE users SET
			password_hash = $3,
			fullname = $4,
			avatar = $5,
			dob = $6,
			is_verified = $7,
			verification_code = $8,
			verification_code_expires_at = $9,
			password_reset_token = $10,
			password_reset_token_expires_at = $11,
			updated_at = $12,
			version = version + 1
		WHERE email = $1 AND version = $2
		RETURNING `+userColumns,
			u.Email, u.Version,
			u.PasswordHash, u.FullName, u.Avatar, u.DOB, u.IsVerified,
			u.VerificationCode, u.VerificationCodeExpiresAt,
			u.PasswordResetToken, u.PasswordResetTokenExpiresAt,
			u.UpdatedAt,
		), &stored)
	})

	if err == nil {
		return stored, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return user.User{}, err
	}

	// nothing matched: either the row is gone or someone else bumped the version
	var exists bool

	err = r.observe("users.update.exists", func() error {
		return r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, u.Email).Scan(&exists)
	})
	if err != nil {
		return user.User{}, err
	}

	if !exists {
		return user.User{}, user.ErrNotFound
	}

	return user.User{}, user.ErrVersionConflict
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanUser(row pgx.Row, u *user.User) error {
	return row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.FullName,
		&u.Avatar,
		&u.DOB,
		&u.IsVerified,
		&u.VerificationCode,
		&u.VerificationCodeExpiresAt,
		&u.PasswordResetToken,
		&u.PasswordResetTokenExpiresAt,
		&u.Version,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
}
