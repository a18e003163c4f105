package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geocoder89/sevico/internal/domain/user"
	"github.com/geocoder89/sevico/internal/observability"
)

var userCols = []string{
	"id", "email", "password_hash", "fullname", "avatar", "dob", "is_verified",
	"verification_code", "verification_code_expires_at",
	"password_reset_token", "password_reset_token_expires_at",
	"version", "created_at", "updated_at",
}

func sampleUser() user.User {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	code := "123456"
	exp := now.Add(15 * time.Minute)

	return user.User{
		ID:                        "6f1c2a3e-0000-4000-8000-000000000001",
		Email:                     "a@x.com",
		PasswordHash:              "$2a$10$hash",
		VerificationCode:          &code,
		VerificationCodeExpiresAt: &exp,
		Version:                   1,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}
}

func userRow(u user.User) *pgxmock.Rows {
	return pgxmock.NewRows(userCols).AddRow(
		u.ID, u.Email, u.PasswordHash, u.FullName, u.Avatar, u.DOB, u.IsVerified,
		u.VerificationCode, u.VerificationCodeExpiresAt,
		u.PasswordResetToken, u.PasswordResetTokenExpiresAt,
		u.Version, u.CreatedAt, u.UpdatedAt,
	)
}

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *UsersRepo, *observability.Prom) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(mock.Close)

	prom := observability.NewProm(prometheus.NewRegistry())

	return mock, NewUsersRepo(mock, prom), prom
}

func TestUsersRepo_Create(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface, u user.User)
		wantErr   error
	}{
		{
			name: "inserts the record",
			setupMock: func(mock pgxmock.PgxPoolIface, u user.User) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(
						u.ID, u.Email, u.PasswordHash, u.FullName, u.Avatar, u.DOB, u.IsVerified,
						u.VerificationCode, u.VerificationCodeExpiresAt,
						u.PasswordResetToken, u.PasswordResetTokenExpiresAt,
						u.Version, u.CreatedAt, u.UpdatedAt,
					).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "unique violation maps to already exists",
			setupMock: func(mock pgxmock.PgxPoolIface, _ user.User) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(anyArgs(14)...).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
			},
			wantErr: user.ErrAlreadyExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, repo, _ := newMockRepo(t)
			u := sampleUser()
			tt.setupMock(mock, u)

			err := repo.Create(context.Background(), u)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUsersRepo_GetByEmail(t *testing.T) {
	mock, repo, prom := newMockRepo(t)
	u := sampleUser()

	mock.ExpectQuery(`(?s)SELECT .+ FROM users WHERE email = \$1`).
		WithArgs("a@x.com").
		WillReturnRows(userRow(u))

	got, err := repo.GetByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, u.Email, got.Email)
	require.NotNil(t, got.VerificationCode)
	assert.Equal(t, "123456", *got.VerificationCode)
	assert.Nil(t, got.PasswordResetToken)

	mock.ExpectQuery(`(?s)SELECT .+ FROM users WHERE email = \$1`).
		WithArgs("ghost@x.com").
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.GetByEmail(context.Background(), "ghost@x.com")
	assert.ErrorIs(t, err, user.ErrNotFound)

	assert.Equal(t, 1.0, testutil.ToFloat64(prom.StoreErrorsTotal.WithLabelValues("users.get_by_email", "not_found")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsersRepo_Update(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface, u user.User)
		wantErr   error
	}{
		{
			name: "version matches",
			setupMock: func(mock pgxmock.PgxPoolIface, u user.User) {
				stored := u
				stored.Version = u.Version + 1
				mock.ExpectQuery(`UPDATE users SET`).
					WithArgs(anyArgs(12)...).
					WillReturnRows(userRow(stored))
			},
		},
		{
			name: "stale version",
			setupMock: func(mock pgxmock.PgxPoolIface, u user.User) {
				mock.ExpectQuery(`UPDATE users SET`).
					WithArgs(anyArgs(12)...).
					WillReturnError(pgx.ErrNoRows)
				mock.ExpectQuery(`SELECT EXISTS`).
					WithArgs(u.Email).
					WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
			},
			wantErr: user.ErrVersionConflict,
		},
		{
			name: "row missing",
			setupMock: func(mock pgxmock.PgxPoolIface, u user.User) {
				mock.ExpectQuery(`UPDATE users SET`).
					WithArgs(anyArgs(12)...).
					WillReturnError(pgx.ErrNoRows)
				mock.ExpectQuery(`SELECT EXISTS`).
					WithArgs(u.Email).
					WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
			},
			wantErr: user.ErrNotFound,
		},
		{
			name: "driver failure passes through",
			setupMock: func(mock pgxmock.PgxPoolIface, _ user.User) {
				mock.ExpectQuery(`UPDATE users SET`).
					WithArgs(anyArgs(12)...).
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: errors.New("connection refused"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, repo, _ := newMockRepo(t)
			u := sampleUser()
			tt.setupMock(mock, u)

			got, err := repo.Update(context.Background(), u)

			switch {
			case tt.wantErr == nil:
				require.NoError(t, err)
				assert.Equal(t, u.Version+1, got.Version)
			case errors.Is(tt.wantErr, user.ErrNotFound), errors.Is(tt.wantErr, user.ErrVersionConflict):
				assert.ErrorIs(t, err, tt.wantErr)
			default:
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr.Error())
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUsersRepo_Ping(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUsersRepo(mock, nil)
	mock.ExpectPing()

	assert.NoError(t, repo.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}
