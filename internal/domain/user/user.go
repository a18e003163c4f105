package user

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound        = errors.New("user not found")
	ErrAlreadyExists   = errors.New("user already exists")
	ErrVersionConflict = errors.New("user was modified concurrently")
)

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // never expose hash in JSON
	FullName     *string    `json:"fullname,omitempty"`
	Avatar       *string    `json:"avatar,omitempty"`
	DOB          *time.Time `json:"dob,omitempty"`
	IsVerified   bool       `json:"is_verified"`

	VerificationCode          *string    `json:"-"`
	VerificationCodeExpiresAt *time.Time `json:"-"`

	// PasswordResetToken holds a digest of the token mailed to the user.
	PasswordResetToken          *string    `json:"-"`
	PasswordResetTokenExpiresAt *time.Time `json:"-"`

	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Profile is the public view returned to an authenticated caller.
type Profile struct {
	Email      string     `json:"email"`
	FullName   *string    `json:"fullname,omitempty"`
	Avatar     *string    `json:"avatar,omitempty"`
	DOB        *time.Time `json:"dob,omitempty"`
	IsVerified bool       `json:"is_verified"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (u User) Profile() Profile {
	return Profile{
		Email:      u.Email,
		FullName:   u.FullName,
		Avatar:     u.Avatar,
		DOB:        u.DOB,
		IsVerified: u.IsVerified,
		CreatedAt:  u.CreatedAt,
	}
}

func (u *User) SetVerificationCode(code string, expiresAt time.Time) {
	u.VerificationCode = &code
	u.VerificationCodeExpiresAt = &expiresAt
}

// MarkVerified clears the pending code together with its expiry.
func (u *User) MarkVerified() {
	u.IsVerified = true
	u.VerificationCode = nil
	u.VerificationCodeExpiresAt = nil
}

func (u *User) SetPasswordResetToken(digest string, expiresAt time.Time) {
	u.PasswordResetToken = &digest
	u.PasswordResetTokenExpiresAt = &expiresAt
}

func (u *User) ReplacePassword(hash string) {
	u.PasswordHash = hash
	u.PasswordResetToken = nil
	u.PasswordResetTokenExpiresAt = nil
}

// NormalizeEmail is applied before every store access so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Store persists one record per email.
//
// Create must reject duplicates with ErrAlreadyExists through a store-level
// constraint. Update is a compare-and-swap on Version: it writes u only if the
// stored version still equals u.Version, bumps the version and returns the
// stored record, or fails with ErrVersionConflict.
type Store interface {
	Create(ctx context.Context, u User) error
	GetByEmail(ctx context.Context, email string) (User, error)
	Update(ctx context.Context, u User) (User, error)
	Ping(ctx context.Context) error
}
