package memory

import (
	"context"
	"sync"

	"github.com/geocoder89/sevico/internal/domain/user"
)

type UsersRepo struct {
	mu    sync.RWMutex
	items map[string]user.User // {"email": user}
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		items: make(map[string]user.User),
	}
}

func (r *UsersRepo) Create(_ context.Context, u user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[u.Email]; ok {
		return user.ErrAlreadyExists
	}

	r.items[u.Email] = clone(u)

	return nil
}

func (r *UsersRepo) GetByEmail(_ context.Context, email string) (user.User, error) {
	r.mu.RLock()
	u, ok := r.items[email]
	r.mu.RUnlock()

	if !ok {
		return user.User{}, user.ErrNotFound
	}

	return clone(u), nil
}

func (r *UsersRepo) Update(_ context.Context, u user.User) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[u.Email]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	if current.Version != u.Version {
		return user.User{}, user.ErrVersionConflict
	}

	u.Version++
	r.items[u.Email] = clone(u)

	return clone(u), nil
}

func (r *UsersRepo) Ping(context.Context) error {
	return nil
}

// clone detaches the pointer fields so callers never share state with the map.
func clone(u user.User) user.User {
	out := u
	out.FullName = copyPtr(u.FullName)
	out.Avatar = copyPtr(u.Avatar)
	out.DOB = copyPtr(u.DOB)
	out.VerificationCode = copyPtr(u.VerificationCode)
	out.VerificationCodeExpiresAt = copyPtr(u.VerificationCodeExpiresAt)
	out.PasswordResetToken = copyPtr(u.PasswordResetToken)
	out.PasswordResetTokenExpiresAt = copyPtr(u.PasswordResetTokenExpiresAt)
	return out
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
