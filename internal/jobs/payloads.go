package jobs

import "time"

// Email payloads carry the secret itself; the reset token is stored only as a digest.
// Workers drop them once ExpiresAt has passed.
type VerificationCodePayload struct {
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type PasswordResetPayload struct {
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type expiring interface {
	expiry() time.Time
}

func (p VerificationCodePayload) expiry() time.Time { return p.ExpiresAt }
func (p PasswordResetPayload) expiry() time.Time    { return p.ExpiresAt }

// Expired reports whether a decoded payload is past the lifetime of the secret it carries.
func Expired(payload any, now time.Time) bool {
	e, ok := payload.(expiring)
	if !ok {
		return false
	}
	return !now.Before(e.expiry())
}
