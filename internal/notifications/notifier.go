package notifications

import (
	"context"
	"time"
)

const (
	KindVerificationCode = "verification_code"
	KindPasswordReset    = "password_reset"
)

type VerificationCodeInput struct {
	Email     string
	Code      string
	ExpiresAt time.Time
}

type PasswordResetInput struct {
	Email     string
	Token     string
	ExpiresAt time.Time
}

type Notifier interface {
	SendVerificationCode(ctx context.Context, input VerificationCodeInput) error
	SendPasswordReset(ctx context.Context, input PasswordResetInput) error
}
