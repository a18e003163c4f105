package notifications

import (
	"context"
	"log/slog"
)

// LogNotifier writes messages to the log instead of mailing them. Development only:
// it logs the code and token in clear.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendVerificationCode(ctx context.Context, in VerificationCodeInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.logger.InfoContext(ctx, "notification.verification_code",
		"email", in.Email,
		"code", in.Code,
		"expires_at", in.ExpiresAt,
	)
	return nil
}

func (n *LogNotifier) SendPasswordReset(ctx context.Context, in PasswordResetInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.logger.InfoContext(ctx, "notification.password_reset",
		"email", in.Email,
		"token", in.Token,
		"expires_at", in.ExpiresAt,
	)
	return nil
}
