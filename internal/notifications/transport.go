package notifications

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/geocoder89/sevico/internal/config"
)

// NewTransport builds the configured mail transport wrapped in a circuit breaker.
func NewTransport(ctx context.Context, cfg config.EmailConfig, logger *slog.Logger) (*ProtectedNotifier, error) {
	var (
		inner Notifier
		err   error
	)

	switch cfg.Transport {
	case config.TransportSMTP:
		inner, err = NewSMTPNotifier(SMTPConfig{
			Host:             cfg.SMTPHost,
			Port:             cfg.SMTPPort,
			Username:         cfg.SMTPUsername,
			Password:         cfg.SMTPPassword,
			TLS:              cfg.SMTPTLS,
			SenderEmail:      cfg.SenderEmail,
			SenderName:       cfg.SenderName,
			ConfigurationSet: cfg.SESConfigSet,
			Timeout:          cfg.SendTimeout,
		})
	case config.TransportSES:
		inner, err = NewSESNotifier(ctx, SESConfig{
			Region:           cfg.AWSRegion,
			SenderEmail:      cfg.SenderEmail,
			SenderName:       cfg.SenderName,
			ConfigurationSet: cfg.SESConfigSet,
		})
	case config.TransportLog:
		inner = NewLogNotifier(logger)
	default:
		return nil, fmt.Errorf("unknown email transport %q", cfg.Transport)
	}

	if err != nil {
		return nil, err
	}

	return NewProtectedNotifier(inner, ProtectedNotifierConfig{
		Timeout:          cfg.SendTimeout,
		FailureThreshold: cfg.FailureThreshold,
		Cooldown:         cfg.BreakerCooldown,
	}), nil
}
