package notifications

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/wneessen/go-mail"
)

const headerSESConfigurationSet = "X-SES-CONFIGURATION-SET"

type SMTPConfig struct {
	Host             string
	Port             int
	Username         string
	Password         string
	TLS              bool
	SenderEmail      string
	SenderName       string
	ConfigurationSet string
	Timeout          time.Duration
}

type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPNotifier delivers multipart (text + html) messages over SMTP.
type SMTPNotifier struct {
	cfg      SMTPConfig
	client   mailSender
	renderer renderer
}

func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	policy := mail.NoTLS
	if cfg.TLS {
		policy = mail.TLSMandatory
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(policy),
	}

	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}

	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, oops.Code("SMTP_CLIENT_FAILED").With("host", cfg.Host).Wrap(err)
	}

	return newSMTPNotifier(cfg, client), nil
}

func newSMTPNotifier(cfg SMTPConfig, client mailSender) *SMTPNotifier {
	return &SMTPNotifier{
		cfg:      cfg,
		client:   client,
		renderer: renderer{appName: cfg.SenderName, now: time.Now},
	}
}

func (n *SMTPNotifier) SendVerificationCode(ctx context.Context, in VerificationCodeInput) error {
	msg, err := n.renderer.verificationCode(in)
	if err != nil {
		return oops.Code("EMAIL_RENDER_FAILED").With("kind", KindVerificationCode).Wrap(err)
	}

	return n.send(ctx, in.Email, msg)
}

func (n *SMTPNotifier) SendPasswordReset(ctx context.Context, in PasswordResetInput) error {
	msg, err := n.renderer.passwordReset(in)
	if err != nil {
		return oops.Code("EMAIL_RENDER_FAILED").With("kind", KindPasswordReset).Wrap(err)
	}

	return n.send(ctx, in.Email, msg)
}

func (n *SMTPNotifier) send(ctx context.Context, to string, msg message) error {
	m, err := n.buildMsg(to, msg)
	if err != nil {
		return oops.Code("EMAIL_BUILD_FAILED").With("to", to).Wrap(err)
	}

	if err := n.client.DialAndSendWithContext(ctx, m); err != nil {
		return oops.Code("SMTP_SEND_FAILED").With("to", to).Wrap(err)
	}

	return nil
}

func (n *SMTPNotifier) buildMsg(to string, msg message) (*mail.Msg, error) {
	m := mail.NewMsg()

	if err := m.FromFormat(n.cfg.SenderName, n.cfg.SenderEmail); err != nil {
		return nil, err
	}

	if err := m.To(to); err != nil {
		return nil, err
	}

	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)

	if n.cfg.ConfigurationSet != "" {
		m.SetGenHeader(mail.Header(headerSESConfigurationSet), n.cfg.ConfigurationSet)
	}

	return m, nil
}
