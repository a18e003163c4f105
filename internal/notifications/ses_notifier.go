package notifications

import (
	"context"
	netmail "net/mail"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/samber/oops"
)

const charsetUTF8 = "UTF-8"

type SESConfig struct {
	Region           string
	SenderEmail      string
	SenderName       string
	ConfigurationSet string
}

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESNotifier delivers through the SES v2 API using the default AWS credential chain.
type SESNotifier struct {
	cfg      SESConfig
	client   sesAPI
	renderer renderer
}

func NewSESNotifier(ctx context.Context, cfg SESConfig) (*SESNotifier, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, oops.Code("SES_CONFIG_FAILED").With("region", cfg.Region).Wrap(err)
	}

	return newSESNotifier(cfg, sesv2.NewFromConfig(awsCfg)), nil
}

func newSESNotifier(cfg SESConfig, client sesAPI) *SESNotifier {
	return &SESNotifier{
		cfg:      cfg,
		client:   client,
		renderer: renderer{appName: cfg.SenderName, now: time.Now},
	}
}

func (n *SESNotifier) SendVerificationCode(ctx context.Context, in VerificationCodeInput) error {
	msg, err := n.renderer.verificationCode(in)
	if err != nil {
		return oops.Code("EMAIL_RENDER_FAILED").With("kind", KindVerificationCode).Wrap(err)
	}

	return n.send(ctx, in.Email, msg)
}

func (n *SESNotifier) SendPasswordReset(ctx context.Context, in PasswordResetInput) error {
	msg, err := n.renderer.passwordReset(in)
	if err != nil {
		return oops.Code("EMAIL_RENDER_FAILED").With("kind", KindPasswordReset).Wrap(err)
	}

	return n.send(ctx, in.Email, msg)
}

func (n *SESNotifier) send(ctx context.Context, to string, msg message) error {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.from()),
		Destination:      &types.Destination{ToAddresses: []string{to}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String(charsetUTF8)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Text), Charset: aws.String(charsetUTF8)},
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String(charsetUTF8)},
				},
			},
		},
	}

	if n.cfg.ConfigurationSet != "" {
		input.ConfigurationSetName = aws.String(n.cfg.ConfigurationSet)
	}

	if _, err := n.client.SendEmail(ctx, input); err != nil {
		return oops.Code("SES_SEND_FAILED").With("to", to).Wrap(err)
	}

	return nil
}

func (n *SESNotifier) from() string {
	if n.cfg.SenderName == "" {
		return n.cfg.SenderEmail
	}
	return (&netmail.Address{Name: n.cfg.SenderName, Address: n.cfg.SenderEmail}).String()
}
