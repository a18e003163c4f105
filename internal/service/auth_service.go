package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/geocoder89/sevico/internal/domain/user"
	"github.com/geocoder89/sevico/internal/notifications"
	"github.com/geocoder89/sevico/internal/security"
)

const (
	minPasswordLen  = 8
	tokenTypeBearer = "bearer"
	casMaxRetries   = 5
)

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

type TokenCodec interface {
	Issue(subject string, ttl time.Duration) (string, time.Time, error)
	Verify(token string) (string, error)
	Digest(raw string) string
}

type Notifier interface {
	SendVerificationCode(ctx context.Context, input notifications.VerificationCodeInput) error
	SendPasswordReset(ctx context.Context, input notifications.PasswordResetInput) error
}

// Config carries the lifetimes the service hands out.
type Config struct {
	AccessTokenTTL      time.Duration
	VerificationCodeTTL time.Duration
	PasswordResetTTL    time.Duration
}

type SignupInput struct {
	Email    string
	Password string
	FullName *string
	Avatar   *string
	DOB      *time.Time
}

type SignupResult struct {
	Email string
}

type SigninResult struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int64
	ExpiresAt   time.Time
	Email       string
}

type TokenValidation struct {
	Valid bool
	Email string
}

// AuthService runs the signup, verification, signin and reset flows over a user record.
type AuthService struct {
	users    user.Store
	hasher   PasswordHasher
	tokens   TokenCodec
	notifier Notifier
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer
	validate *validator.Validate
	now      func() time.Time

	newCode       func() (string, error)
	newResetToken func() (string, error)

	// compared against on unknown emails so signin costs the same either way
	dummyHash string
}

type Option func(*AuthService)

func WithClock(now func() time.Time) Option {
	return func(s *AuthService) {
		s.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *AuthService) {
		s.logger = logger
	}
}

func NewAuthService(users user.Store, hasher PasswordHasher, tokens TokenCodec, notifier Notifier, cfg Config, opts ...Option) *AuthService {
	s := &AuthService{
		users:         users,
		hasher:        hasher,
		tokens:        tokens,
		notifier:      notifier,
		cfg:           cfg,
		logger:        slog.Default(),
		tracer:        otel.Tracer("github.com/geocoder89/sevico/internal/service"),
		validate:      validator.New(),
		now:           time.Now,
		newCode:       newVerificationCode,
		newResetToken: newResetToken,
	}

	for _, opt := range opts {
		opt(s)
	}

	if h, err := hasher.Hash("sevico-signin-placeholder"); err == nil {
		s.dummyHash = h
	}

	return s
}

// Signup creates an unverified user and mails a verification code.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (SignupResult, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Signup")
	defer span.End()

	email := user.NormalizeEmail(in.Email)

	if err := s.checkEmail(email); err != nil {
		return SignupResult{}, err
	}

	if err := checkPassword("password", in.Password); err != nil {
		return SignupResult{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return SignupResult{}, oops.Code("SIGNUP_FAILED").With("operation", "Hash").Wrap(err)
	}

	code, err := s.newCode()
	if err != nil {
		return SignupResult{}, oops.Code("SIGNUP_FAILED").With("operation", "GenerateCode").Wrap(err)
	}

	now := s.clock()
	expiresAt := now.Add(s.cfg.VerificationCodeTTL)

	u := user.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		FullName:     in.FullName,
		Avatar:       in.Avatar,
		DOB:          in.DOB,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	u.SetVerificationCode(code, expiresAt)

	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, user.ErrAlreadyExists) {
			return SignupResult{}, ErrAlreadyExists
		}
		span.RecordError(err)
		return SignupResult{}, oops.Code("SIGNUP_FAILED").With("operation", "Create").With("email", email).Wrap(err)
	}

	s.notify(ctx, notifications.KindVerificationCode, email, func(ctx context.Context) error {
		return s.notifier.SendVerificationCode(ctx, notifications.VerificationCodeInput{
			Email:     email,
			Code:      code,
			ExpiresAt: expiresAt,
		})
	})

	return SignupResult{Email: email}, nil
}

// VerifyEmail moves an unverified user to verified when code matches and is unexpired.
func (s *AuthService) VerifyEmail(ctx context.Context, email, code string) error {
	ctx, span := s.startSpan(ctx, "AuthService.VerifyEmail")
	defer span.End()

	email = user.NormalizeEmail(email)

	_, err := s.mutate(ctx, email, func(u *user.User, now time.Time) error {
		if u.IsVerified {
			return ErrAlreadyVerified
		}

		if u.VerificationCode == nil || u.VerificationCodeExpiresAt == nil || !equalSecret(*u.VerificationCode, code) {
			return ErrInvalidCode
		}

		if !now.Before(*u.VerificationCodeExpiresAt) {
			return ErrCodeExpired
		}

		u.MarkVerified()
		return nil
	})
	if err != nil {
		return s.fail(span, "VERIFY_EMAIL_FAILED", email, err)
	}

	return nil
}

// Signin issues an access token. Unknown email and wrong password are reported identically.
func (s *AuthService) Signin(ctx context.Context, email, password string) (SigninResult, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Signin")
	defer span.End()

	email = user.NormalizeEmail(email)

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.hasher.Verify(password, s.dummyHash)
			return SigninResult{}, ErrInvalidCredentials
		}
		span.RecordError(err)
		return SigninResult{}, oops.Code("SIGNIN_FAILED").With("operation", "GetByEmail").Wrap(err)
	}

	if !s.hasher.Verify(password, u.PasswordHash) {
		return SigninResult{}, ErrInvalidCredentials
	}

	if !u.IsVerified {
		return SigninResult{}, ErrNotVerified
	}

	token, expiresAt, err := s.tokens.Issue(u.Email, s.cfg.AccessTokenTTL)
	if err != nil {
		span.RecordError(err)
		return SigninResult{}, oops.Code("SIGNIN_FAILED").With("operation", "Issue").Wrap(err)
	}

	return SigninResult{
		AccessToken: token,
		TokenType:   tokenTypeBearer,
		ExpiresIn:   int64(s.cfg.AccessTokenTTL / time.Second),
		ExpiresAt:   expiresAt,
		Email:       u.Email,
	}, nil
}

// ValidateToken never fails; any problem with the token yields Valid=false.
func (s *AuthService) ValidateToken(ctx context.Context, token string) TokenValidation {
	_, span := s.startSpan(ctx, "AuthService.ValidateToken")
	defer span.End()

	subject, err := s.tokens.Verify(token)
	if err != nil {
		return TokenValidation{}
	}

	return TokenValidation{Valid: true, Email: subject}
}

// RequestPasswordReset stores a fresh reset token digest and mails the raw token.
// It reports success for unknown emails, and store failures are only logged.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) {
	ctx, span := s.startSpan(ctx, "AuthService.RequestPasswordReset")
	defer span.End()

	email = user.NormalizeEmail(email)

	token, err := s.newResetToken()
	if err != nil {
		span.RecordError(err)
		s.logger.ErrorContext(ctx, "password_reset_token_failed", "err", err)
		return
	}

	var expiresAt time.Time

	_, err = s.mutate(ctx, email, func(u *user.User, now time.Time) error {
		expiresAt = now.Add(s.cfg.PasswordResetTTL)
		u.SetPasswordResetToken(s.tokens.Digest(token), expiresAt)
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			span.RecordError(err)
			s.logger.ErrorContext(ctx, "password_reset_request_failed",
				"err", oops.Code("PASSWORD_RESET_REQUEST_FAILED").With("email", email).Wrap(err),
			)
		}
		return
	}

	s.notify(ctx, notifications.KindPasswordReset, email, func(ctx context.Context) error {
		return s.notifier.SendPasswordReset(ctx, notifications.PasswordResetInput{
			Email:     email,
			Token:     token,
			ExpiresAt: expiresAt,
		})
	})
}

// ConfirmPasswordReset replaces the password when token matches the stored digest and is unexpired.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, email, token, newPassword string) error {
	ctx, span := s.startSpan(ctx, "AuthService.ConfirmPasswordReset")
	defer span.End()

	email = user.NormalizeEmail(email)

	if err := checkPassword("new_password", newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("PASSWORD_RESET_CONFIRM_FAILED").With("operation", "Hash").Wrap(err)
	}

	digest := s.tokens.Digest(token)

	_, err = s.mutate(ctx, email, func(u *user.User, now time.Time) error {
		if token == "" || u.PasswordResetToken == nil || u.PasswordResetTokenExpiresAt == nil || !equalSecret(*u.PasswordResetToken, digest) {
			return ErrInvalidResetToken
		}

		if !now.Before(*u.PasswordResetTokenExpiresAt) {
			return ErrResetTokenExpired
		}

		u.ReplacePassword(hash)
		return nil
	})
	if err != nil {
		return s.fail(span, "PASSWORD_RESET_CONFIRM_FAILED", email, err)
	}

	return nil
}

// CurrentUser resolves a bearer token to the caller's profile.
func (s *AuthService) CurrentUser(ctx context.Context, token string) (user.Profile, error) {
	ctx, span := s.startSpan(ctx, "AuthService.CurrentUser")
	defer span.End()

	subject, err := s.tokens.Verify(token)
	if err != nil {
		return user.Profile{}, ErrUnauthorized
	}

	return s.Profile(ctx, subject)
}

// Profile loads the profile of an already authenticated subject.
func (s *AuthService) Profile(ctx context.Context, email string) (user.Profile, error) {
	u, err := s.users.GetByEmail(ctx, user.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.Profile{}, ErrUnauthorized
		}
		return user.Profile{}, oops.Code("PROFILE_FAILED").With("operation", "GetByEmail").Wrap(err)
	}

	return u.Profile(), nil
}

// mutate reads the record, applies fn and writes it back with a version check,
// re-reading on a concurrent modification.
func (s *AuthService) mutate(ctx context.Context, email string, fn func(u *user.User, now time.Time) error) (user.User, error) {
	var out user.User

	backoff := retry.WithMaxRetries(casMaxRetries, retry.NewExponential(5*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		u, err := s.users.GetByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		now := s.clock()

		if err := fn(&u, now); err != nil {
			return err
		}

		if !now.After(u.UpdatedAt) {
			now = u.UpdatedAt.Add(time.Millisecond)
		}
		u.UpdatedAt = now

		stored, err := s.users.Update(ctx, u)
		if err != nil {
			if errors.Is(err, user.ErrVersionConflict) {
				return retry.RetryableError(err)
			}
			if errors.Is(err, user.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		out = stored
		return nil
	})

	return out, err
}

// notify sends after the state change has committed. A failed send is logged
// and never reported to the caller.
func (s *AuthService) notify(ctx context.Context, kind, email string, send func(ctx context.Context) error) {
	if s.notifier == nil {
		return
	}

	if err := send(context.WithoutCancel(ctx)); err != nil {
		s.logger.WarnContext(ctx, "notification_failed", "kind", kind, "email", email, "err", err)
	}
}

func (s *AuthService) fail(span trace.Span, code, email string, err error) error {
	if isDomainError(err) {
		return err
	}

	span.RecordError(err)
	return oops.Code(code).With("email", email).Wrap(err)
}

func (s *AuthService) checkEmail(email string) error {
	if err := s.validate.Var(email, "required,email"); err != nil {
		return invalid("email", "must be a valid email address")
	}
	return nil
}

func checkPassword(field, password string) error {
	if len(password) < minPasswordLen {
		return invalid(field, "must be at least 8 characters")
	}

	if len(password) > security.MaxPasswordBytes {
		return invalid(field, "must be at most 72 bytes")
	}

	return nil
}

func isDomainError(err error) bool {
	var vErr *ValidationError

	switch {
	case errors.As(err, &vErr),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrAlreadyVerified),
		errors.Is(err, ErrInvalidCode),
		errors.Is(err, ErrCodeExpired),
		errors.Is(err, ErrInvalidResetToken),
		errors.Is(err, ErrResetTokenExpired):
		return true
	default:
		return false
	}
}

// clock truncates to milliseconds, the coarsest precision of the stores.
func (s *AuthService) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}
