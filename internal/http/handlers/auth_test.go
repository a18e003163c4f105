package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/sevico/internal/domain/user"
	"github.com/geocoder89/sevico/internal/http/handlers"
	"github.com/geocoder89/sevico/internal/service"
)

type fakeAuthService struct {
	signupErr  error
	verifyErr  error
	signinErr  error
	confirmErr error
	currentErr error

	gotResetEmail string
	gotToken      string
}

func (f *fakeAuthService) Signup(_ context.Context, in service.SignupInput) (service.SignupResult, error) {
	return service.SignupResult{Email: in.Email}, f.signupErr
}

func (f *fakeAuthService) VerifyEmail(context.Context, string, string) error {
	return f.verifyErr
}

func (f *fakeAuthService) Signin(_ context.Context, email, _ string) (service.SigninResult, error) {
	if f.signinErr != nil {
		return service.SigninResult{}, f.signinErr
	}
	return service.SigninResult{AccessToken: "tok", TokenType: "bearer", ExpiresIn: 3600, Email: email}, nil
}

func (f *fakeAuthService) ValidateToken(_ context.Context, token string) service.TokenValidation {
	if token == "good" {
		return service.TokenValidation{Valid: true, Email: "a@x.com"}
	}
	return service.TokenValidation{}
}

func (f *fakeAuthService) RequestPasswordReset(_ context.Context, email string) {
	f.gotResetEmail = email
}

func (f *fakeAuthService) ConfirmPasswordReset(context.Context, string, string, string) error {
	return f.confirmErr
}

func (f *fakeAuthService) CurrentUser(_ context.Context, token string) (user.Profile, error) {
	f.gotToken = token
	if f.currentErr != nil {
		return user.Profile{}, f.currentErr
	}
	return user.Profile{Email: "a@x.com", IsVerified: true, CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}, nil
}

func authRouter(svc handlers.AuthService) *gin.Engine {
	gin.SetMode(gin.TestMode)

	h := handlers.NewAuthHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r := gin.New()
	r.POST("/signup", h.Signup)
	r.POST("/verify-email", h.VerifyEmail)
	r.POST("/signin", h.Signin)
	r.POST("/validate-token", h.ValidateToken)
	r.POST("/password-reset", h.PasswordReset)
	r.POST("/password-reset-confirm", h.PasswordResetConfirm)
	r.GET("/me", h.Me)
	return r
}

func do(r http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var resp struct {
		Error handlers.APIError `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v body=%s", err, w.Body.String())
	}
	return resp.Error.Code
}

func TestSignup_Created(t *testing.T) {
	w := do(authRouter(&fakeAuthService{}), http.MethodPost, "/signup", `{"email":"a@x.com","password":"long-enough"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("got %d, want 201: %s", w.Code, w.Body.String())
	}

	var resp handlers.SignupResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Email != "a@x.com" || resp.Message == "" {
		t.Fatalf("unexpected body: %+v", resp)
	}
}

func TestServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		svc      *fakeAuthService
		path     string
		body     string
		wantCode int
		wantErr  string
	}{
		{
			name:     "duplicate email",
			svc:      &fakeAuthService{signupErr: service.ErrAlreadyExists},
			path:     "/signup",
			body:     `{"email":"a@x.com","password":"long-enough"}`,
			wantCode: http.StatusConflict,
			wantErr:  "email_taken",
		},
		{
			name:     "service validation",
			svc:      &fakeAuthService{signupErr: &service.ValidationError{Field: "password", Reason: "too long"}},
			path:     "/signup",
			body:     `{"email":"a@x.com","password":"long-enough"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_request",
		},
		{
			name:     "unknown user on verify",
			svc:      &fakeAuthService{verifyErr: service.ErrUserNotFound},
			path:     "/verify-email",
			body:     `{"email":"a@x.com","verification_code":"123456"}`,
			wantCode: http.StatusNotFound,
			wantErr:  "not_found",
		},
		{
			name:     "wrong code",
			svc:      &fakeAuthService{verifyErr: service.ErrInvalidCode},
			path:     "/verify-email",
			body:     `{"email":"a@x.com","verification_code":"123456"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_code",
		},
		{
			name:     "expired code",
			svc:      &fakeAuthService{verifyErr: service.ErrCodeExpired},
			path:     "/verify-email",
			body:     `{"email":"a@x.com","verification_code":"123456"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "code_expired",
		},
		{
			name:     "already verified",
			svc:      &fakeAuthService{verifyErr: service.ErrAlreadyVerified},
			path:     "/verify-email",
			body:     `{"email":"a@x.com","verification_code":"123456"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "already_verified",
		},
		{
			name:     "bad credentials",
			svc:      &fakeAuthService{signinErr: service.ErrInvalidCredentials},
			path:     "/signin",
			body:     `{"email":"a@x.com","password":"whatever"}`,
			wantCode: http.StatusUnauthorized,
			wantErr:  "invalid_credentials",
		},
		{
			name:     "unverified signin",
			svc:      &fakeAuthService{signinErr: service.ErrNotVerified},
			path:     "/signin",
			body:     `{"email":"a@x.com","password":"whatever"}`,
			wantCode: http.StatusUnauthorized,
			wantErr:  "email_not_verified",
		},
		{
			name:     "bad reset token",
			svc:      &fakeAuthService{confirmErr: service.ErrInvalidResetToken},
			path:     "/password-reset-confirm",
			body:     `{"email":"a@x.com","reset_token":"t","new_password":"long-enough"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_reset_token",
		},
		{
			name:     "expired reset token",
			svc:      &fakeAuthService{confirmErr: service.ErrResetTokenExpired},
			path:     "/password-reset-confirm",
			body:     `{"email":"a@x.com","reset_token":"t","new_password":"long-enough"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "reset_token_expired",
		},
		{
			name:     "infrastructure failure stays generic",
			svc:      &fakeAuthService{signupErr: errors.New("pq: connection refused on 10.0.0.3")},
			path:     "/signup",
			body:     `{"email":"a@x.com","password":"long-enough"}`,
			wantCode: http.StatusInternalServerError,
			wantErr:  "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(authRouter(tt.svc), http.MethodPost, tt.path, tt.body)

			if w.Code != tt.wantCode {
				t.Fatalf("got %d, want %d: %s", w.Code, tt.wantCode, w.Body.String())
			}
			if got := errorCode(t, w); got != tt.wantErr {
				t.Fatalf("error code = %q, want %q", got, tt.wantErr)
			}
			if bytes.Contains(w.Body.Bytes(), []byte("10.0.0.3")) {
				t.Fatalf("internal detail leaked: %s", w.Body.String())
			}
		})
	}
}

func TestSignin_ReturnsToken(t *testing.T) {
	w := do(authRouter(&fakeAuthService{}), http.MethodPost, "/signin", `{"email":"a@x.com","password":"whatever"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("got %d: %s", w.Code, w.Body.String())
	}

	var resp handlers.SigninResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AccessToken != "tok" || resp.TokenType != "bearer" || resp.ExpiresIn != 3600 {
		t.Fatalf("unexpected body: %+v", resp)
	}
}

func TestValidateToken(t *testing.T) {
	r := authRouter(&fakeAuthService{})

	w := do(r, http.MethodPost, "/validate-token", `{"token":"good"}`)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"is_valid":true`)) {
		t.Fatalf("valid token: %d %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodPost, "/validate-token", `{"token":"bad"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("invalid token must still answer 200, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"email":null`)) || !bytes.Contains(w.Body.Bytes(), []byte(`"is_valid":false`)) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}

	w = do(r, http.MethodPost, "/validate-token", `{"token":""}`)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"is_valid":false`)) {
		t.Fatalf("empty token: %d %s", w.Code, w.Body.String())
	}
}

func TestPasswordReset_AlwaysOK(t *testing.T) {
	svc := &fakeAuthService{}

	w := do(authRouter(svc), http.MethodPost, "/password-reset", `{"email":"ghost@x.com"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("got %d", w.Code)
	}
	if svc.gotResetEmail != "ghost@x.com" {
		t.Fatalf("service not called with email, got %q", svc.gotResetEmail)
	}
}

func TestMe(t *testing.T) {
	svc := &fakeAuthService{}
	r := authRouter(svc)

	w := do(r, http.MethodGet, "/me", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing header: got %d", w.Code)
	}

	w = do(r, http.MethodGet, "/me", "", "Authorization", "Bearer abc.def")
	if w.Code != http.StatusOK {
		t.Fatalf("got %d: %s", w.Code, w.Body.String())
	}
	if svc.gotToken != "abc.def" {
		t.Fatalf("token not forwarded, got %q", svc.gotToken)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"is_verified":true`)) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}

	svc.currentErr = service.ErrUnauthorized
	w = do(r, http.MethodGet, "/me", "", "Authorization", "Bearer expired")
	if w.Code != http.StatusUnauthorized || errorCode(t, w) != "unauthorized" {
		t.Fatalf("expired token: got %d %s", w.Code, w.Body.String())
	}
}
