package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/sevico/internal/domain/user"
	"github.com/geocoder89/sevico/internal/http/middlewares"
	"github.com/geocoder89/sevico/internal/service"
)

const requestTimeout = 5 * time.Second

type AuthService interface {
	Signup(ctx context.Context, in service.SignupInput) (service.SignupResult, error)
	VerifyEmail(ctx context.Context, email, code string) error
	Signin(ctx context.Context, email, password string) (service.SigninResult, error)
	ValidateToken(ctx context.Context, token string) service.TokenValidation
	RequestPasswordReset(ctx context.Context, email string)
	ConfirmPasswordReset(ctx context.Context, email, token, newPassword string) error
	CurrentUser(ctx context.Context, token string) (user.Profile, error)
}

type AuthHandler struct {
	svc    AuthService
	logger *slog.Logger
}

func NewAuthHandler(svc AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

type SignupRequest struct {
	Email    string     `json:"email" binding:"required,email"`
	Password string     `json:"password" binding:"required,min=8,max=72"`
	FullName *string    `json:"fullname" binding:"omitempty,max=200"`
	Avatar   *string    `json:"avatar" binding:"omitempty,max=2048"`
	DOB      *time.Time `json:"dob"`
}

type SignupResponse struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

type VerifyEmailRequest struct {
	Email            string `json:"email" binding:"required,email"`
	VerificationCode string `json:"verification_code" binding:"required,len=6,numeric"`
}

type SigninRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type SigninResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Email       string `json:"email"`
}

type ValidateTokenRequest struct {
	Token string `json:"token"`
}

type ValidateTokenResponse struct {
	IsValid bool    `json:"is_valid"`
	Email   *string `json:"email"`
	Message string  `json:"message"`
}

type PasswordResetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type PasswordResetConfirmRequest struct {
	Email       string `json:"email" binding:"required,email"`
	ResetToken  string `json:"reset_token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=72"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func (h *AuthHandler) Signup(ctx *gin.Context) {
	var req SignupRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), requestTimeout)
	defer cancel()

	res, err := h.svc.Signup(cctx, service.SignupInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Avatar:   req.Avatar,
		DOB:      req.DOB,
	})
	if err != nil {
		h.respondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, SignupResponse{
		Email:   res.Email,
		Message: "User registered successfully. Please verify your email.",
	})
}

func (h *AuthHandler) VerifyEmail(ctx *gin.Context) {
	var req VerifyEmailRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.svc.VerifyEmail(cctx, req.Email, req.VerificationCode); err != nil {
		h.respondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, MessageResponse{Message: "Email verified successfully"})
}

func (h *AuthHandler) Signin(ctx *gin.Context) {
	var req SigninRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), requestTimeout)
	defer cancel()

	res, err := h.svc.Signin(cctx, req.Email, req.Password)
	if err != nil {
		h.respondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, SigninResponse{
		AccessToken: res.AccessToken,
		TokenType:   res.TokenType,
		ExpiresIn:   res.ExpiresIn,
		Email:       res.Email,
	})
}

func (h *AuthHandler) ValidateToken(ctx *gin.Context) {
	var req ValidateTokenRequest

	if !BindJSON(ctx, &req) {
		return
	}

	v := h.svc.ValidateToken(ctx.Request.Context(), req.Token)
	if !v.Valid {
		ctx.JSON(http.StatusOK, ValidateTokenResponse{Message: "Invalid or expired token"})
		return
	}

	ctx.JSON(http.StatusOK, ValidateTokenResponse{
		IsValid: true,
		Email:   &v.Email,
		Message: "Token is valid",
	})
}

// PasswordReset answers the same way whether or not the email is registered.
func (h *AuthHandler) PasswordReset(ctx *gin.Context) {
	var req PasswordResetRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), requestTimeout)
	defer cancel()

	h.svc.RequestPasswordReset(cctx, req.Email)

	ctx.JSON(http.StatusOK, MessageResponse{Message: "Password reset email sent successfully"})
}

func (h *AuthHandler) PasswordResetConfirm(ctx *gin.Context) {
	var req PasswordResetConfirmRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.svc.ConfirmPasswordReset(cctx, req.Email, req.ResetToken, req.NewPassword); err != nil {
		h.respondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, MessageResponse{Message: "Password reset successfully"})
}

func (h *AuthHandler) Me(ctx *gin.Context) {
	token, ok := middlewares.BearerToken(ctx)
	if !ok {
		ctx.Header("WWW-Authenticate", "Bearer")
		RespondUnAuthorized(ctx, "unauthorized", "Missing or invalid Authorization header")
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), requestTimeout)
	defer cancel()

	profile, err := h.svc.CurrentUser(cctx, token)
	if err != nil {
		h.respondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, profile)
}

// respondServiceError is the single translation from service errors to HTTP.
func (h *AuthHandler) respondServiceError(ctx *gin.Context, err error) {
	var verr *service.ValidationError

	switch {
	case errors.As(err, &verr):
		RespondBadRequest(ctx, "Invalid request body", gin.H{
			"fields": []FieldError{{Field: verr.Field, Rule: "invalid", Message: verr.Reason}},
		})
	case errors.Is(err, service.ErrAlreadyExists):
		RespondConflict(ctx, "email_taken", "User already exists")
	case errors.Is(err, service.ErrUserNotFound):
		RespondNotFound(ctx, "User not found")
	case errors.Is(err, service.ErrAlreadyVerified):
		RespondError(ctx, http.StatusBadRequest, "already_verified", "User already verified", nil)
	case errors.Is(err, service.ErrInvalidCode):
		RespondError(ctx, http.StatusBadRequest, "invalid_code", "Invalid verification code", nil)
	case errors.Is(err, service.ErrCodeExpired):
		RespondError(ctx, http.StatusBadRequest, "code_expired", "Verification code expired", nil)
	case errors.Is(err, service.ErrInvalidCredentials):
		RespondUnAuthorized(ctx, "invalid_credentials", "Invalid credentials")
	case errors.Is(err, service.ErrNotVerified):
		RespondUnAuthorized(ctx, "email_not_verified", "Email not verified")
	case errors.Is(err, service.ErrInvalidResetToken):
		RespondError(ctx, http.StatusBadRequest, "invalid_reset_token", "Invalid reset token", nil)
	case errors.Is(err, service.ErrResetTokenExpired):
		RespondError(ctx, http.StatusBadRequest, "reset_token_expired", "Reset token expired", nil)
	case errors.Is(err, service.ErrUnauthorized):
		ctx.Header("WWW-Authenticate", "Bearer")
		RespondUnAuthorized(ctx, "unauthorized", "Invalid or expired token")
	default:
		h.logger.ErrorContext(ctx.Request.Context(), "request_failed",
			"route", ctx.FullPath(),
			"request_id", requestIDFrom(ctx),
			"err", err,
		)
		RespondInternal(ctx, "Something went wrong")
	}
}
