package jobs

import "strings"

// ValidatePayload checks that a payload matches its job type and carries an address and secret.
func ValidatePayload(t JobType, payload any) error {
	if !t.IsValid() {
		return ErrInvalidJobType
	}

	trim := func(s string) string { return strings.TrimSpace(s) }

	switch t {
	case JobEmailVerificationCode:
		var p VerificationCodePayload
		switch v := payload.(type) {
		case VerificationCodePayload:
			p = v
		case *VerificationCodePayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if trim(p.Email) == "" || trim(p.Code) == "" || p.ExpiresAt.IsZero() {
			return ErrInvalidJobPayload
		}
		return nil

	case JobEmailPasswordReset:
		var p PasswordResetPayload
		switch v := payload.(type) {
		case PasswordResetPayload:
			p = v
		case *PasswordResetPayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if trim(p.Email) == "" || trim(p.Token) == "" || p.ExpiresAt.IsZero() {
			return ErrInvalidJobPayload
		}
		return nil

	default:
		return ErrInvalidJobType
	}
}
