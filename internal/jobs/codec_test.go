package jobs

import (
	"testing"
	"time"
)

func TestEncodeDecode_VerificationCode(t *testing.T) {
	payload := VerificationCodePayload{
		Email:     "a@x.com",
		Code:      "123456",
		ExpiresAt: time.Date(2026, 3, 1, 9, 15, 0, 0, time.UTC),
	}

	j, err := Encode(JobEmailVerificationCode, payload, time.Time{}, 0)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	if j.MaxAttempts != DefaultMaxAttempts {
		t.Fatalf("expected default max attempts %d, got %d", DefaultMaxAttempts, j.MaxAttempts)
	}

	decoded, err := DecodePayload(j)
	if err != nil {
		t.Fatalf("DecodePayload error: %v", err)
	}

	p, ok := decoded.(VerificationCodePayload)
	if !ok {
		t.Fatalf("expected VerificationCodePayload, got %T", decoded)
	}

	if p.Code != payload.Code || !p.ExpiresAt.Equal(payload.ExpiresAt) {
		t.Fatalf("decoded payload %+v does not match %+v", p, payload)
	}
}

func TestEncode_SchedulesPendingJob(t *testing.T) {
	runAt := time.Date(2026, 3, 1, 9, 0, 30, 0, time.UTC)

	j, err := Encode(JobEmailPasswordReset, PasswordResetPayload{
		Email:     "a@x.com",
		Token:     "tok",
		ExpiresAt: runAt.Add(time.Hour),
	}, runAt, 3)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	if j.Status != JobPending || !j.RunAt.Equal(runAt) || j.MaxAttempts != 3 || j.ID == "" {
		t.Fatalf("unexpected job: %+v", j)
	}

	if _, err := Encode(JobEmailPasswordReset, VerificationCodePayload{Email: "a@x.com"}, runAt, 3); err == nil {
		t.Fatal("expected payload type mismatch")
	}
}

func TestEncodePayload_TypeMismatch(t *testing.T) {
	_, err := EncodePayload(JobEmailVerificationCode, PasswordResetPayload{
		Email:     "a@x.com",
		Token:     "tok",
		ExpiresAt: time.Now(),
	})
	if err != ErrPayloadTypeMismatch {
		t.Fatalf("expected ErrPayloadTypeMismatch, got %v", err)
	}
}

func TestValidatePayload_RequiredFields(t *testing.T) {
	err := ValidatePayload(JobEmailPasswordReset, PasswordResetPayload{Email: "a@x.com"})
	if err != ErrInvalidJobPayload {
		t.Fatalf("expected ErrInvalidJobPayload, got %v", err)
	}
}

func TestDecodePayload_UnknownType(t *testing.T) {
	_, err := DecodePayload(Job{Type: "publish_event", Payload: []byte(`{}`)})
	if err != ErrInvalidJobType {
		t.Fatalf("expected ErrInvalidJobType, got %v", err)
	}
}

func TestExpired(t *testing.T) {
	exp := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p := PasswordResetPayload{Email: "a@x.com", Token: "tok", ExpiresAt: exp}

	if Expired(p, exp.Add(-time.Second)) {
		t.Fatalf("payload should still be live before expiry")
	}

	if !Expired(p, exp) {
		t.Fatalf("payload should be expired at its expiry instant")
	}
}
