package jobs

import (
	"encoding/json"
	"fmt"
	"time"
)

func EncodePayload(t JobType, payload any) ([]byte, error) {
	if !t.IsValid() {
		return nil, ErrInvalidJobType
	}

	if err := ValidatePayload(t, payload); err != nil {
		return nil, err
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}

	return b, nil
}

// DecodePayload unmarshals job.Payload into the correct typed payload struct.
func DecodePayload(j Job) (any, error) {
	if !j.Type.IsValid() {
		return nil, ErrInvalidJobType
	}
	if len(j.Payload) == 0 {
		return nil, ErrInvalidJobPayload
	}

	var (
		p   any
		err error
	)

	switch j.Type {
	case JobEmailVerificationCode:
		var v VerificationCodePayload
		err = json.Unmarshal(j.Payload, &v)
		p = v

	case JobEmailPasswordReset:
		var v PasswordResetPayload
		err = json.Unmarshal(j.Payload, &v)
		p = v

	default:
		return nil, ErrInvalidJobType
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}

	if err := ValidatePayload(j.Type, p); err != nil {
		return nil, err
	}

	return p, nil
}

// Encode builds a ready-to-enqueue job from a typed payload, due at runAt.
func Encode(t JobType, payload any, runAt time.Time, maxAttempts int) (Job, error) {
	b, err := EncodePayload(t, payload)
	if err != nil {
		return Job{}, err
	}

	return NewJob(t, b, runAt, maxAttempts)
}
