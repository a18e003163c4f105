package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const DefaultMaxAttempts = 8

// Job is one unit of out-of-band work, stored in the retry queue as JSON.
type Job struct {
	ID          string          `json:"id"`
	Type        JobType         `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      JobStatus       `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	RunAt       time.Time       `json:"runAt"`
	LastError   *string         `json:"lastError,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// NewJob creates a pending job with defaults.
func NewJob(t JobType, payloadJSON []byte, runAt time.Time, maxAttempts int) (Job, error) {
	if !t.IsValid() {
		return Job{}, ErrInvalidJobType
	}

	if len(payloadJSON) == 0 {
		return Job{}, ErrInvalidJobPayload
	}

	now := time.Now().UTC()

	if runAt.IsZero() {
		runAt = now
	}

	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	return Job{
		ID:          uuid.NewString(),
		Type:        t,
		Payload:     payloadJSON,
		Status:      JobPending,
		MaxAttempts: maxAttempts,
		RunAt:       runAt.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
