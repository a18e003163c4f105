package jobs

type JobType string

const (
	JobEmailVerificationCode JobType = "email.verification_code"
	JobEmailPasswordReset    JobType = "email.password_reset"
)

// check to see if the job type is a known constant
func (t JobType) IsValid() bool {
	switch t {
	case JobEmailVerificationCode, JobEmailPasswordReset:
		return true
	default:
		return false
	}
}
