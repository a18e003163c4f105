package jobs

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobFailed     JobStatus = "failed"
)
