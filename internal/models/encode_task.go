package models

import "time"

type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s JobState) IsTerminal() bool {
	return s == JobStateSucceeded || s == JobStateFailed
}

type ErrorKind string

const (
	ErrorKindUpload   ErrorKind = "upload_failure"
	ErrorKindEncode   ErrorKind = "encode_failure"
	ErrorKindTimeout  ErrorKind = "timeout"
	ErrorKindInternal ErrorKind = "internal"
)

// TranscodeSpec is immutable once the job is created.
type TranscodeSpec struct {
	TargetFormat string `json:"target_format"`
	Codec        string `json:"codec"`
	Bitrate      string `json:"bitrate,omitempty"`
	Resolution   string `json:"resolution,omitempty"`
}

type JobResult struct {
	OriginalLocation   string `json:"original_location" db:"original_location"`
	TranscodedLocation string `json:"transcoded_location" db:"transcoded_location"`
	DownloadURL        string `json:"download_url" db:"download_url"`
}

type JobError struct {
	Kind    ErrorKind `json:"kind" db:"error_kind"`
	Message string    `json:"message" db:"error_message"`
}

// EncodeJob is the persisted job record. OriginalLocation is set at
// admission once the original upload is confirmed.
type EncodeJob struct {
	JobID            string        `json:"job_id"`
	FileName         string        `json:"file_name"`
	Spec             TranscodeSpec `json:"spec"`
	State            JobState      `json:"state"`
	Progress         int           `json:"progress"`
	OriginalKey      string        `json:"original_key"`
	TranscodedKey    string        `json:"transcoded_key"`
	OriginalLocation string        `json:"original_location"`
	InputPath        string        `json:"input_path,omitempty"`
	Owner            string        `json:"owner,omitempty"`
	Result           *JobResult    `json:"result,omitempty"`
	Error            *JobError     `json:"error,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	StartedAt        time.Time     `json:"started_at,omitempty"`
	CompletedAt      time.Time     `json:"completed_at,omitempty"`
}

// JobStatus is the read-only snapshot handed to callers.
type JobStatus struct {
	JobID    string     `json:"job_id"`
	State    JobState   `json:"state"`
	Progress int        `json:"progress"`
	Result   *JobResult `json:"result,omitempty"`
	Error    *JobError  `json:"error,omitempty"`
}

func (j *EncodeJob) Status() *JobStatus {
	return &JobStatus{
		JobID:    j.JobID,
		State:    j.State,
		Progress: j.Progress,
		Result:   j.Result,
		Error:    j.Error,
	}
}

// JobEvent is published on every state change.
type JobEvent struct {
	JobID     string     `json:"job_id"`
	State     JobState   `json:"state"`
	Progress  int        `json:"progress"`
	Error     *JobError  `json:"error,omitempty"`
	Result    *JobResult `json:"result,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

func NewJobEvent(j *EncodeJob) *JobEvent {
	return &JobEvent{
		JobID:     j.JobID,
		State:     j.State,
		Progress:  j.Progress,
		Error:     j.Error,
		Result:    j.Result,
		Timestamp: time.Now().UTC(),
	}
}
