package models

import "time"

// JobRecord is the archived form of a terminal job.
type JobRecord struct {
	JobID         string    `json:"job_id" db:"job_id"`
	FileName      string    `json:"file_name" db:"file_name"`
	TargetFormat  string    `json:"target_format" db:"target_format"`
	Codec         string    `json:"codec" db:"codec"`
	Bitrate       string    `json:"bitrate" db:"bitrate"`
	Resolution    string    `json:"resolution" db:"resolution"`
	State         JobState  `json:"state" db:"state"`
	OriginalKey   string    `json:"original_key" db:"original_key"`
	TranscodedKey string    `json:"transcoded_key" db:"transcoded_key"`
	ErrorKind     string    `json:"error_kind" db:"error_kind"`
	ErrorMessage  string    `json:"error_message" db:"error_message"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	CompletedAt   time.Time `json:"completed_at" db:"completed_at"`
}

func NewJobRecord(j *EncodeJob) *JobRecord {
	r := &JobRecord{
		JobID:         j.JobID,
		FileName:      j.FileName,
		TargetFormat:  j.Spec.TargetFormat,
		Codec:         j.Spec.Codec,
		Bitrate:       j.Spec.Bitrate,
		Resolution:    j.Spec.Resolution,
		State:         j.State,
		OriginalKey:   j.OriginalKey,
		TranscodedKey: j.TranscodedKey,
		CreatedAt:     j.CreatedAt,
		CompletedAt:   j.CompletedAt,
	}
	if j.Error != nil {
		r.ErrorKind = string(j.Error.Kind)
		r.ErrorMessage = j.Error.Message
	}
	return r
}

type JobList struct {
	Jobs       []*JobRecord `json:"jobs"`
	TotalCount int          `json:"total_count"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
	TotalPages int          `json:"total_pages"`
	HasMore    bool         `json:"has_more"`
}
