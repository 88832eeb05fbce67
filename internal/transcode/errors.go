package transcode

import "errors"

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrJobExists         = errors.New("job already exists")
	ErrQueueFull         = errors.New("transcode queue is full")
	ErrInvalidTransition = errors.New("invalid job state transition")
	ErrUploadFailed      = errors.New("object store upload failed")
	ErrHistoryDisabled   = errors.New("job history is disabled")
)
