package models

import "io"

type UploadInput struct {
	File     io.Reader `json:"file,omitempty"`
	Key      string    `json:"key" validate:"required"`
	MimeType string    `json:"mime_type"`
	Size     int64     `json:"size" validate:"gte=0"`
}

// SubmitInput is what the admission path receives for one transcode request.
type SubmitInput struct {
	File       io.Reader `json:"-"`
	FileName   string    `json:"filename" validate:"required,lte=255"`
	FileSize   int64     `json:"file_size" validate:"required,gt=0"`
	MimeType   string    `json:"mime_type"`
	Format     string    `json:"format" validate:"required,alphanum,lte=16"`
	Bitrate    string    `json:"bitrate" validate:"omitempty,lte=16"`
	Resolution string    `json:"resolution" validate:"omitempty,lte=16"`
}
