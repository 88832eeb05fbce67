package models

type EncodeEventType string

const (
	EncodeStarted   EncodeEventType = "started"
	EncodeProgress  EncodeEventType = "progress"
	EncodeCompleted EncodeEventType = "completed"
	EncodeFailed    EncodeEventType = "failed"
)

// EncodeRequest describes one invocation of the encode engine.
type EncodeRequest struct {
	JobID        string
	InputPath    string
	OutputPath   string
	Container    string
	VideoCodec   string
	AudioCodec   string
	AudioBitrate string
	Bitrate      string
	Resolution   string
}

// EncodeEvent is emitted by the engine. Exactly one of EncodeCompleted or
// EncodeFailed is delivered per request, always last.
type EncodeEvent struct {
	Type       EncodeEventType
	Progress   int
	OutputPath string
	Err        error
}

func (e EncodeEvent) IsTerminal() bool {
	return e.Type == EncodeCompleted || e.Type == EncodeFailed
}
