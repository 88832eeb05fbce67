package worker

import "time"

const (
	heartbeatInterval = 5 * time.Second
	finalizeTimeout   = 30 * time.Second
	publishTimeout    = 5 * time.Second
	spoolGrace        = time.Hour

	interruptedMessage = "interrupted"
)

// OutputFormat is the container and video codec chosen for a requested format.
type OutputFormat struct {
	Container  string
	VideoCodec string
	MimeType   string
}
