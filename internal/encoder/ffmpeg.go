package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/amankumarsingh77/cloud-video-transcoder/internal/config"
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/models"
	"github.com/amankumarsingh77/cloud-video-transcoder/pkg/logger"
)

const (
	eventBuffer   = 16
	stderrTailLen = 512
)

// Engine runs ffmpeg as a child process per request.
type Engine struct {
	ffmpegPath  string
	ffprobePath string
	logger      logger.Logger
}

func NewEngine(cfg *config.Config, log logger.Logger) *Engine {
	return &Engine{
		ffmpegPath:  cfg.Encoder.FFmpegPath,
		ffprobePath: cfg.Encoder.FFprobePath,
		logger:      log,
	}
}

// Encode starts the encode in the background. The process is killed when ctx
// is done.
func (e *Engine) Encode(ctx context.Context, req *models.EncodeRequest) <-chan models.EncodeEvent {
	events := make(chan models.EncodeEvent, eventBuffer)
	go func() {
		defer close(events)
		events <- models.EncodeEvent{Type: models.EncodeStarted}
		if err := e.run(ctx, req, events); err != nil {
			events <- models.EncodeEvent{Type: models.EncodeFailed, Err: err}
			return
		}
		events <- models.EncodeEvent{Type: models.EncodeCompleted, Progress: 100, OutputPath: req.OutputPath}
	}()
	return events
}

func (e *Engine) run(ctx context.Context, req *models.EncodeRequest, events chan<- models.EncodeEvent) error {
	info, err := e.Probe(ctx, req.InputPath)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// ffmpeg gives a better error for unreadable input
		e.logger.Warnf("Encode - Probe job %s: %v", req.JobID, err)
		info = &VideoInfo{}
	}

	cmd := exec.CommandContext(ctx, e.ffmpegPath, BuildArgs(req)...)
	stderr := &tailBuffer{limit: stderrTailLen}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err = cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start: %w", err)
	}

	parseErr := parseProgress(stdout, info.Duration, func(pct int) {
		select {
		case events <- models.EncodeEvent{Type: models.EncodeProgress, Progress: pct}:
		default:
			// the consumer only needs the latest value
		}
	})
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if waitErr != nil {
		return fmt.Errorf("ffmpeg: %w: %s", waitErr, stderr.String())
	}
	if parseErr != nil {
		e.logger.Warnf("Encode - progress job %s: %v", req.JobID, parseErr)
	}
	if _, err = os.Stat(req.OutputPath); err != nil {
		return fmt.Errorf("ffmpeg produced no output: %w", err)
	}
	return nil
}

// BuildArgs renders the ffmpeg command line for req.
func BuildArgs(req *models.EncodeRequest) []string {
	args := []string{
		"-hide_banner", "-nostats", "-y",
		"-i", req.InputPath,
		"-c:v", req.VideoCodec,
	}
	if req.Bitrate != "" {
		args = append(args, "-b:v", req.Bitrate)
	}
	if req.Resolution != "" {
		args = append(args, "-s", req.Resolution)
	}
	args = append(args, "-c:a", req.AudioCodec)
	if req.AudioBitrate != "" {
		args = append(args, "-b:a", req.AudioBitrate)
	}
	switch req.Container {
	case "mp4", "mov":
		args = append(args, "-movflags", "+faststart")
	}
	return append(args, "-progress", "pipe:1", req.OutputPath)
}

// IsTimeout reports whether an engine error was caused by the deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(t.buf.String())
}
