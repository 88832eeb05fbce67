package encoder

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

type VideoInfo struct {
	Width    int
	Height   int
	Duration time.Duration
}

type probeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads the first video stream's dimensions and the container duration.
func (e *Engine) Probe(ctx context.Context, inputPath string) (*VideoInfo, error) {
	cmd := exec.CommandContext(ctx, e.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "json",
		inputPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe error: %w", err)
	}
	return parseProbeOutput(output)
}

func parseProbeOutput(output []byte) (*VideoInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(output, &out); err != nil {
		return nil, fmt.Errorf("unexpected ffprobe output: %w", err)
	}
	info := &VideoInfo{}
	if len(out.Streams) > 0 {
		info.Width = out.Streams[0].Width
		info.Height = out.Streams[0].Height
	}
	raw := strings.TrimSpace(out.Format.Duration)
	if raw == "" || raw == "N/A" {
		return info, nil
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid duration: %w", err)
	}
	info.Duration = time.Duration(seconds * float64(time.Second))
	return info, nil
}
