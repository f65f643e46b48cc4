package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ProbeResult summarizes a media file.
type ProbeResult struct {
	// Duration is the container duration in seconds, 0 when unknown.
	Duration float64

	// FrameRate of the first video stream, 0 when unknown.
	FrameRate  float64
	Width      int
	Height     int
	VideoCodec string
	AudioCodec string
	HasVideo   bool
	HasAudio   bool
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

type ffprobeStream struct {
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	Duration     string `json:"duration"`
}

// Probe inspects path with ffprobe.
func (e *Engine) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	if e.ffprobe == "" {
		return nil, fmt.Errorf("%w: ffprobe not found", ErrUnavailable)
	}

	cmd := exec.CommandContext(ctx, e.ffprobe,
		"-v", "error",
		"-hide_banner",
		"-show_format",
		"-show_streams",
		"-of", "json",
		"--", path,
	)
	output, err := cmd.Output()
	if err != nil {
		detail := ""
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			detail = strings.TrimSpace(string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("ffprobe %s: %w: %s", path, err, detail)
	}
	return parseProbe(output)
}

func parseProbe(output []byte) (*ProbeResult, error) {
	var ff ffprobeOutput
	if err := json.Unmarshal(output, &ff); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	result := &ProbeResult{Duration: parseFloat(ff.Format.Duration)}
	for _, s := range ff.Streams {
		switch s.CodecType {
		case "video":
			if result.HasVideo {
				continue
			}
			result.HasVideo = true
			result.VideoCodec = s.CodecName
			result.Width = s.Width
			result.Height = s.Height
			result.FrameRate = parseFrameRate(s.AvgFrameRate)
			if result.FrameRate == 0 {
				result.FrameRate = parseFrameRate(s.RFrameRate)
			}
			if result.Duration == 0 {
				result.Duration = parseFloat(s.Duration)
			}
		case "audio":
			if result.HasAudio {
				continue
			}
			result.HasAudio = true
			result.AudioCodec = s.CodecName
		}
	}
	return result, nil
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func parseFrameRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseFloat(s)
	}
	n, d := parseFloat(num), parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}
