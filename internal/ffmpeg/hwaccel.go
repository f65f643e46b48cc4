package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Accelerator is a hardware video encoding backend.
type Accelerator string

const (
	AccelNone         Accelerator = "none"
	AccelAuto         Accelerator = "auto"
	AccelCUDA         Accelerator = "cuda"
	AccelQSV          Accelerator = "qsv"
	AccelVideoToolbox Accelerator = "videotoolbox"
	AccelVAAPI        Accelerator = "vaapi"
)

// ParseAccelerator maps a configuration value to an Accelerator. Unknown
// values map to AccelNone.
func ParseAccelerator(s string) Accelerator {
	switch a := Accelerator(strings.ToLower(strings.TrimSpace(s))); a {
	case AccelAuto, AccelCUDA, AccelQSV, AccelVideoToolbox, AccelVAAPI:
		return a
	}
	return AccelNone
}

// HWAccelConfig holds the flags needed to decode and encode with one backend.
type HWAccelConfig struct {
	Accelerator Accelerator
	DecodeFlags []string

	// Encoders maps a target codec ("h264", "hevc") to the encoder name.
	Encoders map[string]string

	// ExtraFlags follow the encoder selection.
	ExtraFlags []string

	// QualityFlag takes the CRF-like quality value for this encoder.
	QualityFlag string

	// UploadFilter moves software frames to the device, if the encoder needs it.
	UploadFilter string
}

// Encoder returns the encoder for codec, defaulting to H.264.
func (c *HWAccelConfig) Encoder(codec string) string {
	if enc, ok := c.Encoders[normalizeCodec(codec)]; ok {
		return enc
	}
	return c.Encoders["h264"]
}

// EncodeArgs returns encoder selection and quality arguments.
func (c *HWAccelConfig) EncodeArgs(codec string, quality int, preset string) []string {
	args := []string{"-c:v", c.Encoder(codec)}
	args = append(args, c.ExtraFlags...)
	if c.Accelerator == AccelNone && preset != "" {
		args = append(args, "-preset", preset)
	}
	if quality > 0 {
		args = append(args, c.QualityFlag, fmt.Sprint(quality))
	}
	return args
}

// NewHWAccelConfig returns the flag set for accel. AccelAuto is treated as
// AccelNone; resolve it with DetectAccelerators and SelectAccelerator first.
func NewHWAccelConfig(accel Accelerator) *HWAccelConfig {
	switch accel {
	case AccelCUDA:
		return &HWAccelConfig{
			Accelerator: AccelCUDA,
			DecodeFlags: []string{"-hwaccel", "cuda"},
			Encoders:    map[string]string{"h264": "h264_nvenc", "hevc": "hevc_nvenc"},
			ExtraFlags:  []string{"-preset", "p4"},
			QualityFlag: "-cq",
		}
	case AccelQSV:
		return &HWAccelConfig{
			Accelerator: AccelQSV,
			DecodeFlags: []string{"-hwaccel", "qsv"},
			Encoders:    map[string]string{"h264": "h264_qsv", "hevc": "hevc_qsv"},
			ExtraFlags:  []string{"-preset", "veryfast"},
			QualityFlag: "-global_quality",
		}
	case AccelVideoToolbox:
		return &HWAccelConfig{
			Accelerator: AccelVideoToolbox,
			DecodeFlags: []string{"-hwaccel", "videotoolbox"},
			Encoders:    map[string]string{"h264": "h264_videotoolbox", "hevc": "hevc_videotoolbox"},
			QualityFlag: "-q:v",
		}
	case AccelVAAPI:
		return &HWAccelConfig{
			Accelerator:  AccelVAAPI,
			DecodeFlags:  []string{"-vaapi_device", "/dev/dri/renderD128"},
			Encoders:     map[string]string{"h264": "h264_vaapi", "hevc": "hevc_vaapi"},
			QualityFlag:  "-qp",
			UploadFilter: "format=nv12,hwupload",
		}
	default:
		return &HWAccelConfig{
			Accelerator: AccelNone,
			Encoders:    map[string]string{"h264": "libx264", "hevc": "libx265"},
			QualityFlag: "-crf",
		}
	}
}

// SelectAccelerator picks the preferred backend from available.
func SelectAccelerator(available []Accelerator) Accelerator {
	for _, want := range []Accelerator{AccelCUDA, AccelQSV, AccelVideoToolbox, AccelVAAPI} {
		for _, a := range available {
			if a == want {
				return want
			}
		}
	}
	return AccelNone
}

// DetectAccelerators lists the backends the local ffmpeg supports for both
// decoding and H.264 encoding. AccelNone is always included.
func (e *Engine) DetectAccelerators(ctx context.Context) ([]Accelerator, error) {
	if !e.Available() {
		return nil, ErrUnavailable
	}

	hwaccels, err := capture(ctx, e.ffmpeg, "-hide_banner", "-hwaccels")
	if err != nil {
		return nil, fmt.Errorf("list hwaccels: %w", err)
	}
	encoders, err := capture(ctx, e.ffmpeg, "-hide_banner", "-encoders")
	if err != nil {
		return nil, fmt.Errorf("list encoders: %w", err)
	}

	methods := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(hwaccels))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasSuffix(line, ":") {
			methods[line] = true
		}
	}

	var available []Accelerator
	for _, accel := range []Accelerator{AccelCUDA, AccelQSV, AccelVideoToolbox, AccelVAAPI} {
		if methods[string(accel)] && bytes.Contains(encoders, []byte(NewHWAccelConfig(accel).Encoder("h264"))) {
			available = append(available, accel)
		}
	}
	return append(available, AccelNone), nil
}

func capture(ctx context.Context, bin string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, bin, args...).Output()
}

func normalizeCodec(codec string) string {
	switch strings.ToLower(strings.TrimSpace(codec)) {
	case "hevc", "h265", "x265":
		return "hevc"
	}
	return "h264"
}
