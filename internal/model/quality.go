package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Quality is a stream quality id as used by the playurl API (qn).
type Quality int

// Known quality tiers, ordered from lowest to highest id.
const (
	Quality240P      Quality = 6
	Quality360P      Quality = 16
	Quality480P      Quality = 32
	Quality720P      Quality = 64
	Quality720P60    Quality = 74
	Quality1080P     Quality = 80
	Quality1080PPlus Quality = 112
	Quality1080P60   Quality = 116
	Quality4K        Quality = 120
	QualityHDR       Quality = 125
	QualityDolby     Quality = 126
	Quality8K        Quality = 127
)

// GuestQualityCeiling is the highest quality an unauthenticated session may request.
const GuestQualityCeiling = Quality720P

var qualityLabels = map[Quality]string{
	Quality240P:      "240P",
	Quality360P:      "360P",
	Quality480P:      "480P",
	Quality720P:      "720P",
	Quality720P60:    "720P60",
	Quality1080P:     "1080P",
	Quality1080PPlus: "1080P+",
	Quality1080P60:   "1080P60",
	Quality4K:        "4K",
	QualityHDR:       "HDR",
	QualityDolby:     "Dolby Vision",
	Quality8K:        "8K",
}

// Label returns a human readable name such as "1080P".
func (q Quality) Label() string {
	if label, ok := qualityLabels[q]; ok {
		return label
	}
	return fmt.Sprintf("Q%d", int(q))
}

// Ceiling returns the highest quality allowed for the requested quality and
// authorization state. Guests are capped at GuestQualityCeiling. A zero or
// negative request means the best quality the authorization state allows.
func Ceiling(requested Quality, authorized bool) Quality {
	if requested <= 0 {
		requested = Quality8K
	}
	if !authorized && requested > GuestQualityCeiling {
		return GuestQualityCeiling
	}
	return requested
}

// ParseQuality maps labels like "1080p" or raw ids like "80" to a Quality.
func ParseQuality(s string) (Quality, error) {
	s = strings.TrimSpace(s)
	for q, label := range qualityLabels {
		if strings.EqualFold(label, s) {
			return q, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return Quality(n), nil
	}
	return 0, fmt.Errorf("unknown quality %q", s)
}

// Codec is a preferred video codec, using the API's codecid values.
type Codec int

const (
	CodecAVC  Codec = 7
	CodecHEVC Codec = 12
	CodecAV1  Codec = 13
)

func (c Codec) String() string {
	switch c {
	case CodecAVC:
		return "avc"
	case CodecHEVC:
		return "hevc"
	case CodecAV1:
		return "av1"
	default:
		return fmt.Sprintf("codec%d", int(c))
	}
}

// ParseCodec maps "avc", "hevc" or "av1" (and the h264/h265 aliases) to a Codec.
func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "avc", "h264":
		return CodecAVC, nil
	case "hevc", "h265":
		return CodecHEVC, nil
	case "av1":
		return CodecAV1, nil
	}
	return 0, fmt.Errorf("unknown codec %q", s)
}

// AudioTier selects which audio representations are eligible.
type AudioTier int

const (
	// AudioBest considers standard, Dolby and lossless tracks.
	AudioBest AudioTier = iota
	// AudioStandard considers only the regular AAC tracks.
	AudioStandard
)

func (a AudioTier) String() string {
	if a == AudioStandard {
		return "standard"
	}
	return "best"
}

// ParseAudioTier maps "best" or "standard" to an AudioTier.
func ParseAudioTier(s string) (AudioTier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "best":
		return AudioBest, nil
	case "standard":
		return AudioStandard, nil
	}
	return 0, fmt.Errorf("unknown audio tier %q", s)
}
