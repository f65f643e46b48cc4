package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/handiism/bilibili-downloader/internal/model"
)

// Settings holds all configuration options.
type Settings struct {
	// Download settings
	DownloadsPath         string  `json:"downloads_path" toml:"downloads_path"`
	MergedExtension       string  `json:"merged_extension" toml:"merged_extension"`
	MaxConcurrentJobs     int     `json:"max_concurrent_jobs" toml:"max_concurrent_jobs"`
	DownloadMaxRetries    int     `json:"download_max_retries" toml:"download_max_retries"`
	DownloadRetryCooldown float64 `json:"download_retry_cooldown" toml:"download_retry_cooldown"`
	DownloadRetryExponent float64 `json:"download_retry_exponent" toml:"download_retry_exponent"`
	JobTimeoutMinutes     int     `json:"job_timeout_minutes" toml:"job_timeout_minutes"`
	MaxBytesPerSecond     int64   `json:"max_bytes_per_second" toml:"max_bytes_per_second"`

	// Stream selection defaults
	Quality   string `json:"quality" toml:"quality"`
	Codec     string `json:"codec" toml:"codec"`
	AudioTier string `json:"audio_tier" toml:"audio_tier"`

	// Sidecars and post processing
	DownloadDanmaku  bool `json:"download_danmaku" toml:"download_danmaku"`
	DownloadComments bool `json:"download_comments" toml:"download_comments"`
	CommentMaxPages  int  `json:"comment_max_pages" toml:"comment_max_pages"`
	SaveCoverArt     bool `json:"save_cover_art" toml:"save_cover_art"`
	CoverArtMaxSize  int  `json:"cover_art_max_size" toml:"cover_art_max_size"`
	DeleteOriginals  bool `json:"delete_originals" toml:"delete_originals"`
	ExtractMP3       bool `json:"extract_mp3" toml:"extract_mp3"`
	MP3Bitrate       int  `json:"mp3_bitrate" toml:"mp3_bitrate"`

	// Batch playlist of merged files
	CreatePlaylist bool   `json:"create_playlist" toml:"create_playlist"`
	PlaylistFormat string `json:"playlist_format" toml:"playlist_format"`

	// Remote endpoints and identity
	APIBaseURL     string   `json:"api_base_url" toml:"api_base_url"`
	CommentBaseURL string   `json:"comment_base_url" toml:"comment_base_url"`
	Referer        string   `json:"referer" toml:"referer"`
	Origin         string   `json:"origin" toml:"origin"`
	UserAgents     []string `json:"user_agents" toml:"user_agents"`

	// Cookie is an optional "name=value; ..." session cookie string.
	Cookie string `json:"cookie" toml:"cookie"`

	// Request pacing and retries
	RequestTimeoutSeconds int     `json:"request_timeout_seconds" toml:"request_timeout_seconds"`
	RequestMaxAttempts    int     `json:"request_max_attempts" toml:"request_max_attempts"`
	RetryMinDelay         float64 `json:"retry_min_delay" toml:"retry_min_delay"`
	RetryMaxDelay         float64 `json:"retry_max_delay" toml:"retry_max_delay"`
	PaceMinDelay          float64 `json:"pace_min_delay" toml:"pace_min_delay"`
	PaceMaxDelay          float64 `json:"pace_max_delay" toml:"pace_max_delay"`
	ThrottleBurst         int     `json:"throttle_burst" toml:"throttle_burst"`
	ThrottleMinDelay      float64 `json:"throttle_min_delay" toml:"throttle_min_delay"`
	ThrottleMaxDelay      float64 `json:"throttle_max_delay" toml:"throttle_max_delay"`

	// External tools
	FFmpegDir  string `json:"ffmpeg_dir" toml:"ffmpeg_dir"`
	HWAccel    string `json:"hwaccel" toml:"hwaccel"`
	DefaultCRF int    `json:"default_crf" toml:"default_crf"`
	Preset     string `json:"preset" toml:"preset"`

	// Logging
	LogLevel  string `json:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" toml:"log_format"`
	LogFile   string `json:"log_file" toml:"log_file"`
}

// DefaultUserAgents is the identity pool rotated across requests.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
}

// DefaultSettings returns settings with default values.
func DefaultSettings() *Settings {
	homeDir, _ := os.UserHomeDir()
	agents := make([]string, len(DefaultUserAgents))
	copy(agents, DefaultUserAgents)
	return &Settings{
		DownloadsPath:         filepath.Join(homeDir, "Videos", "Bilibili"),
		MergedExtension:       ".mp4",
		MaxConcurrentJobs:     2,
		DownloadMaxRetries:    3,
		DownloadRetryCooldown: 1.0,
		DownloadRetryExponent: 2.0,
		JobTimeoutMinutes:     120,
		MaxBytesPerSecond:     0,

		Quality:   "1080P",
		Codec:     "avc",
		AudioTier: "best",

		DownloadDanmaku:  false,
		DownloadComments: false,
		CommentMaxPages:  5,
		SaveCoverArt:     false,
		CoverArtMaxSize:  1280,
		DeleteOriginals:  true,
		ExtractMP3:       false,
		MP3Bitrate:       192,

		CreatePlaylist: false,
		PlaylistFormat: "m3u",

		APIBaseURL:     "https://api.bilibili.com",
		CommentBaseURL: "https://comment.bilibili.com",
		Referer:        "https://www.bilibili.com/",
		Origin:         "https://www.bilibili.com",
		UserAgents:     agents,

		RequestTimeoutSeconds: 30,
		RequestMaxAttempts:    5,
		RetryMinDelay:         1.0,
		RetryMaxDelay:         3.0,
		PaceMinDelay:          0.2,
		PaceMaxDelay:          0.8,
		ThrottleBurst:         2,
		ThrottleMinDelay:      1.5,
		ThrottleMaxDelay:      3.0,

		HWAccel:    "none",
		DefaultCRF: 23,
		Preset:     "medium",

		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads settings from a JSON or TOML file, chosen by extension.
//
// A missing file is not an error: defaults are returned instead.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	settings := DefaultSettings()
	if isTOML(path) {
		if err := toml.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return settings, nil
}

// Save writes settings to a JSON or TOML file, chosen by extension.
func (s *Settings) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(s)
	} else {
		data, err = json.MarshalIndent(s, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate reports every invalid option at once.
func (s *Settings) Validate() error {
	var errs []error
	if strings.TrimSpace(s.DownloadsPath) == "" {
		errs = append(errs, errors.New("downloads_path must not be empty"))
	}
	if s.MaxConcurrentJobs < 1 {
		errs = append(errs, errors.New("max_concurrent_jobs must be at least 1"))
	}
	if s.DownloadMaxRetries < 1 {
		errs = append(errs, errors.New("download_max_retries must be at least 1"))
	}
	if s.RequestMaxAttempts < 1 {
		errs = append(errs, errors.New("request_max_attempts must be at least 1"))
	}
	if s.CommentMaxPages < 1 || s.CommentMaxPages > 5 {
		errs = append(errs, errors.New("comment_max_pages must be between 1 and 5"))
	}
	if s.RetryMinDelay > s.RetryMaxDelay || s.PaceMinDelay > s.PaceMaxDelay || s.ThrottleMinDelay > s.ThrottleMaxDelay {
		errs = append(errs, errors.New("delay ranges must have min <= max"))
	}
	if s.ThrottleBurst < 1 {
		errs = append(errs, errors.New("throttle_burst must be at least 1"))
	}
	if s.MaxBytesPerSecond < 0 {
		errs = append(errs, errors.New("max_bytes_per_second must not be negative"))
	}
	if _, err := model.ParseQuality(s.Quality); err != nil {
		errs = append(errs, err)
	}
	if _, err := model.ParseCodec(s.Codec); err != nil {
		errs = append(errs, err)
	}
	if _, err := model.ParseAudioTier(s.AudioTier); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(s.HWAccel) {
	case "", "none", "auto", "cuda", "qsv", "videotoolbox", "vaapi":
	default:
		errs = append(errs, fmt.Errorf("hwaccel %q must be one of none, auto, cuda, qsv, videotoolbox, vaapi", s.HWAccel))
	}
	if s.DefaultCRF < 0 || s.DefaultCRF > 51 {
		errs = append(errs, errors.New("default_crf must be between 0 and 51"))
	}
	switch strings.ToLower(s.PlaylistFormat) {
	case "", "m3u", "pls":
	default:
		errs = append(errs, fmt.Errorf("playlist_format %q must be m3u or pls", s.PlaylistFormat))
	}
	if _, err := model.ParseCredentials(s.Cookie); err != nil {
		errs = append(errs, err)
	}
	if !strings.HasPrefix(s.MergedExtension, ".") {
		errs = append(errs, fmt.Errorf("merged_extension %q must start with a dot", s.MergedExtension))
	}
	return errors.Join(errs...)
}

// Credentials returns the configured session cookies. An invalid cookie
// string yields an empty bag; Validate reports it.
func (s *Settings) Credentials() model.Credentials {
	creds, err := model.ParseCredentials(s.Cookie)
	if err != nil {
		return model.Credentials{}
	}
	return creds
}

// JobTimeout returns the wall-clock limit of one job; zero disables it.
func (s *Settings) JobTimeout() time.Duration {
	if s.JobTimeoutMinutes <= 0 {
		return 0
	}
	return time.Duration(s.JobTimeoutMinutes) * time.Minute
}

// ToPathConfig converts settings to PathConfig.
func (s *Settings) ToPathConfig() *model.PathConfig {
	return &model.PathConfig{
		DownloadsPath:   s.DownloadsPath,
		MergedExtension: s.MergedExtension,
	}
}

// ToClientConfig converts settings to the HTTP client configuration values.
func (s *Settings) ToClientConfig() ClientConfig {
	agents := s.UserAgents
	if len(agents) == 0 {
		agents = DefaultUserAgents
	}
	return ClientConfig{
		Referer:           s.Referer,
		Origin:            s.Origin,
		UserAgents:        agents,
		Timeout:           time.Duration(s.RequestTimeoutSeconds) * time.Second,
		MaxAttempts:       s.RequestMaxAttempts,
		FailureDelay:      seconds(s.RetryMinDelay, s.RetryMaxDelay),
		SuccessDelay:      seconds(s.PaceMinDelay, s.PaceMaxDelay),
		ThrottleBurst:     s.ThrottleBurst,
		ThrottleDelay:     seconds(s.ThrottleMinDelay, s.ThrottleMaxDelay),
		MaxBytesPerSecond: s.MaxBytesPerSecond,
	}
}

// ClientConfig is the subset of settings the HTTP client needs.
type ClientConfig struct {
	Referer           string
	Origin            string
	UserAgents        []string
	Timeout           time.Duration
	MaxAttempts       int
	FailureDelay      [2]time.Duration
	SuccessDelay      [2]time.Duration
	ThrottleBurst     int
	ThrottleDelay     [2]time.Duration
	MaxBytesPerSecond int64
}

func seconds(lo, hi float64) [2]time.Duration {
	return [2]time.Duration{
		time.Duration(lo * float64(time.Second)),
		time.Duration(hi * float64(time.Second)),
	}
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
