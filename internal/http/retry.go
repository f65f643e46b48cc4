package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/handiism/bilibili-downloader/internal/config"
)

// RetryPolicy is the single retry configuration of a Client.
//
// Every call gets at most MaxAttempts attempts. Between failed attempts the
// client sleeps for the server's Retry-After (when RespectRetryAfter is set
// and the value is at most MaxRetryAfter) or a random FailureDelay. After a
// successful attempt it sleeps a random SuccessDelay so bursts of calls look
// less automated.
type RetryPolicy struct {
	MaxAttempts int

	// Retryable decides whether a non-2xx status is worth another attempt.
	// Nil means RetryableStatus. Transport errors are always retried.
	Retryable func(status int) bool

	FailureDelay [2]time.Duration
	SuccessDelay [2]time.Duration

	RespectRetryAfter bool
	MaxRetryAfter     time.Duration
}

// DefaultRetryPolicy returns 5 attempts, 1-3s failure backoff and 0.2-0.8s
// pacing after success.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       5,
		Retryable:         RetryableStatus,
		FailureDelay:      [2]time.Duration{time.Second, 3 * time.Second},
		SuccessDelay:      [2]time.Duration{200 * time.Millisecond, 800 * time.Millisecond},
		RespectRetryAfter: true,
		MaxRetryAfter:     time.Minute,
	}
}

// PolicyFromConfig builds a RetryPolicy from configuration values.
func PolicyFromConfig(cfg config.ClientConfig) RetryPolicy {
	policy := DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.FailureDelay != [2]time.Duration{} {
		policy.FailureDelay = cfg.FailureDelay
	}
	if cfg.SuccessDelay != [2]time.Duration{} {
		policy.SuccessDelay = cfg.SuccessDelay
	}
	return policy
}

// RetryableStatus reports whether status is a rate limit or transient server error.
func RetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (p RetryPolicy) retryable(status int) bool {
	if p.Retryable == nil {
		return RetryableStatus(status)
	}
	return p.Retryable(status)
}

type statusError struct {
	code   int
	status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.code, e.status)
}

// parseRetryAfter understands both delta-seconds and HTTP-date forms. Values
// above limit (when limit > 0) or in the past yield zero.
func parseRetryAfter(value string, now time.Time, limit time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	var d time.Duration
	if secs, err := strconv.Atoi(value); err == nil {
		d = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(value); err == nil {
		d = at.Sub(now)
	}

	if d <= 0 || (limit > 0 && d > limit) {
		return 0
	}
	return d
}
