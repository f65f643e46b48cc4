package http

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/handiism/bilibili-downloader/internal/config"
	"github.com/handiism/bilibili-downloader/internal/model"
)

// Client wraps HTTP operations with site-specific headers, pacing and retries.
//
// Client provides:
//   - One pooled transport per instance
//   - Referer/Origin headers fixed to the target site
//   - A User-Agent rotated from a pool on every attempt
//   - A single RetryPolicy with randomized backoff and Retry-After support
//   - A fixed-window request throttle
//   - Resumable file downloads (see DownloadFile)
//
// Example usage:
//
//	client := NewClient(settings.ToClientConfig(), WithCredentials(creds))
//
//	var view dto.ViewResponse
//	if !client.GetJSON(ctx, apiURL, query, &view) {
//	    // request failed after all retries
//	}
//
// A Client is safe for concurrent use, but the pipeline gives every job its
// own instance so throttling state is never shared across jobs.
type Client struct {
	httpClient *http.Client
	referer    string
	origin     string
	cookie     string
	agents     []string
	agentIdx   atomic.Uint64

	policy   RetryPolicy
	throttle *throttle
	limiter  *rate.Limiter
	logger   logrus.FieldLogger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithCredentials sends the credential bag as a Cookie header.
func WithCredentials(creds model.Credentials) Option {
	return func(c *Client) {
		c.cookie = creds.CookieHeader()
	}
}

// WithLogger sets the logger used for retry and failure diagnostics.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRetryPolicy replaces the retry policy derived from the configuration.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.policy = policy
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a new HTTP client from cfg.
func NewClient(cfg config.ClientConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	agents := cfg.UserAgents
	if len(agents) == 0 {
		agents = config.DefaultUserAgents
	}

	c := &Client{
		// No overall Timeout: it would cut long downloads short. Waiting for
		// response headers is bounded by the transport instead.
		httpClient: &http.Client{Transport: newTransport(timeout)},
		referer:    cfg.Referer,
		origin:     cfg.Origin,
		agents:     agents,
		policy:     PolicyFromConfig(cfg),
		throttle:   newThrottle(time.Second, cfg.ThrottleBurst, cfg.ThrottleDelay),
		logger:     logrus.StandardLogger(),
		sleep:      sleepContext,
		now:        time.Now,
	}
	c.agentIdx.Store(uint64(rand.IntN(len(agents))))

	if cfg.MaxBytesPerSecond > 0 {
		burst := int(cfg.MaxBytesPerSecond)
		if burst < largeChunkSize {
			burst = largeChunkSize
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.MaxBytesPerSecond), burst)
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newTransport initializes a pooled http.Transport for one client instance.
func newTransport(timeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 32
	t.MaxIdleConnsPerHost = 8
	t.IdleConnTimeout = 90 * time.Second
	t.ResponseHeaderTimeout = timeout
	return t
}

// Kind is the sniffed content kind of a response body.
type Kind int

const (
	KindBinary Kind = iota
	KindJSON
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindJSON:
		return "json"
	case KindText:
		return "text"
	default:
		return "binary"
	}
}

// Response is a fully read, successful response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Kind       Kind
}

// Fetch performs a GET request with retries and returns the response, or nil
// when every attempt failed, a non-retryable status was returned, or ctx was
// cancelled. Callers must check for nil; failures are logged, never returned.
func (c *Client) Fetch(ctx context.Context, rawURL string, query url.Values) *Response {
	target, err := withQuery(rawURL, query)
	if err != nil {
		c.logger.WithError(err).WithField("url", rawURL).Error("invalid request url")
		return nil
	}
	log := c.logger.WithField("url", target)

	attempts := c.policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.pace(ctx); err != nil {
			return nil
		}

		resp, delay, err := c.attempt(ctx, target)
		if err == nil {
			_ = c.sleep(ctx, c.jitter(c.policy.SuccessDelay))
			return resp
		}
		if ctx.Err() != nil {
			log.WithError(ctx.Err()).Debug("request cancelled")
			return nil
		}

		var permanent *statusError
		if errors.As(err, &permanent) && !c.policy.retryable(permanent.code) {
			log.WithField("status", permanent.code).Warn("request failed with non-retryable status")
			return nil
		}

		log.WithError(err).WithFields(logrus.Fields{
			"attempt":      attempt,
			"max_attempts": attempts,
		}).Warn("request failed")

		if attempt < attempts {
			if delay <= 0 {
				delay = c.jitter(c.policy.FailureDelay)
			}
			if err := c.sleep(ctx, delay); err != nil {
				return nil
			}
		}
	}

	log.WithField("attempts", attempts).Error("request retries exhausted")
	return nil
}

// GetJSON fetches rawURL and decodes a JSON body into out.
//
// It returns false when the request failed, the body did not sniff as JSON,
// or decoding failed.
func (c *Client) GetJSON(ctx context.Context, rawURL string, query url.Values, out any) bool {
	resp := c.Fetch(ctx, rawURL, query)
	if resp == nil {
		return false
	}
	if resp.Kind != KindJSON {
		c.logger.WithFields(logrus.Fields{"url": rawURL, "kind": resp.Kind.String()}).Warn("expected JSON response")
		return false
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		c.logger.WithError(err).WithField("url", rawURL).Warn("decode JSON response")
		return false
	}
	return true
}

// attempt issues one request. The returned delay is the server requested
// Retry-After, or zero.
func (c *Client) attempt(ctx context.Context, target string) (*Response, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, err
	}
	c.decorate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		var delay time.Duration
		if c.policy.RespectRetryAfter {
			delay = parseRetryAfter(resp.Header.Get("Retry-After"), c.now(), c.policy.MaxRetryAfter)
		}
		return nil, delay, &statusError{code: resp.StatusCode, status: resp.Status}
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, 0, err
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Kind:       sniff(body),
	}, 0, nil
}

// decorate applies the default identity headers to req.
func (c *Client) decorate(req *http.Request) {
	req.Header.Set("User-Agent", c.nextAgent())
	if c.referer != "" {
		req.Header.Set("Referer", c.referer)
	}
	if c.origin != "" {
		req.Header.Set("Origin", c.origin)
	}
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}
}

// nextAgent rotates through the identity pool; every call moves forward.
func (c *Client) nextAgent() string {
	i := c.agentIdx.Add(1)
	return c.agents[i%uint64(len(c.agents))]
}

// pace applies the fixed-window throttle before a request is issued.
func (c *Client) pace(ctx context.Context) error {
	if c.throttle == nil {
		return ctx.Err()
	}
	if delay := c.throttle.reserve(c.now(), c.jitter(c.throttle.delay)); delay > 0 {
		c.logger.WithField("delay", delay).Debug("request window full, backing off")
		return c.sleep(ctx, delay)
	}
	return ctx.Err()
}

// jitter returns a uniformly random duration in [r[0], r[1]].
func (c *Client) jitter(r [2]time.Duration) time.Duration {
	lo, hi := r[0], r[1]
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo)+1))
}

func readBody(resp *http.Response) ([]byte, error) {
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "deflate") {
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return inflate(raw)
	}
	return io.ReadAll(resp.Body)
}

// inflate decodes a "deflate" body, accepting both zlib-wrapped and raw
// DEFLATE streams since servers disagree on what the encoding means.
func inflate(raw []byte) ([]byte, error) {
	if len(raw) >= 2 && raw[0]&0x0f == 8 && (uint16(raw[0])<<8|uint16(raw[1]))%31 == 0 {
		if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
			defer zr.Close()
			if out, err := io.ReadAll(zr); err == nil {
				return out, nil
			}
		}
	}
	fr := flate.NewReader(bytes.NewReader(raw))
	defer fr.Close()
	out, err := io.ReadAll(fr)
	if err != nil {
		return nil, fmt.Errorf("inflate body: %w", err)
	}
	return out, nil
}

// sniff classifies a body by its content rather than the declared type.
func sniff(body []byte) Kind {
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")), " \t\r\n")
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed) {
		return KindJSON
	}
	ct := http.DetectContentType(body)
	if strings.HasPrefix(ct, "text/") {
		return KindText
	}
	return KindBinary
}

func withQuery(rawURL string, query url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
