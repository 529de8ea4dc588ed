package transport

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/sumup/checkout/signature"
)

const (
	defaultTimeout    = 15 * time.Second
	defaultRetryCount = 2
	maxErrorSnippet   = 512
)

// Client is the default [Doer]. Responses with status 429, 502, 503 and 504
// are retried by resty before they surface to the caller.
type Client struct {
	rc     *resty.Client
	signer signature.Signer
	clock  func() time.Time
	logger *zap.Logger
}

type clientConfig struct {
	timeout      time.Duration
	retryCount   int
	retryWait    time.Duration
	roundTripper http.RoundTripper
	signer       signature.Signer
	clock        func() time.Time
	logger       *zap.Logger
}

// Option configures a [Client].
type Option func(*clientConfig)

// WithTimeout bounds each HTTP attempt.
func WithTimeout(d time.Duration) Option {
	return func(cfg *clientConfig) {
		if d > 0 {
			cfg.timeout = d
		}
	}
}

// WithRetryCount sets how many times a retryable response is re-sent.
func WithRetryCount(n int) Option {
	return func(cfg *clientConfig) {
		if n >= 0 {
			cfg.retryCount = n
		}
	}
}

// WithRetryWait sets the initial wait between transport retries.
func WithRetryWait(d time.Duration) Option {
	return func(cfg *clientConfig) {
		if d > 0 {
			cfg.retryWait = d
		}
	}
}

// WithRoundTripper replaces the base round tripper. It is still wrapped with
// otelhttp instrumentation.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(cfg *clientConfig) {
		cfg.roundTripper = rt
	}
}

// WithSigner signs every request body and sets the Signature and Timestamp headers.
func WithSigner(signer signature.Signer) Option {
	return func(cfg *clientConfig) {
		cfg.signer = signer
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *clientConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// withClock provides deterministic signing timestamps in tests.
func withClock(fn func() time.Time) Option {
	return func(cfg *clientConfig) {
		cfg.clock = fn
	}
}

// New builds a resty backed [Client].
func New(opts ...Option) *Client {
	cfg := clientConfig{
		timeout:      defaultTimeout,
		retryCount:   defaultRetryCount,
		retryWait:    200 * time.Millisecond,
		roundTripper: http.DefaultTransport,
		clock:        time.Now,
		logger:       zap.L(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	rc := resty.New().
		SetTransport(otelhttp.NewTransport(cfg.roundTripper)).
		SetTimeout(cfg.timeout).
		SetRetryCount(cfg.retryCount).
		SetRetryWaitTime(cfg.retryWait).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil || resp == nil {
				return false
			}
			switch resp.StatusCode() {
			case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
				return true
			}
			return false
		})

	return &Client{
		rc:     rc,
		signer: cfg.signer,
		clock:  cfg.clock,
		logger: cfg.logger,
	}
}

// Do implements [Doer]. Non-2xx responses are returned together with an
// [*Error] of code [CodeHTTPStatus] so callers can inspect the body.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	r := c.rc.R().SetContext(ctx)
	if req.Header != nil {
		r.Header = req.Header.Clone()
	}
	if req.Body != nil {
		if r.Header.Get("Content-Type") == "" {
			r.Header.Set("Content-Type", "application/json")
		}
		r.SetBody(req.Body)
	}
	r.Header.Set("Accept", "application/json")
	if c.signer != nil {
		if err := c.sign(ctx, r, req); err != nil {
			return nil, &Error{Code: CodeRequestFailed, Message: "sign request", Err: err}
		}
	}

	start := time.Now()
	resp, err := r.Execute(req.Method, req.URL)
	if err != nil {
		terr := classify(ctx, err)
		c.logger.Debug("checkout request failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL),
			zap.String("code", string(terr.Code)),
			zap.Error(err))
		return nil, terr
	}

	out := &Response{
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Body:       resp.Body(),
	}
	c.logger.Debug("checkout request",
		zap.String("method", req.Method),
		zap.String("url", req.URL),
		zap.Int("status", out.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if out.StatusCode < http.StatusOK || out.StatusCode >= http.StatusMultipleChoices {
		snippet := strings.TrimSpace(string(out.Body))
		if len(snippet) > maxErrorSnippet {
			snippet = snippet[:maxErrorSnippet]
		}
		return out, &Error{Code: CodeHTTPStatus, StatusCode: out.StatusCode, Message: snippet}
	}
	return out, nil
}

func (c *Client) sign(ctx context.Context, r *resty.Request, req Request) error {
	canonical, err := signature.CanonicalizeJSONBody(req.Body)
	if err != nil {
		return err
	}
	path := req.URL
	if u, err := url.Parse(req.URL); err == nil {
		path = u.Path
	}
	ts := c.clock()
	sig, err := c.signer.Sign(ctx, signature.Material{
		Timestamp:     ts,
		CanonicalBody: canonical,
		Method:        req.Method,
		Path:          path,
	})
	if err != nil {
		return err
	}
	r.Header.Set(signature.HeaderSignature, sig)
	r.Header.Set(signature.HeaderTimestamp, signature.FormatTimestamp(ts))
	return nil
}
