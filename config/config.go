package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable names read by [Load].
const (
	EnvBaseURL                = "CHECKOUT_BASE_URL"
	EnvLocale                 = "CHECKOUT_LOCALE"
	EnvAPIVersion             = "CHECKOUT_API_VERSION"
	EnvSigningKey             = "CHECKOUT_SIGNING_KEY"
	EnvRetryCount             = "CHECKOUT_RETRY_COUNT"
	EnvRequestTimeout         = "CHECKOUT_REQUEST_TIMEOUT"
	EnvPendingInterval        = "CHECKOUT_POLL_PENDING_INTERVAL"
	EnvConnectionLostInterval = "CHECKOUT_POLL_CONNECTION_LOST_INTERVAL"
	EnvMaxPollWait            = "CHECKOUT_POLL_MAX_WAIT"
	EnvDebug                  = "CHECKOUT_DEBUG"
)

// DefaultAPIVersion is sent in the API-Version header when none is configured.
const DefaultAPIVersion = "2.3"

// Config holds the SDK settings that are usually supplied by the host
// application's environment.
type Config struct {
	// BaseURL is used when the client token carries no configuration URL.
	BaseURL string
	// Locale is sent with asynchronous payment instruments and as Accept-Language.
	Locale string
	// APIVersion is sent in the API-Version header.
	APIVersion string
	// SigningKey enables HMAC request signing when non-empty.
	SigningKey string
	// RetryCount is the transport retry count for retryable statuses.
	RetryCount int
	Debug      bool
	Timeouts   Timeouts
}

// Timeouts controls request and polling deadlines. Zero values are replaced
// in WithDefaults.
type Timeouts struct {
	Request                time.Duration // single HTTP attempt
	PendingInterval        time.Duration // next poll after a pending status
	ConnectionLostInterval time.Duration // next poll after a lost connection
	MaxPollWait            time.Duration // overall bound of a resume attempt
}

// WithDefaults returns a copy of t with zero values replaced by defaults:
//
//	Request:                15s
//	PendingInterval:        5s
//	ConnectionLostInterval: 3s
//	MaxPollWait:            5m
func (t Timeouts) WithDefaults() Timeouts {
	tt := t
	if tt.Request == 0 {
		tt.Request = 15 * time.Second
	}
	if tt.PendingInterval == 0 {
		tt.PendingInterval = 5 * time.Second
	}
	if tt.ConnectionLostInterval == 0 {
		tt.ConnectionLostInterval = 3 * time.Second
	}
	if tt.MaxPollWait == 0 {
		tt.MaxPollWait = 5 * time.Minute
	}
	return tt
}

// Validate applies implicit defaults and checks field values.
func (c *Config) Validate() error {
	if c.APIVersion == "" {
		c.APIVersion = DefaultAPIVersion
	}
	if c.Locale == "" {
		c.Locale = "en-US"
	}
	c.Timeouts = c.Timeouts.WithDefaults()

	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid base URL %q", c.BaseURL)
		}
	}
	if c.RetryCount < 0 {
		return errors.New("retry count must not be negative")
	}
	if c.Timeouts.Request < 0 || c.Timeouts.PendingInterval < 0 ||
		c.Timeouts.ConnectionLostInterval < 0 || c.Timeouts.MaxPollWait < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

// Load reads the configuration from the environment. Named files are loaded
// with godotenv first and must exist; without names an optional .env in the
// working directory is used. Variables already set in the environment win.
func Load(files ...string) (Config, error) {
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return Config{}, fmt.Errorf("load env files: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := Config{
		BaseURL:    strings.TrimRight(getEnv(EnvBaseURL, ""), "/"),
		Locale:     getEnv(EnvLocale, ""),
		APIVersion: getEnv(EnvAPIVersion, ""),
		SigningKey: getEnv(EnvSigningKey, ""),
	}

	var err error
	if cfg.RetryCount, err = strconv.Atoi(getEnv(EnvRetryCount, "2")); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", EnvRetryCount, err)
	}
	if cfg.Debug, err = strconv.ParseBool(getEnv(EnvDebug, "false")); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", EnvDebug, err)
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{EnvRequestTimeout, &cfg.Timeouts.Request},
		{EnvPendingInterval, &cfg.Timeouts.PendingInterval},
		{EnvConnectionLostInterval, &cfg.Timeouts.ConnectionLostInterval},
		{EnvMaxPollWait, &cfg.Timeouts.MaxPollWait},
	}
	for _, d := range durations {
		raw := getEnv(d.key, "")
		if raw == "" {
			continue
		}
		if *d.dst, err = time.ParseDuration(raw); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}
