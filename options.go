package checkout

import (
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sumup/checkout/config"
	"github.com/sumup/checkout/resume"
	"github.com/sumup/checkout/signature"
	"github.com/sumup/checkout/transport"
)

type sessionConfig struct {
	doer                   transport.Doer
	httpTimeout            time.Duration
	retryCount             int
	signer                 signature.Signer
	logger                 *zap.Logger
	clock                  func() time.Time
	scheduler              resume.Scheduler
	pendingInterval        time.Duration
	connectionLostInterval time.Duration
	maxPollWait            time.Duration
	locale                 string
	platform               string
	apiVersion             string
	userAgent              string
	baseURL                string
	selector               MethodSelector
	tokenizationHandler    TokenizationHandler
	resultHandler          ResultHandler
	callbacks              []EventCallback
	presenter              resume.Presenter
	tokenizers             map[PaymentMethodType]TokenizerFactory
	tracerProvider         trace.TracerProvider
}

// Option customizes a [Session].
type Option func(*sessionConfig)

// WithConfig applies settings loaded with [config.Load]. Options given after
// it override individual values.
func WithConfig(c config.Config) Option {
	return func(cfg *sessionConfig) {
		if err := c.Validate(); err != nil {
			return
		}
		cfg.baseURL = c.BaseURL
		cfg.locale = c.Locale
		cfg.apiVersion = c.APIVersion
		cfg.retryCount = c.RetryCount
		cfg.httpTimeout = c.Timeouts.Request
		cfg.pendingInterval = c.Timeouts.PendingInterval
		cfg.connectionLostInterval = c.Timeouts.ConnectionLostInterval
		cfg.maxPollWait = c.Timeouts.MaxPollWait
		if c.SigningKey != "" {
			cfg.signer = signature.HMACSigner{Key: []byte(c.SigningKey)}
		}
		if c.Debug {
			cfg.logger = zap.Must(zap.NewDevelopment())
		}
	}
}

// WithTransport replaces the HTTP client used for backend calls.
func WithTransport(doer transport.Doer) Option {
	return func(cfg *sessionConfig) {
		cfg.doer = doer
	}
}

// WithRequestSigner signs every backend request body. It has no effect when
// [WithTransport] supplies a custom transport.
func WithRequestSigner(signer signature.Signer) Option {
	return func(cfg *sessionConfig) {
		cfg.signer = signer
	}
}

// WithLogger sets the structured logger. Defaults to zap.L().
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *sessionConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider. Defaults to the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *sessionConfig) {
		cfg.tracerProvider = tp
	}
}

// WithClock provides the time source for token validity and poll deadlines.
func WithClock(fn func() time.Time) Option {
	return func(cfg *sessionConfig) {
		if fn != nil {
			cfg.clock = fn
		}
	}
}

// WithScheduler replaces the timer used between status polls.
func WithScheduler(s resume.Scheduler) Option {
	return func(cfg *sessionConfig) {
		cfg.scheduler = s
	}
}

// WithPollIntervals sets the delay after a pending status and after a lost
// connection.
func WithPollIntervals(pending, connectionLost time.Duration) Option {
	return func(cfg *sessionConfig) {
		cfg.pendingInterval = pending
		cfg.connectionLostInterval = connectionLost
	}
}

// WithMaxPollWait bounds how long a resume attempt may take.
func WithMaxPollWait(d time.Duration) Option {
	if d <= 0 {
		panic("checkout: max poll wait must be positive")
	}
	return func(cfg *sessionConfig) {
		cfg.maxPollWait = d
	}
}

// WithLocale sets the shopper locale sent with off-session instruments and
// as Accept-Language.
func WithLocale(locale string) Option {
	return func(cfg *sessionConfig) {
		cfg.locale = locale
	}
}

// WithPlatform sets the platform reported in the session info of
// off-session instruments.
func WithPlatform(platform string) Option {
	return func(cfg *sessionConfig) {
		cfg.platform = platform
	}
}

// WithAPIVersion sets the API-Version header.
func WithAPIVersion(version string) Option {
	return func(cfg *sessionConfig) {
		cfg.apiVersion = version
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cfg *sessionConfig) {
		cfg.userAgent = ua
	}
}

// WithBaseURL is used for the configuration request when the client token
// carries no configuration URL.
func WithBaseURL(u string) Option {
	return func(cfg *sessionConfig) {
		cfg.baseURL = u
	}
}

// WithSelector sets the component that picks the payment method and
// collects instrument data.
func WithSelector(s MethodSelector) Option {
	return func(cfg *sessionConfig) {
		cfg.selector = s
	}
}

// WithTokenizationHandler lets the merchant decide how to continue once a
// payment method was tokenized.
func WithTokenizationHandler(h TokenizationHandler) Option {
	return func(cfg *sessionConfig) {
		cfg.tokenizationHandler = h
	}
}

// WithResultHandler receives the terminal outcome of every Begin and Resume.
func WithResultHandler(h ResultHandler) Option {
	return func(cfg *sessionConfig) {
		cfg.resultHandler = h
	}
}

// WithEventCallback appends a lifecycle event observer.
func WithEventCallback(cb EventCallback) Option {
	return func(cfg *sessionConfig) {
		if cb != nil {
			cfg.callbacks = append(cfg.callbacks, cb)
		}
	}
}

// WithPresenter is called when a pending action must be shown to the
// shopper, with the status or redirect URL.
func WithPresenter(p resume.Presenter) Option {
	return func(cfg *sessionConfig) {
		cfg.presenter = p
	}
}

// WithTokenizer installs the tokenizer factory of a payment method type,
// replacing the built-in one.
func WithTokenizer(t PaymentMethodType, f TokenizerFactory) Option {
	return func(cfg *sessionConfig) {
		if cfg.tokenizers == nil {
			cfg.tokenizers = make(map[PaymentMethodType]TokenizerFactory)
		}
		cfg.tokenizers[t] = f
	}
}
