package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sumup/checkout/clienttoken"
	"github.com/sumup/checkout/config"
	"github.com/sumup/checkout/resume"
	"github.com/sumup/checkout/transport"
)

const tracerName = "github.com/sumup/checkout"

// FlowState is the position of a session in its lifecycle.
type FlowState string

const (
	StateIdle                 FlowState = "idle"
	StateLoadingConfiguration FlowState = "loading_configuration"
	StateAwaitingSelection    FlowState = "awaiting_selection"
	StateDispatching          FlowState = "dispatching"
	StateTokenizing           FlowState = "tokenizing"
	StateResuming             FlowState = "resuming"
	StateCompleted            FlowState = "completed"
	StateFailed               FlowState = "failed"
	StateCancelled            FlowState = "cancelled"
	StateDismissed            FlowState = "dismissed"
)

// Selection is the shopper's choice returned by a [MethodSelector].
type Selection struct {
	Type PaymentMethodType
	// Network is the card network hint sent with the select action.
	Network string
	// Card holds card data for [PaymentCard].
	Card *CardInstrument
	// Wallet is the opaque payload of a platform wallet.
	Wallet json.RawMessage
	// ReturnURL is where redirect methods send the shopper back to.
	ReturnURL string
}

// MethodSelector picks the payment method once the configuration is loaded.
// It typically blocks on shopper input.
type MethodSelector interface {
	SelectMethod(ctx context.Context, cfg *SessionConfiguration) (Selection, error)
}

// MethodSelectorFunc lifts bare functions into [MethodSelector].
type MethodSelectorFunc func(ctx context.Context, cfg *SessionConfiguration) (Selection, error)

func (f MethodSelectorFunc) SelectMethod(ctx context.Context, cfg *SessionConfiguration) (Selection, error) {
	return f(ctx, cfg)
}

// DecisionType is the merchant's answer to a tokenized payment method.
type DecisionType string

const (
	DecisionSucceed  DecisionType = "succeed"
	DecisionFail     DecisionType = "fail"
	DecisionContinue DecisionType = "continue_with_new_client_token"
)

// Decision is returned by a [TokenizationHandler].
type Decision struct {
	Type        DecisionType
	Message     string
	ClientToken string
}

// Succeed completes the session with the token.
func Succeed() Decision { return Decision{Type: DecisionSucceed} }

// Fail ends the session with message.
func Fail(message string) Decision { return Decision{Type: DecisionFail, Message: message} }

// ContinueWithClientToken resumes the payment with a token issued by the
// merchant backend, usually after it created the payment.
func ContinueWithClientToken(clientToken string) Decision {
	return Decision{Type: DecisionContinue, ClientToken: clientToken}
}

// TokenizationHandler is called with every payment method token.
type TokenizationHandler func(ctx context.Context, token *PaymentMethodToken) (Decision, error)

// Result is the terminal outcome of a successful Begin or Resume.
type Result struct {
	SessionID     string
	Flow          Flow
	PaymentMethod PaymentMethodType
	Token         *PaymentMethodToken
	// PaymentID is set when the payment completed through a resume attempt.
	PaymentID string
}

// ResultHandler receives every terminal outcome. Exactly one of result and
// err is non-nil.
type ResultHandler func(result *Result, err error)

// ResumeData carries the refreshed client token of a resumed payment.
type ResumeData struct {
	ClientToken string
}

// Session orchestrates one checkout: client token, configuration, method
// selection, tokenization and resume. Begin and Resume block until the
// outcome is known; a new call cancels the previous one.
type Session struct {
	cfg           sessionConfig
	logger        *zap.Logger
	tracer        trace.Tracer
	tokens        *clienttoken.Service
	store         *Store
	api           *apiClient
	configuration *ConfigurationService
	actions       *ActionsDispatcher
	tokenization  *TokenizationService
	registry      *Registry
	engine        *resume.Engine
	events        *emitter

	mu         sync.Mutex
	id         string
	state      FlowState
	generation uint64
	cancelRun  context.CancelFunc
	attempt    *resume.Attempt
	dismissed  bool
}

// NewSession wires the session components.
func NewSession(opts ...Option) *Session {
	cfg := sessionConfig{
		logger:      zap.L(),
		clock:       time.Now,
		retryCount:  -1,
		apiVersion:  config.DefaultAPIVersion,
		locale:      "en-US",
		platform:    defaultPlatform,
		maxPollWait: resume.DefaultMaxWait,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	s := &Session{
		cfg:    cfg,
		logger: cfg.logger.Named("checkout"),
		store:  NewStore(),
		state:  StateIdle,
		id:     uuid.NewString(),
	}
	tp := cfg.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	s.tracer = tp.Tracer(tracerName)
	s.events = &emitter{sessionID: s.ID, clock: cfg.clock, callbacks: cfg.callbacks}
	s.tokens = clienttoken.NewService(
		clienttoken.WithClock(cfg.clock),
		clienttoken.WithListener(s.store.setToken),
	)

	doer := cfg.doer
	if doer == nil {
		topts := []transport.Option{transport.WithLogger(s.logger), transport.WithSigner(cfg.signer)}
		if cfg.httpTimeout > 0 {
			topts = append(topts, transport.WithTimeout(cfg.httpTimeout))
		}
		if cfg.retryCount >= 0 {
			topts = append(topts, transport.WithRetryCount(cfg.retryCount))
		}
		doer = transport.New(topts...)
	}
	s.api = &apiClient{
		doer: doer,
		defaults: RequestContext{
			AcceptLanguage: cfg.locale,
			UserAgent:      cfg.userAgent,
			APIVersion:     cfg.apiVersion,
		},
		logger: s.logger,
	}

	s.configuration = &ConfigurationService{tokens: s.tokens, api: s.api, store: s.store, baseURL: cfg.baseURL, logger: s.logger}
	s.actions = &ActionsDispatcher{tokens: s.tokens, api: s.api, store: s.store, events: s.events, logger: s.logger}
	s.tokenization = &TokenizationService{tokens: s.tokens, api: s.api, store: s.store, events: s.events, logger: s.logger}

	s.registry = NewRegistry()
	for t, f := range cfg.tokenizers {
		s.registry.Register(t, f)
	}

	s.engine = resume.NewEngine(resume.StatusFetcherFunc(s.fetchStatus), resume.Config{
		PendingInterval:        cfg.pendingInterval,
		ConnectionLostInterval: cfg.connectionLostInterval,
		MaxWait:                cfg.maxPollWait,
		IsConnectionLost:       transport.IsConnectionLost,
		Clock:                  cfg.clock,
		Scheduler:              cfg.scheduler,
		Logger:                 s.logger,
		Presenter: func(ctx context.Context, target string) {
			s.events.emit(Event{Type: EventWillPresent, Target: target})
			if cfg.presenter != nil {
				cfg.presenter(ctx, target)
			}
		},
	})
	return s
}

// ID returns the identifier of the current checkout. It changes on every Begin.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// State returns the current flow state.
func (s *Session) State() FlowState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Store exposes the session state for reading.
func (s *Session) Store() *Store {
	return s.store
}

// Actions exposes the client session actions dispatcher.
func (s *Session) Actions() *ActionsDispatcher {
	return s.actions
}

// Dispatch relays client session actions, for example a surcharge update.
func (s *Session) Dispatch(ctx context.Context, actions []Action) (*SessionConfiguration, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Dispatch", trace.WithAttributes(attribute.Int("checkout.actions", len(actions))))
	defer span.End()

	cfg, err := s.actions.Dispatch(ctx, actions)
	recordSpanError(span, err)
	return cfg, err
}

// Begin runs a checkout with clientToken until it completes, fails or is
// cancelled. Any checkout already in progress is cancelled first.
func (s *Session) Begin(ctx context.Context, clientToken string) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Begin")
	defer span.End()

	runCtx, gen := s.startRun(ctx, true)
	defer s.endRun(gen)

	result, err := s.begin(runCtx, gen, clientToken)
	span.SetAttributes(attribute.String("checkout.session_id", s.ID()))
	return s.deliver(runCtx, gen, span, result, err)
}

// Resume continues a payment with a refreshed client token whose claims
// carry a status URL and an intent.
func (s *Session) Resume(ctx context.Context, data ResumeData) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Resume")
	defer span.End()

	runCtx, gen := s.startRun(ctx, false)
	defer s.endRun(gen)

	result, err := s.resume(runCtx, gen, data)
	return s.deliver(runCtx, gen, span, result, err)
}

// Cancel stops the checkout in progress. Its Begin or Resume call returns
// [ErrCancelled].
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel, attempt := s.cancelRun, s.attempt
	s.mu.Unlock()

	if attempt != nil {
		attempt.Cancel()
	}
	if cancel != nil {
		cancel()
	}
}

// Dismiss cancels any work in progress and releases the client token and
// session state. Calling it again has no effect.
func (s *Session) Dismiss() {
	s.mu.Lock()
	if s.dismissed {
		s.mu.Unlock()
		return
	}
	s.dismissed = true
	s.generation++
	cancel, attempt := s.cancelRun, s.attempt
	s.cancelRun, s.attempt = nil, nil
	prev := s.state
	s.state = StateDismissed
	s.mu.Unlock()

	if attempt != nil {
		attempt.Cancel()
	}
	if cancel != nil {
		cancel()
	}
	s.tokens.Reset()
	s.store.reset()
	s.logger.Debug("session dismissed")
	s.events.emit(Event{Type: EventStateChanged, State: StateDismissed, Previous: prev})
}

// HandleReturnURL completes a checkout waiting for the shopper to return from
// a redirect. The URL must carry a paymentId or resumeToken query parameter,
// or an error parameter to fail the payment. It reports whether a waiting
// checkout consumed the URL.
func (s *Session) HandleReturnURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	s.mu.Lock()
	attempt := s.attempt
	s.mu.Unlock()
	if attempt == nil || attempt.State() != resume.StateWaiting {
		return false
	}

	q := u.Query()
	if msg := q.Get("error"); msg != "" {
		return attempt.Fail(errors.New(msg))
	}
	for _, key := range []string{"paymentId", "resumeToken"} {
		if id := q.Get(key); id != "" {
			return attempt.Complete(id)
		}
	}
	return false
}

func (s *Session) begin(ctx context.Context, gen uint64, clientToken string) (*Result, error) {
	s.setState(gen, StateLoadingConfiguration)

	s.store.reset()
	if err := s.tokens.Store(clientToken); err != nil {
		return nil, tokenError(err)
	}
	tok, err := s.tokens.EnsureValid()
	if err != nil {
		return nil, tokenError(err)
	}
	if _, err := s.configuration.Fetch(ctx); err != nil {
		return nil, err
	}
	cfg := s.store.Configuration()
	if cfg != nil && cfg.ClientSession != nil && cfg.ClientSession.Order != nil {
		s.logger.Debug("configuration ready",
			zap.String("total", cfg.ClientSession.Order.FormattedTotal()),
			zap.Int("payment_methods", len(cfg.PaymentMethods)))
	}

	s.setState(gen, StateAwaitingSelection)
	if s.cfg.selector == nil {
		return nil, newError(InvalidRequest, UnsupportedPaymentMethod, "no payment method selector configured")
	}
	sel, err := s.cfg.selector.SelectMethod(ctx, cfg)
	if err != nil {
		var cerr *Error
		if errors.As(err, &cerr) {
			return nil, err
		}
		return nil, wrap(ErrCancelled, err)
	}

	intent := tok.Claims.IntentValue()
	if intent == "" {
		intent = clienttoken.IntentCheckout
	}
	flow, err := ResolveFlow(sel.Type, intent)
	if err != nil {
		return nil, err
	}
	factory, ok := s.registry.Lookup(sel.Type)
	if !ok {
		return nil, newError(InvalidRequest, UnsupportedPaymentMethod, "no tokenizer for "+string(sel.Type))
	}

	s.setState(gen, StateDispatching)
	if _, err := s.actions.SelectMethod(ctx, sel.Type, sel.Network); err != nil {
		return nil, err
	}

	s.setState(gen, StateTokenizing)
	tokenizer := factory(TokenizerInput{
		Method:        sel.Type,
		Selection:     sel,
		Intent:        intent,
		Configuration: s.store.Configuration(),
		Locale:        s.cfg.locale,
		Platform:      s.cfg.platform,
		Tokens:        s.tokens,
		Submit:        s.tokenization.Submit,
	})
	token, err := s.tokenization.tokenize(ctx, sel.Type, tokenizer)
	if err != nil {
		return nil, err
	}

	result := &Result{SessionID: s.ID(), Flow: flow, PaymentMethod: sel.Type, Token: token}
	action := token.RequiredAction
	if h := s.cfg.tokenizationHandler; h != nil {
		decision, err := h(ctx, token)
		if err != nil {
			return nil, wrap(ErrTokenizationFailed, err)
		}
		switch decision.Type {
		case DecisionFail:
			return nil, newError(ProcessingError, TokenizationFailed, decisionMessage(decision.Message))
		case DecisionContinue:
			clientToken := decision.ClientToken
			action = &RequiredAction{Name: "CONTINUE", ClientToken: &clientToken}
		}
	}
	if action == nil {
		if tokenizer.Kind() == Async {
			return nil, wrap(ErrTokenizationFailed, fmt.Errorf("%s token carries no required action", sel.Type))
		}
		return result, nil
	}

	s.setState(gen, StateResuming)
	id, err := s.resolveAction(ctx, gen, action)
	if err != nil {
		return nil, err
	}
	result.PaymentID = id
	return result, nil
}

// resolveAction polls the status URL when the action (or the token it
// carries) names one together with an intent, and otherwise waits for the
// shopper to come back from the redirect URL.
func (s *Session) resolveAction(ctx context.Context, gen uint64, action *RequiredAction) (string, error) {
	if action.ClientToken != nil {
		if err := s.tokens.Store(*action.ClientToken); err != nil {
			return "", tokenError(err)
		}
		if _, err := s.tokens.EnsureValid(); err != nil {
			return "", tokenError(err)
		}
	}
	claims := s.store.Claims()
	statusURL := firstNonEmpty(deref(action.StatusURL), claimString(claims, func(c *clienttoken.Claims) string { return c.StatusURL }))
	intent := firstNonEmpty(deref(action.Intent), claimString(claims, func(c *clienttoken.Claims) string { return string(c.IntentValue()) }))
	redirectURL := firstNonEmpty(deref(action.RedirectURL), claimString(claims, func(c *clienttoken.Claims) string { return c.RedirectURL }))

	switch {
	case statusURL != "" && intent != "":
		return s.runAttempt(gen, s.engine.Start(ctx, statusURL, nil))
	case redirectURL != "":
		return s.runAttempt(gen, s.engine.StartCallback(ctx, redirectURL, nil))
	default:
		return "", wrap(ErrInvalidToken, errors.New("required action carries no status or redirect URL"))
	}
}

func (s *Session) resume(ctx context.Context, gen uint64, data ResumeData) (*Result, error) {
	s.setState(gen, StateResuming)

	if err := s.tokens.Store(data.ClientToken); err != nil {
		return nil, tokenError(err)
	}
	tok, err := s.tokens.EnsureValid()
	if err != nil {
		return nil, tokenError(err)
	}
	if tok.Claims.StatusURL == "" || tok.Claims.Intent == nil {
		return nil, wrap(ErrInvalidToken, errors.New("client token carries no status URL or intent"))
	}

	id, err := s.runAttempt(gen, s.engine.Start(ctx, tok.Claims.StatusURL, nil))
	if err != nil {
		return nil, err
	}
	return &Result{SessionID: s.ID(), PaymentID: id}, nil
}

// runAttempt registers attempt as the session's live attempt and waits for it.
func (s *Session) runAttempt(gen uint64, attempt *resume.Attempt) (string, error) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		attempt.Cancel()
	} else {
		s.attempt = attempt
		s.mu.Unlock()
	}

	id, err := attempt.Wait()

	s.mu.Lock()
	if s.attempt == attempt {
		s.attempt = nil
	}
	s.mu.Unlock()
	if err != nil {
		return "", resumeError(err)
	}
	return id, nil
}

func (s *Session) fetchStatus(ctx context.Context, statusURL string) (*resume.PollResponse, error) {
	var accessToken string
	if claims := s.store.Claims(); claims != nil {
		accessToken = claims.AccessToken
	}
	var out resume.PollResponse
	if _, err := s.api.call(ctx, http.MethodGet, statusURL, accessToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// startRun supersedes any run in progress and returns the context of the new one.
func (s *Session) startRun(ctx context.Context, newCheckout bool) (context.Context, uint64) {
	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	prevCancel, prevAttempt := s.cancelRun, s.attempt
	s.generation++
	gen := s.generation
	s.cancelRun = cancel
	s.attempt = nil
	s.dismissed = false
	if newCheckout {
		s.id = uuid.NewString()
	}
	s.mu.Unlock()

	if prevAttempt != nil {
		prevAttempt.Cancel()
	}
	if prevCancel != nil {
		prevCancel()
	}
	return runCtx, gen
}

func (s *Session) endRun(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	if s.cancelRun != nil {
		s.cancelRun()
	}
	s.cancelRun = nil
	s.attempt = nil
}

// deliver settles the final state and hands the outcome to the result handler.
func (s *Session) deliver(ctx context.Context, gen uint64, span trace.Span, result *Result, err error) (*Result, error) {
	if err != nil && ctx.Err() != nil && !errors.Is(err, ErrCancelled) {
		err = wrap(ErrCancelled, err)
	}

	state := StateCompleted
	switch {
	case errors.Is(err, ErrCancelled):
		state = StateCancelled
	case err != nil:
		state = StateFailed
	}
	s.setState(gen, state)

	if err != nil {
		s.logger.Debug("checkout ended", zap.String("state", string(state)), zap.Error(err))
		recordSpanError(span, err)
		result = nil
	} else if result.PaymentID != "" {
		span.SetAttributes(attribute.String("checkout.payment_id", result.PaymentID))
	}
	if h := s.cfg.resultHandler; h != nil {
		h(result, err)
	}
	return result, err
}

func (s *Session) setState(gen uint64, state FlowState) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = state
	s.mu.Unlock()

	if prev == state {
		return
	}
	s.logger.Debug("state changed", zap.String("from", string(prev)), zap.String("to", string(state)))
	s.events.emit(Event{Type: EventStateChanged, State: state, Previous: prev})
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func decisionMessage(msg string) string {
	if msg == "" {
		return "payment declined by merchant"
	}
	return msg
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func claimString(c *clienttoken.Claims, get func(*clienttoken.Claims) string) string {
	if c == nil {
		return ""
	}
	return get(c)
}
