package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sumup/checkout/clienttoken"
)

const paymentInstrumentsPath = "/payment-instruments"

// TokenizerKind tells the session how a tokenizer's result completes.
type TokenizerKind string

const (
	// Direct tokenizers return a final token, unless the backend asks for
	// an additional action such as 3DS.
	Direct TokenizerKind = "direct"
	// Async tokenizers always end with a required action that is resumed
	// by polling or by a return URL.
	Async TokenizerKind = "async"
)

// Tokenizer turns collected instrument data into a payment method token.
// Validate must not touch the network. BuildRequest is only called after a
// successful Validate.
type Tokenizer interface {
	Kind() TokenizerKind
	Validate() error
	BuildRequest() (TokenizationRequest, error)
	Submit(ctx context.Context, req TokenizationRequest) (*PaymentMethodToken, error)
}

// TokenValidator yields the current client token if it is usable.
type TokenValidator interface {
	EnsureValid() (clienttoken.Token, error)
}

// SubmitFunc sends a tokenization request to the backend.
type SubmitFunc func(ctx context.Context, req TokenizationRequest) (*PaymentMethodToken, error)

// TokenizerInput is everything a [TokenizerFactory] may use.
type TokenizerInput struct {
	Method        PaymentMethodType
	Selection     Selection
	Intent        clienttoken.Intent
	Configuration *SessionConfiguration
	Locale        string
	Platform      string
	Tokens        TokenValidator
	Submit        SubmitFunc
}

// TokenizerFactory builds the tokenizer of one payment method type.
type TokenizerFactory func(in TokenizerInput) Tokenizer

// Registry maps payment method types to tokenizer factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[PaymentMethodType]TokenizerFactory
}

// NewRegistry returns a registry with the built-in tokenizers.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[PaymentMethodType]TokenizerFactory)}
	r.Register(PaymentCard, NewCardTokenizer)
	r.Register(ApplePay, NewWalletTokenizer)
	r.Register(GooglePay, NewWalletTokenizer)
	for _, t := range asyncMethods {
		r.Register(t, NewAsyncTokenizer)
	}
	return r
}

// Register installs f for t, replacing any previous factory.
func (r *Registry) Register(t PaymentMethodType, f TokenizerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f == nil {
		delete(r.factories, t)
		return
	}
	r.factories[t] = f
}

// Lookup returns the factory registered for t.
func (r *Registry) Lookup(t PaymentMethodType) (TokenizerFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[t]
	return f, ok
}

// TokenizationService submits tokenization requests to the PCI endpoint.
type TokenizationService struct {
	tokens *clienttoken.Service
	api    *apiClient
	store  *Store
	events *emitter
	logger *zap.Logger
}

// Submit posts req to <pciUrl>/payment-instruments. Failures are reported as
// [ErrTokenizationFailed] and never retried here.
func (s *TokenizationService) Submit(ctx context.Context, req TokenizationRequest) (*PaymentMethodToken, error) {
	tok, err := s.tokens.EnsureValid()
	if err != nil {
		return nil, tokenError(err)
	}
	pciURL := tok.Claims.PCIURL
	if cfg := s.store.Configuration(); cfg != nil && cfg.PCIURL != "" {
		pciURL = cfg.PCIURL
	}
	if pciURL == "" {
		return nil, wrap(ErrTokenizationFailed, errors.New("no PCI URL available"))
	}

	var out PaymentMethodToken
	url := strings.TrimRight(pciURL, "/") + paymentInstrumentsPath
	resp, err := s.api.call(ctx, http.MethodPost, url, tok.Claims.AccessToken, req, &out)
	if err != nil {
		s.logger.Debug("tokenization failed", zap.Error(err))
		return nil, backendError(ErrTokenizationFailed, err, responseBody(resp))
	}
	if out.Token == "" {
		return nil, wrap(ErrTokenizationFailed, errors.New("response carries no token"))
	}
	return &out, nil
}

// tokenize runs the validate, build and submit steps of t.
func (s *TokenizationService) tokenize(ctx context.Context, method PaymentMethodType, t Tokenizer) (*PaymentMethodToken, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	req, err := t.BuildRequest()
	if err != nil {
		var cerr *Error
		if errors.As(err, &cerr) {
			return nil, err
		}
		return nil, NewValidationError(InvalidField, fmt.Sprintf("build tokenization request: %v", err), WithCause(err))
	}
	token, err := t.Submit(ctx, req)
	if err != nil {
		var cerr *Error
		if errors.As(err, &cerr) {
			return nil, err
		}
		return nil, wrap(ErrTokenizationFailed, err)
	}
	if token == nil {
		return nil, wrap(ErrTokenizationFailed, errors.New("tokenizer returned no token"))
	}
	s.events.emit(Event{Type: EventTokenized, PaymentMethod: method})
	return token, nil
}
