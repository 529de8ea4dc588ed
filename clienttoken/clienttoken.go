// Package clienttoken decodes and holds the client token that authorizes a
// checkout session. The token is a compact JWS issued by the merchant backend;
// the SDK reads its claims without verifying the signature.
package clienttoken

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

var (
	// ErrInvalidToken is returned when no token is held or it cannot be decoded.
	ErrInvalidToken = errors.New("clienttoken: invalid client token")
	// ErrExpiredToken is returned when the held token is outside its validity window.
	ErrExpiredToken = errors.New("clienttoken: expired client token")
)

// Intent is the purpose a client token was issued for.
type Intent string

const (
	IntentCheckout Intent = "CHECKOUT"
	IntentVault    Intent = "VAULT"
)

// Claims are the fields the SDK reads from a client token.
type Claims struct {
	AccessToken      string  `json:"accessToken,omitempty"`
	ConfigurationURL string  `json:"configurationUrl,omitempty"`
	CoreURL          string  `json:"coreUrl,omitempty"`
	PCIURL           string  `json:"pciUrl,omitempty"`
	Env              string  `json:"env,omitempty"`
	Intent           *Intent `json:"intent,omitempty"`
	StatusURL        string  `json:"statusUrl,omitempty"`
	RedirectURL      string  `json:"redirectUrl,omitempty"`

	Registered jwt.Claims `json:"-"`
}

// IntentValue returns the intent or the empty string.
func (c *Claims) IntentValue() Intent {
	if c == nil || c.Intent == nil {
		return ""
	}
	return *c.Intent
}

// Expiry returns the exp claim.
func (c *Claims) Expiry() time.Time {
	if c == nil || c.Registered.Expiry == nil {
		return time.Time{}
	}
	return c.Registered.Expiry.Time()
}

// Decode parses raw without touching the network. Every failure is reported
// as [ErrInvalidToken].
func Decode(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	tok, err := jwt.ParseSigned(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	var claims Claims
	if err := tok.UnsafeClaimsWithoutVerification(&claims, &claims.Registered); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing accessToken", ErrInvalidToken)
	}
	if claims.Registered.Expiry == nil {
		return nil, fmt.Errorf("%w: missing exp", ErrInvalidToken)
	}
	return &claims, nil
}

// Sign encodes claims as an HS256 compact JWS. It is meant for backends and
// tests that mint client tokens.
func Sign(claims *Claims, key []byte) (string, error) {
	if claims == nil {
		return "", errors.New("clienttoken: nil claims")
	}
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("clienttoken: create signer: %w", err)
	}
	return jwt.Signed(signer).Claims(claims).Claims(claims.Registered).CompactSerialize()
}

// Token is a raw client token and its decoded claims.
type Token struct {
	Raw    string
	Claims *Claims
}

// Listener observes every change of the held token. claims is nil when the
// token was reset or could not be decoded.
type Listener func(raw string, claims *Claims)

// Service holds the current client token.
type Service struct {
	mu       sync.RWMutex
	raw      string
	claims   *Claims
	clock    func() time.Time
	listener Listener
}

// Option configures a [Service].
type Option func(*Service)

// WithClock overrides the clock used for validity checks.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.clock = fn
		}
	}
}

// WithListener registers the token change observer.
func WithListener(l Listener) Option {
	return func(s *Service) {
		s.listener = l
	}
}

// NewService returns an empty token holder.
func NewService(opts ...Option) *Service {
	s := &Service{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Store replaces the held token. The raw value is kept even when decoding
// fails so [Service.EnsureValid] reports it.
func (s *Service) Store(raw string) error {
	claims, err := Decode(raw)

	s.mu.Lock()
	s.raw = raw
	s.claims = claims
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		listener(raw, claims)
	}
	return err
}

// Reset clears the held token.
func (s *Service) Reset() {
	s.mu.Lock()
	s.raw = ""
	s.claims = nil
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		listener("", nil)
	}
}

// Current returns the held token without validation.
func (s *Service) Current() (Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.raw == "" {
		return Token{}, false
	}
	return Token{Raw: s.raw, Claims: s.claims}, true
}

// EnsureValid returns the held token if it is decodable and inside its
// validity window.
func (s *Service) EnsureValid() (Token, error) {
	s.mu.RLock()
	raw, claims := s.raw, s.claims
	s.mu.RUnlock()

	if raw == "" {
		return Token{}, fmt.Errorf("%w: no token", ErrInvalidToken)
	}
	if claims == nil {
		if _, err := Decode(raw); err != nil {
			return Token{}, err
		}
		return Token{}, ErrInvalidToken
	}
	now := s.clock()
	if !now.Before(claims.Registered.Expiry.Time()) {
		return Token{}, ErrExpiredToken
	}
	if nbf := claims.Registered.NotBefore; nbf != nil && now.Before(nbf.Time()) {
		return Token{}, ErrExpiredToken
	}
	return Token{Raw: raw, Claims: claims}, nil
}
