package checkout

import (
	"sync"

	"github.com/sumup/checkout/clienttoken"
)

// Store holds the state of one checkout session. Readers get copies; only
// the session components write to it. Every reset starts a new generation and
// writes carrying an older generation are dropped.
type Store struct {
	mu            sync.RWMutex
	gen           uint64
	clientToken   string
	claims        *clienttoken.Claims
	configuration *SessionConfiguration
	selected      *PaymentMethodType
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// ClientToken returns the raw client token currently held.
func (s *Store) ClientToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientToken
}

// Claims returns a copy of the decoded client token claims, or nil.
func (s *Store) Claims() *clienttoken.Claims {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claims == nil {
		return nil
	}
	c := *s.claims
	return &c
}

// Configuration returns a copy of the session configuration, or nil.
func (s *Store) Configuration() *SessionConfiguration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configuration.Clone()
}

// SelectedMethod returns the selected payment method type.
func (s *Store) SelectedMethod() (PaymentMethodType, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == nil {
		return "", false
	}
	return *s.selected, true
}

// setToken is registered as the client token listener.
func (s *Store) setToken(raw string, claims *clienttoken.Claims) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientToken = raw
	s.claims = claims
}

// generation is captured by writers before they start a round trip.
func (s *Store) generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

func (s *Store) setConfiguration(gen uint64, cfg *SessionConfiguration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	s.configuration = cfg
	return true
}

// replaceAfterActions swaps in the configuration returned by an actions round
// trip together with the new selection.
func (s *Store) replaceAfterActions(gen uint64, cfg *SessionConfiguration, selected *PaymentMethodType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	if cfg != nil {
		s.configuration = cfg
	}
	s.selected = selected
	return true
}

func (s *Store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.clientToken = ""
	s.claims = nil
	s.configuration = nil
	s.selected = nil
}
