package checkout

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/sumup/checkout/clienttoken"
)

const configurationPath = "/client-session/configuration"

// ConfigurationService loads the payment method configuration of a session.
type ConfigurationService struct {
	tokens  *clienttoken.Service
	api     *apiClient
	store   *Store
	baseURL string
	logger  *zap.Logger
}

// Fetch loads the configuration and replaces the stored one. On failure the
// stored configuration is left untouched.
func (s *ConfigurationService) Fetch(ctx context.Context) (*SessionConfiguration, error) {
	gen := s.store.generation()
	tok, err := s.tokens.EnsureValid()
	if err != nil {
		return nil, tokenError(err)
	}

	url := tok.Claims.ConfigurationURL
	if url == "" && s.baseURL != "" {
		url = strings.TrimRight(s.baseURL, "/") + configurationPath
	}
	if url == "" {
		return nil, wrap(ErrConfigFetchFailed, errors.New("client token has no configuration URL"))
	}

	var cfg SessionConfiguration
	resp, err := s.api.call(ctx, http.MethodGet, url, tok.Claims.AccessToken, nil, &cfg)
	if err != nil {
		s.logger.Debug("configuration fetch failed", zap.String("url", url), zap.Error(err))
		return nil, backendError(ErrConfigFetchFailed, err, responseBody(resp))
	}
	if cfg.CoreURL == "" {
		cfg.CoreURL = tok.Claims.CoreURL
	}
	if cfg.PCIURL == "" {
		cfg.PCIURL = tok.Claims.PCIURL
	}

	if ctx.Err() != nil || !s.store.setConfiguration(gen, &cfg) {
		s.logger.Debug("dropping configuration of a reset session", zap.String("url", url))
		return nil, wrap(ErrCancelled, errors.New("session was reset while the configuration was loading"))
	}
	s.logger.Debug("configuration loaded", zap.Int("payment_methods", len(cfg.PaymentMethods)))
	return cfg.Clone(), nil
}
