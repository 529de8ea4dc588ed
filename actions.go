package checkout

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sumup/checkout/clienttoken"
)

const actionsPath = "/client-session/actions"

// ActionType defines model for Action.Type. Types other than the constants
// below are relayed to the backend untouched.
type ActionType string

const (
	SelectPaymentMethod   ActionType = "SELECT_PAYMENT_METHOD"
	UnselectPaymentMethod ActionType = "UNSELECT_PAYMENT_METHOD"
	SetSurchargeFee       ActionType = "SET_SURCHARGE_FEE"
)

// Action is a client session mutation. A nil Params is sent as null.
type Action struct {
	Type   ActionType     `json:"type"`
	Params map[string]any `json:"params"`
}

// NewSelectPaymentMethodAction selects t. network is the card network hint
// and is omitted when empty.
func NewSelectPaymentMethodAction(t PaymentMethodType, network string) Action {
	params := map[string]any{"paymentMethodType": string(t)}
	if network != "" {
		params["binData"] = map[string]any{"network": network}
	}
	return Action{Type: SelectPaymentMethod, Params: params}
}

// NewUnselectPaymentMethodAction clears the selected payment method.
func NewUnselectPaymentMethodAction() Action {
	return Action{Type: UnselectPaymentMethod}
}

// NewSetSurchargeFeeAction sets the surcharge in minor units.
func NewSetSurchargeFeeAction(amount int64) Action {
	return Action{Type: SetSurchargeFee, Params: map[string]any{"surcharge": amount}}
}

type actionsRequest struct {
	Actions actionsList `json:"actions"`
}

type actionsList struct {
	Actions []Action `json:"actions"`
}

// ActionsDispatcher sends client session actions. Round trips are serialized:
// one always completes before the next starts.
type ActionsDispatcher struct {
	mu     sync.Mutex
	tokens *clienttoken.Service
	api    *apiClient
	store  *Store
	events *emitter
	logger *zap.Logger
}

// SelectMethod selects t on the backend. When another method is selected, an
// unselect action is sent first in the same request. Sessions with a vault
// intent carry no selection, so nothing is sent for them.
func (d *ActionsDispatcher) SelectMethod(ctx context.Context, t PaymentMethodType, network string) (*SessionConfiguration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tok, err := d.tokens.EnsureValid()
	if err != nil {
		return nil, tokenError(err)
	}
	if tok.Claims.IntentValue() == clienttoken.IntentVault {
		return d.store.Configuration(), nil
	}

	var actions []Action
	if current, ok := d.store.SelectedMethod(); ok && current != t {
		actions = append(actions, NewUnselectPaymentMethodAction())
	}
	actions = append(actions, NewSelectPaymentMethodAction(t, network))
	selected := t
	return d.roundTrip(ctx, tok, actions, &selected, t)
}

// Unselect clears the selected payment method.
func (d *ActionsDispatcher) Unselect(ctx context.Context) (*SessionConfiguration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tok, err := d.tokens.EnsureValid()
	if err != nil {
		return nil, tokenError(err)
	}
	if tok.Claims.IntentValue() == clienttoken.IntentVault {
		return d.store.Configuration(), nil
	}
	current, _ := d.store.SelectedMethod()
	return d.roundTrip(ctx, tok, []Action{NewUnselectPaymentMethodAction()}, nil, current)
}

// Dispatch relays arbitrary actions in order.
func (d *ActionsDispatcher) Dispatch(ctx context.Context, actions []Action) (*SessionConfiguration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tok, err := d.tokens.EnsureValid()
	if err != nil {
		return nil, tokenError(err)
	}
	if len(actions) == 0 {
		return d.store.Configuration(), nil
	}

	var selected *PaymentMethodType
	if current, ok := d.store.SelectedMethod(); ok {
		selected = &current
	}
	for _, a := range actions {
		switch a.Type {
		case SelectPaymentMethod:
			if v, ok := a.Params["paymentMethodType"]; ok {
				t := PaymentMethodType(anyString(v))
				selected = &t
			}
		case UnselectPaymentMethod:
			selected = nil
		}
	}
	var method PaymentMethodType
	if selected != nil {
		method = *selected
	}
	return d.roundTrip(ctx, tok, actions, selected, method)
}

func (d *ActionsDispatcher) roundTrip(ctx context.Context, tok clienttoken.Token, actions []Action, selected *PaymentMethodType, method PaymentMethodType) (*SessionConfiguration, error) {
	gen := d.store.generation()
	previous := d.store.Configuration()
	coreURL := tok.Claims.CoreURL
	if previous != nil && previous.CoreURL != "" {
		coreURL = previous.CoreURL
	}
	if coreURL == "" {
		return nil, wrap(ErrActionDispatchFailed, errors.New("no core URL available"))
	}

	d.events.emit(Event{Type: EventClientSessionWillUpdate, Actions: actions, PaymentMethod: method})

	var cfg SessionConfiguration
	url := strings.TrimRight(coreURL, "/") + actionsPath
	resp, err := d.api.call(ctx, http.MethodPost, url, tok.Claims.AccessToken, actionsRequest{Actions: actionsList{Actions: actions}}, &cfg)
	if err != nil {
		d.logger.Debug("client session actions failed", zap.Int("actions", len(actions)), zap.Error(err))
		return nil, backendError(ErrActionDispatchFailed, err, responseBody(resp))
	}
	if previous != nil {
		if cfg.CoreURL == "" {
			cfg.CoreURL = previous.CoreURL
		}
		if cfg.PCIURL == "" {
			cfg.PCIURL = previous.PCIURL
		}
	}

	if ctx.Err() != nil || !d.store.replaceAfterActions(gen, &cfg, selected) {
		d.logger.Debug("dropping client session update of a reset session", zap.Int("actions", len(actions)))
		return nil, wrap(ErrCancelled, errors.New("session was reset while actions were in flight"))
	}
	out := cfg.Clone()
	d.events.emit(Event{Type: EventClientSessionDidUpdate, Actions: actions, PaymentMethod: method, Configuration: out})
	return out, nil
}

func anyString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case PaymentMethodType:
		return string(s)
	default:
		return ""
	}
}
