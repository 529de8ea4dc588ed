package checkout

import (
	"encoding/json"

	"github.com/oapi-codegen/runtime"
)

// PaymentFlow defines model for TokenizationRequest.PaymentFlow.
type PaymentFlow string

// Defines values for PaymentFlow.
const (
	PaymentFlowVault PaymentFlow = "VAULT"
)

// OffSessionPayment is the instrument type of asynchronous and redirect methods.
const OffSessionPayment = "OFF_SESSION_PAYMENT"

// TokenizationRequest defines model for a tokenization call. It is not
// modified after BuildRequest returned it.
type TokenizationRequest struct {
	PaymentInstrument PaymentInstrument `json:"paymentInstrument"`
	PaymentFlow       *PaymentFlow      `json:"paymentFlow,omitempty"`
}

// CardInstrument defines model for card data.
type CardInstrument struct {
	Number          string `json:"number" validate:"required,numeric,min=12,max=19,luhn_checksum"`
	Cvv             string `json:"cvv" validate:"required,numeric,min=3,max=4"`
	ExpirationMonth string `json:"expirationMonth" validate:"required,numeric,len=2,month"`
	ExpirationYear  string `json:"expirationYear" validate:"required,numeric,len=4"`
	CardholderName  string `json:"cardholderName,omitempty" validate:"omitempty,max=256"`
}

// WalletInstrument defines model for wallet payloads such as Apple Pay or Google Pay.
type WalletInstrument struct {
	PaymentMethodConfigID string            `json:"paymentMethodConfigId"`
	PaymentMethodType     PaymentMethodType `json:"paymentMethodType"`
	Token                 json.RawMessage   `json:"token"`
}

// OffSessionInstrument defines model for asynchronous and redirect methods.
type OffSessionInstrument struct {
	PaymentMethodConfigID string            `json:"paymentMethodConfigId"`
	PaymentMethodType     PaymentMethodType `json:"paymentMethodType"`
	Type                  string            `json:"type"`
	SessionInfo           SessionInfo       `json:"sessionInfo"`
}

// SessionInfo describes the shopper device of an off-session payment.
type SessionInfo struct {
	Locale         string `json:"locale"`
	Platform       string `json:"platform"`
	RedirectionURL string `json:"redirectionUrl,omitempty"`
}

// PaymentInstrument is a union of [CardInstrument], [WalletInstrument] and [OffSessionInstrument].
type PaymentInstrument struct {
	union json.RawMessage
}

// AsCardInstrument returns the union data inside the PaymentInstrument as a CardInstrument
func (t PaymentInstrument) AsCardInstrument() (CardInstrument, error) {
	var body CardInstrument
	err := json.Unmarshal(t.union, &body)
	return body, err
}

// FromCardInstrument overwrites any union data inside the PaymentInstrument as the provided CardInstrument
func (t *PaymentInstrument) FromCardInstrument(v CardInstrument) error {
	b, err := json.Marshal(v)
	t.union = b
	return err
}

// AsWalletInstrument returns the union data inside the PaymentInstrument as a WalletInstrument
func (t PaymentInstrument) AsWalletInstrument() (WalletInstrument, error) {
	var body WalletInstrument
	err := json.Unmarshal(t.union, &body)
	return body, err
}

// FromWalletInstrument overwrites any union data inside the PaymentInstrument as the provided WalletInstrument
func (t *PaymentInstrument) FromWalletInstrument(v WalletInstrument) error {
	b, err := json.Marshal(v)
	t.union = b
	return err
}

// AsOffSessionInstrument returns the union data inside the PaymentInstrument as a OffSessionInstrument
func (t PaymentInstrument) AsOffSessionInstrument() (OffSessionInstrument, error) {
	var body OffSessionInstrument
	err := json.Unmarshal(t.union, &body)
	return body, err
}

// FromOffSessionInstrument overwrites any union data inside the PaymentInstrument as the provided OffSessionInstrument
func (t *PaymentInstrument) FromOffSessionInstrument(v OffSessionInstrument) error {
	b, err := json.Marshal(v)
	t.union = b
	return err
}

// MergeOffSessionInstrument performs a merge with any union data inside the PaymentInstrument, using the provided OffSessionInstrument
func (t *PaymentInstrument) MergeOffSessionInstrument(v OffSessionInstrument) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	merged, err := runtime.JSONMerge(t.union, b)
	t.union = merged
	return err
}

// MarshalJSON serializes the underlying union for PaymentInstrument.
func (t PaymentInstrument) MarshalJSON() ([]byte, error) {
	b, err := t.union.MarshalJSON()
	return b, err
}

// UnmarshalJSON loads union data for PaymentInstrument.
func (t *PaymentInstrument) UnmarshalJSON(b []byte) error {
	err := t.union.UnmarshalJSON(b)
	return err
}

// PaymentMethodToken defines model for the tokenization response.
type PaymentMethodToken struct {
	Token                 string          `json:"token"`
	TokenType             string          `json:"tokenType,omitempty"`
	AnalyticsID           string          `json:"analyticsId,omitempty"`
	PaymentInstrumentType string          `json:"paymentInstrumentType,omitempty"`
	PaymentInstrumentData map[string]any  `json:"paymentInstrumentData,omitempty"`
	RequiredAction        *RequiredAction `json:"requiredAction,omitempty"`
}

// RequiredAction tells the SDK the payment needs another step before it can
// complete. ClientToken, when set, replaces the session token and may carry
// the status URL and intent in its claims.
type RequiredAction struct {
	Name        string  `json:"name"`
	ClientToken *string `json:"clientToken,omitempty"`
	StatusURL   *string `json:"statusUrl,omitempty"`
	RedirectURL *string `json:"redirectUrl,omitempty"`
	Intent      *string `json:"intent,omitempty"`
}
