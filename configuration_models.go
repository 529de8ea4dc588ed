package checkout

import (
	"encoding/json"

	"github.com/oapi-codegen/runtime"
)

// PaymentMethodType identifies a payment method in the backend configuration.
type PaymentMethodType string

// Defines values for PaymentMethodType.
const (
	PaymentCard        PaymentMethodType = "PAYMENT_CARD"
	ApplePay           PaymentMethodType = "APPLE_PAY"
	GooglePay          PaymentMethodType = "GOOGLE_PAY"
	PayPal             PaymentMethodType = "PAYPAL"
	Klarna             PaymentMethodType = "KLARNA"
	Apaya              PaymentMethodType = "APAYA"
	AdyenAlipay        PaymentMethodType = "ADYEN_ALIPAY"
	AdyenBlik          PaymentMethodType = "ADYEN_BLIK"
	AdyenDotPay        PaymentMethodType = "ADYEN_DOTPAY"
	AdyenGiropay       PaymentMethodType = "ADYEN_GIROPAY"
	AdyenIDeal         PaymentMethodType = "ADYEN_IDEAL"
	AdyenInterac       PaymentMethodType = "ADYEN_INTERAC"
	AdyenMobilePay     PaymentMethodType = "ADYEN_MOBILEPAY"
	AdyenPayshop       PaymentMethodType = "ADYEN_PAYSHOP"
	AdyenPayTrail      PaymentMethodType = "ADYEN_PAYTRAIL"
	AdyenSofort        PaymentMethodType = "ADYEN_SOFORT"
	AdyenTrustly       PaymentMethodType = "ADYEN_TRUSTLY"
	AdyenTwint         PaymentMethodType = "ADYEN_TWINT"
	AdyenVipps         PaymentMethodType = "ADYEN_VIPPS"
	Atome              PaymentMethodType = "ATOME"
	BuckarooBancontact PaymentMethodType = "BUCKAROO_BANCONTACT"
	BuckarooEps        PaymentMethodType = "BUCKAROO_EPS"
	BuckarooGiropay    PaymentMethodType = "BUCKAROO_GIROPAY"
	BuckarooIdeal      PaymentMethodType = "BUCKAROO_IDEAL"
	BuckarooSofort     PaymentMethodType = "BUCKAROO_SOFORT"
	Coinbase           PaymentMethodType = "COINBASE"
	Hoolah             PaymentMethodType = "HOOLAH"
	MollieBancontact   PaymentMethodType = "MOLLIE_BANCONTACT"
	MollieIdeal        PaymentMethodType = "MOLLIE_IDEAL"
	OpenNode           PaymentMethodType = "OPENNODE"
	PayNLBancontact    PaymentMethodType = "PAY_NL_BANCONTACT"
	PayNLGiropay       PaymentMethodType = "PAY_NL_GIROPAY"
	PayNLPayconiq      PaymentMethodType = "PAY_NL_PAYCONIQ"
	TwoCtwoP           PaymentMethodType = "TWOC2P"
	XfersPayNow        PaymentMethodType = "XFERS_PAYNOW"
)

// SessionConfiguration is the remote configuration of a checkout session.
type SessionConfiguration struct {
	// CoreURL is the base URL of the client session API.
	CoreURL string `json:"coreUrl"`
	// PCIURL is the base URL of the tokenization API.
	PCIURL         string                `json:"pciUrl"`
	ClientSession  *ClientSession        `json:"clientSession,omitempty"`
	PaymentMethods []PaymentMethodConfig `json:"paymentMethods"`
}

// ConfigID returns the configuration id of the first method of type t.
func (c *SessionConfiguration) ConfigID(t PaymentMethodType) (string, bool) {
	if m := c.Method(t); m != nil && m.ID != nil && *m.ID != "" {
		return *m.ID, true
	}
	return "", false
}

// Method returns the first configured method of type t.
func (c *SessionConfiguration) Method(t PaymentMethodType) *PaymentMethodConfig {
	if c == nil {
		return nil
	}
	for i := range c.PaymentMethods {
		if c.PaymentMethods[i].Type == t {
			return &c.PaymentMethods[i]
		}
	}
	return nil
}

// Clone returns a deep copy.
func (c *SessionConfiguration) Clone() *SessionConfiguration {
	if c == nil {
		return nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil
	}
	var out SessionConfiguration
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return &out
}

// ClientSession is the merchant-side session state echoed by the backend.
type ClientSession struct {
	ClientSessionID string                `json:"clientSessionId"`
	Order           *Order                `json:"order,omitempty"`
	Customer        *Customer             `json:"customer,omitempty"`
	PaymentMethod   *ClientSessionPayment `json:"paymentMethod,omitempty"`
	Metadata        map[string]any        `json:"metadata,omitempty"`
}

// ClientSessionPayment carries the selection and surcharge state.
type ClientSessionPayment struct {
	VaultOnSuccess bool                        `json:"vaultOnSuccess,omitempty"`
	Options        []ClientSessionMethodOption `json:"options,omitempty"`
}

// ClientSessionMethodOption is the per-method surcharge entry.
type ClientSessionMethodOption struct {
	Type      PaymentMethodType `json:"type"`
	Surcharge *int64            `json:"surcharge,omitempty"`
}

// Order defines model for Order.
type Order struct {
	CountryCode            string     `json:"countryCode,omitempty"`
	CurrencyCode           string     `json:"currencyCode"`
	MerchantAmount         *int64     `json:"merchantAmount,omitempty"`
	TotalOrderAmount       *int64     `json:"totalOrderAmount,omitempty"`
	TotalTaxAmount         *int64     `json:"totalTaxAmount,omitempty"`
	LineItems              []LineItem `json:"lineItems,omitempty"`
	Fees                   []Fee      `json:"fees,omitempty"`
	PaymentMethodSurcharge *int64     `json:"paymentMethodSurcharge,omitempty"`
}

// LineItem defines model for LineItem.
type LineItem struct {
	ItemID         string `json:"itemId"`
	Description    string `json:"description,omitempty"`
	Amount         int64  `json:"amount"`
	Quantity       int    `json:"quantity"`
	DiscountAmount *int64 `json:"discountAmount,omitempty"`
	TaxAmount      *int64 `json:"taxAmount,omitempty"`
}

// Fee defines model for Fee.
type Fee struct {
	Type   string `json:"type"`
	Amount int64  `json:"amount"`
}

// Customer defines model for Customer.
type Customer struct {
	CustomerID   string `json:"customerId,omitempty"`
	EmailAddress string `json:"emailAddress,omitempty"`
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	MobileNumber string `json:"mobileNumber,omitempty"`
}

// PaymentMethodConfig defines model for a configured payment method.
type PaymentMethodConfig struct {
	// ID is the configuration id required for tokenization.
	ID                *string               `json:"id,omitempty"`
	Type              PaymentMethodType     `json:"type"`
	Name              string                `json:"name,omitempty"`
	ProcessorConfigID *string               `json:"processorConfigId,omitempty"`
	Surcharge         *int64                `json:"surcharge,omitempty"`
	Options           *PaymentMethodOptions `json:"options,omitempty"`
}

// CardOptions defines model for card method options.
type CardOptions struct {
	ThreeDSecureEnabled bool     `json:"threeDSecureEnabled"`
	Networks            []string `json:"networks,omitempty"`
}

// MerchantOptions defines model for redirect and asynchronous method options.
type MerchantOptions struct {
	MerchantID        string `json:"merchantId"`
	MerchantAccountID string `json:"merchantAccountId,omitempty"`
}

// WalletOptions defines model for wallet method options.
type WalletOptions struct {
	MerchantName       string   `json:"merchantName,omitempty"`
	MerchantIdentifier string   `json:"merchantIdentifier,omitempty"`
	Networks           []string `json:"networks,omitempty"`
}

// PaymentMethodOptions is a union of [CardOptions], [MerchantOptions] and [WalletOptions].
type PaymentMethodOptions struct {
	union json.RawMessage
}

// AsCardOptions returns the union data inside the PaymentMethodOptions as a CardOptions
func (t PaymentMethodOptions) AsCardOptions() (CardOptions, error) {
	var body CardOptions
	err := json.Unmarshal(t.union, &body)
	return body, err
}

// FromCardOptions overwrites any union data inside the PaymentMethodOptions as the provided CardOptions
func (t *PaymentMethodOptions) FromCardOptions(v CardOptions) error {
	b, err := json.Marshal(v)
	t.union = b
	return err
}

// AsMerchantOptions returns the union data inside the PaymentMethodOptions as a MerchantOptions
func (t PaymentMethodOptions) AsMerchantOptions() (MerchantOptions, error) {
	var body MerchantOptions
	err := json.Unmarshal(t.union, &body)
	return body, err
}

// FromMerchantOptions overwrites any union data inside the PaymentMethodOptions as the provided MerchantOptions
func (t *PaymentMethodOptions) FromMerchantOptions(v MerchantOptions) error {
	b, err := json.Marshal(v)
	t.union = b
	return err
}

// MergeMerchantOptions performs a merge with any union data inside the PaymentMethodOptions, using the provided MerchantOptions
func (t *PaymentMethodOptions) MergeMerchantOptions(v MerchantOptions) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	merged, err := runtime.JSONMerge(t.union, b)
	t.union = merged
	return err
}

// AsWalletOptions returns the union data inside the PaymentMethodOptions as a WalletOptions
func (t PaymentMethodOptions) AsWalletOptions() (WalletOptions, error) {
	var body WalletOptions
	err := json.Unmarshal(t.union, &body)
	return body, err
}

// FromWalletOptions overwrites any union data inside the PaymentMethodOptions as the provided WalletOptions
func (t *PaymentMethodOptions) FromWalletOptions(v WalletOptions) error {
	b, err := json.Marshal(v)
	t.union = b
	return err
}

// MarshalJSON serializes the underlying union for PaymentMethodOptions.
func (t PaymentMethodOptions) MarshalJSON() ([]byte, error) {
	b, err := t.union.MarshalJSON()
	return b, err
}

// UnmarshalJSON loads union data for PaymentMethodOptions.
func (t *PaymentMethodOptions) UnmarshalJSON(b []byte) error {
	err := t.union.UnmarshalJSON(b)
	return err
}
