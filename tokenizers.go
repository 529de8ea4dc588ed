package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/sumup/checkout/clienttoken"
)

// defaultPlatform is reported in the session info of off-session instruments.
const defaultPlatform = "GO"

// asyncMethods are tokenized as off-session payments and resumed afterwards.
var asyncMethods = []PaymentMethodType{
	PayPal, Klarna, Apaya,
	AdyenAlipay, AdyenBlik, AdyenDotPay, AdyenGiropay, AdyenIDeal, AdyenInterac,
	AdyenMobilePay, AdyenPayshop, AdyenPayTrail, AdyenSofort, AdyenTrustly,
	AdyenTwint, AdyenVipps, Atome,
	BuckarooBancontact, BuckarooEps, BuckarooGiropay, BuckarooIdeal, BuckarooSofort,
	Coinbase, Hoolah, MollieBancontact, MollieIdeal, OpenNode,
	PayNLBancontact, PayNLGiropay, PayNLPayconiq, TwoCtwoP, XfersPayNow,
}

// baseTokenizer holds the checks shared by every built-in tokenizer.
type baseTokenizer struct {
	in TokenizerInput
}

// validateCommon requires a usable client token and a configuration id for
// the method.
func (b baseTokenizer) validateCommon() (string, error) {
	if b.in.Tokens == nil {
		return "", wrap(ErrInvalidToken, errors.New("no client token"))
	}
	if _, err := b.in.Tokens.EnsureValid(); err != nil {
		return "", tokenError(err)
	}
	id, ok := b.in.Configuration.ConfigID(b.in.Method)
	if !ok {
		return "", NewValidationError(MissingConfigurationID,
			fmt.Sprintf("no configuration id for %s", b.in.Method),
			WithOffendingParam("configuration.id"))
	}
	return id, nil
}

func (b baseTokenizer) paymentFlow() *PaymentFlow {
	if b.in.Intent != clienttoken.IntentVault {
		return nil
	}
	flow := PaymentFlowVault
	return &flow
}

func (b baseTokenizer) Submit(ctx context.Context, req TokenizationRequest) (*PaymentMethodToken, error) {
	if b.in.Submit == nil {
		return nil, wrap(ErrTokenizationFailed, errors.New("no submitter configured"))
	}
	return b.in.Submit(ctx, req)
}

// CardTokenizer tokenizes card data entered by the shopper.
type CardTokenizer struct {
	baseTokenizer
}

// NewCardTokenizer implements [TokenizerFactory].
func NewCardTokenizer(in TokenizerInput) Tokenizer {
	return &CardTokenizer{baseTokenizer{in: in}}
}

func (t *CardTokenizer) Kind() TokenizerKind { return Direct }

func (t *CardTokenizer) Validate() error {
	if _, err := t.validateCommon(); err != nil {
		return err
	}
	if t.in.Selection.Card == nil {
		return NewValidationError(MissingRequiredField, "card data is required", WithOffendingParam("paymentInstrument"))
	}
	return t.in.Selection.Card.Validate()
}

func (t *CardTokenizer) BuildRequest() (TokenizationRequest, error) {
	req := TokenizationRequest{PaymentFlow: t.paymentFlow()}
	if err := req.PaymentInstrument.FromCardInstrument(*t.in.Selection.Card); err != nil {
		return TokenizationRequest{}, err
	}
	return req, nil
}

// WalletTokenizer tokenizes a payload produced by a platform wallet.
type WalletTokenizer struct {
	baseTokenizer
}

// NewWalletTokenizer implements [TokenizerFactory].
func NewWalletTokenizer(in TokenizerInput) Tokenizer {
	return &WalletTokenizer{baseTokenizer{in: in}}
}

func (t *WalletTokenizer) Kind() TokenizerKind { return Direct }

func (t *WalletTokenizer) Validate() error {
	if _, err := t.validateCommon(); err != nil {
		return err
	}
	if len(t.in.Selection.Wallet) == 0 {
		return NewValidationError(MissingRequiredField, "wallet payload is required", WithOffendingParam("paymentInstrument.token"))
	}
	return nil
}

func (t *WalletTokenizer) BuildRequest() (TokenizationRequest, error) {
	id, _ := t.in.Configuration.ConfigID(t.in.Method)
	req := TokenizationRequest{PaymentFlow: t.paymentFlow()}
	err := req.PaymentInstrument.FromWalletInstrument(WalletInstrument{
		PaymentMethodConfigID: id,
		PaymentMethodType:     t.in.Method,
		Token:                 t.in.Selection.Wallet,
	})
	if err != nil {
		return TokenizationRequest{}, err
	}
	return req, nil
}

// AsyncTokenizer tokenizes redirect, QR code and other off-session methods.
// The resulting payment continues through the token's required action or
// through a client token the merchant passes back in its [Decision].
type AsyncTokenizer struct {
	baseTokenizer
}

// NewAsyncTokenizer implements [TokenizerFactory].
func NewAsyncTokenizer(in TokenizerInput) Tokenizer {
	return &AsyncTokenizer{baseTokenizer{in: in}}
}

func (t *AsyncTokenizer) Kind() TokenizerKind { return Async }

func (t *AsyncTokenizer) Validate() error {
	_, err := t.validateCommon()
	return err
}

func (t *AsyncTokenizer) BuildRequest() (TokenizationRequest, error) {
	id, _ := t.in.Configuration.ConfigID(t.in.Method)
	platform := t.in.Platform
	if platform == "" {
		platform = defaultPlatform
	}
	req := TokenizationRequest{PaymentFlow: t.paymentFlow()}
	err := req.PaymentInstrument.FromOffSessionInstrument(OffSessionInstrument{
		PaymentMethodConfigID: id,
		PaymentMethodType:     t.in.Method,
		Type:                  OffSessionPayment,
		SessionInfo: SessionInfo{
			Locale:         t.in.Locale,
			Platform:       platform,
			RedirectionURL: t.in.Selection.ReturnURL,
		},
	})
	if err != nil {
		return TokenizationRequest{}, err
	}
	return req, nil
}
