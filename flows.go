package checkout

import (
	"fmt"

	"github.com/sumup/checkout/clienttoken"
)

// Flow is the checkout or vault flow a payment method runs through.
type Flow string

const (
	FlowCompleteDirectCheckout         Flow = "complete_direct_checkout"
	FlowCheckoutWithAsyncPaymentMethod Flow = "checkout_with_async_payment_method"
	FlowCheckoutWithPayPal             Flow = "checkout_with_paypal"
	FlowAddCardToVault                 Flow = "add_card_to_vault"
	FlowAddPayPalToVault               Flow = "add_paypal_to_vault"
	FlowAddKlarnaToVault               Flow = "add_klarna_to_vault"
	FlowAddApayaToVault                Flow = "add_apaya_to_vault"
)

// Vault reports whether the flow stores the instrument instead of paying.
func (f Flow) Vault() bool {
	switch f {
	case FlowAddCardToVault, FlowAddPayPalToVault, FlowAddKlarnaToVault, FlowAddApayaToVault:
		return true
	}
	return false
}

type flowKey struct {
	method PaymentMethodType
	intent clienttoken.Intent
}

var flowTable = buildFlowTable()

func buildFlowTable() map[flowKey]Flow {
	t := map[flowKey]Flow{
		{PaymentCard, clienttoken.IntentCheckout}: FlowCompleteDirectCheckout,
		{PaymentCard, clienttoken.IntentVault}:    FlowAddCardToVault,
		{ApplePay, clienttoken.IntentCheckout}:    FlowCompleteDirectCheckout,
		{GooglePay, clienttoken.IntentCheckout}:   FlowCompleteDirectCheckout,
		{PayPal, clienttoken.IntentCheckout}:      FlowCheckoutWithPayPal,
		{PayPal, clienttoken.IntentVault}:         FlowAddPayPalToVault,
		{Klarna, clienttoken.IntentVault}:         FlowAddKlarnaToVault,
		{Apaya, clienttoken.IntentVault}:          FlowAddApayaToVault,
	}
	for _, m := range asyncMethods {
		switch m {
		case PayPal, Apaya:
			continue
		}
		t[flowKey{m, clienttoken.IntentCheckout}] = FlowCheckoutWithAsyncPaymentMethod
	}
	return t
}

// ResolveFlow returns the flow for method under intent, or
// [ErrUnsupportedIntent] when the pair is not supported.
func ResolveFlow(method PaymentMethodType, intent clienttoken.Intent) (Flow, error) {
	if f, ok := flowTable[flowKey{method, intent}]; ok {
		return f, nil
	}
	return "", newError(ErrUnsupportedIntent.Type, UnsupportedIntent,
		fmt.Sprintf("%s does not support intent %q", method, intent))
}
