// Package checkout is a client-side SDK that drives a multi-step payment
// session against a checkout backend: validate the client token, load the
// payment method configuration, let the shopper pick a method, keep the
// backend's client session in sync, tokenize the instrument and finally
// resume payments that need an additional action.
//
// # Sessions
//
// Create a [Session] with [NewSession] and call [Session.Begin] with the
// client token issued by your backend. A [MethodSelector] supplied through
// [WithSelector] receives the loaded [SessionConfiguration] and returns the
// shopper's [Selection]. Begin blocks until the payment completed, failed or
// was cancelled and returns exactly one outcome, which is also handed to the
// optional [ResultHandler].
//
// Payments that end with a required action are resumed either by polling the
// status URL carried by the action or its client token, or by waiting for the
// shopper to return through [Session.HandleReturnURL]. Use [Session.Resume]
// when your backend issues a fresh client token for a pending payment.
//
// # Errors
//
// Every failure is an [*Error]. Use errors.Is with the exported sentinels
// such as [ErrInvalidToken], [ErrConfigFetchFailed] or [ErrPollTimeout] to
// branch on the failure; validation sub-codes all match [ErrValidation].
//
// # Transport
//
// Backend calls go through the Doer interface of the transport package. The
// default implementation is built on resty with OpenTelemetry
// instrumentation. Requests can be signed, see [WithRequestSigner].
package checkout
