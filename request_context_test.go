package checkout

import (
	"context"
	"testing"
)

func TestRequestHeadersFromDefaults(t *testing.T) {
	t.Parallel()

	defaults := RequestContext{
		AcceptLanguage: "en-US",
		UserAgent:      "checkout-test/1.0",
		APIVersion:     "2.3",
	}

	got := requestHeaders(context.Background(), "access_123", defaults)
	if got.Get("Client-Token") != "access_123" {
		t.Fatalf("unexpected client token %q", got.Get("Client-Token"))
	}
	if got.Get("Accept-Language") != "en-US" {
		t.Fatalf("unexpected accept-language %q", got.Get("Accept-Language"))
	}
	if got.Get("User-Agent") != "checkout-test/1.0" {
		t.Fatalf("unexpected user-agent %q", got.Get("User-Agent"))
	}
	if got.Get("API-Version") != "2.3" {
		t.Fatalf("unexpected api version %q", got.Get("API-Version"))
	}
	if got.Get("Idempotency-Key") == "" || got.Get("Request-Id") == "" {
		t.Fatalf("expected generated idempotency key and request id, got %v", got)
	}

	again := requestHeaders(context.Background(), "access_123", defaults)
	if again.Get("Idempotency-Key") == got.Get("Idempotency-Key") {
		t.Fatalf("expected a fresh idempotency key per request")
	}
}

func TestRequestHeadersContextOverrides(t *testing.T) {
	t.Parallel()

	defaults := RequestContext{AcceptLanguage: "en-US", APIVersion: "2.3"}
	ctx := ContextWithRequestContext(context.Background(), &RequestContext{
		AcceptLanguage: "de-DE",
		IdempotencyKey: "idem-123",
		RequestID:      "req-123",
	})

	got := requestHeaders(ctx, "", defaults)
	if got.Get("Client-Token") != "" {
		t.Fatalf("expected no client token header, got %q", got.Get("Client-Token"))
	}
	if got.Get("Accept-Language") != "de-DE" {
		t.Fatalf("unexpected accept-language %q", got.Get("Accept-Language"))
	}
	if got.Get("API-Version") != "2.3" {
		t.Fatalf("expected default api version, got %q", got.Get("API-Version"))
	}
	if got.Get("Idempotency-Key") != "idem-123" {
		t.Fatalf("unexpected idempotency key %q", got.Get("Idempotency-Key"))
	}
	if got.Get("Request-Id") != "req-123" {
		t.Fatalf("unexpected request id %q", got.Get("Request-Id"))
	}
	if _, ok := got["User-Agent"]; ok {
		t.Fatalf("expected empty user-agent to be omitted")
	}
}

func TestRequestContextRoundTrip(t *testing.T) {
	t.Parallel()

	requestCtx := &RequestContext{RequestID: "req-1"}
	ctx := ContextWithRequestContext(context.Background(), requestCtx)
	got := RequestContextFromContext(ctx)
	if got == nil {
		t.Fatalf("expected request context")
	}
	if got != requestCtx {
		t.Fatalf("expected same pointer")
	}

	if RequestContextFromContext(context.Background()) != nil {
		t.Fatalf("expected nil request context")
	}
	if ContextWithRequestContext(ctx, nil) != ctx {
		t.Fatalf("expected nil request context to leave ctx untouched")
	}
}
