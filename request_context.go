package checkout

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// RequestContext carries per-call header values for backend requests. Empty
// fields fall back to session defaults; IdempotencyKey and RequestID are
// generated when unset.
type RequestContext struct {
	// The preferred locale for content like messages and errors
	//
	// Example: en-US
	AcceptLanguage string
	// Information about the client making this request
	//
	// Example: checkout-go/1.0
	UserAgent string
	// Key used to ensure requests are idempotent
	//
	// Example: idempotency_key_123
	IdempotencyKey string
	// Unique key for each request for tracing purposes
	//
	// Example: request_id_123
	RequestID string
	// API version
	//
	// Example: 2.3
	APIVersion string
}

type requestContextKey struct{}

// ContextWithRequestContext attaches requestCtx to ctx.
func ContextWithRequestContext(ctx context.Context, requestCtx *RequestContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if requestCtx == nil {
		return ctx
	}
	return context.WithValue(ctx, requestContextKey{}, requestCtx)
}

// RequestContextFromContext extracts the request metadata previously stored in the context.
func RequestContextFromContext(ctx context.Context) *RequestContext {
	if ctx == nil {
		return nil
	}
	if requestCtx, ok := ctx.Value(requestContextKey{}).(*RequestContext); ok {
		return requestCtx
	}
	return nil
}

// requestHeaders builds the outbound headers of a backend call.
func requestHeaders(ctx context.Context, clientToken string, defaults RequestContext) http.Header {
	rc := defaults
	if fromCtx := RequestContextFromContext(ctx); fromCtx != nil {
		rc = mergeRequestContext(defaults, *fromCtx)
	}
	if rc.IdempotencyKey == "" {
		rc.IdempotencyKey = uuid.NewString()
	}
	if rc.RequestID == "" {
		rc.RequestID = uuid.NewString()
	}

	h := http.Header{}
	if clientToken != "" {
		h.Set("Client-Token", clientToken)
	}
	set := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			h.Set(key, value)
		}
	}
	set("Accept-Language", rc.AcceptLanguage)
	set("User-Agent", rc.UserAgent)
	set("Idempotency-Key", rc.IdempotencyKey)
	set("Request-Id", rc.RequestID)
	set("API-Version", rc.APIVersion)
	return h
}

func mergeRequestContext(base, override RequestContext) RequestContext {
	if override.AcceptLanguage != "" {
		base.AcceptLanguage = override.AcceptLanguage
	}
	if override.UserAgent != "" {
		base.UserAgent = override.UserAgent
	}
	if override.IdempotencyKey != "" {
		base.IdempotencyKey = override.IdempotencyKey
	}
	if override.RequestID != "" {
		base.RequestID = override.RequestID
	}
	if override.APIVersion != "" {
		base.APIVersion = override.APIVersion
	}
	return base
}
