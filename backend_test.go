package checkout

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"gopkg.in/square/go-jose.v2/jwt"

	"github.com/sumup/checkout/clienttoken"
	"github.com/sumup/checkout/resume"
	"github.com/sumup/checkout/transport"
)

var (
	testSigningKey = []byte("0123456789abcdef0123456789abcdef")
	testNow        = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
)

type recordedRequest struct {
	method string
	path   string
	header http.Header
	body   []byte
}

// fakeBackend serves the configuration, actions, tokenization and status
// endpoints from canned data.
type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	mu            sync.Mutex
	requests      []recordedRequest
	configStatus  int
	configuration map[string]any
	actionsStatus int
	token         PaymentMethodToken
	tokenStatus   int
	statuses      []resume.PollResponse
	statusCalls   int
	statusHook    func(call int)
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()

	b := &fakeBackend{t: t, token: PaymentMethodToken{Token: "pmt_123", TokenType: "SINGLE_USE", PaymentInstrumentType: "PAYMENT_CARD"}}
	b.srv = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.srv.Close)

	b.configuration = map[string]any{
		"coreUrl": b.srv.URL,
		"pciUrl":  b.srv.URL,
		"clientSession": map[string]any{
			"clientSessionId": "cs_1",
			"order": map[string]any{
				"currencyCode":     "EUR",
				"totalOrderAmount": 1050,
			},
		},
		"paymentMethods": []map[string]any{
			{"id": "cfg_card", "type": "PAYMENT_CARD"},
			{"id": "cfg_ideal", "type": "ADYEN_IDEAL"},
			{"id": "cfg_paypal", "type": "PAYPAL"},
			{"type": "ADYEN_SOFORT"},
		},
	}
	return b
}

func (b *fakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	b.mu.Lock()
	b.requests = append(b.requests, recordedRequest{method: r.Method, path: r.URL.Path, header: r.Header.Clone(), body: body})
	b.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == configurationPath:
		b.mu.Lock()
		status, cfg := b.configStatus, b.configuration
		b.mu.Unlock()
		if status != 0 {
			writeTestJSON(w, status, map[string]any{"error": map[string]any{"description": "configuration unavailable"}})
			return
		}
		writeTestJSON(w, http.StatusOK, cfg)
	case r.Method == http.MethodPost && r.URL.Path == actionsPath:
		b.mu.Lock()
		status, cfg := b.actionsStatus, b.configuration
		b.mu.Unlock()
		if status != 0 {
			writeTestJSON(w, status, map[string]any{"error": map[string]any{"description": "actions rejected"}})
			return
		}
		writeTestJSON(w, http.StatusOK, cfg)
	case r.Method == http.MethodPost && r.URL.Path == paymentInstrumentsPath:
		b.mu.Lock()
		status, token := b.tokenStatus, b.token
		b.mu.Unlock()
		if status != 0 {
			writeTestJSON(w, status, map[string]any{"error": map[string]any{"description": "tokenization rejected"}})
			return
		}
		writeTestJSON(w, http.StatusOK, token)
	case r.Method == http.MethodGet && r.URL.Path == "/status":
		b.mu.Lock()
		i := b.statusCalls
		b.statusCalls++
		if i >= len(b.statuses) {
			i = len(b.statuses) - 1
		}
		resp := b.statuses[i]
		hook := b.statusHook
		b.mu.Unlock()
		if hook != nil {
			hook(i + 1)
		}
		writeTestJSON(w, http.StatusOK, resp)
	default:
		http.NotFound(w, r)
	}
}

func writeTestJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (b *fakeBackend) requestsTo(path string) []recordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []recordedRequest
	for _, r := range b.requests {
		if r.path == path {
			out = append(out, r)
		}
	}
	return out
}

func (b *fakeBackend) StatusCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statusCalls
}

// mintToken signs a client token pointing at the backend.
func (b *fakeBackend) mintToken(t *testing.T, mutate func(*clienttoken.Claims)) string {
	t.Helper()

	intent := clienttoken.IntentCheckout
	claims := &clienttoken.Claims{
		AccessToken:      "access_123",
		ConfigurationURL: b.srv.URL + configurationPath,
		CoreURL:          b.srv.URL,
		PCIURL:           b.srv.URL,
		Env:              "SANDBOX",
		Intent:           &intent,
		Registered: jwt.Claims{
			Expiry:   jwt.NewNumericDate(testNow.Add(time.Hour)),
			IssuedAt: jwt.NewNumericDate(testNow),
		},
	}
	if mutate != nil {
		mutate(claims)
	}
	raw, err := clienttoken.Sign(claims, testSigningKey)
	if err != nil {
		t.Fatalf("sign client token: %v", err)
	}
	return raw
}

func withStatusURL(url string) func(*clienttoken.Claims) {
	return func(c *clienttoken.Claims) {
		c.StatusURL = url
	}
}

func (b *fakeBackend) newSession(opts ...Option) *Session {
	base := []Option{
		WithTransport(transport.New(transport.WithRetryCount(0), transport.WithLogger(zap.NewNop()))),
		WithLogger(zap.NewNop()),
		WithClock(func() time.Time { return testNow }),
		WithPollIntervals(time.Millisecond, time.Millisecond),
		WithLocale("nl-NL"),
	}
	return NewSession(append(base, opts...)...)
}

// gatedDoer holds the first request whose URL ends with path until release is
// closed, then completes it on a context that ignores cancellation.
type gatedDoer struct {
	next    transport.Doer
	path    string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedDoer(path string) *gatedDoer {
	return &gatedDoer{
		next:    transport.New(transport.WithRetryCount(0), transport.WithLogger(zap.NewNop())),
		path:    path,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (d *gatedDoer) Do(ctx context.Context, req transport.Request) (*transport.Response, error) {
	if strings.HasSuffix(req.URL, d.path) {
		gated := false
		d.once.Do(func() {
			gated = true
			close(d.entered)
		})
		if gated {
			<-d.release
			ctx = context.WithoutCancel(ctx)
		}
	}
	return d.next.Do(ctx, req)
}

func selectCard() MethodSelector {
	return MethodSelectorFunc(func(_ context.Context, _ *SessionConfiguration) (Selection, error) {
		return Selection{
			Type:    PaymentCard,
			Network: "VISA",
			Card: &CardInstrument{
				Number:          "4242424242424242",
				Cvv:             "123",
				ExpirationMonth: "12",
				ExpirationYear:  "2030",
				CardholderName:  "Jane Doe",
			},
		}, nil
	})
}

func selectMethod(t PaymentMethodType) MethodSelector {
	return MethodSelectorFunc(func(_ context.Context, _ *SessionConfiguration) (Selection, error) {
		return Selection{Type: t, ReturnURL: "https://shop.example.com/return"}, nil
	})
}

func (b *fakeBackend) update(fn func(b *fakeBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) ofType(t EventType) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, ev := range l.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (l *eventLog) states() []FlowState {
	var out []FlowState
	for _, ev := range l.ofType(EventStateChanged) {
		out = append(out, ev.State)
	}
	return out
}

type resultLog struct {
	mu      sync.Mutex
	results []*Result
	errs    []error
}

func (l *resultLog) handle(result *Result, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, result)
	l.errs = append(l.errs, err)
}

func (l *resultLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errs)
}

func decodeActionsBody(t *testing.T, body []byte) []Action {
	t.Helper()
	var payload struct {
		Actions struct {
			Actions []Action `json:"actions"`
		} `json:"actions"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode actions body: %v", err)
	}
	return payload.Actions.Actions
}

func decodeTokenizationBody(t *testing.T, body []byte) TokenizationRequest {
	t.Helper()
	var req TokenizationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("decode tokenization body: %v", err)
	}
	return req
}

func strPtr(s string) *string {
	return &s
}
