// Package resume drives a payment to completion after the backend asked for an
// additional action. An attempt either polls a status URL until the payment
// leaves the pending state, or waits for the shopper to come back through a
// return URL. Both are bounded by a maximum wait and can be cancelled.
package resume

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrPollFailed is returned when the backend reports the payment failed or
	// the status request failed for good.
	ErrPollFailed = errors.New("resume: payment failed")
	// ErrPollTimeout is returned once MaxWait elapsed without a final status.
	ErrPollTimeout = errors.New("resume: timed out waiting for payment")
	// ErrCancelled is returned when the attempt was cancelled.
	ErrCancelled = errors.New("resume: cancelled")
)

// Status is the payment status reported by the status URL.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusComplete Status = "COMPLETE"
	StatusFailed   Status = "FAILED"
)

// PollResponse is the body returned by the status URL.
type PollResponse struct {
	Status Status  `json:"status"`
	ID     *string `json:"id"`
}

func (r *PollResponse) status() Status {
	return Status(strings.ToUpper(strings.TrimSpace(string(r.Status))))
}

// StatusFetcher requests the current payment status.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, statusURL string) (*PollResponse, error)
}

// StatusFetcherFunc lifts bare functions into [StatusFetcher].
type StatusFetcherFunc func(ctx context.Context, statusURL string) (*PollResponse, error)

func (f StatusFetcherFunc) FetchStatus(ctx context.Context, statusURL string) (*PollResponse, error) {
	return f(ctx, statusURL)
}

// Handle cancels a scheduled function. Cancel reports whether the function was
// prevented from running.
type Handle interface {
	Cancel() bool
}

// Scheduler runs fn once after delay.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) Handle
}

// TimerScheduler schedules work with [time.AfterFunc].
type TimerScheduler struct{}

type timerHandle struct{ t *time.Timer }

func (h timerHandle) Cancel() bool { return h.t.Stop() }

// Schedule implements [Scheduler].
func (TimerScheduler) Schedule(delay time.Duration, fn func()) Handle {
	return timerHandle{t: time.AfterFunc(delay, fn)}
}

// Presenter is notified when an attempt starts presenting the pending action,
// for example to open a QR code or the redirect URL.
type Presenter func(ctx context.Context, target string)

// Config tunes an [Engine]. Zero values are replaced by [Config.WithDefaults].
type Config struct {
	PendingInterval        time.Duration
	ConnectionLostInterval time.Duration
	MaxWait                time.Duration
	IsConnectionLost       func(error) bool
	Clock                  func() time.Time
	Scheduler              Scheduler
	Presenter              Presenter
	Logger                 *zap.Logger
}

const (
	DefaultPendingInterval        = 5 * time.Second
	DefaultConnectionLostInterval = 3 * time.Second
	DefaultMaxWait                = 5 * time.Minute
)

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.PendingInterval <= 0 {
		c.PendingInterval = DefaultPendingInterval
	}
	if c.ConnectionLostInterval <= 0 {
		c.ConnectionLostInterval = DefaultConnectionLostInterval
	}
	if c.MaxWait <= 0 {
		c.MaxWait = DefaultMaxWait
	}
	if c.IsConnectionLost == nil {
		c.IsConnectionLost = func(error) bool { return false }
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Scheduler == nil {
		c.Scheduler = TimerScheduler{}
	}
	if c.Logger == nil {
		c.Logger = zap.L()
	}
	return c
}

// Engine starts resume attempts.
type Engine struct {
	fetcher StatusFetcher
	cfg     Config
}

// NewEngine returns an engine polling through fetcher.
func NewEngine(fetcher StatusFetcher, cfg Config) *Engine {
	return &Engine{fetcher: fetcher, cfg: cfg.WithDefaults()}
}

// Start begins polling statusURL. The first status request is issued
// immediately. done, when non-nil, is called exactly once with the outcome.
// Cancelling ctx cancels the attempt.
func (e *Engine) Start(ctx context.Context, statusURL string, done func(Outcome)) *Attempt {
	a := e.newAttempt(ctx, statusURL, done)
	a.present()
	a.mu.Lock()
	if !a.finished {
		a.state = StatePolling
	}
	a.mu.Unlock()
	go a.poll()
	return a
}

// Poll blocks until the attempt started for statusURL resolves.
func (e *Engine) Poll(ctx context.Context, statusURL string) (string, error) {
	return e.Start(ctx, statusURL, nil).Wait()
}

// StartCallback waits for the shopper to return through redirectURL. The
// attempt is resolved by [Attempt.Complete] or [Attempt.Fail], or times out
// after MaxWait.
func (e *Engine) StartCallback(ctx context.Context, redirectURL string, done func(Outcome)) *Attempt {
	a := e.newAttempt(ctx, redirectURL, done)
	a.present()
	a.mu.Lock()
	if !a.finished {
		a.state = StateWaiting
		a.timer = e.cfg.Scheduler.Schedule(e.cfg.MaxWait, func() {
			a.finish(Outcome{Err: ErrPollTimeout}, StateTimedOut)
		})
	}
	a.mu.Unlock()
	return a
}

func (e *Engine) newAttempt(ctx context.Context, target string, done func(Outcome)) *Attempt {
	a := &Attempt{
		engine:   e,
		ctx:      context.WithoutCancel(ctx),
		target:   target,
		deadline: e.cfg.Clock().Add(e.cfg.MaxWait),
		state:    StateIdle,
		done:     done,
		doneCh:   make(chan struct{}),
	}
	stop := context.AfterFunc(ctx, func() { a.Cancel() })
	a.mu.Lock()
	a.stop = stop
	a.mu.Unlock()
	return a
}

// State is the lifecycle position of an [Attempt].
type State string

const (
	StateIdle       State = "idle"
	StatePresenting State = "presenting"
	StatePolling    State = "polling"
	StateWaiting    State = "waiting"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
	StateTimedOut   State = "timed-out"
)

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	switch s {
	case StateComplete, StateFailed, StateCancelled, StateTimedOut:
		return true
	}
	return false
}

// Outcome is the result of an attempt: a payment id or an error.
type Outcome struct {
	ID  string
	Err error
}

// Attempt is a single resume run. It is resolved exactly once.
type Attempt struct {
	engine   *Engine
	ctx      context.Context
	target   string
	deadline time.Time
	done     func(Outcome)

	mu       sync.Mutex
	stop     func() bool
	state    State
	timer    Handle
	finished bool
	outcome  Outcome
	doneCh   chan struct{}
}

// State returns the current state.
func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Done is closed once the attempt resolved.
func (a *Attempt) Done() <-chan struct{} {
	return a.doneCh
}

// Wait blocks until the attempt resolves.
func (a *Attempt) Wait() (string, error) {
	<-a.doneCh
	return a.outcome.ID, a.outcome.Err
}

// Cancel resolves the attempt with [ErrCancelled] unless it already resolved.
// A status request in flight is left to finish and its response is dropped.
func (a *Attempt) Cancel() bool {
	return a.finish(Outcome{Err: ErrCancelled}, StateCancelled)
}

// Complete resolves the attempt with the payment id.
func (a *Attempt) Complete(id string) bool {
	if id == "" {
		return a.Fail(errors.New("missing payment id"))
	}
	return a.finish(Outcome{ID: id}, StateComplete)
}

// Fail resolves the attempt with err wrapped in [ErrPollFailed].
func (a *Attempt) Fail(err error) bool {
	if err == nil {
		return a.finish(Outcome{Err: ErrPollFailed}, StateFailed)
	}
	return a.finish(Outcome{Err: errors.Join(ErrPollFailed, err)}, StateFailed)
}

func (a *Attempt) present() {
	a.mu.Lock()
	if a.finished {
		a.mu.Unlock()
		return
	}
	a.state = StatePresenting
	a.mu.Unlock()
	if p := a.engine.cfg.Presenter; p != nil {
		p(a.ctx, a.target)
	}
}

func (a *Attempt) poll() {
	cfg := a.engine.cfg

	a.mu.Lock()
	if a.finished {
		a.mu.Unlock()
		return
	}
	remaining := a.deadline.Sub(cfg.Clock())
	if remaining <= 0 {
		a.timer = nil
		a.mu.Unlock()
		a.finish(Outcome{Err: ErrPollTimeout}, StateTimedOut)
		return
	}
	// The deadline timer is the live timer while the request is in flight.
	// retry replaces it and finish cancels it.
	fetchCtx, cancelFetch := context.WithCancel(a.ctx)
	defer cancelFetch()
	a.timer = cfg.Scheduler.Schedule(remaining, func() {
		if a.finish(Outcome{Err: ErrPollTimeout}, StateTimedOut) {
			cfg.Logger.Debug("status request outlived max wait", zap.String("status_url", a.target))
		}
		cancelFetch()
	})
	a.mu.Unlock()

	resp, err := a.engine.fetcher.FetchStatus(fetchCtx, a.target)

	a.mu.Lock()
	finished := a.finished
	a.mu.Unlock()
	if finished {
		cfg.Logger.Debug("dropping late status response", zap.String("status_url", a.target))
		return
	}

	switch {
	case err != nil && cfg.IsConnectionLost(err):
		cfg.Logger.Debug("status request lost connection, retrying", zap.Error(err))
		a.retry(cfg.ConnectionLostInterval)
	case err != nil:
		a.Fail(err)
	case resp == nil:
		a.Fail(errors.New("empty status response"))
	default:
		switch resp.status() {
		case StatusPending:
			a.retry(cfg.PendingInterval)
		case StatusComplete:
			if resp.ID == nil || *resp.ID == "" {
				a.Fail(errors.New("complete status without payment id"))
				return
			}
			a.Complete(*resp.ID)
		case StatusFailed:
			a.Fail(nil)
		default:
			a.Fail(errors.New("unknown status " + string(resp.Status)))
		}
	}
}

func (a *Attempt) retry(delay time.Duration) {
	cfg := a.engine.cfg

	a.mu.Lock()
	if a.finished {
		a.mu.Unlock()
		return
	}
	remaining := a.deadline.Sub(cfg.Clock())
	if remaining <= 0 {
		a.mu.Unlock()
		a.finish(Outcome{Err: ErrPollTimeout}, StateTimedOut)
		return
	}
	if delay > remaining {
		delay = remaining
	}
	if a.timer != nil {
		a.timer.Cancel()
	}
	a.timer = cfg.Scheduler.Schedule(delay, a.poll)
	a.mu.Unlock()

	cfg.Logger.Debug("status pending, next poll scheduled",
		zap.String("status_url", a.target),
		zap.Duration("delay", delay))
}

func (a *Attempt) finish(out Outcome, state State) bool {
	a.mu.Lock()
	if a.finished {
		a.mu.Unlock()
		return false
	}
	a.finished = true
	a.state = state
	a.outcome = out
	if a.timer != nil {
		a.timer.Cancel()
		a.timer = nil
	}
	stop := a.stop
	a.mu.Unlock()

	if stop != nil {
		stop()
	}
	close(a.doneCh)
	if a.done != nil {
		a.done(out)
	}
	return true
}
