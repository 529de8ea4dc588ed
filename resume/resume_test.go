package resume

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const statusURL = "https://api.example.com/payments/status/abc"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeTimer struct {
	delay time.Duration
	fn    func()

	mu        sync.Mutex
	cancelled bool
	fired     bool
}

func (t *fakeTimer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled || t.fired {
		return false
	}
	t.cancelled = true
	return true
}

// fire runs the scheduled function synchronously unless it was cancelled.
func (t *fakeTimer) fire() bool {
	t.mu.Lock()
	if t.cancelled || t.fired {
		t.mu.Unlock()
		return false
	}
	t.fired = true
	t.mu.Unlock()
	t.fn()
	return true
}

func (t *fakeTimer) live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.cancelled && !t.fired
}

type fakeScheduler struct {
	mu        sync.Mutex
	timers    []*fakeTimer
	scheduled chan *fakeTimer
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{scheduled: make(chan *fakeTimer, 64)}
}

func (s *fakeScheduler) Schedule(delay time.Duration, fn func()) Handle {
	t := &fakeTimer{delay: delay, fn: fn}
	s.mu.Lock()
	s.timers = append(s.timers, t)
	s.mu.Unlock()
	s.scheduled <- t
	return t
}

func (s *fakeScheduler) next(t *testing.T) *fakeTimer {
	t.Helper()
	select {
	case timer := <-s.scheduled:
		return timer
	case <-time.After(2 * time.Second):
		t.Fatalf("nothing was scheduled")
		return nil
	}
}

// nextPoll returns the poll timer scheduled after a status request, skipping
// the deadline timer that was live while the request was in flight.
func (s *fakeScheduler) nextPoll(t *testing.T) *fakeTimer {
	t.Helper()
	deadline := s.next(t)
	timer := s.next(t)
	if deadline.live() {
		t.Fatalf("deadline timer still live next to the poll timer")
	}
	return timer
}

func (s *fakeScheduler) live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if t.live() {
			n++
		}
	}
	return n
}

type fetchResult struct {
	resp *PollResponse
	err  error
}

// scriptedFetcher replays results and repeats the last one forever.
type scriptedFetcher struct {
	mu      sync.Mutex
	results []fetchResult
	calls   int
}

func (f *scriptedFetcher) FetchStatus(context.Context, string) (*PollResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++
	return f.results[i].resp, f.results[i].err
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func pending() fetchResult {
	return fetchResult{resp: &PollResponse{Status: StatusPending}}
}

func complete(id string) fetchResult {
	return fetchResult{resp: &PollResponse{Status: StatusComplete, ID: &id}}
}

func awaitOutcome(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case out := <-ch:
		return out
	case <-time.After(2 * time.Second):
		t.Fatalf("attempt did not resolve")
		return Outcome{}
	}
}

func newTestEngine(fetcher StatusFetcher, clock *fakeClock, sched *fakeScheduler, mutate func(*Config)) *Engine {
	cfg := Config{
		Clock:     clock.Now,
		Scheduler: sched,
		Logger:    zap.NewNop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewEngine(fetcher, cfg)
}

func TestPollPendingThenComplete(t *testing.T) {
	t.Parallel()

	clock, sched := newFakeClock(), newFakeScheduler()
	fetcher := &scriptedFetcher{results: []fetchResult{pending(), pending(), complete("42")}}
	engine := newTestEngine(fetcher, clock, sched, nil)

	outcomes := make(chan Outcome, 4)
	attempt := engine.Start(context.Background(), statusURL, func(o Outcome) { outcomes <- o })

	for range 2 {
		timer := sched.nextPoll(t)
		assert.Equal(t, DefaultPendingInterval, timer.delay)
		assert.LessOrEqual(t, sched.live(), 1)
		clock.Advance(timer.delay)
		require.True(t, timer.fire())
	}

	out := awaitOutcome(t, outcomes)
	require.NoError(t, out.Err)
	assert.Equal(t, "42", out.ID)
	assert.Equal(t, 3, fetcher.Calls())
	assert.Equal(t, StateComplete, attempt.State())
	assert.Empty(t, outcomes)
	assert.Equal(t, 0, sched.live())

	id, err := attempt.Wait()
	require.NoError(t, err)
	assert.Equal(t, "42", id)
}

func TestPollCancelSuppressesLaterCompletion(t *testing.T) {
	t.Parallel()

	clock, sched := newFakeClock(), newFakeScheduler()
	fetcher := &scriptedFetcher{results: []fetchResult{pending(), complete("42")}}
	engine := newTestEngine(fetcher, clock, sched, nil)

	outcomes := make(chan Outcome, 4)
	attempt := engine.Start(context.Background(), statusURL, func(o Outcome) { outcomes <- o })

	timer := sched.nextPoll(t)
	require.True(t, attempt.Cancel())
	assert.False(t, attempt.Cancel())

	out := awaitOutcome(t, outcomes)
	assert.ErrorIs(t, out.Err, ErrCancelled)
	assert.False(t, timer.fire(), "timer must be invalidated by cancel")
	assert.Equal(t, 1, fetcher.Calls())
	assert.Equal(t, StateCancelled, attempt.State())
	assert.Empty(t, outcomes)
}

func TestPollDropsResponseArrivingAfterCancel(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	returned := make(chan struct{})
	fetcher := StatusFetcherFunc(func(ctx context.Context, _ string) (*PollResponse, error) {
		defer close(returned)
		close(entered)
		<-release
		assert.NoError(t, ctx.Err(), "status request must not be aborted by cancel")
		id := "42"
		return &PollResponse{Status: StatusComplete, ID: &id}, nil
	})
	engine := newTestEngine(fetcher, newFakeClock(), newFakeScheduler(), nil)

	var calls atomic.Int32
	outcomes := make(chan Outcome, 4)
	attempt := engine.Start(context.Background(), statusURL, func(o Outcome) {
		calls.Add(1)
		outcomes <- o
	})

	<-entered
	attempt.Cancel()
	close(release)
	<-returned

	out := awaitOutcome(t, outcomes)
	assert.ErrorIs(t, out.Err, ErrCancelled)
	assert.Never(t, func() bool { return calls.Load() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestPollTimesOutOnce(t *testing.T) {
	t.Parallel()

	clock, sched := newFakeClock(), newFakeScheduler()
	fetcher := &scriptedFetcher{results: []fetchResult{pending()}}
	engine := newTestEngine(fetcher, clock, sched, func(cfg *Config) {
		cfg.MaxWait = 12 * time.Second
	})

	var calls atomic.Int32
	outcomes := make(chan Outcome, 4)
	engine.Start(context.Background(), statusURL, func(o Outcome) {
		calls.Add(1)
		outcomes <- o
	})

	var delays []time.Duration
	for len(outcomes) == 0 {
		timer := sched.nextPoll(t)
		delays = append(delays, timer.delay)
		assert.LessOrEqual(t, sched.live(), 1)
		clock.Advance(timer.delay)
		timer.fire()
		if len(delays) > 10 {
			t.Fatalf("polling did not stop")
		}
	}

	out := awaitOutcome(t, outcomes)
	assert.ErrorIs(t, out.Err, ErrPollTimeout)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 2 * time.Second}, delays)
	assert.Equal(t, 3, fetcher.Calls())
	assert.Equal(t, int32(1), calls.Load())
}

func TestPollTimesOutWhileStatusRequestHangs(t *testing.T) {
	t.Parallel()

	t.Run("scheduled deadline", func(t *testing.T) {
		t.Parallel()

		clock, sched := newFakeClock(), newFakeScheduler()
		aborted := make(chan struct{})
		fetcher := StatusFetcherFunc(func(ctx context.Context, _ string) (*PollResponse, error) {
			<-ctx.Done()
			close(aborted)
			return nil, ctx.Err()
		})
		engine := newTestEngine(fetcher, clock, sched, func(cfg *Config) {
			cfg.MaxWait = 100 * time.Millisecond
		})

		var calls atomic.Int32
		attempt := engine.Start(context.Background(), statusURL, func(Outcome) { calls.Add(1) })

		deadline := sched.next(t)
		assert.Equal(t, 100*time.Millisecond, deadline.delay)
		assert.Equal(t, StatePolling, attempt.State())
		clock.Advance(deadline.delay)
		require.True(t, deadline.fire())

		_, err := attempt.Wait()
		assert.ErrorIs(t, err, ErrPollTimeout)
		assert.Equal(t, StateTimedOut, attempt.State())
		select {
		case <-aborted:
		case <-time.After(2 * time.Second):
			t.Fatalf("status request was not aborted at the deadline")
		}
		assert.Never(t, func() bool { return calls.Load() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
		assert.Equal(t, 0, sched.live())
	})

	t.Run("timer scheduler with request ignoring its context", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		t.Cleanup(func() { close(release) })
		fetcher := StatusFetcherFunc(func(context.Context, string) (*PollResponse, error) {
			<-release
			return &PollResponse{Status: StatusPending}, nil
		})
		engine := NewEngine(fetcher, Config{MaxWait: 50 * time.Millisecond, Logger: zap.NewNop()})

		start := time.Now()
		_, err := engine.Poll(context.Background(), statusURL)
		assert.ErrorIs(t, err, ErrPollTimeout)
		assert.Less(t, time.Since(start), 2*time.Second)
	})
}

func TestPollRetriesSoonerOnConnectionLoss(t *testing.T) {
	t.Parallel()

	errLost := errors.New("connection lost")
	clock, sched := newFakeClock(), newFakeScheduler()
	fetcher := &scriptedFetcher{results: []fetchResult{{err: errLost}, complete("7")}}
	engine := newTestEngine(fetcher, clock, sched, func(cfg *Config) {
		cfg.IsConnectionLost = func(err error) bool { return errors.Is(err, errLost) }
	})

	outcomes := make(chan Outcome, 1)
	engine.Start(context.Background(), statusURL, func(o Outcome) { outcomes <- o })

	timer := sched.nextPoll(t)
	assert.Equal(t, DefaultConnectionLostInterval, timer.delay)
	clock.Advance(timer.delay)
	timer.fire()

	out := awaitOutcome(t, outcomes)
	require.NoError(t, out.Err)
	assert.Equal(t, "7", out.ID)
}

func TestPollFailures(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	tests := map[string]struct {
		result  fetchResult
		wantErr error
	}{
		"failed status":        {result: fetchResult{resp: &PollResponse{Status: StatusFailed}}},
		"complete without id":  {result: fetchResult{resp: &PollResponse{Status: StatusComplete}}},
		"unknown status":       {result: fetchResult{resp: &PollResponse{Status: "SOMETHING"}}},
		"non connection error": {result: fetchResult{err: errBoom}, wantErr: errBoom},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			fetcher := &scriptedFetcher{results: []fetchResult{tt.result}}
			engine := newTestEngine(fetcher, newFakeClock(), newFakeScheduler(), nil)

			_, err := engine.Poll(context.Background(), statusURL)
			assert.ErrorIs(t, err, ErrPollFailed)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, 1, fetcher.Calls())
		})
	}
}

func TestPollStatusIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	id := "99"
	fetcher := &scriptedFetcher{results: []fetchResult{{resp: &PollResponse{Status: "complete", ID: &id}}}}
	engine := newTestEngine(fetcher, newFakeClock(), newFakeScheduler(), nil)

	got, err := engine.Poll(context.Background(), statusURL)
	require.NoError(t, err)
	assert.Equal(t, "99", got)
}

func TestPollWithTimerScheduler(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{results: []fetchResult{pending(), complete("5")}}
	engine := NewEngine(fetcher, Config{PendingInterval: time.Millisecond, Logger: zap.NewNop()})

	got, err := engine.Poll(context.Background(), statusURL)
	require.NoError(t, err)
	assert.Equal(t, "5", got)
}

func TestPollContextCancellation(t *testing.T) {
	t.Parallel()

	clock, sched := newFakeClock(), newFakeScheduler()
	fetcher := &scriptedFetcher{results: []fetchResult{pending()}}
	engine := newTestEngine(fetcher, clock, sched, nil)

	ctx, cancel := context.WithCancel(context.Background())
	attempt := engine.Start(ctx, statusURL, nil)
	sched.nextPoll(t)
	cancel()

	_, err := attempt.Wait()
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestCallbackAttempt(t *testing.T) {
	t.Parallel()

	var presented []string
	clock, sched := newFakeClock(), newFakeScheduler()
	engine := newTestEngine(nil, clock, sched, func(cfg *Config) {
		cfg.Presenter = func(_ context.Context, target string) { presented = append(presented, target) }
	})

	outcomes := make(chan Outcome, 2)
	attempt := engine.StartCallback(context.Background(), "https://bank.example.com/redirect", func(o Outcome) { outcomes <- o })
	timer := sched.next(t)
	assert.Equal(t, DefaultMaxWait, timer.delay)
	assert.Equal(t, StateWaiting, attempt.State())
	assert.Equal(t, []string{"https://bank.example.com/redirect"}, presented)

	require.True(t, attempt.Complete("pay_1"))
	assert.False(t, attempt.Complete("pay_2"))
	assert.False(t, timer.fire())

	out := awaitOutcome(t, outcomes)
	assert.Equal(t, "pay_1", out.ID)
	assert.Empty(t, outcomes)
}

func TestCallbackAttemptTimesOut(t *testing.T) {
	t.Parallel()

	sched := newFakeScheduler()
	engine := newTestEngine(nil, newFakeClock(), sched, nil)

	attempt := engine.StartCallback(context.Background(), "https://bank.example.com/redirect", nil)
	sched.next(t).fire()

	_, err := attempt.Wait()
	assert.ErrorIs(t, err, ErrPollTimeout)
	assert.Equal(t, StateTimedOut, attempt.State())
	assert.False(t, attempt.Fail(errors.New("late")))
}
