package backoff

import (
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
)

// fakeClock records requested delays and fires timers right away.
type fakeClock struct {
	mu     sync.Mutex
	delays []time.Duration
}

type fakeTimer struct{}

func (fakeTimer) Stop() bool { return true }

func (c *fakeClock) after(d time.Duration, f func()) Timer {
	c.mu.Lock()
	c.delays = append(c.delays, d)
	c.mu.Unlock()
	go f()
	return fakeTimer{}
}

func (c *fakeClock) recorded() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.delays))
	copy(out, c.delays)
	return out
}

func newTestScheduler(strategy Strategy) (*Scheduler, *fakeClock) {
	clock := &fakeClock{}
	s := NewScheduler(strategy)
	s.after = clock.after
	return s, clock
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for scheduler")
	}
}

func TestScheduler_SuccessStopsLoop(t *testing.T) {
	s, clock := newTestScheduler(nil)
	finished := make(chan struct{})

	s.Run(func(done func(error)) {
		done(nil)
		close(finished)
	}, func(err error) {
		t.Errorf("onGiveUp called: %v", err)
	})

	waitFor(t, finished)
	if s.Running() {
		t.Error("Running() = true after success")
	}
	if s.Attempts() != 1 {
		t.Errorf("Attempts() = %d, want 1", s.Attempts())
	}
	if len(clock.recorded()) != 0 {
		t.Errorf("no delay expected, got %v", clock.recorded())
	}
}

func TestScheduler_RetriesUntilSuccess(t *testing.T) {
	s, clock := newTestScheduler(NewExponential(ExponentialConfig{DisableJitter: true}))
	finished := make(chan struct{})
	testErr := errors.New("ECONNREFUSED")

	var mu sync.Mutex
	calls := 0
	s.Run(func(done func(error)) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		if n < 4 {
			done(testErr)
			return
		}
		done(nil)
		close(finished)
	}, nil)

	waitFor(t, finished)

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	got := clock.recorded()
	if len(got) != len(want) {
		t.Fatalf("delays = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

// Connect always fails and the loop keeps going with growing, capped delays.
func TestScheduler_RefusedForeverBacksOff(t *testing.T) {
	s, clock := newTestScheduler(nil)
	stopped := make(chan struct{})

	var mu sync.Mutex
	calls := 0
	s.Run(func(done func(error)) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		if n == 9 {
			s.Cancel()
			done(errors.New("ECONNREFUSED"))
			close(stopped)
			return
		}
		done(errors.New("ECONNREFUSED"))
	}, func(err error) {
		t.Errorf("onGiveUp called: %v", err)
	})

	waitFor(t, stopped)

	bases := []time.Duration{1, 2, 4, 8, 16, 30, 30, 30}
	got := clock.recorded()
	if len(got) != len(bases) {
		t.Fatalf("recorded %d delays, want %d: %v", len(got), len(bases), got)
	}
	for i, b := range bases {
		base := b * time.Second
		lo := time.Duration(float64(base) * 0.9)
		hi := time.Duration(float64(base) * 1.1)
		if got[i] < lo || got[i] > hi {
			t.Errorf("delay[%d] = %v, want within [%v, %v]", i, got[i], lo, hi)
		}
	}
}

func TestScheduler_UnrecoverableGivesUp(t *testing.T) {
	s, _ := newTestScheduler(NewConstant(time.Millisecond))
	gaveUp := make(chan error, 1)
	fatal := errors.New("ACCESS_REFUSED")

	var mu sync.Mutex
	calls := 0
	s.Run(func(done func(error)) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		if n == 3 {
			done(Unrecoverable(fatal))
			return
		}
		done(errors.New("transient"))
	}, func(err error) {
		gaveUp <- err
	})

	select {
	case err := <-gaveUp:
		if !errors.Is(err, fatal) {
			t.Errorf("onGiveUp error = %v, want %v", err, fatal)
		}
		if IsUnrecoverable(err) {
			t.Error("onGiveUp error should be unwrapped")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onGiveUp not called")
	}

	// No fourth attempt may start.
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if s.Running() {
		t.Error("Running() = true after give up")
	}
}

func TestScheduler_StrategyStop(t *testing.T) {
	s, _ := newTestScheduler(Limit(NewConstant(time.Millisecond), 2))
	gaveUp := make(chan error, 1)
	attemptErr := errors.New("ECONNREFUSED")

	s.Run(func(done func(error)) {
		done(attemptErr)
	}, func(err error) {
		gaveUp <- err
	})

	select {
	case err := <-gaveUp:
		if !errors.Is(err, ErrStrategyStopped) {
			t.Errorf("error = %v, want ErrStrategyStopped", err)
		}
		if !errors.Is(err, attemptErr) {
			t.Errorf("error = %v, want wrapped attempt error", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onGiveUp not called")
	}

	if s.Attempts() != 3 {
		t.Errorf("Attempts() = %d, want 3", s.Attempts())
	}
}

func TestScheduler_CancelIgnoresInFlightDone(t *testing.T) {
	s, clock := newTestScheduler(nil)
	started := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})

	s.Run(func(done func(error)) {
		close(started)
		<-release
		done(errors.New("late failure"))
		close(finished)
	}, func(err error) {
		t.Errorf("onGiveUp called: %v", err)
	})

	waitFor(t, started)
	s.Cancel()
	close(release)
	waitFor(t, finished)

	if len(clock.recorded()) != 0 {
		t.Errorf("canceled loop scheduled a retry: %v", clock.recorded())
	}
	if s.Running() {
		t.Error("Running() = true after Cancel")
	}
}

func TestScheduler_DoneIsOneShot(t *testing.T) {
	s, clock := newTestScheduler(nil)
	finished := make(chan struct{})

	var mu sync.Mutex
	calls := 0
	s.Run(func(done func(error)) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		if n == 1 {
			done(errors.New("first"))
			done(errors.New("second"))
			return
		}
		done(nil)
		close(finished)
	}, nil)

	waitFor(t, finished)
	if got := len(clock.recorded()); got != 1 {
		t.Errorf("scheduled %d retries, want 1", got)
	}
}

func TestScheduler_OnRetryAndSetStrategy(t *testing.T) {
	s, _ := newTestScheduler(nil)
	s.SetStrategy(NewConstant(7 * time.Millisecond))
	s.SetStrategy(nil)

	type retry struct {
		attempt int
		delay   time.Duration
	}
	retries := make(chan retry, 4)
	s.OnRetry(func(attempt int, err error, delay time.Duration) {
		retries <- retry{attempt, delay}
	})

	finished := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	s.Run(func(done func(error)) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n < 3 {
			done(errors.New("retry me"))
			return
		}
		done(nil)
		close(finished)
	}, nil)

	waitFor(t, finished)

	// The timer can fire the next attempt before OnRetry returns, so the
	// two calls may arrive in either order.
	got := make([]retry, 0, 2)
	for len(got) < 2 {
		select {
		case r := <-retries:
			got = append(got, r)
		case <-time.After(2 * time.Second):
			t.Fatalf("OnRetry called %d times, want 2", len(got))
		}
	}
	sort.Slice(got, func(i, j int) bool { return got[i].attempt < got[j].attempt })
	select {
	case r := <-retries:
		t.Errorf("unexpected extra retry %+v", r)
	default:
	}
	for i, r := range got {
		if r.attempt != i+1 {
			t.Errorf("retry[%d].attempt = %d, want %d", i, r.attempt, i+1)
		}
		if r.delay != 7*time.Millisecond {
			t.Errorf("retry[%d].delay = %v, want 7ms", i, r.delay)
		}
	}
}

func TestScheduler_RealTimer(t *testing.T) {
	s := NewScheduler(NewConstant(time.Millisecond))
	finished := make(chan struct{})

	var mu sync.Mutex
	calls := 0
	s.Run(func(done func(error)) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n < 3 {
			done(errors.New("not yet"))
			return
		}
		done(nil)
		close(finished)
	}, nil)

	waitFor(t, finished)
}

func TestUnrecoverable(t *testing.T) {
	if Unrecoverable(nil) != nil {
		t.Error("Unrecoverable(nil) should be nil")
	}

	base := errors.New("fatal")
	err := Unrecoverable(base)
	if !IsUnrecoverable(err) {
		t.Error("IsUnrecoverable() = false, want true")
	}
	if !errors.Is(err, base) {
		t.Error("Unrecoverable error should wrap the cause")
	}
	if IsUnrecoverable(base) {
		t.Error("IsUnrecoverable(plain) = true, want false")
	}
}
