package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeTicker struct {
	c       chan time.Time
	stopped bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.c }
func (f *fakeTicker) Stop()               { f.stopped = true }

type fakeClock struct {
	mu      sync.Mutex
	tickers map[time.Duration]*fakeTicker
	ready   chan struct{}
	want    int
}

func newFakeClock(want int) *fakeClock {
	return &fakeClock{tickers: map[time.Duration]*fakeTicker{}, ready: make(chan struct{}), want: want}
}

func (f *fakeClock) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{c: make(chan time.Time)}
	f.tickers[d] = t
	if len(f.tickers) == f.want {
		close(f.ready)
	}
	return t
}

func (f *fakeClock) tick(t *testing.T, d time.Duration) {
	t.Helper()
	f.mu.Lock()
	tk := f.tickers[d]
	f.mu.Unlock()
	select {
	case tk.c <- time.Now():
	case <-time.After(time.Second):
		t.Fatalf("ticker %s not being read", d)
	}
}

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) task(name string, err error) func(context.Context) error {
	return func(ctx context.Context) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.calls = append(c.calls, name)
		return err
	}
}

func (c *callLog) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, got := range c.calls {
		if got == name {
			n++
		}
	}
	return n
}

func TestScheduler_PrimesInOrderThenLoops(t *testing.T) {
	clock := newFakeClock(2)
	s := NewScheduler(time.Second, zerolog.Nop())
	s.clock = clock

	calls := &callLog{}
	s.Prime(
		Task{Name: "deposit", Run: calls.task("prime-deposit", nil)},
		Task{Name: "swap", Run: calls.task("prime-swap", nil)},
	)
	s.Every(
		Task{Name: "deposit", Interval: 5 * time.Second, Run: calls.task("deposit", errors.New("rpc down"))},
		Task{Name: "status", Interval: 400 * time.Millisecond, Run: calls.task("status", nil)},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-clock.ready:
	case <-time.After(time.Second):
		t.Fatal("loops did not start")
	}

	calls.mu.Lock()
	if len(calls.calls) != 2 || calls.calls[0] != "prime-deposit" || calls.calls[1] != "prime-swap" {
		t.Fatalf("prime calls = %v", calls.calls)
	}
	calls.mu.Unlock()

	clock.tick(t, 400*time.Millisecond)
	clock.tick(t, 400*time.Millisecond)
	clock.tick(t, 5*time.Second)
	// a failing task keeps its schedule
	clock.tick(t, 5*time.Second)
	clock.tick(t, 400*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}

	if calls.count("status") < 2 || calls.count("deposit") < 1 {
		t.Fatalf("calls = %v", calls.calls)
	}
}

func TestScheduler_SlowTaskDoesNotBlockOthers(t *testing.T) {
	clock := newFakeClock(2)
	s := NewScheduler(time.Second, zerolog.Nop())
	s.clock = clock

	release := make(chan struct{})
	calls := &callLog{}
	s.Every(
		Task{Name: "slow", Interval: time.Second, Run: func(ctx context.Context) error {
			<-release
			return nil
		}},
		Task{Name: "fast", Interval: time.Millisecond, Run: calls.task("fast", nil)},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()
	<-clock.ready

	clock.tick(t, time.Second)
	for i := 0; i < 3; i++ {
		clock.tick(t, time.Millisecond)
	}
	close(release)

	if calls.count("fast") < 2 {
		t.Fatalf("fast task ran %d times while slow task was busy", calls.count("fast"))
	}
}

func TestScheduler_AppliesPerRunTimeout(t *testing.T) {
	s := NewScheduler(10*time.Millisecond, zerolog.Nop())
	var deadline bool
	s.Prime(Task{Name: "io", Run: func(ctx context.Context) error {
		_, deadline = ctx.Deadline()
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = s.Run(ctx)
	if deadline {
		t.Fatal("cancelled context should skip priming")
	}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !deadline {
		t.Fatal("task context has no deadline")
	}
}
