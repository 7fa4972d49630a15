package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type Clock interface {
	NewTicker(d time.Duration) Ticker
}

type realClock struct{}

func (realClock) NewTicker(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Runs startup passes once, then every periodic task on its own ticker. A slow task only
// delays its own next run.
type Scheduler struct {
	clock   Clock
	timeout time.Duration
	log     zerolog.Logger

	prime []Task
	tasks []Task
}

func NewScheduler(timeout time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		clock:   realClock{},
		timeout: timeout,
		log:     log.With().Str("component", "scheduler").Logger(),
	}
}

// Adds tasks run once, in order, before the loops start
func (s *Scheduler) Prime(tasks ...Task) {
	s.prime = append(s.prime, tasks...)
}

func (s *Scheduler) Every(tasks ...Task) {
	s.tasks = append(s.tasks, tasks...)
}

func (s *Scheduler) Run(ctx context.Context) error {
	for _, t := range s.prime {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.runOnce(ctx, t)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, t := range s.tasks {
		t := t
		g.Go(func() error {
			return s.loop(ctx, t)
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, t Task) error {
	ticker := s.clock.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			s.runOnce(ctx, t)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, t Task) {
	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := t.Run(tctx); err != nil {
		s.log.Warn().Err(err).Str("task", t.Name).Msg("cycle failed")
	}
}
