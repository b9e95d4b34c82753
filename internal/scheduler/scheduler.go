// Package scheduler drives automatic finalization of finished diary days.
//
// A Scheduler periodically asks the diary service which journals from past
// days are still collecting and merges each one. It also offers a direct
// path for users who want to finish today's journal early. Both paths go
// through diary.Service.MergeJournal, which checks the stored status before
// publishing, so they can overlap safely.
package scheduler

import (
	"context"
	"errors"
	"log"
	"math"
	"sync"
	"time"

	"diary/internal/diary"
)

const (
	DefaultInterval = 60 * time.Second
	maxBackoff      = 10 * time.Minute
)

// Merger is the subset of diary.Service the scheduler needs.
type Merger interface {
	Today() diary.Date
	GetPendingMerges(ctx context.Context) ([]diary.PendingMerge, error)
	MergeJournal(ctx context.Context, userID uint64, day diary.Date) (string, error)
}

// Scheduler owns the background merge loop. The zero value is not usable;
// create one with New.
type Scheduler struct {
	merger   Merger
	interval time.Duration
	logger   *log.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// guarded by stateMu; touched by ticks and ForceMergeToday
	stateMu  sync.Mutex
	lastDay  diary.Date
	failures map[diary.PendingMerge]failure
}

type failure struct {
	attempts int
	next     time.Time
}

// New returns a stopped scheduler. A non-positive interval uses
// DefaultInterval and a nil logger uses log.Default().
func New(m Merger, interval time.Duration, logger *log.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		merger:   m,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		failures: map[diary.PendingMerge]failure{},
	}
}

func (s *Scheduler) Interval() time.Duration { return s.interval }

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start launches the loop. The first tick runs immediately. Calling Start on
// a running scheduler does nothing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.Printf("scheduler: already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)

	s.logger.Printf("scheduler: started interval=%s", s.interval)
}

// Stop ends the loop and waits for it to exit. A merge that is already
// talking to the external service is allowed to finish. No tick starts after
// Stop returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Printf("scheduler: stopped")
}

func (s *Scheduler) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.RunOnce(ctx)
			timer.Reset(s.interval)
		}
	}
}

// RunOnce performs one tick: it merges every pending journal that is not
// backing off after a failure and returns the references it published. A
// failure for one journal is logged and does not stop the others. When ctx
// is cancelled the tick stops before the next journal; the current merge
// runs to completion.
func (s *Scheduler) RunOnce(ctx context.Context) []string {
	s.observeDay(s.merger.Today())

	pending, err := s.merger.GetPendingMerges(ctx)
	if err != nil {
		s.logger.Printf("scheduler: list pending merges: %v", err)
		return nil
	}
	if len(pending) > 0 {
		s.logger.Printf("scheduler: %d journal(s) pending merge", len(pending))
	}

	// merges must not be cut off halfway by Stop
	mergeCtx := context.WithoutCancel(ctx)

	var refs []string
	for _, p := range pending {
		if ctx.Err() != nil {
			break
		}
		if !s.due(p) {
			continue
		}

		ref, err := s.merger.MergeJournal(mergeCtx, p.UserID, p.Day)
		switch {
		case errors.Is(err, diary.ErrMergeInProgress):
			s.logger.Printf("scheduler: merge in progress elsewhere user=%d date=%s", p.UserID, p.Day)
		case err != nil:
			wait := s.recordFailure(p)
			s.logger.Printf("scheduler: merge failed user=%d date=%s retry_in=%s: %v", p.UserID, p.Day, wait, err)
		default:
			s.clearFailure(p)
			if ref != "" {
				refs = append(refs, ref)
				s.logger.Printf("scheduler: merged user=%d date=%s ref=%s", p.UserID, p.Day, ref)
			}
		}
	}
	s.pruneFailures(pending)
	return refs
}

// ForceMergeToday merges the user's journal for today right away, bypassing
// the "day is over" rule. It returns the day it merged and "" as reference
// when there is nothing to merge.
func (s *Scheduler) ForceMergeToday(ctx context.Context, userID uint64) (diary.Date, string, error) {
	today := s.merger.Today()
	s.logger.Printf("scheduler: forced merge user=%d date=%s", userID, today)

	ref, err := s.merger.MergeJournal(ctx, userID, today)
	if err != nil {
		return today, "", err
	}
	s.clearFailure(diary.PendingMerge{UserID: userID, Day: today})
	return today, ref, nil
}

func (s *Scheduler) observeDay(today diary.Date) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if !s.lastDay.IsZero() && s.lastDay != today {
		s.logger.Printf("scheduler: day changed %s -> %s", s.lastDay, today)
	}
	s.lastDay = today
}

// LastDay is the day observed by the most recent tick.
func (s *Scheduler) LastDay() diary.Date {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.lastDay
}

func (s *Scheduler) due(p diary.PendingMerge) bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	f, ok := s.failures[p]
	return !ok || !s.now().Before(f.next)
}

// recordFailure schedules the next attempt 2^attempts seconds out, capped
// at maxBackoff.
func (s *Scheduler) recordFailure(p diary.PendingMerge) time.Duration {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	f := s.failures[p]
	f.attempts++
	sec := math.Min(math.Pow(2, float64(f.attempts)), maxBackoff.Seconds())
	wait := time.Duration(sec) * time.Second
	f.next = s.now().Add(wait)
	s.failures[p] = f
	return wait
}

// pruneFailures forgets journals that are no longer pending, e.g. merged
// from the CLI.
func (s *Scheduler) pruneFailures(pending []diary.PendingMerge) {
	keep := make(map[diary.PendingMerge]struct{}, len(pending))
	for _, p := range pending {
		keep[p] = struct{}{}
	}
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	for p := range s.failures {
		if _, ok := keep[p]; !ok {
			delete(s.failures, p)
		}
	}
}

func (s *Scheduler) clearFailure(p diary.PendingMerge) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	delete(s.failures, p)
}
