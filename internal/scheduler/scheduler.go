// Package scheduler fires named jobs on cron schedules. Jobs run one at a time
// on the goroutine that called Run, so two jobs never overlap.
package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is the work fired by a schedule entry.
type Job func(ctx context.Context) error

// entry represents a scheduled job in the heap.
type entry struct {
	name     string
	schedule cron.Schedule
	job      Job
	nextRun  time.Time
}

// entryHeap is a min-heap of entries ordered by nextRun (earliest first).
type entryHeap []entry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return h[i].nextRun.Before(h[j].nextRun) }
func (h entryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)        { *h = append(*h, x.(entry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Scheduler manages jobs with a min-heap and a single timer.
type Scheduler struct {
	mu    sync.Mutex
	heap  entryHeap
	reset chan struct{} // wakes Run after the heap changed
	log   zerolog.Logger
	now   func() time.Time
}

// New creates an empty Scheduler.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		reset: make(chan struct{}, 1),
		log:   log.With().Str("component", "scheduler").Logger(),
		now:   time.Now,
	}
}

// Add registers job under name with a cron expression. An existing job with
// the same name is replaced.
func (s *Scheduler) Add(name, expr string, job Job) error {
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}

	s.mu.Lock()
	s.removeLockedByName(name)
	heap.Push(&s.heap, entry{
		name:     name,
		schedule: schedule,
		job:      job,
		nextRun:  NextTime(schedule, s.now()),
	})
	s.mu.Unlock()

	s.wake()
	return nil
}

// Remove drops a job by name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	s.removeLockedByName(name)
	s.mu.Unlock()
	s.wake()
}

// removeLockedByName removes the first entry matching name. Caller must hold s.mu.
func (s *Scheduler) removeLockedByName(name string) {
	for i, e := range s.heap {
		if e.name == name {
			heap.Remove(&s.heap, i)
			return
		}
	}
}

// Next returns the next scheduled run time for the named job.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.heap {
		if e.name == name {
			return e.nextRun, true
		}
	}
	return time.Time{}, false
}

// Non-blocking send so Run re-reads the heap.
func (s *Scheduler) wake() {
	select {
	case s.reset <- struct{}{}:
	default:
	}
}

// Run fires due jobs until ctx is done and then returns ctx.Err(). A failing
// job is logged and stays scheduled.
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		s.mu.Lock()
		wait := time.Duration(-1)
		if s.heap.Len() > 0 {
			wait = s.heap[0].nextRun.Sub(s.now())
			if wait < 0 {
				wait = 0
			}
		}
		s.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		var fire <-chan time.Time
		if wait >= 0 {
			timer.Reset(wait)
			fire = timer.C
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.reset:
			continue
		case <-fire:
		}

		e, ok := s.popDue()
		if !ok {
			// Spurious wake.
			continue
		}

		start := s.now()
		s.log.Debug().Str("job", e.name).Msg("job started")
		if err := e.job(ctx); err != nil {
			s.log.Error().Err(err).Str("job", e.name).Msg("job failed")
		} else {
			s.log.Debug().Str("job", e.name).Dur("took", s.now().Sub(start)).Msg("job finished")
		}
	}
}

// popDue reschedules the earliest entry if it is due and returns it.
func (s *Scheduler) popDue() (entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.heap.Len() == 0 {
		return entry{}, false
	}
	now := s.now()
	e := s.heap[0]
	if e.nextRun.After(now) {
		return entry{}, false
	}

	heap.Pop(&s.heap)
	next := e
	next.nextRun = NextTime(e.schedule, now)
	heap.Push(&s.heap, next)
	return e, true
}
