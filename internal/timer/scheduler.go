// Package timer provides a cancellable "run this callback at wall-clock time
// T" primitive. Registrations are in-memory only; the lifecycle service
// rebuilds them from the store on startup.
package timer

import (
	"log"
	"sync"
	"time"
)

// Scheduler fires callbacks once at or after their wall-clock fire time.
// Callbacks run on their own goroutine; a panic in one callback is recovered
// and logged so it can never take down the process or block other timers.
type Scheduler struct {
	mu     sync.Mutex
	logger *log.Logger
	timers map[string]*time.Timer
}

// NewScheduler creates an empty scheduler.
func NewScheduler(logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		logger: logger,
		timers: make(map[string]*time.Timer),
	}
}

// ScheduleAt registers fn to run once at wall-clock time at, keyed by key.
// Past fire times run as soon as possible. Re-registering an existing key
// replaces the previous registration.
func (s *Scheduler) ScheduleAt(key string, at time.Time, fn func()) {
	d := time.Until(at)
	if d < 0 {
		d = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.timers[key]; ok {
		old.Stop()
	}

	s.timers[key] = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, key)
		s.mu.Unlock()

		defer func() {
			if r := recover(); r != nil {
				s.logger.Printf("timer %q panicked: %v", key, r)
			}
		}()
		fn()
	})
}

// Cancel stops a not-yet-fired registration. Reports whether a pending timer
// was cancelled; cancelling an unknown or already fired key is a no-op.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[key]
	if !ok {
		return false
	}
	delete(s.timers, key)
	return t.Stop()
}

// Pending returns the number of registrations that have not fired yet.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every outstanding registration. Used on shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
}
