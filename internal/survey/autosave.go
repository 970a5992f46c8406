package survey

import (
	"context"
	"errors"
	"sync"
	"time"

	"diagnostica-backend/utilities"
)

// DefaultDebounce is how long an edit sits before being persisted.
const DefaultDebounce = 1000 * time.Millisecond

// background persists triggered by the timer get their own deadline.
const persistTimeout = 10 * time.Second

// PersistFunc writes one answer to the durable store.
type PersistFunc func(ctx context.Context, questionCode string, v Value) error

// Scheduler debounces and coalesces answer edits before persisting
// them. Edits to the same question within the debounce window collapse
// to the latest value; superseded intermediates are never written.
//
// Writes for a question are serialized through a per-question lock held
// across the persist call, so a slow timer-fired write can never land
// after a flush of a newer value, and a flush always waits out any
// write still in flight.
type Scheduler struct {
	mu       sync.Mutex
	delay    time.Duration
	persist  PersistFunc
	pending  map[string]*pendingEdit
	saved    map[string]Value
	writing  map[string]*sync.Mutex
	disposed bool
}

type pendingEdit struct {
	value Value
	timer *time.Timer
}

func NewScheduler(delay time.Duration, persist PersistFunc) *Scheduler {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Scheduler{
		delay:   delay,
		persist: persist,
		pending: make(map[string]*pendingEdit),
		saved:   make(map[string]Value),
		writing: make(map[string]*sync.Mutex),
	}
}

// writeLock returns the persist lock for a question. Caller holds s.mu.
func (s *Scheduler) writeLock(questionCode string) *sync.Mutex {
	wl, ok := s.writing[questionCode]
	if !ok {
		wl = &sync.Mutex{}
		s.writing[questionCode] = wl
	}
	return wl
}

// OnEdit records the latest value for a question and arms (or re-arms)
// its debounce timer. Always succeeds; persistence happens later.
func (s *Scheduler) OnEdit(questionCode string, v Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	if prev, ok := s.pending[questionCode]; ok && prev.timer != nil {
		prev.timer.Stop()
	}
	pe := &pendingEdit{value: v}
	pe.timer = time.AfterFunc(s.delay, func() { s.fire(questionCode, pe) })
	s.pending[questionCode] = pe
}

// fire runs when a debounce timer expires. A failed write is logged
// and kept pending so the next flush or edit retries it; typing is
// never interrupted by a transient save error.
func (s *Scheduler) fire(questionCode string, pe *pendingEdit) {
	s.mu.Lock()
	if s.pending[questionCode] != pe || s.disposed {
		s.mu.Unlock()
		return
	}
	wl := s.writeLock(questionCode)
	s.mu.Unlock()

	wl.Lock()
	defer wl.Unlock()

	// Re-check now that the write lock is held: a flush may have run
	// ahead and persisted this value, or a newer one.
	s.mu.Lock()
	if s.pending[questionCode] != pe || s.disposed {
		s.mu.Unlock()
		return
	}
	delete(s.pending, questionCode)
	v := pe.value
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.persist(ctx, questionCode, v); err != nil {
		utilities.Warn("autosave for question %s failed: %v", questionCode, err)
		s.mu.Lock()
		if _, exists := s.pending[questionCode]; !exists && !s.disposed {
			s.pending[questionCode] = &pendingEdit{value: v}
		}
		s.mu.Unlock()
		return
	}
	s.mu.Lock()
	s.saved[questionCode] = v
	s.mu.Unlock()
}

// Flush cancels the pending timer for a question and persists its
// value immediately, after waiting out any timer-fired write still in
// flight. A no-op when nothing is pending or the pending value already
// matches the last persisted one. The error is returned to the caller;
// flush failures block navigation and completion.
func (s *Scheduler) Flush(ctx context.Context, questionCode string) error {
	s.mu.Lock()
	wl := s.writeLock(questionCode)
	s.mu.Unlock()

	// An in-flight timer persist finishes first; if it failed it
	// re-queued its value, which this flush then picks up.
	wl.Lock()
	defer wl.Unlock()

	s.mu.Lock()
	pe, ok := s.pending[questionCode]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	if pe.timer != nil {
		pe.timer.Stop()
	}
	delete(s.pending, questionCode)
	v := pe.value
	if last, have := s.saved[questionCode]; have && last.Equal(v) {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.persist(ctx, questionCode, v); err != nil {
		s.mu.Lock()
		if _, exists := s.pending[questionCode]; !exists && !s.disposed {
			s.pending[questionCode] = &pendingEdit{value: v}
		}
		s.mu.Unlock()
		return err
	}
	s.mu.Lock()
	s.saved[questionCode] = v
	s.mu.Unlock()
	return nil
}

// FlushAll flushes every pending edit and waits out in-flight timer
// writes, used at session teardown.
func (s *Scheduler) FlushAll(ctx context.Context) error {
	s.mu.Lock()
	codes := make(map[string]struct{}, len(s.pending)+len(s.writing))
	for code := range s.pending {
		codes[code] = struct{}{}
	}
	for code := range s.writing {
		codes[code] = struct{}{}
	}
	s.mu.Unlock()

	var errs []error
	for code := range codes {
		if err := s.Flush(ctx, code); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MarkSaved seeds the last-persisted value for a question, used when a
// session resumes with answers already in the store.
func (s *Scheduler) MarkSaved(questionCode string, v Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[questionCode] = v
}

// Dispose cancels all pending timers. Unflushed values are dropped, so
// callers flush first when the data matters.
func (s *Scheduler) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
	for code, pe := range s.pending {
		if pe.timer != nil {
			pe.timer.Stop()
		}
		delete(s.pending, code)
	}
}
