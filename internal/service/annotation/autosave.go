package annotation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pinmap/internal/domain/pin"
	"pinmap/internal/metrics"
)

// DefaultDelay is the quiet period before a comment edit is saved
const DefaultDelay = 350 * time.Millisecond

// SaveFunc persists a comment and returns the canonical result
type SaveFunc func(ctx context.Context, id, comment string) (pin.CommentUpdate, error)

// SchedulerConfig contains configuration for the autosave scheduler
type SchedulerConfig struct {
	Delay       time.Duration
	SaveTimeout time.Duration
}

// pendingSave is the single outstanding timer for one id
type pendingSave struct {
	seq   uint64
	value string
	timer *time.Timer

	// due is set when the timer elapsed while a save for the id was running
	due bool
}

// Scheduler debounces comment saves per pin id. Each id has at most one
// pending timer; a new edit replaces it. At most one save per id runs at a
// time: a timer that elapses during a save stays pending and fires when
// that save completes.
type Scheduler struct {
	save     SaveFunc
	config   SchedulerConfig
	pending  map[string]*pendingSave
	inflight map[string]bool
	seq      uint64
	stopped  bool

	savedHandlers  []func(id string, update pin.CommentUpdate)
	failedHandlers []func(id string, err error)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	logger *slog.Logger
}

// NewScheduler creates a scheduler that persists through save
func NewScheduler(save SaveFunc, config SchedulerConfig, logger *slog.Logger) *Scheduler {
	if config.Delay <= 0 {
		config.Delay = DefaultDelay
	}
	if config.SaveTimeout <= 0 {
		config.SaveTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		save:     save,
		config:   config,
		pending:  make(map[string]*pendingSave),
		inflight: make(map[string]bool),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
	}
}

// RegisterSavedHandler registers a callback for successful saves
func (s *Scheduler) RegisterSavedHandler(handler func(id string, update pin.CommentUpdate)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.savedHandlers = append(s.savedHandlers, handler)
}

// RegisterFailedHandler registers a callback for failed saves
func (s *Scheduler) RegisterFailedHandler(handler func(id string, err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failedHandlers = append(s.failedHandlers, handler)
}

// Schedule (re)starts the timer for id. The value passed last before the
// timer fires is the one saved. It returns false once the scheduler is stopped.
func (s *Scheduler) Schedule(id, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}

	if existing, ok := s.pending[id]; ok {
		existing.timer.Stop()
	}

	s.seq++
	seq := s.seq
	entry := &pendingSave{seq: seq, value: value}
	entry.timer = time.AfterFunc(s.config.Delay, func() {
		s.fire(id, seq)
	})
	s.pending[id] = entry

	return true
}

// Cancel drops the pending save for id. It reports whether one existed.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.pending[id]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(s.pending, id)
	return true
}

// CancelAll drops every pending save and returns how many were dropped
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.pending)
	for id, entry := range s.pending {
		entry.timer.Stop()
		delete(s.pending, id)
	}
	return n
}

// Pending reports whether a save is scheduled for id
func (s *Scheduler) Pending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.pending[id]
	return ok
}

// Stop cancels pending saves and waits for in-flight ones until ctx is done
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	for id, entry := range s.pending {
		entry.timer.Stop()
		delete(s.pending, id)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

// Flush saves every pending edit immediately and waits for in-flight
// saves until ctx is done
func (s *Scheduler) Flush(ctx context.Context) error {
	s.mu.Lock()
	due := make(map[string]uint64, len(s.pending))
	for id, entry := range s.pending {
		if entry.timer.Stop() {
			due[id] = entry.seq
		}
	}
	s.mu.Unlock()

	for id, seq := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.fire(id, seq)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fire runs when the timer for id elapses
func (s *Scheduler) fire(id string, seq uint64) {
	s.mu.Lock()
	entry, ok := s.pending[id]
	if !ok || entry.seq != seq || s.stopped {
		s.mu.Unlock()
		return
	}
	if s.inflight[id] {
		entry.due = true
		s.mu.Unlock()
		return
	}
	delete(s.pending, id)
	s.inflight[id] = true
	value := entry.value
	saved := append([]func(string, pin.CommentUpdate){}, s.savedHandlers...)
	failed := append([]func(string, error){}, s.failedHandlers...)
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	defer s.finish(id)

	ctx, cancel := context.WithTimeout(s.ctx, s.config.SaveTimeout)
	defer cancel()

	update, err := s.save(ctx, id, value)
	if err != nil {
		metrics.AutosaveTotal.WithLabelValues("error").Inc()
		s.logger.Warn("Error saving comment", "pin_id", id, "error", err)
		for _, handler := range failed {
			handler(id, err)
		}
		return
	}

	metrics.AutosaveTotal.WithLabelValues("ok").Inc()
	s.logger.Debug("Saved comment", "pin_id", id)
	for _, handler := range saved {
		handler(id, update)
	}
}

// finish clears the in-flight mark for id and starts the save whose timer
// elapsed in the meantime
func (s *Scheduler) finish(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	next, ok := s.pending[id]
	due := ok && next.due && !s.stopped
	var seq uint64
	if due {
		seq = next.seq
		s.wg.Add(1)
	}
	s.mu.Unlock()

	if due {
		go func() {
			defer s.wg.Done()
			s.fire(id, seq)
		}()
	}
}
