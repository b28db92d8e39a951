package game

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// TimeoutScheduler arms one response-window deadline per room. Scheduling a
// new deadline replaces the previous one, which matches how a new action
// opens a fresh window.
type TimeoutScheduler struct {
	logger *zap.Logger
	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

func NewTimeoutScheduler(logger *zap.Logger) *TimeoutScheduler {
	return &TimeoutScheduler{
		logger: logger,
		timers: make(map[string]*time.Timer),
	}
}

// Schedule arms the room's deadline. fn runs on the timer goroutine once
// the duration elapses, unless the deadline is cancelled or replaced first.
func (s *TimeoutScheduler) Schedule(roomID string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if timer, exists := s.timers[roomID]; exists {
		timer.Stop()
	}

	s.timers[roomID] = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, roomID)
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}

		if s.logger != nil {
			s.logger.Debug("response window expired", zap.String("room_id", roomID))
		}
		fn()
	})
}

// Cancel disarms the room's deadline if one is set.
func (s *TimeoutScheduler) Cancel(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, exists := s.timers[roomID]; exists {
		timer.Stop()
		delete(s.timers, roomID)
	}
}

// Stop cancels every deadline and rejects further scheduling.
func (s *TimeoutScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for roomID, timer := range s.timers {
		timer.Stop()
		delete(s.timers, roomID)
	}
}
