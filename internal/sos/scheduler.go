package sos

import (
	"sync"
	"time"
)

// Scheduler defers the escalation re-checks. Implementations must be
// single-flight per alert id: scheduling replaces any pending timer, and
// Cancel on a terminal transition stops stragglers.
type Scheduler interface {
	Schedule(alertID int64, delay time.Duration, fn func())
	Cancel(alertID int64)
}

// TimerScheduler runs callbacks on time.AfterFunc timers keyed by alert id.
type TimerScheduler struct {
	mu     sync.Mutex
	timers map[int64]*time.Timer
}

// NewTimerScheduler constructs a TimerScheduler.
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[int64]*time.Timer)}
}

// Schedule arms a timer for the alert, replacing any pending one.
func (s *TimerScheduler) Schedule(alertID int64, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[alertID]; ok {
		t.Stop()
	}
	s.timers[alertID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, alertID)
		s.mu.Unlock()
		fn()
	})
}

// Cancel stops the alert's pending timer, if any.
func (s *TimerScheduler) Cancel(alertID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[alertID]; ok {
		t.Stop()
		delete(s.timers, alertID)
	}
}
