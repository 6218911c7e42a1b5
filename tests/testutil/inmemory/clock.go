package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/stationhq/station/internal/request"
)

// Clock is a controllable clock for deterministic lifecycle tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock fixed at the given time.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set pins the clock to a specific time.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Notification is a captured lifecycle notification.
type Notification struct {
	UserID string
	Event  request.Event
}

// CaptureSink records lifecycle notifications.
type CaptureSink struct {
	mu            sync.Mutex
	notifications []Notification
}

// NewCaptureSink creates a new capture sink.
func NewCaptureSink() *CaptureSink {
	return &CaptureSink{}
}

// Notify implements request.NotificationSink.
func (s *CaptureSink) Notify(ctx context.Context, userID string, event request.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, Notification{UserID: userID, Event: event})
}

// Notifications returns the captured notifications.
func (s *CaptureSink) Notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.notifications...)
}
