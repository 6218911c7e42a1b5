package request

import (
	"sync"
	"time"
)

// executionLock is a per-request advisory lock preventing two concurrent
// attempts to execute the same adopted request. Acquire fails fast while a
// live lock is held; a lock older than the expiry is considered abandoned
// (a trapped downstream call must not wedge the request forever) and may be
// re-acquired.
type executionLock struct {
	mu     sync.Mutex
	held   map[string]time.Time
	expiry time.Duration
	clock  Clock
}

func newExecutionLock(expiry time.Duration, clock Clock) *executionLock {
	return &executionLock{
		held:   make(map[string]time.Time),
		expiry: expiry,
		clock:  clock,
	}
}

// Acquire takes the lock for the request ID, reporting false if it is
// already held and not expired.
func (l *executionLock) Acquire(requestID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	acquiredAt, ok := l.held[requestID]
	if ok && l.clock.Now().Sub(acquiredAt) < l.expiry {
		return false
	}
	l.held[requestID] = l.clock.Now()
	return true
}

// Release frees the lock for the request ID.
func (l *executionLock) Release(requestID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, requestID)
}
