package syncer

import "sync"

// keyedLock is an in-process try-lock per entity key. It closes the race
// window of the log-table overlap guard for callers inside this process;
// the log-based check stays in place for anything outside it.
type keyedLock struct {
	mu   sync.Mutex
	held map[string]bool
}

func newKeyedLock() *keyedLock {
	return &keyedLock{held: make(map[string]bool)}
}

// TryLock acquires the key's lock without blocking; returns false when the
// key is already held.
func (l *keyedLock) TryLock(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[key] {
		return false
	}
	l.held[key] = true
	return true
}

// Unlock releases the key's lock
func (l *keyedLock) Unlock(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}
