package session

import "sync"

// userLocks hands out one mutex per user so that all operations on a user's
// live session are serialized while different users stay fully independent.
// Entries are never evicted; the map is bounded by the number of distinct
// users seen by this process.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *userLocks) get(userID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	if mu, ok := l.locks[userID]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	l.locks[userID] = mu
	return mu
}
