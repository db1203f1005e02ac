package deployment

import "sync"

// LockManager serializes work per key (a working copy directory) so that two
// deliveries for the same repository never run git against it concurrently.
//
// This uses a two-level locking strategy:
// 1. The outer mutex (mu) protects the locks map itself from concurrent access
// 2. Each key has its own mutex held for the duration of a synchronization
//
// Different keys proceed in parallel.
type LockManager struct {
	mu    sync.Mutex             // Protects the locks map
	locks map[string]*sync.Mutex // Per-key locks
}

// NewLockManager creates a new lock manager
func NewLockManager() *LockManager {
	return &LockManager{
		locks: make(map[string]*sync.Mutex),
	}
}

func (lm *LockManager) lockFor(key string) *sync.Mutex {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lock, exists := lm.locks[key]
	if !exists {
		lock = &sync.Mutex{}
		lm.locks[key] = lock
	}
	return lock
}

// Lock blocks until the lock for key is acquired and returns the function
// that releases it. Callers should defer the returned function so the lock
// is released on every exit path.
func (lm *LockManager) Lock(key string) (unlock func()) {
	lock := lm.lockFor(key)
	lock.Lock()

	var once sync.Once
	return func() {
		once.Do(lock.Unlock)
	}
}
