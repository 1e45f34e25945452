// Package keylock serializes work per logical key while letting distinct keys run in parallel.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Arena hands out one mutex per key. Entries are dropped once no goroutine holds or waits on them.
type Arena struct {
	mu    sync.Mutex
	locks map[string]*entry
}

func New() *Arena {
	return &Arena{locks: make(map[string]*entry)}
}

// Lock blocks until key is held and returns the matching unlock func.
func (a *Arena) Lock(key string) func() {
	a.mu.Lock()
	e, ok := a.locks[key]
	if !ok {
		e = &entry{}
		a.locks[key] = e
	}
	e.refs++
	a.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		a.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(a.locks, key)
		}
		a.mu.Unlock()
	}
}

// Len reports how many keys currently have holders or waiters.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.locks)
}
