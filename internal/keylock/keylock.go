// Package keylock provides in-process mutual exclusion scoped to string keys.
package keylock

import (
	"sort"
	"sync"
)

// Locker hands out one mutex per key. An entry lives only while some caller
// holds or waits on it, so request ids that are locked once do not pile up.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	sync.Mutex
	refs int
}

// New builds an empty Locker.
func New() *Locker {
	return &Locker{locks: make(map[string]*entry)}
}

func (l *Locker) acquire(key string) *entry {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.Lock()
	return e
}

func (l *Locker) release(key string, e *entry) {
	e.Unlock()
	l.mu.Lock()
	if e.refs--; e.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

// Len reports how many keys are currently held or awaited.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// Lock acquires every key in ascending order and returns the matching unlock.
// The fixed order keeps two callers locking {a,b} and {b,a} from deadlocking.
func (l *Locker) Lock(keys ...string) (unlock func()) {
	ordered := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		ordered = append(ordered, k)
	}
	sort.Strings(ordered)

	held := make([]*entry, 0, len(ordered))
	for _, k := range ordered {
		held = append(held, l.acquire(k))
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.release(ordered[i], held[i])
		}
	}
}
