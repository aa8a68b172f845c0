// Package locks provides named in-process read/write mutexes. The
// orchestration services key them by gallery and by image: image operations
// take the gallery lock shared plus their own image lock exclusive, so two
// images in one gallery proceed in parallel while a rename cannot race a
// delete of the same image; gallery deletion takes the gallery lock
// exclusive and thereby excludes every concurrent image operation inside
// that gallery.
package locks

import "sync"

type entry struct {
	mu   sync.RWMutex
	refs int
}

// Keyed hands out one read/write mutex per key. Entries are
// reference-counted and removed when the last holder releases, so the map
// does not grow with the number of keys ever seen.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewKeyed() *Keyed {
	return &Keyed{entries: make(map[string]*entry)}
}

func (k *Keyed) acquire(key string) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	return e
}

func (k *Keyed) release(key string, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

// Lock acquires the mutex for key exclusively and returns its unlock
// function.
func (k *Keyed) Lock(key string) func() {
	e := k.acquire(key)
	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.release(key, e)
	}
}

// RLock acquires the mutex for key shared and returns its unlock function.
func (k *Keyed) RLock(key string) func() {
	e := k.acquire(key)
	e.mu.RLock()
	return func() {
		e.mu.RUnlock()
		k.release(key, e)
	}
}
