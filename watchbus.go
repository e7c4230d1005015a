// FILE: secureconfig/watchbus.go
package secureconfig

import (
	"sync"
	"sync/atomic"
)

// Change is delivered to observers after a mutation commits.
type Change struct {
	Key      string
	Previous any
	Next     any
}

// WatchFunc observes committed changes.
type WatchFunc func(Change)

// UnwatchFunc removes exactly the subscription it was returned for.
// Calling it more than once is a no-op.
type UnwatchFunc func()

// Bus registers per-key and global observers and delivers change
// notifications synchronously after a store commit. Delivery order across
// callbacks for the same key is unspecified.
type Bus struct {
	mu     sync.RWMutex
	byKey  map[string]map[int64]WatchFunc
	global map[int64]WatchFunc
	nextID atomic.Int64
}

// NewBus creates an empty observer bus.
func NewBus() *Bus {
	return &Bus{
		byKey:  make(map[string]map[int64]WatchFunc),
		global: make(map[int64]WatchFunc),
	}
}

// Watch registers an observer for a single key. Multiple observers per key
// are supported. The returned UnwatchFunc removes this observer; removing
// the last observer for a key releases that key's subscription slot.
func (b *Bus) Watch(key string, fn WatchFunc) UnwatchFunc {
	if fn == nil {
		return func() {}
	}

	id := b.nextID.Add(1)

	b.mu.Lock()
	subs, ok := b.byKey[key]
	if !ok {
		subs = make(map[int64]WatchFunc)
		b.byKey[key] = subs
	}
	subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if subs, ok := b.byKey[key]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(b.byKey, key)
				}
			}
		})
	}
}

// WatchAll registers an observer for every committed change, used for
// file-driven overlay reloads among other things.
func (b *Bus) WatchAll(fn WatchFunc) UnwatchFunc {
	if fn == nil {
		return func() {}
	}

	id := b.nextID.Add(1)

	b.mu.Lock()
	b.global[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.global, id)
		})
	}
}

// Count returns the number of observers registered for key, or the number
// of global observers when key is empty.
func (b *Bus) Count(key string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if key == "" {
		return len(b.global)
	}
	return len(b.byKey[key])
}

// Notify delivers a change to every matching observer. Callbacks are
// collected under the read lock but invoked outside it, so an observer may
// safely re-enter the service.
func (b *Bus) Notify(ch Change) {
	b.mu.RLock()
	fns := make([]WatchFunc, 0, len(b.byKey[ch.Key])+len(b.global))
	for _, fn := range b.byKey[ch.Key] {
		fns = append(fns, fn)
	}
	for _, fn := range b.global {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(ch)
	}
}
