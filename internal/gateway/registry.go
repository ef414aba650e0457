// Package gateway owns the broker connection and presents a synchronous-style,
// timeout-bounded API over the wire's asynchronous callbacks.
package gateway

import (
	"sync"
	"time"
)

// Kind categorizes outstanding requests so unrelated waits never collide.
type Kind int

const (
	KindConnect Kind = iota
	KindOrderStatus
	KindOpenOrders
	KindPositions
	KindAccountSummary
	KindMktSnapshot
)

// Key identifies one outstanding request. ID is the order ID or tick request
// ID; zero for the singleton kinds (connect, open orders, positions, account
// summary).
type Key struct {
	Kind Kind
	ID   int64
}

// Waiter is a one-shot signal. Results live in the session's tables, keyed the
// same way the waiter is, so late readers still see them after the waiter is
// gone.
type Waiter struct {
	done chan struct{}
	once sync.Once
}

func (w *Waiter) signal() {
	w.once.Do(func() { close(w.done) })
}

// Wait blocks until the waiter is signalled or the timeout elapses. It reports
// whether the signal arrived in time.
func (w *Waiter) Wait(timeout time.Duration) bool {
	select {
	case <-w.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Registry maps outstanding request keys to one-shot waiters and delivers
// callback signals to the correct one. Entries are created when a bounded wait
// begins and removed when it returns; they are never leaked across calls.
type Registry struct {
	mu      sync.Mutex
	waiters map[Key]*Waiter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{waiters: make(map[Key]*Waiter)}
}

// Register installs a fresh waiter for the key, replacing (and releasing) any
// stale one left by an abandoned call.
func (r *Registry) Register(k Key) *Waiter {
	w := &Waiter{done: make(chan struct{})}
	r.mu.Lock()
	if old, ok := r.waiters[k]; ok {
		old.signal()
	}
	r.waiters[k] = w
	r.mu.Unlock()
	return w
}

// Resolve signals the waiter for the key, if one is outstanding.
func (r *Registry) Resolve(k Key) {
	r.mu.Lock()
	w := r.waiters[k]
	r.mu.Unlock()
	if w != nil {
		w.signal()
	}
}

// Drop removes the waiter for the key, but only if it is still the given one;
// a replacement registered by a newer call is left alone.
func (r *Registry) Drop(k Key, w *Waiter) {
	r.mu.Lock()
	if r.waiters[k] == w {
		delete(r.waiters, k)
	}
	r.mu.Unlock()
}

// Clear releases and removes every outstanding waiter. Used on reconnect so
// waits from the previous connection epoch return promptly.
func (r *Registry) Clear() {
	r.mu.Lock()
	for k, w := range r.waiters {
		w.signal()
		delete(r.waiters, k)
	}
	r.mu.Unlock()
}
