// Package session holds the per-process wallet and chain state that the rest
// of the app reads: which account is connected and which chain the wallet is
// on. Sessions are explicitly constructed, subscribe to the provider's events
// once, and must be closed to release those subscriptions.
package session

import (
	"errors"
	"sync"
)

// ErrBusy is returned when the same session operation is already running.
var ErrBusy = errors.New("operation already in progress")

type observers[T any] struct {
	mu   sync.Mutex
	next uint64
	fns  map[uint64]func(T)
}

func (o *observers[T]) add(fn func(T)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fns == nil {
		o.fns = make(map[uint64]func(T))
	}
	o.next++
	id := o.next
	o.fns[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.fns, id)
	}
}

func (o *observers[T]) notify(v T) {
	o.mu.Lock()
	fns := make([]func(T), 0, len(o.fns))
	for _, fn := range o.fns {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}
