package wallet

import (
	"encoding/json"
	"sync"
)

// Emitter fans provider events out to subscribers. Handlers run
// synchronously on the goroutine that calls Emit.
type Emitter struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[string]map[uint64]func(json.RawMessage)
}

// NewEmitter returns an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[string]map[uint64]func(json.RawMessage))}
}

// On registers handler for event. The returned func removes it and is safe to
// call more than once.
func (e *Emitter) On(event string, handler func(json.RawMessage)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	if e.handlers[event] == nil {
		e.handlers[event] = make(map[uint64]func(json.RawMessage))
	}
	e.handlers[event][id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.handlers[event], id)
		})
	}
}

// Emit marshals payload and delivers it to every handler of event.
func (e *Emitter) Emit(event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	// Snapshot so handlers may unsubscribe while being called.
	e.mu.Lock()
	hs := make([]func(json.RawMessage), 0, len(e.handlers[event]))
	for _, h := range e.handlers[event] {
		hs = append(hs, h)
	}
	e.mu.Unlock()

	for _, h := range hs {
		h(raw)
	}
	return nil
}

// Count returns the number of live handlers for event.
func (e *Emitter) Count(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers[event])
}
