// Package wallettest provides a scripted wallet.Provider for tests.
package wallettest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/yolodolo42/chatdefi/internal/wallet"
)

// Handler answers one request. The result is JSON-encoded before it is
// returned to the caller.
type Handler func(ctx context.Context, params []any) (any, error)

// Call records a request seen by the provider.
type Call struct {
	Method string
	Params []any
}

// Provider is a wallet.Provider whose answers are scripted per method.
// Unscripted methods fail with 4200.
type Provider struct {
	mu       sync.Mutex
	handlers map[string]Handler
	calls    []Call
	events   *wallet.Emitter
}

var _ wallet.Provider = (*Provider)(nil)

// New returns a provider with no scripted methods.
func New() *Provider {
	return &Provider{
		handlers: make(map[string]Handler),
		events:   wallet.NewEmitter(),
	}
}

// Handle scripts method with h.
func (p *Provider) Handle(method string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[method] = h
}

// Return scripts method to always succeed with result.
func (p *Provider) Return(method string, result any) {
	p.Handle(method, func(context.Context, []any) (any, error) { return result, nil })
}

// Fail scripts method to always fail with err.
func (p *Provider) Fail(method string, err error) {
	p.Handle(method, func(context.Context, []any) (any, error) { return nil, err })
}

// Request implements wallet.Provider.
func (p *Provider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Method: method, Params: params})
	h, ok := p.handlers[method]
	p.mu.Unlock()

	if !ok {
		return nil, wallet.NewRPCError(wallet.CodeUnsupportedMethod, "method %s is not scripted", method)
	}
	result, err := h(ctx, params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

// On implements wallet.Provider.
func (p *Provider) On(event string, handler func(json.RawMessage)) func() {
	return p.events.On(event, handler)
}

// Emit delivers an event to subscribers as the wallet would.
func (p *Provider) Emit(event string, payload any) {
	if err := p.events.Emit(event, payload); err != nil {
		panic(err)
	}
}

// Subscribers returns the number of live handlers for event.
func (p *Provider) Subscribers(event string) int {
	return p.events.Count(event)
}

// Calls returns the recorded requests, optionally filtered by method.
func (p *Provider) Calls(methods ...string) []Call {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(methods) == 0 {
		return append([]Call(nil), p.calls...)
	}
	var out []Call
	for _, c := range p.calls {
		for _, m := range methods {
			if c.Method == m {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// CallCount returns how many times method was requested.
func (p *Provider) CallCount(method string) int {
	return len(p.Calls(method))
}

// Methods returns the sequence of requested methods.
func (p *Provider) Methods() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	for i, c := range p.calls {
		out[i] = c.Method
	}
	return out
}
