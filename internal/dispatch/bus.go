// Package dispatch routes commands and queries to the single handler registered
// for their kind. The routing table is built once at startup and only read
// afterwards, so a Bus is safe for concurrent use.
package dispatch

import (
	"context"
	"fmt"
	"sort"

	"github.com/eaglebank/transaction-service/shared/cqrs"
)

// Handler serves one kind of request.
type Handler interface {
	Handle(ctx context.Context, req cqrs.Request) (any, error)
}

type HandlerFunc func(ctx context.Context, req cqrs.Request) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, req cqrs.Request) (any, error) {
	return f(ctx, req)
}

// Typed adapts a handler for a concrete request type R.
func Typed[R cqrs.Request, T any](fn func(context.Context, R) (T, error)) Handler {
	return HandlerFunc(func(ctx context.Context, req cqrs.Request) (any, error) {
		typed, ok := req.(R)
		if !ok {
			return nil, fmt.Errorf("handler for %s cannot serve %T", req.Kind(), req)
		}
		return fn(ctx, typed)
	})
}

type Registration struct {
	Kind    cqrs.Kind
	Handler Handler
}

func Register(kind cqrs.Kind, h Handler) Registration {
	return Registration{Kind: kind, Handler: h}
}

// DuplicateHandlerError is returned by NewBus when a kind is claimed twice or
// registered without a handler.
type DuplicateHandlerError struct {
	Kind cqrs.Kind
}

func (e *DuplicateHandlerError) Error() string {
	return fmt.Sprintf("dispatch: invalid or duplicate handler registration for %q", e.Kind)
}

// UnroutableRequestError is returned by Dispatch when no handler serves a kind.
type UnroutableRequestError struct {
	Kind cqrs.Kind
}

func (e *UnroutableRequestError) Error() string {
	return fmt.Sprintf("dispatch: no handler registered for %q", e.Kind)
}

// Dispatcher is the call side of a Bus.
type Dispatcher interface {
	Dispatch(ctx context.Context, req cqrs.Request) (any, error)
}

type Bus struct {
	handlers map[cqrs.Kind]Handler
}

// NewBus builds the routing table. Each kind must be registered exactly once.
func NewBus(regs ...Registration) (*Bus, error) {
	handlers := make(map[cqrs.Kind]Handler, len(regs))
	for _, reg := range regs {
		if _, exists := handlers[reg.Kind]; exists || reg.Handler == nil {
			return nil, &DuplicateHandlerError{Kind: reg.Kind}
		}
		handlers[reg.Kind] = reg.Handler
	}
	return &Bus{handlers: handlers}, nil
}

// Dispatch routes req to its handler.
func (b *Bus) Dispatch(ctx context.Context, req cqrs.Request) (any, error) {
	if req == nil {
		return nil, &UnroutableRequestError{}
	}
	h, ok := b.handlers[req.Kind()]
	if !ok {
		return nil, &UnroutableRequestError{Kind: req.Kind()}
	}
	return h.Handle(ctx, req)
}

// Kinds lists the registered kinds in sorted order.
func (b *Bus) Kinds() []cqrs.Kind {
	kinds := make([]cqrs.Kind, 0, len(b.handlers))
	for k := range b.handlers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Execute dispatches req and asserts the handler's result type.
func Execute[T any](ctx context.Context, d Dispatcher, req cqrs.Request) (T, error) {
	var zero T
	out, err := d.Dispatch(ctx, req)
	if err != nil {
		return zero, err
	}
	typed, ok := out.(T)
	if !ok {
		return zero, fmt.Errorf("dispatch: %s returned %T, want %T", req.Kind(), out, zero)
	}
	return typed, nil
}
