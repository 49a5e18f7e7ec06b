package observer

import (
	"context"
	"fmt"
	"reflect"
)

// Observer consumes pipeline events.
//
// OnEvent is called from a goroutine dedicated to this observer, one event at
// a time and in push order. Returning an error (or panicking) stops delivery
// to this observer for good. ctx is cancelled when the fanout stops.
type Observer interface {
	OnEvent(ctx context.Context, ev Event) error
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, ev Event) error

func (f ObserverFunc) OnEvent(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// NoOpObserver discards all events.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(ctx context.Context, ev Event) error { return nil }

// observerName labels o in task names: its Name() if it has one, else its type name.
func observerName(o Observer) string {
	if n, ok := o.(interface{ Name() string }); ok {
		if name := n.Name(); name != "" {
			return name
		}
	}
	t := reflect.TypeOf(o)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return fmt.Sprintf("%T", o)
	}
	return t.Name()
}
