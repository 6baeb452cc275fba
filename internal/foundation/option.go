// Package foundation holds small generic building blocks shared across progan.
package foundation

import "fmt"

// Option is a value that may be absent. It replaces lazily materialized state with
// a field that exists from construction but starts out empty.
type Option[T any] struct {
	value   T
	present bool
}

// Some wraps a present value.
func Some[T any](value T) Option[T] {
	return Option[T]{value: value, present: true}
}

// None returns an empty Option.
func None[T any]() Option[T] {
	return Option[T]{}
}

func (o Option[T]) IsSome() bool { return o.present }
func (o Option[T]) IsNone() bool { return !o.present }

// Unwrap returns the value and panics when empty.
func (o Option[T]) Unwrap() T {
	if !o.present {
		panic("foundation: Unwrap on empty Option")
	}
	return o.value
}

// UnwrapOr returns the value or fallback when empty.
func (o Option[T]) UnwrapOr(fallback T) T {
	if o.present {
		return o.value
	}
	return fallback
}

// Get returns the value and whether it was present.
func (o Option[T]) Get() (T, bool) {
	return o.value, o.present
}

// MapOption transforms a present value, keeping emptiness.
func MapOption[T, U any](o Option[T], fn func(T) U) Option[U] {
	if o.present {
		return Some(fn(o.value))
	}
	return None[U]()
}

func (o Option[T]) String() string {
	if o.present {
		return fmt.Sprintf("Some(%v)", o.value)
	}
	return "None"
}
