package strand

import (
	"context"
	"errors"
	"fmt"
)

// Callback reports the outcome of a Task. Only the first call is honoured.
type Callback[T any] func(err error, value T)

// Task is an asynchronous unit of work. It must invoke done exactly once,
// synchronously or from another goroutine. A task that never calls back
// stalls the combinator that owns it.
//
// ctx is the context given to the combinator and carries request-scoped
// values only. State shared between tasks travels through the closures that
// build them.
type Task[T any] func(ctx context.Context, done Callback[T])

// Completion receives the final outcome of a combinator. It fires exactly
// once per call.
type Completion[T any] func(err error, results []T)

// Test is a synchronous predicate evaluated between loop iterations.
type Test func() bool

// FromFunc adapts a synchronous function into a Task. A nil fn yields a nil
// Task, which every combinator rejects.
func FromFunc[T any](fn func(ctx context.Context) (T, error)) Task[T] {
	if fn == nil {
		return nil
	}
	return func(ctx context.Context, done Callback[T]) {
		value, err := fn(ctx)
		done(err, value)
	}
}

var (
	// ErrInvalidTask indicates a nil task was supplied to a combinator.
	ErrInvalidTask = errors.New("strand: invalid task")
	// ErrNilTest indicates a loop was started without a predicate.
	ErrNilTest = errors.New("strand: test must not be nil")
	// ErrInvalidLimit indicates a non-positive concurrency or execution limit.
	ErrInvalidLimit = errors.New("strand: limit must be positive")
	// ErrInvalidInterval indicates a non-positive repeat interval.
	ErrInvalidInterval = errors.New("strand: interval must be positive")
)

// InvalidTaskError identifies the offending position in a task list.
type InvalidTaskError struct {
	Index int
}

func (e InvalidTaskError) Error() string {
	return fmt.Sprintf("strand: task at index %d is nil", e.Index)
}

func (e InvalidTaskError) Unwrap() error {
	return ErrInvalidTask
}

// TaskPanicError wraps a panic recovered from a task body.
type TaskPanicError struct {
	Combinator string
	Index      int
	Value      any
}

func (e TaskPanicError) Error() string {
	return fmt.Sprintf("strand: panic in %s task %d: %v", e.Combinator, e.Index, e.Value)
}

func validateTasks[T any](tasks []Task[T]) error {
	for i, task := range tasks {
		if task == nil {
			return InvalidTaskError{Index: i}
		}
	}
	return nil
}
