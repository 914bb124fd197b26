package strand

import (
	"context"
	"time"
)

// Forever runs task back to back until it reports an error. Without an
// error the completion never fires.
func Forever[T any](ctx context.Context, task Task[T], completion Completion[T], opts ...Option) (*Execution[T], error) {
	return repeat(ctx, "forever", task, loopPolicy{}, completion, opts)
}

// ForeverLimit is Forever that completes successfully after limit runs.
func ForeverLimit[T any](ctx context.Context, task Task[T], limit int, completion Completion[T], opts ...Option) (*Execution[T], error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	return repeat(ctx, "forever", task, loopPolicy{limit: limit}, completion, opts)
}

// Interval runs task immediately, then again interval after each callback,
// until it reports an error.
func Interval[T any](ctx context.Context, task Task[T], interval time.Duration, completion Completion[T], opts ...Option) (*Execution[T], error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	return repeat(ctx, "interval", task, loopPolicy{interval: interval}, completion, opts)
}

// IntervalLimit is Interval that completes successfully after limit runs.
func IntervalLimit[T any](ctx context.Context, task Task[T], interval time.Duration, limit int, completion Completion[T], opts ...Option) (*Execution[T], error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	return repeat(ctx, "interval", task, loopPolicy{interval: interval, limit: limit}, completion, opts)
}

func repeat[T any](ctx context.Context, name string, task Task[T], policy loopPolicy, completion Completion[T], opts []Option) (*Execution[T], error) {
	if task == nil {
		return nil, InvalidTaskError{Index: 0}
	}
	r := newRun(ctx, name, completion, opts)
	return startLoop(r, policy, func(int) Task[T] { return task }), nil
}
