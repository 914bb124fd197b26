package strand

import "context"

// Whilst runs task repeatedly while test returns true, checking before each
// run. It completes with the results of every run, or with the first error.
func Whilst[T any](ctx context.Context, test Test, task Task[T], completion Completion[T], opts ...Option) (*Execution[T], error) {
	return conditional(ctx, "whilst", test, task, loopPolicy{}, completion, opts)
}

// WhilstLimit is Whilst that stops after limit runs even if test still holds.
func WhilstLimit[T any](ctx context.Context, test Test, task Task[T], limit int, completion Completion[T], opts ...Option) (*Execution[T], error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	return conditional(ctx, "whilst", test, task, loopPolicy{limit: limit}, completion, opts)
}

// DoWhilst is the post-check form of Whilst: task runs once before test is
// first consulted.
func DoWhilst[T any](ctx context.Context, task Task[T], test Test, completion Completion[T], opts ...Option) (*Execution[T], error) {
	return conditional(ctx, "do_whilst", test, task, loopPolicy{postCheck: true}, completion, opts)
}

// DoWhilstLimit is DoWhilst bounded to limit runs.
func DoWhilstLimit[T any](ctx context.Context, task Task[T], test Test, limit int, completion Completion[T], opts ...Option) (*Execution[T], error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	return conditional(ctx, "do_whilst", test, task, loopPolicy{postCheck: true, limit: limit}, completion, opts)
}

// Until runs task repeatedly until test returns true, checking before each run.
func Until[T any](ctx context.Context, test Test, task Task[T], completion Completion[T], opts ...Option) (*Execution[T], error) {
	return conditional(ctx, "until", test, task, loopPolicy{until: true}, completion, opts)
}

// UntilLimit is Until bounded to limit runs.
func UntilLimit[T any](ctx context.Context, test Test, task Task[T], limit int, completion Completion[T], opts ...Option) (*Execution[T], error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	return conditional(ctx, "until", test, task, loopPolicy{until: true, limit: limit}, completion, opts)
}

// DoUntil is the post-check form of Until.
func DoUntil[T any](ctx context.Context, task Task[T], test Test, completion Completion[T], opts ...Option) (*Execution[T], error) {
	return conditional(ctx, "do_until", test, task, loopPolicy{until: true, postCheck: true}, completion, opts)
}

// DoUntilLimit is DoUntil bounded to limit runs.
func DoUntilLimit[T any](ctx context.Context, task Task[T], test Test, limit int, completion Completion[T], opts ...Option) (*Execution[T], error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	return conditional(ctx, "do_until", test, task, loopPolicy{until: true, postCheck: true, limit: limit}, completion, opts)
}

func conditional[T any](ctx context.Context, name string, test Test, task Task[T], policy loopPolicy, completion Completion[T], opts []Option) (*Execution[T], error) {
	if task == nil {
		return nil, InvalidTaskError{Index: 0}
	}
	if test == nil {
		return nil, ErrNilTest
	}
	policy.test = test
	r := newRun(ctx, name, completion, opts)
	return startLoop(r, policy, func(int) Task[T] { return task }), nil
}
