package strand

import "context"

// Series runs tasks one at a time in order. It stops at the first error and
// completes with that error and the results of the tasks that succeeded
// before it. task[i+1] starts only after task[i] has called back. With a
// concurrent dispatcher it may start before task[i]'s done call returns.
func Series[T any](ctx context.Context, tasks []Task[T], completion Completion[T], opts ...Option) (*Execution[T], error) {
	if err := validateTasks(tasks); err != nil {
		return nil, err
	}
	queue := append([]Task[T](nil), tasks...)

	r := newRun(ctx, "series", completion, opts)
	if len(queue) == 0 {
		return r.start(func() { r.finish(nil, []T{}) }), nil
	}
	return startLoop(r, loopPolicy{limit: len(queue)}, func(i int) Task[T] {
		return queue[i]
	}), nil
}
