package strand

import (
	"context"
	"sync"
)

// Parallel submits every task immediately. The first error completes the
// call at once with nil results; tasks already running finish on the
// dispatcher and their outcomes are discarded. On success results are
// ordered by task position, not completion order.
func Parallel[T any](ctx context.Context, tasks []Task[T], completion Completion[T], opts ...Option) (*Execution[T], error) {
	if err := validateTasks(tasks); err != nil {
		return nil, err
	}
	return startParallel(newRun(ctx, "parallel", completion, opts), tasks, len(tasks)), nil
}

// ParallelLimit is Parallel with at most limit tasks in flight. Each finished
// task frees its slot for the next unsubmitted one immediately; tasks are not
// run in batches. After the first error no further task is submitted.
func ParallelLimit[T any](ctx context.Context, tasks []Task[T], limit int, completion Completion[T], opts ...Option) (*Execution[T], error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if err := validateTasks(tasks); err != nil {
		return nil, err
	}
	return startParallel(newRun(ctx, "parallel_limit", completion, opts), tasks, limit), nil
}

type parallelRun[T any] struct {
	*run[T]
	tasks []Task[T]
	limit int

	mu        sync.Mutex
	next      int
	inFlight  int
	succeeded int
	results   []T
	err       error
	stopped   bool
}

func startParallel[T any](r *run[T], tasks []Task[T], limit int) *Execution[T] {
	p := &parallelRun[T]{
		run:     r,
		tasks:   append([]Task[T](nil), tasks...),
		limit:   limit,
		results: make([]T, len(tasks)),
	}
	return r.start(p.step)
}

// step submits tasks one at a time while slots are free, re-checking for an
// error before each submission.
func (p *parallelRun[T]) step() {
	for {
		p.mu.Lock()
		if p.stopped {
			p.mu.Unlock()
			return
		}
		if p.err != nil {
			p.stopped = true
			err := p.err
			p.mu.Unlock()
			p.finish(err, nil)
			return
		}
		if p.succeeded == len(p.tasks) {
			p.stopped = true
			results := p.results
			p.mu.Unlock()
			p.finish(nil, results)
			return
		}
		if p.inFlight >= p.limit || p.next >= len(p.tasks) {
			p.mu.Unlock()
			return
		}
		index := p.next
		p.next++
		p.inFlight++
		p.mu.Unlock()

		p.launch(index, p.tasks[index], func(err error, value T) bool {
			return p.settle(index, err, value)
		})
	}
}

func (p *parallelRun[T]) settle(index int, err error, value T) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight--
	if p.stopped || p.err != nil {
		return false
	}
	if err != nil {
		p.err = err
		return true
	}
	p.results[index] = value
	p.succeeded++
	return true
}
