package strand

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bpradana/strand/logging"
)

// now is overridden in tests to provide deterministic timings.
var now = time.Now

// Execution is the handle of one combinator call. It resolves exactly once,
// after the call's Completion has returned.
type Execution[T any] struct {
	id         string
	combinator string

	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	results []T
	err     error
	metrics ExecutionMetrics
}

// ExecutionMetrics aggregates run-level measurements.
type ExecutionMetrics struct {
	StartedAt          time.Time
	CompletedAt        time.Time
	Duration           time.Duration
	MaxConcurrency     int
	TasksStarted       int
	TasksSucceeded     int
	TasksFailed        int
	TasksDiscarded     int
	DuplicateCallbacks int
}

func newExecution[T any](id, combinator string) *Execution[T] {
	return &Execution[T]{
		id:         id,
		combinator: combinator,
		done:       make(chan struct{}),
	}
}

// ID returns the run identifier shared by hook events, logs and spans.
func (e *Execution[T]) ID() string {
	return e.id
}

// Combinator names the combinator that created the execution.
func (e *Execution[T]) Combinator() string {
	return e.combinator
}

// Done is closed once the execution has completed.
func (e *Execution[T]) Done() <-chan struct{} {
	return e.done
}

// Await blocks until the execution completes or ctx is done. Giving up on
// ctx does not stop the execution.
func (e *Execution[T]) Await(ctx context.Context) ([]T, error) {
	select {
	case <-e.done:
		return e.Results(), e.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Err returns the error the execution completed with.
func (e *Execution[T]) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Results returns a copy of the completed results, or nil while running.
func (e *Execution[T]) Results() []T {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.results == nil {
		return nil
	}
	results := make([]T, len(e.results))
	copy(results, e.results)
	return results
}

// Metrics returns the current execution metrics snapshot.
func (e *Execution[T]) Metrics() ExecutionMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics
}

func (e *Execution[T]) resolve(err error, results []T) {
	e.once.Do(func() {
		e.mu.Lock()
		e.err = err
		e.results = results
		e.mu.Unlock()
		close(e.done)
	})
}

// run is the state every combinator shares: options, the execution handle
// and a single-driver pump. step is the combinator's transition function; it
// is only ever called by one goroutine at a time.
type run[T any] struct {
	ctx        context.Context
	opts       options
	exec       *Execution[T]
	completion Completion[T]
	logger     *logging.Logger
	step       func()

	pending    atomic.Int64
	active     atomic.Int64
	finishOnce sync.Once
}

func newRun[T any](ctx context.Context, combinator string, completion Completion[T], opts []Option) *run[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	o := buildOptions(opts)
	exec := newExecution[T](o.runID, combinator)
	exec.metrics.StartedAt = now()
	return &run[T]{
		ctx:        ctx,
		opts:       o,
		exec:       exec,
		completion: completion,
		logger:     o.logger.WithComponent(combinator).WithTraceID(o.runID),
	}
}

func (r *run[T]) start(step func()) *Execution[T] {
	r.step = step
	r.logger.Debug("run_start")
	r.kick()
	return r.exec
}

// kick requests a step. If another goroutine is already stepping, it picks
// the request up before it stops, so a callback fired inside Submit returns
// without recursing into the next task.
func (r *run[T]) kick() {
	if r.pending.Add(1) != 1 {
		return
	}
	for {
		r.step()
		if r.pending.Add(-1) == 0 {
			return
		}
	}
}

// launch submits task to the dispatcher. settle records the outcome and
// reports whether the run still accepted it.
func (r *run[T]) launch(index int, task Task[T], settle func(err error, value T) bool) {
	meta := TaskMetadata{
		RunID:      r.exec.id,
		Combinator: r.exec.combinator,
		Index:      index,
	}
	r.opts.dispatcher.Submit(func() {
		concurrency := r.begin()
		startedAt := now()
		r.invokeHook(r.opts.hooks.OnStart, TaskEvent{
			Metadata: meta,
			Metrics: TaskMetrics{
				StartedAt:   startedAt,
				Concurrency: concurrency,
				Status:      StatusRunning,
			},
		})

		var fired atomic.Bool
		done := func(err error, value T) {
			if !fired.CompareAndSwap(false, true) {
				r.duplicate(meta)
				return
			}
			r.active.Add(-1)
			r.report(meta, startedAt, concurrency, err, value)
			if !settle(err, value) {
				r.discard(meta, err)
			}
			r.kick()
		}

		defer func() {
			if recovered := recover(); recovered != nil {
				if fired.Load() {
					panic(recovered)
				}
				var zero T
				done(TaskPanicError{
					Combinator: meta.Combinator,
					Index:      index,
					Value:      recovered,
				}, zero)
			}
		}()

		task(r.ctx, done)
	})
}

func (r *run[T]) begin() int {
	current := int(r.active.Add(1))
	r.exec.mu.Lock()
	r.exec.metrics.TasksStarted++
	if current > r.exec.metrics.MaxConcurrency {
		r.exec.metrics.MaxConcurrency = current
	}
	r.exec.mu.Unlock()
	return current
}

func (r *run[T]) report(meta TaskMetadata, startedAt time.Time, concurrency int, err error, value T) {
	completedAt := now()
	metrics := TaskMetrics{
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
		Concurrency: concurrency,
	}

	var result any
	r.exec.mu.Lock()
	if err != nil {
		r.exec.metrics.TasksFailed++
	} else {
		r.exec.metrics.TasksSucceeded++
	}
	r.exec.mu.Unlock()

	if err != nil {
		metrics.Status = StatusFailed
		metrics.Error = err
		r.invokeHook(r.opts.hooks.OnFailure, TaskEvent{Metadata: meta, Metrics: metrics})
	} else {
		metrics.Status = StatusSucceeded
		result = value
		r.invokeHook(r.opts.hooks.OnSuccess, TaskEvent{Metadata: meta, Metrics: metrics, Result: result})
	}
	r.invokeHook(r.opts.hooks.OnFinish, TaskEvent{Metadata: meta, Metrics: metrics, Result: result})
}

func (r *run[T]) discard(meta TaskMetadata, err error) {
	r.exec.mu.Lock()
	r.exec.metrics.TasksDiscarded++
	r.exec.mu.Unlock()
	fields := logging.Fields{"task": meta.Index}
	if err != nil {
		fields["error"] = err
	}
	r.logger.Debug("late_result_discarded", fields)
}

func (r *run[T]) duplicate(meta TaskMetadata) {
	r.exec.mu.Lock()
	r.exec.metrics.DuplicateCallbacks++
	r.exec.mu.Unlock()
	r.logger.Warn("duplicate_callback", logging.Fields{"task": meta.Index})
}

// finish fires the completion and resolves the execution, once.
func (r *run[T]) finish(err error, results []T) {
	r.finishOnce.Do(func() {
		r.exec.mu.Lock()
		r.exec.metrics.CompletedAt = now()
		r.exec.metrics.Duration = r.exec.metrics.CompletedAt.Sub(r.exec.metrics.StartedAt)
		r.exec.mu.Unlock()

		status := "succeeded"
		if err != nil {
			status = "failed"
		}
		r.logger.Debug("run_complete", logging.Fields{
			"status":  status,
			"results": len(results),
		})

		defer r.exec.resolve(err, results)
		if r.completion != nil {
			r.completion(err, results)
		}
	})
}

func (r *run[T]) invokeHook(hook HookFunc, event TaskEvent) {
	if hook != nil {
		hook(r.ctx, event)
	}
}
