package plan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bpradana/strand"
	"github.com/bpradana/strand/logging"
)

// Report summarises one plan execution.
type Report struct {
	Name    string
	Mode    Mode
	RunID   string
	Results []string
	Err     error
	Metrics strand.ExecutionMetrics
}

func (r Report) String() string {
	status := "ok"
	if r.Err != nil {
		status = "error: " + r.Err.Error()
	}
	return fmt.Sprintf("%s mode=%s run=%s results=[%s] started=%d succeeded=%d failed=%d discarded=%d duration=%s status=%s",
		r.Name, r.Mode, r.RunID, strings.Join(r.Results, ","),
		r.Metrics.TasksStarted, r.Metrics.TasksSucceeded, r.Metrics.TasksFailed, r.Metrics.TasksDiscarded,
		r.Metrics.Duration, status)
}

// Run executes p and waits for it. A non-nil error means the plan could not
// start or ctx ended first; task failures are reported in Report.Err.
func Run(ctx context.Context, p *Plan, logger *logging.Logger) (Report, error) {
	if err := p.Validate(); err != nil {
		return Report{}, err
	}
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.WithComponent(p.Name)
	if p.LogLevel != "" {
		level, _ := logging.ParseLevel(p.LogLevel)
		logger.SetLevel(level)
	}

	dispatcher, stop := p.dispatcher()
	opts := []strand.Option{
		strand.WithDispatcher(dispatcher),
		strand.WithLogger(logger),
		strand.WithHooks(strand.LoggingHooks(logger)),
	}

	exec, err := p.start(ctx, opts)
	if err != nil {
		stop()
		return Report{}, err
	}

	results, runErr := exec.Await(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(runErr, ctxErr) {
		// The run may still submit work; leave the dispatcher running.
		return Report{Name: p.Name, Mode: p.Mode, RunID: exec.ID(), Metrics: exec.Metrics()}, runErr
	}
	stop()

	return Report{
		Name:    p.Name,
		Mode:    p.Mode,
		RunID:   exec.ID(),
		Results: results,
		Err:     runErr,
		Metrics: exec.Metrics(),
	}, nil
}

func (p *Plan) dispatcher() (strand.Dispatcher, func()) {
	switch p.Dispatcher {
	case "inline":
		return strand.InlineDispatcher{}, func() {}
	case "pool":
		pool := strand.NewWorkerPoolDispatcher(p.Workers)
		return pool, pool.Stop
	case "bounded":
		bounded := strand.NewBoundedDispatcher(p.Workers)
		return bounded, bounded.Wait
	default:
		return nil, func() {}
	}
}

func (p *Plan) start(ctx context.Context, opts []strand.Option) (*strand.Execution[string], error) {
	tasks := make([]strand.Task[string], len(p.Tasks))
	for i, spec := range p.Tasks {
		tasks[i] = spec.task()
	}

	switch p.Mode {
	case ModeSeries:
		return strand.Series(ctx, tasks, nil, opts...)
	case ModeParallel:
		return strand.Parallel(ctx, tasks, nil, opts...)
	case ModeParallelLimit:
		return strand.ParallelLimit(ctx, tasks, p.Limit, nil, opts...)
	}

	// Loop and repeat modes run the first task; the predicate counts its runs.
	task := tasks[0]
	var runs atomic.Int64
	var counted strand.Task[string] = func(ctx context.Context, done strand.Callback[string]) {
		task(ctx, func(err error, value string) {
			runs.Add(1)
			done(err, value)
		})
	}
	below := func() bool { return runs.Load() < int64(p.Repeat) }
	reached := func() bool { return runs.Load() >= int64(p.Repeat) }

	switch p.Mode {
	case ModeWhilst:
		if p.Limit > 0 {
			return strand.WhilstLimit(ctx, below, counted, p.Limit, nil, opts...)
		}
		return strand.Whilst(ctx, below, counted, nil, opts...)
	case ModeDoWhilst:
		if p.Limit > 0 {
			return strand.DoWhilstLimit(ctx, counted, below, p.Limit, nil, opts...)
		}
		return strand.DoWhilst(ctx, counted, below, nil, opts...)
	case ModeUntil:
		if p.Limit > 0 {
			return strand.UntilLimit(ctx, reached, counted, p.Limit, nil, opts...)
		}
		return strand.Until(ctx, reached, counted, nil, opts...)
	case ModeDoUntil:
		if p.Limit > 0 {
			return strand.DoUntilLimit(ctx, counted, reached, p.Limit, nil, opts...)
		}
		return strand.DoUntil(ctx, counted, reached, nil, opts...)
	case ModeForever:
		if p.Limit > 0 {
			return strand.ForeverLimit(ctx, counted, p.Limit, nil, opts...)
		}
		return strand.Forever(ctx, counted, nil, opts...)
	case ModeInterval:
		if p.Limit > 0 {
			return strand.IntervalLimit(ctx, counted, p.Interval.Duration, p.Limit, nil, opts...)
		}
		return strand.Interval(ctx, counted, p.Interval.Duration, nil, opts...)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownMode, p.Mode)
}

// task builds a Task that sleeps, then fails once it has been invoked
// FailAfter times (or on the first call when only Fail is set).
func (s TaskSpec) task() strand.Task[string] {
	var calls atomic.Int64
	failAt := int64(s.FailAfter)
	if failAt < 1 {
		failAt = 1
	}
	return func(ctx context.Context, done strand.Callback[string]) {
		n := calls.Add(1)
		if s.Sleep.Duration > 0 {
			timer := time.NewTimer(s.Sleep.Duration)
			select {
			case <-ctx.Done():
				timer.Stop()
				done(ctx.Err(), "")
				return
			case <-timer.C:
			}
		}
		if s.Fail != "" && n >= failAt {
			done(errors.New(s.Fail), "")
			return
		}
		done(nil, s.result(n))
	}
}

func (s TaskSpec) result(n int64) string {
	value := s.Value
	if value == "" {
		value = s.Name
	}
	if n > 1 {
		return fmt.Sprintf("%s#%d", value, n)
	}
	return value
}
