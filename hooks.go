package strand

import (
	"context"
	"time"

	"github.com/bpradana/strand/logging"
)

// TaskStatus captures the lifecycle status of a task run.
type TaskStatus string

const (
	StatusRunning   TaskStatus = "running"
	StatusSucceeded TaskStatus = "succeeded"
	StatusFailed    TaskStatus = "failed"
)

// TaskMetadata identifies a task run. For parallel combinators Index is the
// task's position in the input list; for serial ones it is the run ordinal.
type TaskMetadata struct {
	RunID      string
	Combinator string
	Index      int
}

// TaskMetrics captures execution metrics for a task run.
type TaskMetrics struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Concurrency int
	Status      TaskStatus
	Error       error
}

// TaskEvent is passed to hook callbacks to describe task progress.
type TaskEvent struct {
	Metadata TaskMetadata
	Metrics  TaskMetrics
	Result   any
}

// HookFunc is invoked for lifecycle notifications. Hooks run on whichever
// goroutine starts or completes the task and must not block.
type HookFunc func(context.Context, TaskEvent)

// Hooks aggregates optional lifecycle callbacks.
type Hooks struct {
	OnStart   HookFunc
	OnSuccess HookFunc
	OnFailure HookFunc
	OnFinish  HookFunc
}

// Merge combines two hook sets, running the receiver first.
func (h Hooks) Merge(other Hooks) Hooks {
	return Hooks{
		OnStart:   chainHooks(h.OnStart, other.OnStart),
		OnSuccess: chainHooks(h.OnSuccess, other.OnSuccess),
		OnFailure: chainHooks(h.OnFailure, other.OnFailure),
		OnFinish:  chainHooks(h.OnFinish, other.OnFinish),
	}
}

func chainHooks(first, second HookFunc) HookFunc {
	switch {
	case first == nil:
		return second
	case second == nil:
		return first
	default:
		return func(ctx context.Context, event TaskEvent) {
			first(ctx, event)
			second(ctx, event)
		}
	}
}

// LoggingHooks reports task starts and successes at DEBUG and failures at
// ERROR on the given logger.
func LoggingHooks(logger *logging.Logger) Hooks {
	if logger == nil {
		return Hooks{}
	}
	fields := func(event TaskEvent) logging.Fields {
		return logging.Fields{
			"run":        event.Metadata.RunID,
			"combinator": event.Metadata.Combinator,
			"task":       event.Metadata.Index,
		}
	}
	return Hooks{
		OnStart: func(_ context.Context, event TaskEvent) {
			f := fields(event)
			f["concurrency"] = event.Metrics.Concurrency
			logger.Debug("task_start", f)
		},
		OnSuccess: func(_ context.Context, event TaskEvent) {
			f := fields(event)
			f["duration"] = event.Metrics.Duration.String()
			logger.Debug("task_success", f)
		},
		OnFailure: func(_ context.Context, event TaskEvent) {
			f := fields(event)
			f["duration"] = event.Metrics.Duration.String()
			f["error"] = event.Metrics.Error
			logger.Error("task_failure", f)
		},
	}
}
