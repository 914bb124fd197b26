package strand

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bpradana/strand/logging"
)

func TestDuplicateCallbackIsIgnored(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logging.LevelWarn)

	var out outcome[int]
	tasks := []Task[int]{
		func(_ context.Context, done Callback[int]) {
			done(nil, 1)
			done(nil, 2)
		},
		FromFunc(func(ctx context.Context) (int, error) { return 3, nil }),
	}

	exec, err := Series(context.Background(), tasks, out.completion(),
		WithDispatcher(InlineDispatcher{}), WithLogger(logger))
	if err != nil {
		t.Fatalf("series: %v", err)
	}

	calls, gotErr, results := out.snapshot()
	if calls != 1 || gotErr != nil || !equalInts(results, []int{1, 3}) {
		t.Fatalf("unexpected outcome calls=%d err=%v results=%v", calls, gotErr, results)
	}
	if metrics := exec.Metrics(); metrics.DuplicateCallbacks != 1 || metrics.TasksStarted != 2 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
	if !strings.Contains(buf.String(), "duplicate_callback") {
		t.Fatalf("expected duplicate warning, got %q", buf.String())
	}
}

func TestTaskPanicIsCaptured(t *testing.T) {
	var out outcome[int]
	tasks := []Task[int]{
		FromFunc(func(ctx context.Context) (int, error) { return 1, nil }),
		func(context.Context, Callback[int]) { panic("kaboom") },
	}

	exec, err := Series(context.Background(), tasks, out.completion())
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	_, runErr := await(t, exec)

	var panicErr TaskPanicError
	if !errors.As(runErr, &panicErr) {
		t.Fatalf("expected TaskPanicError, got %T (%v)", runErr, runErr)
	}
	if panicErr.Index != 1 || panicErr.Combinator != "series" || panicErr.Value != "kaboom" {
		t.Fatalf("unexpected panic error: %+v", panicErr)
	}
	if calls, _, results := out.snapshot(); calls != 1 || !equalInts(results, []int{1}) {
		t.Fatalf("unexpected outcome calls=%d results=%v", calls, results)
	}
	if metrics := exec.Metrics(); metrics.TasksFailed != 1 {
		t.Fatalf("expected one failed task, metrics=%+v", metrics)
	}
}

func TestAwaitGivesUpOnContext(t *testing.T) {
	var never Task[int] = func(context.Context, Callback[int]) {}
	exec, err := Forever(context.Background(), never, nil)
	if err != nil {
		t.Fatalf("forever: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := exec.Await(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if exec.Results() != nil || exec.Err() != nil {
		t.Fatal("a running execution has no outcome")
	}
}

func TestCompletionRunsBeforeDone(t *testing.T) {
	var completed bool
	exec, err := Parallel(context.Background(), []Task[int]{
		FromFunc(func(ctx context.Context) (int, error) { return 1, nil }),
	}, func(err error, results []int) {
		time.Sleep(5 * time.Millisecond)
		completed = true
	})
	if err != nil {
		t.Fatalf("parallel: %v", err)
	}
	await(t, exec)
	if !completed {
		t.Fatal("execution resolved before the completion returned")
	}
}

func TestHooksInvocation(t *testing.T) {
	var mu sync.Mutex
	events := make([]string, 0, 8)
	record := func(label string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, label)
	}

	tasks := []Task[int]{
		FromFunc(func(ctx context.Context) (int, error) { return 7, nil }),
		FromFunc(func(ctx context.Context) (int, error) { return 0, errors.New("fail") }),
	}

	hooks := Hooks{
		OnStart: func(ctx context.Context, event TaskEvent) {
			record(fmt.Sprintf("%d:onStart:%s", event.Metadata.Index, event.Metrics.Status))
		},
		OnSuccess: func(ctx context.Context, event TaskEvent) {
			record(fmt.Sprintf("%d:onSuccess:%s:%v", event.Metadata.Index, event.Metrics.Status, event.Result))
		},
		OnFinish: func(ctx context.Context, event TaskEvent) {
			record(fmt.Sprintf("%d:onFinish:%s", event.Metadata.Index, event.Metrics.Status))
		},
	}
	failures := Hooks{
		OnFailure: func(ctx context.Context, event TaskEvent) {
			record(fmt.Sprintf("%d:onFailure:%v", event.Metadata.Index, event.Metrics.Error))
		},
	}

	exec, err := Series(context.Background(), tasks, nil,
		WithHooks(hooks), WithHooks(failures), WithRunID("run-1"))
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	await(t, exec)

	expected := []string{
		"0:onStart:running",
		"0:onSuccess:succeeded:7",
		"0:onFinish:succeeded",
		"1:onStart:running",
		"1:onFailure:fail",
		"1:onFinish:failed",
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != len(expected) {
		t.Fatalf("expected %d events, got %d (%v)", len(expected), len(events), events)
	}
	for i, want := range expected {
		if events[i] != want {
			t.Fatalf("event %d: expected %s, got %s (all %v)", i, want, events[i], events)
		}
	}
	if exec.ID() != "run-1" {
		t.Fatalf("expected run id override, got %s", exec.ID())
	}
}

func TestRunIDIsUUID(t *testing.T) {
	exec, err := Series[int](context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	if _, err := uuid.Parse(exec.ID()); err != nil {
		t.Fatalf("expected uuid run id, got %q: %v", exec.ID(), err)
	}
}

func TestDeterministicDurations(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	defer func() { now = time.Now }()

	var durations []time.Duration
	hooks := Hooks{OnFinish: func(ctx context.Context, event TaskEvent) {
		durations = append(durations, event.Metrics.Duration)
	}}

	exec, err := Series(context.Background(), []Task[int]{
		FromFunc(func(ctx context.Context) (int, error) { return 1, nil }),
	}, nil, WithDispatcher(InlineDispatcher{}), WithHooks(hooks))
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	await(t, exec)

	if len(durations) != 1 || durations[0] != time.Second {
		t.Fatalf("expected a one second task, got %v", durations)
	}
	if metrics := exec.Metrics(); metrics.Duration != 3*time.Second {
		t.Fatalf("expected a three second run, got %+v", metrics)
	}
}

func TestLoggingHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logging.LevelDebug)

	exec, err := Parallel(context.Background(), []Task[int]{
		FromFunc(func(ctx context.Context) (int, error) { return 1, nil }),
		FromFunc(func(ctx context.Context) (int, error) { return 0, errors.New("disk full") }),
	}, nil, WithDispatcher(InlineDispatcher{}), WithHooks(LoggingHooks(logger)), WithLogger(logger))
	if err != nil {
		t.Fatalf("parallel: %v", err)
	}
	await(t, exec)

	output := buf.String()
	for _, want := range []string{"[parallel] run_start", "task_start", "task_success", "task_failure", "error=disk full", "run_complete"} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in log output:\n%s", want, output)
		}
	}
	if LoggingHooks(nil).OnStart != nil {
		t.Fatal("nil logger should yield empty hooks")
	}
}

func TestHooksMerge(t *testing.T) {
	var order []string
	first := Hooks{OnStart: func(context.Context, TaskEvent) { order = append(order, "first") }}
	second := Hooks{OnStart: func(context.Context, TaskEvent) { order = append(order, "second") }}

	merged := first.Merge(second)
	merged.OnStart(context.Background(), TaskEvent{})
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("unexpected hook order %v", order)
	}
	if merged.OnFinish != nil {
		t.Fatal("merging nil hooks should stay nil")
	}
}
