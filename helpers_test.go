package strand

import (
	"context"
	"sync"
	"testing"
	"time"
)

// deferred hands out tasks whose callbacks the test fires by index.
type deferred[T any] struct {
	mu      sync.Mutex
	calls   map[int]Callback[T]
	started []int
}

func newDeferred[T any]() *deferred[T] {
	return &deferred[T]{calls: make(map[int]Callback[T])}
}

func (d *deferred[T]) task(index int) Task[T] {
	return func(_ context.Context, done Callback[T]) {
		d.mu.Lock()
		d.calls[index] = done
		d.started = append(d.started, index)
		d.mu.Unlock()
	}
}

func (d *deferred[T]) tasks(n int) []Task[T] {
	tasks := make([]Task[T], n)
	for i := range tasks {
		tasks[i] = d.task(i)
	}
	return tasks
}

func (d *deferred[T]) complete(t *testing.T, index int, err error, value T) {
	t.Helper()
	d.mu.Lock()
	done, ok := d.calls[index]
	d.mu.Unlock()
	if !ok {
		t.Fatalf("task %d was never started", index)
	}
	done(err, value)
}

func (d *deferred[T]) startedOrder() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.started...)
}

// outcome records every completion call.
type outcome[T any] struct {
	mu      sync.Mutex
	calls   int
	err     error
	results []T
}

func (o *outcome[T]) completion() Completion[T] {
	return func(err error, results []T) {
		o.mu.Lock()
		o.calls++
		o.err = err
		o.results = results
		o.mu.Unlock()
	}
}

func (o *outcome[T]) snapshot() (int, error, []T) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.results == nil {
		return o.calls, o.err, nil
	}
	results := make([]T, len(o.results))
	copy(results, o.results)
	return o.calls, o.err, results
}

// manualTimer queues callbacks until the test fires them.
type manualTimer struct {
	mu      sync.Mutex
	delays  []time.Duration
	pending []func()
}

func (m *manualTimer) AfterFunc(d time.Duration, f func()) {
	m.mu.Lock()
	m.delays = append(m.delays, d)
	m.pending = append(m.pending, f)
	m.mu.Unlock()
}

func (m *manualTimer) fire(t *testing.T) {
	t.Helper()
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		t.Fatal("no timer pending")
	}
	f := m.pending[0]
	m.pending = m.pending[1:]
	m.mu.Unlock()
	f()
}

func (m *manualTimer) pendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *manualTimer) scheduled() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.delays...)
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func await[T any](t *testing.T, exec *Execution[T]) ([]T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	results, err := exec.Await(ctx)
	if ctx.Err() != nil {
		t.Fatalf("execution %s did not complete", exec.Combinator())
	}
	return results, err
}
