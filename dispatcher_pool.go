package strand

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// NewWorkerPoolDispatcher returns a Dispatcher that executes submitted tasks
// on a fixed-size worker pool. If size is zero or negative, GOMAXPROCS workers
// are used. The queue is unbounded, so Submit never blocks, including when it
// is called from a worker.
func NewWorkerPoolDispatcher(size int) *WorkerPool {
	size = normalizeSize(size)

	pool := &WorkerPool{}
	pool.cond = sync.NewCond(&pool.mu)
	pool.wg.Add(size)
	for i := 0; i < size; i++ {
		go pool.worker()
	}
	return pool
}

// WorkerPool is a fixed set of goroutines draining a shared queue.
type WorkerPool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	stopped bool
	wg      sync.WaitGroup
	once    sync.Once
}

func (d *WorkerPool) worker() {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.stopped {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		if fn != nil {
			fn()
		}
	}
}

// Submit queues fn for a worker. It panics if called after Stop.
func (d *WorkerPool) Submit(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		panic("strand: submit on stopped worker pool")
	}
	d.queue = append(d.queue, fn)
	d.cond.Signal()
}

// Stop lets the workers drain the queue and waits for them to exit.
func (d *WorkerPool) Stop() {
	d.once.Do(func() {
		d.mu.Lock()
		d.stopped = true
		d.cond.Broadcast()
		d.mu.Unlock()
		d.wg.Wait()
	})
}

// NewBoundedDispatcher returns a Dispatcher that starts a goroutine per
// submitted function but lets at most size of them run at once. Submit never
// blocks. If size is zero or negative, GOMAXPROCS is used.
func NewBoundedDispatcher(size int) *BoundedDispatcher {
	return &BoundedDispatcher{
		sem: semaphore.NewWeighted(int64(normalizeSize(size))),
	}
}

// BoundedDispatcher gates goroutines with a weighted semaphore.
type BoundedDispatcher struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

func (d *BoundedDispatcher) Submit(fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		// Acquire only fails on context cancellation.
		_ = d.sem.Acquire(context.Background(), 1)
		defer d.sem.Release(1)
		fn()
	}()
}

// Wait blocks until every submitted function has returned.
func (d *BoundedDispatcher) Wait() {
	d.wg.Wait()
}

func normalizeSize(size int) int {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
		if size <= 0 {
			size = 1
		}
	}
	return size
}
