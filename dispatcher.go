package strand

import "time"

// Dispatcher runs submitted functions. Submit may run fn on another
// goroutine or before returning; the engine handles both.
type Dispatcher interface {
	Submit(fn func())
}

// goroutineDispatcher runs every submitted task on its own goroutine.
type goroutineDispatcher struct{}

func (goroutineDispatcher) Submit(fn func()) {
	go fn()
}

// InlineDispatcher runs each submitted function on the caller's goroutine
// before Submit returns.
type InlineDispatcher struct{}

func (InlineDispatcher) Submit(fn func()) {
	fn()
}

// Timer invokes f once after d has elapsed.
type Timer interface {
	AfterFunc(d time.Duration, f func())
}

// TimerFunc adapts a function into a Timer.
type TimerFunc func(d time.Duration, f func())

func (fn TimerFunc) AfterFunc(d time.Duration, f func()) {
	fn(d, f)
}

// systemTimer schedules callbacks with time.AfterFunc.
type systemTimer struct{}

func (systemTimer) AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}
