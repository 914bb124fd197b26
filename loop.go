package strand

import (
	"sync"
	"time"
)

// phase is a state of the serial run machine shared by series, loops and
// repeats: check -> run -> await -> check ... -> stop, with an optional delay
// between check and run for interval repetition.
type phase int

const (
	phaseCheck phase = iota
	phaseRun
	phaseAwait
	phaseDelay
	phaseStop
)

var phaseNames = [...]string{"check", "run", "await", "delay", "stop"}

func (p phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// loopPolicy holds the guards of the serial machine.
type loopPolicy struct {
	test      Test
	until     bool
	postCheck bool
	limit     int
	interval  time.Duration
}

func (p loopPolicy) initial() phase {
	if p.postCheck {
		return phaseRun
	}
	return phaseCheck
}

// next returns the phase following cur after runs successful executions.
// test is evaluated only when leaving check. A zero limit is unbounded.
func (p loopPolicy) next(cur phase, runs int) phase {
	switch cur {
	case phaseCheck:
		if p.limit > 0 && runs >= p.limit {
			return phaseStop
		}
		if p.test != nil && p.test() == p.until {
			return phaseStop
		}
		if p.interval > 0 && runs > 0 {
			return phaseDelay
		}
		return phaseRun
	case phaseRun:
		return phaseAwait
	case phaseAwait:
		return phaseCheck
	case phaseDelay:
		return phaseRun
	default:
		return phaseStop
	}
}

type loopRun[T any] struct {
	*run[T]
	policy loopPolicy
	taskAt func(i int) Task[T]

	mu       sync.Mutex
	phase    phase
	runs     int
	results  []T
	err      error
	signaled bool
}

func startLoop[T any](r *run[T], policy loopPolicy, taskAt func(int) Task[T]) *Execution[T] {
	l := &loopRun[T]{
		run:     r,
		policy:  policy,
		taskAt:  taskAt,
		phase:   policy.initial(),
		results: []T{},
	}
	return r.start(l.step)
}

// step advances the machine until it has to wait for a task callback or the
// timer. Guards run without the lock held.
func (l *loopRun[T]) step() {
	for {
		l.mu.Lock()
		cur := l.phase
		waiting := (cur == phaseAwait || cur == phaseDelay) && !l.signaled
		if cur == phaseStop || waiting {
			l.mu.Unlock()
			return
		}
		l.signaled = false
		runs, err := l.runs, l.err
		l.mu.Unlock()

		nxt := phaseStop
		if err == nil {
			nxt = l.policy.next(cur, runs)
		}

		l.mu.Lock()
		l.phase = nxt
		l.mu.Unlock()

		switch nxt {
		case phaseAwait:
			l.launch(runs, l.taskAt(runs), l.settle)
		case phaseDelay:
			l.opts.timer.AfterFunc(l.policy.interval, l.wake)
		case phaseStop:
			l.mu.Lock()
			results := l.results
			l.mu.Unlock()
			l.finish(err, results)
			return
		}
	}
}

func (l *loopRun[T]) settle(err error, value T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase != phaseAwait || l.signaled {
		return false
	}
	if err != nil {
		l.err = err
	} else {
		l.results = append(l.results, value)
		l.runs++
	}
	l.signaled = true
	return true
}

func (l *loopRun[T]) wake() {
	l.mu.Lock()
	if l.phase == phaseDelay {
		l.signaled = true
	}
	l.mu.Unlock()
	l.kick()
}
