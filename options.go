package strand

import (
	"os"

	"github.com/google/uuid"

	"github.com/bpradana/strand/logging"
)

// Option configures a single combinator call.
type Option func(*options)

type options struct {
	dispatcher Dispatcher
	timer      Timer
	hooks      Hooks
	logger     *logging.Logger
	runID      string
}

func defaultOptions() options {
	logger := logging.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logging.LevelWarn)
	return options{
		dispatcher: goroutineDispatcher{},
		timer:      systemTimer{},
		logger:     logger,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	return o
}

// WithDispatcher supplies the Dispatcher that runs task bodies.
func WithDispatcher(dispatcher Dispatcher) Option {
	return func(o *options) {
		if dispatcher != nil {
			o.dispatcher = dispatcher
		}
	}
}

// WithTimer supplies the Timer used by the interval combinators.
func WithTimer(timer Timer) Option {
	return func(o *options) {
		if timer != nil {
			o.timer = timer
		}
	}
}

// WithHooks registers lifecycle hooks for every task run in the call.
func WithHooks(h Hooks) Option {
	return func(o *options) {
		o.hooks = o.hooks.Merge(h)
	}
}

// WithLogger replaces the default stderr WARN logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(o *options) {
		o.runID = id
	}
}
