// Package strand provides asynchronous control-flow combinators: series,
// parallel, bounded parallel, conditional loops and interval repetition.
// Tasks report through a callback that must fire exactly once; each
// combinator returns immediately, drives its tasks through a Dispatcher and
// invokes a single Completion when it finishes or fails. Results are typed
// and always reported in original task order.
package strand
