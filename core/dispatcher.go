package core

import "sync/atomic"

// InlineCompletionDispatcher runs completions synchronously on the goroutine
// that produced the terminal status. This is the default.
type InlineCompletionDispatcher struct{}

func (InlineCompletionDispatcher) Dispatch(fn func()) {
	if fn != nil {
		fn()
	}
}

// GoroutineCompletionDispatcher runs each completion on its own goroutine so
// slow callbacks never block the operation runtime.
type GoroutineCompletionDispatcher struct{}

func (GoroutineCompletionDispatcher) Dispatch(fn func()) {
	if fn != nil {
		go fn()
	}
}

// completionGate enforces the exactly-once contract for one completion
// cycle. Whichever path reaches the gate first wins; every later attempt is
// dropped, no matter how results, errors, and cancellations interleave.
type completionGate struct {
	fired atomic.Bool
}

func (g *completionGate) fire(dispatcher CompletionDispatcher, fn func()) bool {
	if g == nil {
		return false
	}
	if !g.fired.CompareAndSwap(false, true) {
		return false
	}
	if fn == nil {
		return true
	}
	if dispatcher == nil {
		fn()
		return true
	}
	dispatcher.Dispatch(fn)
	return true
}

var (
	_ CompletionDispatcher = InlineCompletionDispatcher{}
	_ CompletionDispatcher = GoroutineCompletionDispatcher{}
)
