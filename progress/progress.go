// Package progress defines the minimal interface long-running bbrdb
// operations (whole-card NAND dumps and writes) report through. Bad-block
// scans and SK/SA reads do not take a Reporter.
//
// Progress reporting and logging are explicitly an external collaborator of
// the core client (see spec §1): this package states only the interface
// consumed, not a concrete bar or spinner. Callers that want visible
// progress (a CLI, a test harness) supply their own Reporter.
package progress

// Reporter receives incremental progress updates. Inc is called with the
// number of units (bytes or blocks, depending on the caller) completed
// since the last call; Done is called exactly once when an operation that
// has started its block loop finishes, whether it succeeded or failed. An
// operation rejected before that (not initialised, wrong input size) calls
// neither.
type Reporter interface {
	Inc(n int)
	Done()
}

// Noop is the zero-cost default Reporter. Every bbrdb operation that
// accepts a Reporter falls back to Noop{} when none is given.
type Noop struct{}

func (Noop) Inc(int) {}
func (Noop) Done()   {}

// Func adapts a plain function to a Reporter, calling it for every Inc and
// ignoring Done. Handy for tests and simple callers.
type Func func(n int)

func (f Func) Inc(n int) { f(n) }
func (f Func) Done()     {}
