package agent

import "context"

// Simulator compiles and simulates a design against the task testbench.
// Failures are part of the report; Simulate never fails.
type Simulator interface {
	Simulate(ctx context.Context, source string, taskID int) string
}

// Synthesizer synthesizes a design and reports its area.
type Synthesizer interface {
	Synthesize(ctx context.Context, source string) string
}

// Decider is asked at DECIDE whether another iteration should run.
type Decider interface {
	Decide(ctx context.Context, o Outcome) (Decision, error)
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(ctx context.Context, o Outcome) (Decision, error)

func (f DeciderFunc) Decide(ctx context.Context, o Outcome) (Decision, error) {
	return f(ctx, o)
}

// AlwaysContinue keeps iterating until the limit.
var AlwaysContinue Decider = DeciderFunc(func(context.Context, Outcome) (Decision, error) {
	return Continue, nil
})

// Observer receives loop events. Observe is called synchronously from the
// loop and must not block for long.
type Observer interface {
	Observe(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

func (f ObserverFunc) Observe(ev Event) { f(ev) }

// NopObserver discards events.
var NopObserver Observer = ObserverFunc(func(Event) {})

// Journal stores decided outcomes.
type Journal interface {
	Record(ctx context.Context, o Outcome) error
}

// Archiver stores the build artifacts of a validated iteration and returns
// their names.
type Archiver interface {
	Archive(ctx context.Context, o Outcome) ([]string, error)
}
