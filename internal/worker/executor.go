package worker

import (
	"context"
	"errors"
	"log"

	"tasktrack/internal/tracker"
)

// Executor drives one revived tracker forest through a single attempt. It
// owns no state of its own: it starts tasks, invokes their behaviors,
// records outcomes, and reports results back into the tree. Deadlines are
// taken from the context; the executor records them as timeouts but never
// enforces anything inside the tracker.
type Executor struct{}

func NewExecutor() *Executor {
	return &Executor{}
}

// ExecuteAll runs every usable, unfinalised top-level task in the registry.
func (e *Executor) ExecuteAll(ctx context.Context, reg *tracker.Registry) {
	for _, t := range reg.All() {
		if t.Unusable() || t.FullyFinalised() {
			continue
		}
		if ctx.Err() != nil {
			e.recordTimeout(ctx, t)
			continue
		}
		e.executeTree(ctx, t)
	}
}

func (e *Executor) executeTree(ctx context.Context, t *tracker.Task) {
	if t.FullyFinalised() || t.Unusable() {
		return
	}

	// A failed or timed-out prior attempt is retryable: bring the node
	// back to Unstarted so Start counts a new attempt.
	if t.State().Failed() || t.State().TimedOut() {
		t.Reset(false)
	}
	t.Start(false)

	if fn := t.Definition().Execute(); fn != nil && !t.State().Finalised() {
		done := make(chan struct{})
		result, err := fn(ctx, t)
		close(done)
		t.Executed(tracker.Outcome{Result: result, Err: err}, done)

		switch {
		case err == nil:
			if t.State().Incomplete() {
				t.Succeed(result, tracker.CompleteOptions{})
			}
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			t.Timeout(err, tracker.TimeoutOptions{ReverseAttempt: true})
		default:
			if ferr := t.Fail(err, false); ferr != nil {
				log.Printf("Executor could not record failure of %s: %v", t.Name(), ferr)
			}
		}
	}

	for _, sub := range t.SubTasks() {
		if sub.Definition() != nil && sub.Definition().Executable() {
			e.executeTree(ctx, sub)
		}
	}
}

// recordTimeout marks everything still incomplete in the subtree as timed
// out, reversing the attempt so the cut-short attempt does not burn retry
// budget.
func (e *Executor) recordTimeout(ctx context.Context, t *tracker.Task) {
	t.Timeout(ctx.Err(), tracker.TimeoutOptions{ReverseAttempt: true, Recursively: true})
}
