package tracker

import (
	"errors"
	"testing"
	"time"

	"tasktrack/internal/domain"
)

// batchTree builds the canonical fixture: executable root "Batch" with
// managed sub-tasks "A" and "B".
func batchTree(t *testing.T) *Task {
	t.Helper()
	def, err := NewDefinition("Batch", noopExecute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := def.DefineSubs("A", "B"); err != nil {
		t.Fatal(err)
	}
	task, err := NewTask(def, nil)
	if err != nil {
		t.Fatal(err)
	}
	return task
}

func TestNewTaskStructuralChecks(t *testing.T) {
	if _, err := NewTask(nil, nil); !errors.Is(err, ErrInvalidDefinition) {
		t.Errorf("nil definition: err = %v, want ErrInvalidDefinition", err)
	}

	root, _ := NewDefinition("Batch", noopExecute)
	sub, _ := root.DefineSub("A", nil)

	if _, err := NewTask(sub, nil); !errors.Is(err, ErrInvalidParent) {
		t.Errorf("sub-definition without parent: err = %v, want ErrInvalidParent", err)
	}
	parent, err := NewTask(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewTask(root, parent); !errors.Is(err, ErrInvalidParent) {
		t.Errorf("root definition under a parent: err = %v, want ErrInvalidParent", err)
	}
}

func TestNewTaskMirrorsDefinitionTree(t *testing.T) {
	task := batchTree(t)
	if got := len(task.SubTasks()); got != 2 {
		t.Fatalf("sub-task count = %d, want 2", got)
	}
	a := task.Sub("A")
	if a == nil || !a.Managed() || a.Parent() != task {
		t.Fatalf("sub-task A not built correctly: %+v", a)
	}
	if !task.State().Unstarted() || !a.State().Unstarted() {
		t.Errorf("fresh instances must be Unstarted")
	}
}

func TestInstanceAdoptRejectsCycle(t *testing.T) {
	task := batchTree(t)
	a := task.Sub("A")

	if err := a.Adopt(task); !errors.Is(err, ErrCyclicHierarchy) {
		t.Errorf("adopting own root: err = %v, want ErrCyclicHierarchy", err)
	}
	if got := len(a.SubTasks()); got != 0 {
		t.Errorf("rejected adopt partially applied: %d children", got)
	}

	if err := task.Adopt(&Task{name: "A"}); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("duplicate sibling instance: err = %v, want ErrDuplicateName", err)
	}
}

func TestInstanceAdoptRejectsReparenting(t *testing.T) {
	task := batchTree(t)
	a := task.Sub("A")
	other := &Task{name: "Other", state: domain.Unstarted()}

	if err := other.Adopt(a); !errors.Is(err, ErrInvalidParent) {
		t.Fatalf("re-parenting an owned instance: err = %v, want ErrInvalidParent", err)
	}
	if a.Parent() != task {
		t.Errorf("rejected adopt changed ownership: parent = %v", a.Parent())
	}
	if got := len(other.SubTasks()); got != 0 {
		t.Errorf("rejected adopt linked the child anyway: %d children", got)
	}
	if task.Sub("A") == nil {
		t.Errorf("original parent lost its child")
	}
}

func TestStartAttemptBookkeeping(t *testing.T) {
	task := batchTree(t)
	task.Start(false)

	if !task.State().Started() {
		t.Fatalf("state = %s, want Started", task.State())
	}
	if task.Attempts() != 1 || task.TotalAttempts() != 1 {
		t.Errorf("attempts = %d/%d, want 1/1", task.Attempts(), task.TotalAttempts())
	}
	if task.Began().IsZero() {
		t.Errorf("began not stamped")
	}
	if !task.Sub("A").State().Unstarted() {
		t.Errorf("non-recursive start touched children")
	}

	// Starting again is a no-op: only Unstarted tasks start.
	task.Start(false)
	if task.Attempts() != 1 {
		t.Errorf("restart counted an attempt: %d", task.Attempts())
	}
}

func TestTimeoutReverseAttempt(t *testing.T) {
	task := batchTree(t)
	task.Start(false)

	task.Timeout(errors.New("deadline"), TimeoutOptions{ReverseAttempt: true})
	if !task.State().TimedOut() {
		t.Fatalf("state = %s, want TimedOut", task.State())
	}
	if task.Attempts() != 0 {
		t.Errorf("attempts = %d, want 0 after reversal", task.Attempts())
	}
	if task.TotalAttempts() != 1 {
		t.Errorf("totalAttempts = %d, want 1 (monotonic)", task.TotalAttempts())
	}
}

func TestTimeoutGuards(t *testing.T) {
	task := batchTree(t)

	// Unstarted tasks are skipped without the override.
	task.Timeout(errors.New("early"), TimeoutOptions{})
	if !task.State().Unstarted() {
		t.Fatalf("unstarted task timed out without override")
	}
	task.Timeout(errors.New("early"), TimeoutOptions{OverrideUnstarted: true})
	if !task.State().TimedOut() {
		t.Fatalf("override should allow timing out an unstarted task")
	}

	// Failed tasks are not re-marked.
	other := batchTree(t)
	other.Start(false)
	if err := other.Fail(errors.New("boom"), false); err != nil {
		t.Fatal(err)
	}
	other.Timeout(errors.New("late"), TimeoutOptions{})
	if !other.State().Failed() {
		t.Errorf("timeout overwrote a Failed state: %s", other.State())
	}
}

func TestCompleteSkipsTimedOutUnlessOverridden(t *testing.T) {
	task := batchTree(t)
	task.Start(false)
	task.Timeout(errors.New("deadline"), TimeoutOptions{})

	task.Complete("late result", CompleteOptions{})
	if !task.State().TimedOut() {
		t.Fatalf("completion landed on a timed-out task without override")
	}

	task.Complete("late result", CompleteOptions{OverrideTimedOut: true})
	if !task.State().Completed() {
		t.Fatalf("override should allow completing a timed-out task")
	}
	if task.Result() != "late result" {
		t.Errorf("result = %v", task.Result())
	}
	if task.Err() != nil {
		t.Errorf("error should be cleared on completion: %v", task.Err())
	}
}

func TestFailRequiresError(t *testing.T) {
	task := batchTree(t)
	task.Start(false)

	if err := task.Fail(nil, false); !errors.Is(err, domain.ErrMissingError) {
		t.Errorf("Fail(nil) err = %v, want ErrMissingError", err)
	}
	if !task.State().Started() {
		t.Errorf("failed Fail call mutated state: %s", task.State())
	}

	cause := errors.New("boom")
	if err := task.Fail(cause, false); err != nil {
		t.Fatal(err)
	}
	if !task.State().Failed() || task.Err() != cause {
		t.Errorf("state = %s, err = %v", task.State(), task.Err())
	}
}

func TestRejectBottomUp(t *testing.T) {
	task := batchTree(t)
	task.Start(true)

	// A parent with incomplete children cannot be rejected on its own.
	count, err := task.Reject("unrecoverable", nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 || !task.State().Incomplete() {
		t.Fatalf("parent rejected over incomplete children: count=%d state=%s", count, task.State())
	}

	// Finalise the children, then the parent alone becomes eligible.
	task.Sub("A").Complete(nil, CompleteOptions{})
	if _, err := task.Sub("B").Reject("not needed", nil, false); err != nil {
		t.Fatal(err)
	}
	count, err = task.Reject("unrecoverable", nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 || !task.State().Rejected() {
		t.Fatalf("count=%d state=%s, want 1/Rejected", count, task.State())
	}
}

func TestRejectRequiresReason(t *testing.T) {
	task := batchTree(t)
	if _, err := task.Reject("", nil, true); !errors.Is(err, domain.ErrMissingReason) {
		t.Errorf("Reject(\"\") err = %v, want ErrMissingReason", err)
	}
}

// A recursive rejection finalises children first, then the parent in the
// same pass: with A already Completed, the one call rejects B and then
// Batch itself.
func TestRecursiveRejectSinglePass(t *testing.T) {
	task := batchTree(t)
	task.Start(true)
	task.Sub("A").Complete(nil, CompleteOptions{})

	count, err := task.Reject("unrecoverable", nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2 (B and Batch)", count)
	}
	if !task.Sub("A").State().Completed() {
		t.Errorf("A = %s, want Completed", task.Sub("A").State())
	}
	if !task.Sub("B").State().Rejected() {
		t.Errorf("B = %s, want Rejected", task.Sub("B").State())
	}
	if !task.State().Rejected() {
		t.Errorf("Batch = %s, want Rejected", task.State())
	}
}

func TestDiscardIfOverAttempted(t *testing.T) {
	task := batchTree(t)
	b := task.Sub("B")
	task.Sub("A").Complete(nil, CompleteOptions{})

	for i := 0; i < 3; i++ {
		b.Start(false)
		b.Reset(false)
	}
	if b.Attempts() != 3 {
		t.Fatalf("attempts = %d, want 3", b.Attempts())
	}

	if count := b.DiscardIfOverAttempted(5, false); count != 0 {
		t.Errorf("under budget: count = %d, want 0", count)
	}
	count := task.DiscardIfOverAttempted(3, true)
	if count != 1 {
		t.Errorf("count = %d, want 1 (B only; Batch never started)", count)
	}
	if !b.State().Rejected() || b.State().Name() != domain.NameDiscarded {
		t.Errorf("B = %s, want Discarded", b.State())
	}
}

func TestResetEligibility(t *testing.T) {
	task := batchTree(t)
	task.Start(true)
	task.Sub("A").Complete("kept", CompleteOptions{})

	task.Reset(true)

	if !task.State().Unstarted() {
		t.Errorf("root = %s, want Unstarted", task.State())
	}
	if !task.Sub("B").State().Unstarted() {
		t.Errorf("incomplete child = %s, want Unstarted", task.Sub("B").State())
	}
	// Finalised children keep their progress across a batch retry.
	if !task.Sub("A").State().Completed() || task.Sub("A").Result() != "kept" {
		t.Errorf("completed child lost progress: %s %v", task.Sub("A").State(), task.Sub("A").Result())
	}
	// Attempt counters are audit history and survive resets.
	if task.Attempts() != 1 || task.TotalAttempts() != 1 {
		t.Errorf("attempts = %d/%d, want 1/1", task.Attempts(), task.TotalAttempts())
	}
}

func TestFreezeIsPermanentAndSilent(t *testing.T) {
	task := batchTree(t)
	task.Start(true)
	task.Sub("A").Complete("result", CompleteOptions{})

	state, attempts, result := task.State(), task.Attempts(), task.Sub("A").Result()
	task.Freeze()

	if !task.IsFrozen() || !task.Sub("B").IsFrozen() {
		t.Fatalf("freeze must cover the subtree")
	}

	task.Start(false)
	task.Complete("x", CompleteOptions{})
	if err := task.Fail(errors.New("boom"), true); err != nil {
		t.Fatal(err)
	}
	if _, err := task.Reject("no", nil, true); err != nil {
		t.Fatal(err)
	}
	task.Reset(true)

	if task.State() != state || task.Attempts() != attempts {
		t.Errorf("frozen task mutated: %s attempts=%d", task.State(), task.Attempts())
	}
	if task.Sub("A").Result() != result {
		t.Errorf("frozen child result mutated: %v", task.Sub("A").Result())
	}
	if !task.Sub("B").State().Started() {
		t.Errorf("frozen child mutated: %s", task.Sub("B").State())
	}
}

func TestExecutedOutcome(t *testing.T) {
	task := batchTree(t)
	done := make(chan struct{})
	close(done)

	task.Executed(Outcome{Result: 42}, done)

	outcome, ok := task.Outcome()
	if !ok || outcome.Result != 42 || !outcome.Succeeded() {
		t.Fatalf("outcome = %+v ok=%v", outcome, ok)
	}
	select {
	case <-task.Done():
	default:
		t.Errorf("done signal not wired through")
	}

	// State and outcome are decoupled: recording an outcome does not
	// complete the task.
	if !task.State().Unstarted() {
		t.Errorf("Executed changed state: %s", task.State())
	}
}

func TestTerminalTransitionsStampTiming(t *testing.T) {
	task := batchTree(t)
	task.Start(false)
	task.began = time.Now().Add(-time.Minute)

	task.Complete(nil, CompleteOptions{})
	if task.Ended().IsZero() {
		t.Fatal("ended not stamped")
	}
	if task.Took() < time.Minute {
		t.Errorf("took = %v, want >= 1m", task.Took())
	}
}
