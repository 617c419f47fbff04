package tracker

import (
	"fmt"
	"time"

	"tasktrack/internal/domain"
)

// Task is a mutable runtime node created from exactly one Definition. It
// owns its child instances and carries the full per-node bookkeeping: state,
// attempt counters, timing, result/error, optional slave replicas.
//
// All mutation is synchronous and assumes a single writer per instance; the
// tracker itself takes no locks. Once frozen, every mutating call is a
// silent no-op.
type Task struct {
	definition *Definition
	name       string
	managed    bool

	state         domain.State
	attempts      int
	totalAttempts int
	began         time.Time
	ended         time.Time
	took          time.Duration
	result        any
	taskErr       error

	parent   *Task // non-owning back-reference
	subTasks []*Task
	slaves   []*Task

	outcome *Outcome
	done    <-chan struct{}

	frozen   bool
	unusable bool
}

// Outcome is the discriminated result of invoking a task's ExecuteFunc,
// recorded separately from state so a caller can distinguish "state says
// Completed" from "all promised side effects have actually settled".
type Outcome struct {
	Result any
	Err    error
}

func (o Outcome) Succeeded() bool { return o.Err == nil }

// NewTask builds an instance tree from a definition, recursively creating
// one child instance per sub-definition. Root definitions must be
// instantiated without a parent and sub-definitions with one.
func NewTask(def *Definition, parent *Task) (*Task, error) {
	if def == nil {
		return nil, invalidDefinitionf("nil definition")
	}
	if def.parent == nil && parent != nil {
		return nil, fmt.Errorf("%w: root definition %q instantiated under parent %q", ErrInvalidParent, def.name, parent.name)
	}
	if def.parent != nil && parent == nil {
		return nil, fmt.Errorf("%w: sub-definition %q instantiated without a parent", ErrInvalidParent, def.name)
	}
	t := &Task{
		definition: def,
		name:       def.name,
		managed:    def.Managed(),
		state:      domain.Unstarted(),
		unusable:   def.unusable,
	}
	if parent != nil {
		if err := parent.Adopt(t); err != nil {
			return nil, err
		}
	}
	for _, sd := range def.subDefs {
		if _, err := NewTask(sd, t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Adopt links a child instance under t. Mirrors the definition-time checks:
// exclusive ownership, duplicate sibling names and cycles are all rejected
// before anything is linked, covering trees stitched together dynamically
// after construction.
func (t *Task) Adopt(child *Task) error {
	if child == nil {
		return invalidDefinitionf("nil child instance under %q", t.name)
	}
	if child.parent != nil {
		return fmt.Errorf("%w: %q is already owned by %q", ErrInvalidParent, child.name, child.parent.name)
	}
	for _, existing := range t.subTasks {
		if existing.name == child.name {
			return fmt.Errorf("%w: sub-task %q under %q", ErrDuplicateName, child.name, t.name)
		}
	}
	// A cycle exists exactly when the child is t or one of t's ancestors.
	// The walk follows parent pointers only.
	for cur := t; cur != nil; cur = cur.parent {
		if cur == child {
			return fmt.Errorf("%w: %q is an ancestor of %q", ErrCyclicHierarchy, child.name, t.name)
		}
	}
	child.parent = t
	t.subTasks = append(t.subTasks, child)
	return nil
}

func (t *Task) Name() string            { return t.name }
func (t *Task) Managed() bool           { return t.managed }
func (t *Task) Definition() *Definition { return t.definition }
func (t *Task) Parent() *Task           { return t.parent }
func (t *Task) State() domain.State     { return t.state }
func (t *Task) Attempts() int           { return t.attempts }
func (t *Task) TotalAttempts() int      { return t.totalAttempts }
func (t *Task) Began() time.Time        { return t.began }
func (t *Task) Ended() time.Time        { return t.ended }
func (t *Task) Took() time.Duration     { return t.took }
func (t *Task) Result() any             { return t.result }
func (t *Task) Err() error              { return t.taskErr }
func (t *Task) IsFrozen() bool          { return t.frozen }
func (t *Task) IsMaster() bool          { return len(t.slaves) > 0 }

// Unusable reports whether the instance has been retired from active use.
// Retired instances are kept for audit visibility, never deleted.
func (t *Task) Unusable() bool { return t.unusable }

func (t *Task) SubTasks() []*Task {
	out := make([]*Task, len(t.subTasks))
	copy(out, t.subTasks)
	return out
}

func (t *Task) Slaves() []*Task {
	out := make([]*Task, len(t.slaves))
	copy(out, t.slaves)
	return out
}

// Sub returns the direct sub-task with the given name, or nil.
func (t *Task) Sub(name string) *Task {
	for _, st := range t.subTasks {
		if st.name == name {
			return st
		}
	}
	return nil
}

func (t *Task) isRoot() bool { return t.parent == nil }

// FullyFinalised reports whether this node and every descendant reached a
// terminal state (Completed or Rejected family).
func (t *Task) FullyFinalised() bool {
	if !t.state.Finalised() {
		return false
	}
	for _, st := range t.subTasks {
		if !st.FullyFinalised() {
			return false
		}
	}
	return true
}

func (t *Task) allSubTasksFinalised() bool {
	for _, st := range t.subTasks {
		if !st.FullyFinalised() {
			return false
		}
	}
	return true
}

// enterState applies the cross-cutting field rules for every transition:
// result survives only Completed states, the error field only error-bearing
// ones, and terminal transitions stamp the end time.
func (t *Task) enterState(s domain.State, terminal bool) {
	t.state = s
	if !s.Completed() {
		t.result = nil
	}
	if s.Rejected() || s.Failed() || s.TimedOut() {
		t.taskErr = s.Err()
	} else {
		t.taskErr = nil
	}
	if terminal {
		t.ended = time.Now()
		if !t.began.IsZero() {
			t.took = t.ended.Sub(t.began)
		}
	}
}

// Start moves an unstarted task to Started, counting the attempt and
// stamping the begin time. Already-started tasks are left untouched.
func (t *Task) Start(recursively bool) {
	t.startOne()
	if recursively {
		for _, st := range t.subTasks {
			st.Start(true)
		}
	}
}

func (t *Task) startOne() {
	if !t.frozen && t.state.Unstarted() {
		t.attempts++
		t.totalAttempts++
		t.began = time.Now()
		t.ended = time.Time{}
		t.took = 0
		t.enterState(domain.Started(), false)
	}
	for _, s := range t.slaves {
		s.startOne()
	}
}

// CompleteOptions controls Complete/Succeed behavior.
type CompleteOptions struct {
	// OverrideTimedOut lets a late completion land on a task already
	// marked TimedOut.
	OverrideTimedOut bool
	Recursively      bool
}

// Complete marks the task Completed with the given result. Skipped when the
// task is already finalised, or timed out without the override.
func (t *Task) Complete(result any, opts CompleteOptions) {
	t.completeAs(domain.Completed(), result, opts)
}

// Succeed marks the task with the Succeeded sub-variant of Completed.
func (t *Task) Succeed(result any, opts CompleteOptions) {
	t.completeAs(domain.Succeeded(), result, opts)
}

// CompleteAs marks the task with a custom-named Completed-family state.
func (t *Task) CompleteAs(name string, result any, opts CompleteOptions) {
	t.completeAs(domain.CompletedAs(name), result, opts)
}

func (t *Task) completeAs(s domain.State, result any, opts CompleteOptions) {
	t.completeOne(s, result, opts.OverrideTimedOut)
	if opts.Recursively {
		childOpts := opts
		for _, st := range t.subTasks {
			st.completeAs(s, nil, childOpts)
		}
	}
}

func (t *Task) completeOne(s domain.State, result any, overrideTimedOut bool) {
	if !t.frozen && t.state.Incomplete() && (!t.state.TimedOut() || overrideTimedOut) {
		t.enterState(s, true)
		t.result = result
	}
	for _, sl := range t.slaves {
		sl.completeOne(s, result, overrideTimedOut)
	}
}

// TimeoutOptions controls Timeout behavior.
type TimeoutOptions struct {
	// OverrideUnstarted lets a timeout land on a task that never started.
	OverrideUnstarted bool
	// ReverseAttempt reverts the attempt increment made by Start, leaving
	// totalAttempts untouched, so a timed-out attempt does not count
	// against retry budgets.
	ReverseAttempt bool
	Recursively    bool
}

// Timeout marks the task TimedOut. Timeouts are detected externally; this
// only records them. Skipped when already TimedOut, Rejected or Failed, and
// when unstarted without the override.
func (t *Task) Timeout(err error, opts TimeoutOptions) {
	t.timeoutAs(domain.TimedOut(err), opts)
}

// TimeoutAs marks the task with a custom-named TimedOut-family state.
func (t *Task) TimeoutAs(name string, err error, opts TimeoutOptions) {
	t.timeoutAs(domain.TimedOutAs(name, err), opts)
}

func (t *Task) timeoutAs(s domain.State, opts TimeoutOptions) {
	t.timeoutOne(s, opts)
	if opts.Recursively {
		for _, st := range t.subTasks {
			st.timeoutAs(s, opts)
		}
	}
}

func (t *Task) timeoutOne(s domain.State, opts TimeoutOptions) {
	eligible := !t.state.TimedOut() && !t.state.Rejected() && !t.state.Failed() &&
		!t.state.Completed() &&
		(!t.state.Unstarted() || opts.OverrideUnstarted)
	if !t.frozen && eligible {
		if opts.ReverseAttempt && t.attempts > 0 {
			t.attempts--
		}
		t.enterState(s, true)
	}
	for _, sl := range t.slaves {
		sl.timeoutOne(s, opts)
	}
}

// Fail marks the task Failed. Unlike every other guard, a missing error is a
// loud failure: a failure without a cause is a caller bug, not a race.
// Already TimedOut, Rejected or Failed tasks are skipped silently.
func (t *Task) Fail(err error, recursively bool) error {
	return t.failAs(domain.NameFailed, err, recursively)
}

// FailAs marks the task with a custom-named Failed-family state.
func (t *Task) FailAs(name string, err error, recursively bool) error {
	return t.failAs(name, err, recursively)
}

func (t *Task) failAs(name string, err error, recursively bool) error {
	s, serr := domain.FailedAs(name, err)
	if serr != nil {
		return serr
	}
	t.failOne(s)
	if recursively {
		for _, st := range t.subTasks {
			if ferr := st.failAs(name, err, true); ferr != nil {
				return ferr
			}
		}
	}
	return nil
}

func (t *Task) failOne(s domain.State) {
	if !t.frozen && !t.state.TimedOut() && !t.state.Rejected() && !t.state.Failed() && t.state.Incomplete() {
		t.enterState(s, true)
	}
	for _, sl := range t.slaves {
		sl.failOne(s)
	}
}

// Reject finalises the task as Rejected. Rejection is strictly bottom-up: a
// node only transitions once every sub-task subtree is itself finalised, so
// a recursive call works children-first and may finalise parent and children
// in the same pass. Returns the number of nodes that actually transitioned.
func (t *Task) Reject(reason string, err error, recursively bool) (int, error) {
	s, serr := domain.Rejected(reason, err)
	if serr != nil {
		return 0, serr
	}
	return t.finaliseAs(s, recursively), nil
}

// Discard finalises the task with the Discarded sub-variant of Rejected.
func (t *Task) Discard(reason string, err error, recursively bool) (int, error) {
	s, serr := domain.Discarded(reason, err)
	if serr != nil {
		return 0, serr
	}
	return t.finaliseAs(s, recursively), nil
}

// Abandon finalises the task with the Abandoned sub-variant of Rejected.
func (t *Task) Abandon(reason string, err error, recursively bool) (int, error) {
	s, serr := domain.Abandoned(reason, err)
	if serr != nil {
		return 0, serr
	}
	return t.finaliseAs(s, recursively), nil
}

// RejectAs finalises the task with a custom-named Rejected-family state.
func (t *Task) RejectAs(name, reason string, err error, recursively bool) (int, error) {
	s, serr := domain.RejectedAs(name, reason, err)
	if serr != nil {
		return 0, serr
	}
	return t.finaliseAs(s, recursively), nil
}

// finaliseAs evaluates children first, then self, within the one call, so a
// parent whose last unfinalised child transitions in this pass finalises in
// the same pass.
func (t *Task) finaliseAs(s domain.State, recursively bool) int {
	count := 0
	if recursively {
		for _, st := range t.subTasks {
			count += st.finaliseAs(s, true)
		}
	}
	count += t.finaliseOne(s)
	return count
}

func (t *Task) finaliseOne(s domain.State) int {
	transitioned := 0
	if !t.frozen && t.state.Incomplete() && t.allSubTasksFinalised() {
		t.enterState(s, true)
		transitioned = 1
	}
	for _, sl := range t.slaves {
		sl.finaliseOne(s)
	}
	return transitioned
}

// DiscardIfOverAttempted discards tasks whose attempt count reached max,
// under the same bottom-up guard as Reject. Returns the number of nodes
// that transitioned.
func (t *Task) DiscardIfOverAttempted(max int, recursively bool) int {
	count := 0
	if recursively {
		for _, st := range t.subTasks {
			count += st.DiscardIfOverAttempted(max, true)
		}
	}
	count += t.discardOverAttemptedOne(max)
	return count
}

func (t *Task) discardOverAttemptedOne(max int) int {
	transitioned := 0
	if !t.frozen && t.state.Incomplete() && t.attempts >= max && t.allSubTasksFinalised() {
		s, _ := domain.Discarded(fmt.Sprintf("exceeded %d attempts", max), nil)
		t.enterState(s, true)
		transitioned = 1
	}
	for _, sl := range t.slaves {
		sl.discardOverAttemptedOne(max)
	}
	return transitioned
}

// Reset returns the task to Unstarted for a fresh attempt. Eligible when
// incomplete, or for a root whose subtree is not yet fully finalised, which
// supports a full retry of a partially-done batch. Finalised sub-tasks keep
// their state so completed work is not redone. Attempt counters survive.
func (t *Task) Reset(recursively bool) {
	t.resetOne()
	if recursively {
		for _, st := range t.subTasks {
			st.Reset(true)
		}
	}
}

func (t *Task) resetOne() {
	eligible := t.state.Incomplete() || (t.isRoot() && !t.FullyFinalised())
	if !t.frozen && eligible && !t.state.Unstarted() {
		t.began = time.Time{}
		t.ended = time.Time{}
		t.took = 0
		t.enterState(domain.Unstarted(), false)
	}
	for _, sl := range t.slaves {
		sl.resetOne()
	}
}

// Executed records the outcome of invoking the definition's behavior plus a
// completion signal that closes once all asynchronous sub-parts of that
// outcome have settled.
func (t *Task) Executed(outcome Outcome, done <-chan struct{}) {
	if t.frozen {
		return
	}
	o := outcome
	t.outcome = &o
	t.done = done
}

// Outcome returns the recorded execution outcome, if any.
func (t *Task) Outcome() (Outcome, bool) {
	if t.outcome == nil {
		return Outcome{}, false
	}
	return *t.outcome, true
}

// Done returns the completion signal recorded by Executed; nil when none.
func (t *Task) Done() <-chan struct{} { return t.done }

// Freeze permanently locks the subtree, and any slaves, against further
// mutation. Late-arriving transitions after a freeze are silent no-ops, so a
// tree handed off for persistence cannot be corrupted by a racing
// completion.
func (t *Task) Freeze() {
	if t.frozen {
		return
	}
	t.frozen = true
	for _, st := range t.subTasks {
		st.Freeze()
	}
	for _, sl := range t.slaves {
		sl.Freeze()
	}
}
