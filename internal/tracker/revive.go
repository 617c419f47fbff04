package tracker

import (
	"fmt"

	"tasktrack/internal/domain"
)

// UpdateFromPrior merges a structurally-matching prior version of this task
// into the freshly built instance, recursing per sub-task by name. State,
// error and timing are copied; the standalone result only when the prior was
// Completed; totalAttempts accumulates additively across incarnations.
// Sub-tasks present in the prior tree but absent from the active definition
// set are preserved as unusable copies rather than silently dropped, so
// audit trails survive definition changes across deploys.
func (t *Task) UpdateFromPrior(prior *domain.TaskSnapshot) error {
	if prior == nil {
		return nil
	}
	if prior.Name != t.name {
		return fmt.Errorf("%w: prior %q does not match task %q", ErrMismatchedRevival, prior.Name, t.name)
	}
	if t.frozen {
		return nil
	}

	st := domain.StateFromSnapshot(prior.State)
	t.state = st
	if st.Rejected() || st.Failed() || st.TimedOut() {
		t.taskErr = st.Err()
	} else {
		t.taskErr = nil
	}
	if st.Completed() {
		t.result = prior.Result
	} else {
		t.result = nil
	}
	t.attempts = prior.Attempts
	t.totalAttempts += prior.TotalAttempts
	t.took = prior.Took
	if prior.Began != nil {
		t.began = *prior.Began
	}
	if prior.Ended != nil {
		t.ended = *prior.Ended
	}

	for i := range prior.SubTasks {
		priorSub := &prior.SubTasks[i]
		if match := t.Sub(priorSub.Name); match != nil {
			if err := match.UpdateFromPrior(priorSub); err != nil {
				return err
			}
			continue
		}
		if err := t.Adopt(TaskFromSnapshot(priorSub)); err != nil {
			return err
		}
	}
	return nil
}
