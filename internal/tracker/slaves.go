package tracker

import "tasktrack/internal/domain"

// SetSlaves turns t into a master whose view consolidates multiple redundant
// attempts at equivalent work. The master's counters and timing are derived,
// not set: attempts and totalAttempts become the minimum across slaves,
// began/ended come from the slave with the most recent began, and the state
// becomes the least-advanced slave state, but only when the master has not
// itself started, so a consolidated view never overstates progress.
//
// Same-named sub-tasks are paired recursively, so every later mutation on
// any master node ripples to the corresponding node in each slave tree.
func (t *Task) SetSlaves(slaves []*Task) {
	if t.frozen || len(slaves) == 0 {
		return
	}
	t.slaves = append(t.slaves, slaves...)

	minAttempts, minTotal := slaves[0].attempts, slaves[0].totalAttempts
	latest := slaves[0]
	states := make([]domain.State, 0, len(slaves))
	for _, sl := range slaves {
		if sl.attempts < minAttempts {
			minAttempts = sl.attempts
		}
		if sl.totalAttempts < minTotal {
			minTotal = sl.totalAttempts
		}
		if sl.began.After(latest.began) {
			latest = sl
		}
		states = append(states, sl.state)
	}
	t.attempts = minAttempts
	t.totalAttempts = minTotal
	t.began = latest.began
	t.ended = latest.ended
	t.took = latest.took
	if t.state.Unstarted() {
		least := domain.LeastAdvanced(states...)
		t.state = least
		if least.Rejected() || least.Failed() || least.TimedOut() {
			t.taskErr = least.Err()
		}
	}

	for _, st := range t.subTasks {
		var paired []*Task
		for _, sl := range slaves {
			if match := sl.Sub(st.name); match != nil {
				paired = append(paired, match)
			}
		}
		st.SetSlaves(paired)
	}
}
