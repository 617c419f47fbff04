package tracker

import "tasktrack/internal/domain"

// Snapshot exports the subtree as plain serializable data. The result field
// is carried only for Completed nodes, matching what revival will accept
// back.
func (t *Task) Snapshot() *domain.TaskSnapshot {
	snap := &domain.TaskSnapshot{
		Name:          t.name,
		Managed:       t.managed,
		State:         t.state.Snapshot(),
		Attempts:      t.attempts,
		TotalAttempts: t.totalAttempts,
		Took:          t.took,
	}
	if !t.began.IsZero() {
		began := t.began
		snap.Began = &began
	}
	if !t.ended.IsZero() {
		ended := t.ended
		snap.Ended = &ended
	}
	if t.state.Completed() {
		snap.Result = t.result
	}
	for _, st := range t.subTasks {
		snap.SubTasks = append(snap.SubTasks, *st.Snapshot())
	}
	return snap
}

// TaskFromSnapshot rebuilds a live, externally-managed task tree from
// serialized data, marked unusable. Used to retain orphaned prior tasks
// whose definitions no longer exist in the active set: they stay inspectable
// but take no further part in execution.
func TaskFromSnapshot(snap *domain.TaskSnapshot) *Task {
	def := &Definition{name: snap.Name, unusable: true}
	t := &Task{
		definition:    def,
		name:          snap.Name,
		managed:       true,
		state:         domain.StateFromSnapshot(snap.State),
		attempts:      snap.Attempts,
		totalAttempts: snap.TotalAttempts,
		took:          snap.Took,
		unusable:      true,
	}
	t.taskErr = t.state.Err()
	if t.state.Completed() {
		t.result = snap.Result
	}
	if snap.Began != nil {
		t.began = *snap.Began
	}
	if snap.Ended != nil {
		t.ended = *snap.Ended
	}
	for i := range snap.SubTasks {
		sub := TaskFromSnapshot(&snap.SubTasks[i])
		def.subDefs = append(def.subDefs, sub.definition)
		sub.definition.parent = def
		sub.parent = t
		t.subTasks = append(t.subTasks, sub)
	}
	return t
}
