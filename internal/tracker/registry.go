package tracker

import "tasktrack/internal/domain"

// Registry is an insertion-ordered flat map of top-level tasks by name. One
// registry belongs to one batch-run attempt: the embedder creates it when an
// attempt begins and drops it when the attempt's snapshot has been
// persisted. It is an explicit value, never a process-wide singleton.
type Registry struct {
	names []string
	tasks map[string]*Task
}

func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

func (r *Registry) Get(name string) *Task { return r.tasks[name] }

// Set stores a task under the given name, preserving first-insertion order
// across overwrites.
func (r *Registry) Set(name string, t *Task) {
	if _, exists := r.tasks[name]; !exists {
		r.names = append(r.names, name)
	}
	r.tasks[name] = t
}

func (r *Registry) Len() int { return len(r.names) }

func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// All returns the registered tasks in insertion order.
func (r *Registry) All() []*Task {
	out := make([]*Task, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.tasks[name])
	}
	return out
}

// GetSub retrieves a top-level task and walks the given path of sub-task
// names down its tree. Returns nil when any step is missing.
func (r *Registry) GetSub(name string, path ...string) *Task {
	t := r.Get(name)
	for _, step := range path {
		if t == nil {
			return nil
		}
		t = t.Sub(step)
	}
	return t
}

// AnyUnfinalised reports whether any registered task, recursively including
// its children, is not yet in a terminal state. Orchestrators poll this to
// decide between replaying the whole batch and declaring it done. Unusable
// tasks are historical and do not count.
func (r *Registry) AnyUnfinalised() bool {
	for _, name := range r.names {
		t := r.tasks[name]
		if !t.Unusable() && !t.FullyFinalised() {
			return true
		}
	}
	return false
}

// Snapshots exports every registered task in insertion order.
func (r *Registry) Snapshots() []domain.TaskSnapshot {
	out := make([]domain.TaskSnapshot, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, *r.tasks[name].Snapshot())
	}
	return out
}

// Seed loads prior snapshots into the registry as unusable shell tasks.
// Run before Revive when restoring from persistence; Revive then merges them
// into freshly defined tasks.
func (r *Registry) Seed(snaps []domain.TaskSnapshot) {
	for i := range snaps {
		r.Set(snaps[i].Name, TaskFromSnapshot(&snaps[i]))
	}
}

// Revive is the reconstruction step run at the start of each retry cycle:
// it builds a fresh instance per active definition, merges the same-named
// prior task already registered (if any) into it, and writes everything
// back. Prior tasks with no active definition are retired in place: marked
// unusable, never removed.
func (r *Registry) Revive(defs []*Definition) error {
	active := make(map[string]bool, len(defs))
	for _, def := range defs {
		active[def.Name()] = true
		fresh, err := NewTask(def, nil)
		if err != nil {
			return err
		}
		if prior := r.Get(def.Name()); prior != nil {
			if err := fresh.UpdateFromPrior(prior.Snapshot()); err != nil {
				return err
			}
		}
		r.Set(def.Name(), fresh)
	}
	for _, name := range r.names {
		if active[name] {
			continue
		}
		orphan := r.tasks[name]
		orphan.unusable = true
		orphan.definition.SetUnusable(true)
	}
	return nil
}
