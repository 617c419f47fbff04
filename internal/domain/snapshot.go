package domain

import "time"

// TaskSnapshot is the serializable view of one tracker node and its subtree.
// It doubles as the revival input: a prior run's persisted snapshot is merged
// back into freshly defined tasks at the start of the next attempt, so the
// shape here is the contract between attempts, not an internal detail.
type TaskSnapshot struct {
	Name          string         `json:"name"`
	Managed       bool           `json:"managed,omitempty"`
	State         StateSnapshot  `json:"state"`
	Attempts      int            `json:"attempts"`
	TotalAttempts int            `json:"total"`
	Began         *time.Time     `json:"began,omitempty"`
	Ended         *time.Time     `json:"ended,omitempty"`
	Took          time.Duration  `json:"took,omitempty"`
	Result        any            `json:"result,omitempty"`
	SubTasks      []TaskSnapshot `json:"subTasks,omitempty"`
}

// Sub returns the direct sub-snapshot with the given name, or nil.
func (s *TaskSnapshot) Sub(name string) *TaskSnapshot {
	for i := range s.SubTasks {
		if s.SubTasks[i].Name == name {
			return &s.SubTasks[i]
		}
	}
	return nil
}
