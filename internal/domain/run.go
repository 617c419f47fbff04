package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
	RunAbandoned RunStatus = "ABANDONED"
)

// Run is one persisted batch-run: a named forest of tracked tasks plus the
// retry bookkeeping the coordinator needs between attempts. The Snapshot
// column holds the serialized TaskSnapshot forest written after every
// attempt and read back by revival at the start of the next one.
type Run struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key;"`
	Name        string    `gorm:"type:varchar(100);not null"`
	Status      RunStatus `gorm:"type:varchar(20);index;default:'RUNNING'"`
	Attempts    int       `gorm:"default:0"`
	MaxAttempts int       `gorm:"default:3"`

	Snapshot datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewRun(name string, maxAttempts int) *Run {
	return &Run{
		ID:          uuid.New(),
		Name:        name,
		Status:      RunRunning,
		MaxAttempts: maxAttempts,
		CreatedAt:   time.Now(),
	}
}

// IsFinished reports whether the run reached a terminal status.
func (r *Run) IsFinished() bool {
	return r.Status == RunCompleted || r.Status == RunFailed || r.Status == RunAbandoned
}

// RunFinalisedEvent is published to Redis Pub/Sub when a run reaches a
// terminal status, so embedders can stop polling it.
type RunFinalisedEvent struct {
	RunID    uuid.UUID `json:"run_id"`
	Name     string    `json:"name"`
	Status   RunStatus `json:"status"`
	Attempts int       `json:"attempts"`
}
