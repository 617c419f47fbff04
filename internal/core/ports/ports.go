package ports

import (
	"context"

	"tasktrack/internal/domain"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// RunQueue represents the pending-run queue operations
type RunQueue interface {
	// Push a Run UUID onto the "to-do" list
	Push(ctx context.Context, runID string) error

	// Wait (block) until a Run UUID is available
	Pop(ctx context.Context) (string, error)
}

// EventBus represents the event bus operations
type EventBus interface {
	// Publish "run X reached a terminal status" to Redis Pub/Sub
	PublishRunFinalised(ctx context.Context, event domain.RunFinalisedEvent) error

	// Subscribe to finalisation events (used by embedders polling for done)
	SubscribeToEvents(ctx context.Context) (<-chan domain.RunFinalisedEvent, error)
}

// RunRepository represents the run persistence operations
type RunRepository interface {
	// Create a new run row
	Create(ctx context.Context, run *domain.Run) error

	// Fetch a run with its last persisted snapshot
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)

	// Persist the tracker forest written at the end of an attempt,
	// together with the attempt counter
	SaveSnapshot(ctx context.Context, runID uuid.UUID, snapshot datatypes.JSON, attempts int) error

	// Move the run to a different status
	UpdateStatus(ctx context.Context, runID uuid.UUID, status domain.RunStatus) error

	// All runs not yet in a terminal status, oldest first: the replay
	// candidates after a restart
	ListUnfinished(ctx context.Context) ([]domain.Run, error)
}
