package dto

import (
	"time"

	"tasktrack/internal/domain"

	"github.com/google/uuid"
)

type CreateRunRequest struct {
	Type        string `json:"type" binding:"required"`
	MaxAttempts int    `json:"max_attempts" binding:"omitempty,min=1"`
}

type CreateRunResponse struct {
	ID uuid.UUID `json:"id"`
}

type RunResponse struct {
	ID        uuid.UUID             `json:"id"`
	Name      string                `json:"name"`
	Status    domain.RunStatus      `json:"status"`
	Attempts  int                   `json:"attempts"`
	Max       int                   `json:"max_attempts"`
	Tasks     []domain.TaskSnapshot `json:"tasks,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}
