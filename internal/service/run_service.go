package service

import (
	"context"
	"encoding/json"
	"fmt"

	"tasktrack/internal/api/dto"
	"tasktrack/internal/core/ports"
	"tasktrack/internal/domain"
	"tasktrack/internal/worker"

	"github.com/google/uuid"
)

const defaultMaxAttempts = 3

type RunService interface {
	SubmitRun(ctx context.Context, req dto.CreateRunRequest) (uuid.UUID, error)
	GetRun(ctx context.Context, id uuid.UUID) (*dto.RunResponse, error)
}

// The Implementation
type runService struct {
	repo     ports.RunRepository
	queue    ports.RunQueue
	runTypes worker.RunTypeRegistry
}

// Constructor
func NewRunService(repo ports.RunRepository, queue ports.RunQueue, runTypes worker.RunTypeRegistry) RunService {
	return &runService{
		repo:     repo,
		queue:    queue,
		runTypes: runTypes,
	}
}

func (s *runService) SubmitRun(ctx context.Context, req dto.CreateRunRequest) (uuid.UUID, error) {
	builder, exists := s.runTypes[req.Type]
	if !exists {
		return uuid.Nil, fmt.Errorf("unknown run type %q", req.Type)
	}
	// Build the forest once up front so structural problems (duplicate
	// names, cycles, missing behaviors) surface at submission, not at the
	// first attempt.
	if _, err := builder(); err != nil {
		return uuid.Nil, fmt.Errorf("run type %q: %w", req.Type, err)
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	run := domain.NewRun(req.Type, maxAttempts)
	if err := s.repo.Create(ctx, run); err != nil {
		return uuid.Nil, err
	}

	if err := s.queue.Push(ctx, run.ID.String()); err != nil {
		return uuid.Nil, err
	}

	return run.ID, nil
}

func (s *runService) GetRun(ctx context.Context, id uuid.UUID) (*dto.RunResponse, error) {
	run, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	resp := &dto.RunResponse{
		ID:        run.ID,
		Name:      run.Name,
		Status:    run.Status,
		Attempts:  run.Attempts,
		Max:       run.MaxAttempts,
		CreatedAt: run.CreatedAt,
		UpdatedAt: run.UpdatedAt,
	}
	if len(run.Snapshot) > 0 {
		if err := json.Unmarshal(run.Snapshot, &resp.Tasks); err != nil {
			return nil, fmt.Errorf("corrupt snapshot for run %s: %w", id, err)
		}
	}
	return resp, nil
}
