package coordinator

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"tasktrack/internal/core/ports"
	"tasktrack/internal/domain"
	"tasktrack/internal/observability"
	"tasktrack/internal/tracker"
	"tasktrack/internal/worker"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Coordinator owns the retry cycle: pop a run, revive its tracker forest
// from the last persisted snapshot, execute one attempt, persist the new
// snapshot, and either finalise the run or requeue it for another attempt.
type Coordinator struct {
	runRepo        ports.RunRepository
	queue          ports.RunQueue
	eventBus       ports.EventBus
	runTypes       worker.RunTypeRegistry
	executor       *worker.Executor
	metrics        *observability.Metrics
	attemptTimeout time.Duration
}

func NewCoordinator(
	runRepo ports.RunRepository,
	queue ports.RunQueue,
	bus ports.EventBus,
	runTypes worker.RunTypeRegistry,
	executor *worker.Executor,
	metrics *observability.Metrics,
	attemptTimeout time.Duration,
) *Coordinator {
	return &Coordinator{
		runRepo:        runRepo,
		queue:          queue,
		eventBus:       bus,
		runTypes:       runTypes,
		executor:       executor,
		metrics:        metrics,
		attemptTimeout: attemptTimeout,
	}
}

// Start begins the infinite attempt loop. Call this in main.go as a goroutine.
func (c *Coordinator) Start(ctx context.Context) {
	log.Println("Coordinator started, waiting for runs...")

	if events, err := c.eventBus.SubscribeToEvents(ctx); err != nil {
		log.Printf("Coordinator could not subscribe to finalisation events: %v", err)
	} else {
		go c.watchFinalised(events)
	}

	c.requeueUnfinished(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("Coordinator shutting down...")
			return
		default:
		}

		runIDStr, err := c.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Coordinator error popping from queue: %v", err)
			continue
		}

		runID, err := uuid.Parse(runIDStr)
		if err != nil {
			log.Printf("Coordinator failed to parse run ID %s: %v", runIDStr, err)
			continue
		}

		c.processRun(ctx, runID)
	}
}

// requeueUnfinished pushes every non-terminal run back onto the queue, so a
// restart picks up where the previous process left off. Progress is safe to
// replay: revival merges the persisted snapshot, and finalised sub-tasks are
// never re-executed.
func (c *Coordinator) requeueUnfinished(ctx context.Context) {
	runs, err := c.runRepo.ListUnfinished(ctx)
	if err != nil {
		log.Printf("Coordinator could not list unfinished runs: %v", err)
		return
	}
	for _, run := range runs {
		if err := c.queue.Push(ctx, run.ID.String()); err != nil {
			log.Printf("Coordinator failed to requeue run %s: %v", run.ID, err)
		}
	}
}

// processRun executes exactly one attempt of one run.
func (c *Coordinator) processRun(ctx context.Context, runID uuid.UUID) {
	run, err := c.runRepo.FindByID(ctx, runID)
	if err != nil {
		log.Printf("Coordinator failed to load run %s: %v", runID, err)
		return
	}
	if run.IsFinished() {
		log.Printf("Coordinator skipping run %s: already %s", runID, run.Status)
		return
	}

	builder, exists := c.runTypes[run.Name]
	if !exists {
		log.Printf("Coordinator unknown run type %q for run %s, abandoning", run.Name, runID)
		c.finalise(ctx, run, domain.RunAbandoned)
		return
	}
	defs, err := builder()
	if err != nil {
		log.Printf("Coordinator run type %q produced invalid definitions: %v", run.Name, err)
		c.finalise(ctx, run, domain.RunAbandoned)
		return
	}

	reg, err := c.revive(run, defs)
	if err != nil {
		log.Printf("Coordinator failed to revive run %s: %v", runID, err)
		c.finalise(ctx, run, domain.RunAbandoned)
		return
	}

	run.Attempts++
	c.metrics.RunAttempts.Inc()
	log.Printf("Coordinator run %s (%s): attempt %d/%d", runID, run.Name, run.Attempts, run.MaxAttempts)

	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	c.executor.ExecuteAll(attemptCtx, reg)
	cancel()

	outOfAttempts := run.Attempts >= run.MaxAttempts
	if outOfAttempts && reg.AnyUnfinalised() {
		discarded := 0
		for _, t := range reg.All() {
			discarded += t.DiscardIfOverAttempted(run.MaxAttempts, true)
		}
		if discarded > 0 {
			c.metrics.TasksDiscarded.Add(float64(discarded))
			log.Printf("Coordinator run %s: discarded %d over-attempted tasks", runID, discarded)
		}
	}

	// Freeze before persisting so a straggling async completion cannot
	// mutate the tree the snapshot is being taken from.
	for _, t := range reg.All() {
		t.Freeze()
	}
	if err := c.persistSnapshot(ctx, run, reg); err != nil {
		log.Printf("Coordinator failed to persist snapshot for run %s: %v", runID, err)
		return
	}

	if reg.AnyUnfinalised() {
		c.metrics.UnfinalisedTasks.Set(float64(countUnfinalised(reg)))
		log.Printf("Coordinator run %s: work remaining, requeueing", runID)
		if err := c.queue.Push(ctx, runID.String()); err != nil {
			log.Printf("Coordinator failed to requeue run %s: %v", runID, err)
		}
		return
	}

	c.metrics.UnfinalisedTasks.Set(0)
	c.finalise(ctx, run, statusFor(reg, outOfAttempts))
}

// revive rebuilds the live forest for this attempt: seed the registry with
// the persisted snapshot, then merge it into freshly built definitions.
func (c *Coordinator) revive(run *domain.Run, defs []*tracker.Definition) (*tracker.Registry, error) {
	reg := tracker.NewRegistry()
	if len(run.Snapshot) > 0 {
		var snaps []domain.TaskSnapshot
		if err := json.Unmarshal(run.Snapshot, &snaps); err != nil {
			return nil, err
		}
		reg.Seed(snaps)
	}
	if err := reg.Revive(defs); err != nil {
		return nil, err
	}
	return reg, nil
}

func (c *Coordinator) persistSnapshot(ctx context.Context, run *domain.Run, reg *tracker.Registry) error {
	payload, err := json.Marshal(reg.Snapshots())
	if err != nil {
		return err
	}
	return c.runRepo.SaveSnapshot(ctx, run.ID, datatypes.JSON(payload), run.Attempts)
}

func (c *Coordinator) finalise(ctx context.Context, run *domain.Run, status domain.RunStatus) {
	if err := c.runRepo.UpdateStatus(ctx, run.ID, status); err != nil {
		log.Printf("Coordinator failed to mark run %s as %s: %v", run.ID, status, err)
		return
	}

	event := domain.RunFinalisedEvent{
		RunID:    run.ID,
		Name:     run.Name,
		Status:   status,
		Attempts: run.Attempts,
	}
	if err := c.eventBus.PublishRunFinalised(ctx, event); err != nil {
		log.Printf("Coordinator failed to publish finalisation of run %s: %v", run.ID, err)
	}
	log.Printf("Coordinator run %s finalised as %s after %d attempts", run.ID, status, run.Attempts)
}

// watchFinalised consumes the finalisation stream until the bus closes it.
// The finalised counter is driven from here rather than from finalise, so it
// reflects every instance publishing on the bus, not just this process.
func (c *Coordinator) watchFinalised(events <-chan domain.RunFinalisedEvent) {
	for event := range events {
		c.metrics.RunsFinalised.WithLabelValues(string(event.Status)).Inc()
		log.Printf("Coordinator observed run %s (%s) finalised as %s", event.RunID, event.Name, event.Status)
	}
}

// statusFor maps a fully-finalised forest onto a run status: all Completed
// means COMPLETED; any Rejected-family state means the batch gave up, which
// is ABANDONED when the attempt budget ran out and FAILED otherwise.
func statusFor(reg *tracker.Registry, outOfAttempts bool) domain.RunStatus {
	rejected := false
	for _, t := range reg.All() {
		if t.Unusable() {
			continue
		}
		if anyRejected(t) {
			rejected = true
			break
		}
	}
	switch {
	case !rejected:
		return domain.RunCompleted
	case outOfAttempts:
		return domain.RunAbandoned
	default:
		return domain.RunFailed
	}
}

func anyRejected(t *tracker.Task) bool {
	if t.State().Rejected() {
		return true
	}
	for _, sub := range t.SubTasks() {
		if anyRejected(sub) {
			return true
		}
	}
	return false
}

func countUnfinalised(reg *tracker.Registry) int {
	count := 0
	var walk func(t *tracker.Task)
	walk = func(t *tracker.Task) {
		if !t.State().Finalised() {
			count++
		}
		for _, sub := range t.SubTasks() {
			walk(sub)
		}
	}
	for _, t := range reg.All() {
		if t.Unusable() {
			continue
		}
		walk(t)
	}
	return count
}
