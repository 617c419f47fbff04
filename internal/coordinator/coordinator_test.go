package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"tasktrack/internal/domain"
	"tasktrack/internal/observability"
	"tasktrack/internal/tracker"
	"tasktrack/internal/worker"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fakeRepo struct {
	runs map[uuid.UUID]*domain.Run
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{runs: make(map[uuid.UUID]*domain.Run)}
}

func (f *fakeRepo) Create(ctx context.Context, run *domain.Run) error {
	f.runs[run.ID] = run
	return nil
}

func (f *fakeRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return run, nil
}

func (f *fakeRepo) SaveSnapshot(ctx context.Context, runID uuid.UUID, snapshot datatypes.JSON, attempts int) error {
	run, ok := f.runs[runID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	run.Snapshot = snapshot
	run.Attempts = attempts
	return nil
}

func (f *fakeRepo) UpdateStatus(ctx context.Context, runID uuid.UUID, status domain.RunStatus) error {
	run, ok := f.runs[runID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if run.Status == domain.RunRunning {
		run.Status = status
	}
	return nil
}

func (f *fakeRepo) ListUnfinished(ctx context.Context) ([]domain.Run, error) {
	var out []domain.Run
	for _, run := range f.runs {
		if run.Status == domain.RunRunning {
			out = append(out, *run)
		}
	}
	return out, nil
}

type fakeQueue struct {
	pushed []string
}

func (f *fakeQueue) Push(ctx context.Context, runID string) error {
	f.pushed = append(f.pushed, runID)
	return nil
}

func (f *fakeQueue) Pop(ctx context.Context) (string, error) {
	if len(f.pushed) == 0 {
		return "", context.Canceled
	}
	head := f.pushed[0]
	f.pushed = f.pushed[1:]
	return head, nil
}

type fakeBus struct {
	events []domain.RunFinalisedEvent
}

func (f *fakeBus) PublishRunFinalised(ctx context.Context, event domain.RunFinalisedEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeBus) SubscribeToEvents(ctx context.Context) (<-chan domain.RunFinalisedEvent, error) {
	ch := make(chan domain.RunFinalisedEvent)
	close(ch)
	return ch, nil
}

type harness struct {
	repo  *fakeRepo
	queue *fakeQueue
	bus   *fakeBus
	coord *Coordinator
}

func newHarness(t *testing.T, runTypes worker.RunTypeRegistry) *harness {
	t.Helper()
	repo := newFakeRepo()
	queue := &fakeQueue{}
	bus := &fakeBus{}
	coord := NewCoordinator(repo, queue, bus, runTypes, worker.NewExecutor(), observability.NewMetrics(), time.Minute)
	return &harness{repo: repo, queue: queue, bus: bus, coord: coord}
}

func (h *harness) submit(t *testing.T, runType string, maxAttempts int) *domain.Run {
	t.Helper()
	run := domain.NewRun(runType, maxAttempts)
	if err := h.repo.Create(context.Background(), run); err != nil {
		t.Fatal(err)
	}
	return run
}

func TestProcessRunCompletes(t *testing.T) {
	runTypes := worker.RunTypeRegistry{
		"steady": func() ([]*tracker.Definition, error) {
			root, err := tracker.NewDefinition("Job", func(ctx context.Context, task *tracker.Task) (any, error) {
				return "done", nil
			})
			if err != nil {
				return nil, err
			}
			return []*tracker.Definition{root}, nil
		},
	}
	h := newHarness(t, runTypes)
	run := h.submit(t, "steady", 3)

	h.coord.processRun(context.Background(), run.ID)

	if run.Status != domain.RunCompleted {
		t.Fatalf("status = %s, want COMPLETED", run.Status)
	}
	if run.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", run.Attempts)
	}
	if len(h.bus.events) != 1 || h.bus.events[0].Status != domain.RunCompleted {
		t.Errorf("events = %+v", h.bus.events)
	}
	if len(h.queue.pushed) != 0 {
		t.Errorf("completed run requeued: %v", h.queue.pushed)
	}

	var snaps []domain.TaskSnapshot
	if err := json.Unmarshal(run.Snapshot, &snaps); err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 1 || snaps[0].State.Name != domain.NameSucceeded {
		t.Errorf("persisted snapshot = %+v", snaps)
	}
}

func TestProcessRunRetriesThenCompletes(t *testing.T) {
	calls := 0
	runTypes := worker.RunTypeRegistry{
		"flaky": func() ([]*tracker.Definition, error) {
			root, err := tracker.NewDefinition("Job", func(ctx context.Context, task *tracker.Task) (any, error) {
				calls++
				if calls == 1 {
					return nil, errors.New("transient")
				}
				return "done", nil
			})
			if err != nil {
				return nil, err
			}
			return []*tracker.Definition{root}, nil
		},
	}
	h := newHarness(t, runTypes)
	run := h.submit(t, "flaky", 3)

	h.coord.processRun(context.Background(), run.ID)

	if run.Status != domain.RunRunning {
		t.Fatalf("status after failed attempt = %s, want RUNNING", run.Status)
	}
	if len(h.queue.pushed) != 1 {
		t.Fatalf("failed run not requeued: %v", h.queue.pushed)
	}
	var snaps []domain.TaskSnapshot
	if err := json.Unmarshal(run.Snapshot, &snaps); err != nil {
		t.Fatal(err)
	}
	if snaps[0].State.Name != domain.NameFailed || snaps[0].State.Error == "" {
		t.Errorf("snapshot after failure = %+v", snaps[0].State)
	}

	h.coord.processRun(context.Background(), run.ID)

	if run.Status != domain.RunCompleted {
		t.Fatalf("status after retry = %s, want COMPLETED", run.Status)
	}
	if run.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", run.Attempts)
	}
}

func TestProcessRunAbandonsWhenOutOfAttempts(t *testing.T) {
	runTypes := worker.RunTypeRegistry{
		"doomed": func() ([]*tracker.Definition, error) {
			root, err := tracker.NewDefinition("Job", func(ctx context.Context, task *tracker.Task) (any, error) {
				return nil, errors.New("permanent")
			})
			if err != nil {
				return nil, err
			}
			return []*tracker.Definition{root}, nil
		},
	}
	h := newHarness(t, runTypes)
	run := h.submit(t, "doomed", 1)

	h.coord.processRun(context.Background(), run.ID)

	if run.Status != domain.RunAbandoned {
		t.Fatalf("status = %s, want ABANDONED", run.Status)
	}
	if len(h.queue.pushed) != 0 {
		t.Errorf("abandoned run requeued: %v", h.queue.pushed)
	}

	var snaps []domain.TaskSnapshot
	if err := json.Unmarshal(run.Snapshot, &snaps); err != nil {
		t.Fatal(err)
	}
	if snaps[0].State.Name != domain.NameDiscarded {
		t.Errorf("task state = %+v, want Discarded", snaps[0].State)
	}
}

func TestProcessRunUnknownTypeAbandons(t *testing.T) {
	h := newHarness(t, worker.RunTypeRegistry{})
	run := h.submit(t, "mystery", 3)

	h.coord.processRun(context.Background(), run.ID)

	if run.Status != domain.RunAbandoned {
		t.Fatalf("status = %s, want ABANDONED", run.Status)
	}
}

func TestWatchFinalisedCountsBusEvents(t *testing.T) {
	h := newHarness(t, worker.RunTypeRegistry{})

	events := make(chan domain.RunFinalisedEvent, 3)
	events <- domain.RunFinalisedEvent{RunID: uuid.New(), Name: "a", Status: domain.RunCompleted}
	events <- domain.RunFinalisedEvent{RunID: uuid.New(), Name: "b", Status: domain.RunCompleted}
	events <- domain.RunFinalisedEvent{RunID: uuid.New(), Name: "c", Status: domain.RunAbandoned}
	close(events)

	h.coord.watchFinalised(events)

	completed := testutil.ToFloat64(h.coord.metrics.RunsFinalised.WithLabelValues(string(domain.RunCompleted)))
	if completed != 2 {
		t.Errorf("completed counter = %v, want 2", completed)
	}
	abandoned := testutil.ToFloat64(h.coord.metrics.RunsFinalised.WithLabelValues(string(domain.RunAbandoned)))
	if abandoned != 1 {
		t.Errorf("abandoned counter = %v, want 1", abandoned)
	}
}

func TestProcessRunSkipsFinishedRun(t *testing.T) {
	h := newHarness(t, worker.RunTypeRegistry{})
	run := h.submit(t, "whatever", 3)
	run.Status = domain.RunCompleted

	h.coord.processRun(context.Background(), run.ID)

	if len(h.bus.events) != 0 {
		t.Errorf("finished run re-finalised: %+v", h.bus.events)
	}
}
