package worker

import (
	"context"
	"fmt"

	"tasktrack/internal/tracker"
)

// ForestBuilder constructs the definition forest for one run type. It is
// invoked fresh at the start of every attempt, so builders must be pure:
// revival merges prior progress into whatever the current code defines.
type ForestBuilder func() ([]*tracker.Definition, error)

// RunTypeRegistry maps run type names to their forest builders
type RunTypeRegistry map[string]ForestBuilder

// InitRegistry wires up the run types this deployment knows how to execute
func InitRegistry() RunTypeRegistry {
	registry := make(RunTypeRegistry)

	registry["record_import"] = func() ([]*tracker.Definition, error) {
		root, err := tracker.NewDefinition("Import", func(ctx context.Context, t *tracker.Task) (any, error) {
			// The root behavior drives its managed sub-tasks: each phase
			// is completed by hand as the work lands.
			for _, sub := range t.SubTasks() {
				sub.Start(false)
				fmt.Printf("importing phase %s\n", sub.Name())
				sub.Succeed(nil, tracker.CompleteOptions{})
			}
			return map[string]any{"imported": len(t.SubTasks())}, nil
		})
		if err != nil {
			return nil, err
		}
		if _, err := root.DefineSubs("Fetch", "Transform", "Load"); err != nil {
			return nil, err
		}
		return []*tracker.Definition{root}, nil
	}

	registry["notify"] = func() ([]*tracker.Definition, error) {
		root, err := tracker.NewDefinition("Notify", func(ctx context.Context, t *tracker.Task) (any, error) {
			fmt.Println("sending notifications")
			return map[string]any{"sent": true}, nil
		})
		if err != nil {
			return nil, err
		}
		return []*tracker.Definition{root}, nil
	}

	return registry
}
