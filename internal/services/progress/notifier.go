// Package progress streams task snapshots to subscribers until the task settles.
package progress

import (
	"context"
	"time"

	"github.com/ternarybob/agenthub/internal/common"
	"github.com/ternarybob/agenthub/internal/interfaces"
	"github.com/ternarybob/arbor"
)

// DefaultInterval is the push cadence for a watched task
const DefaultInterval = time.Second

// Notifier polls a task on a fixed cadence and pushes every snapshot to a sink
type Notifier struct {
	tasks    interfaces.TaskService
	logger   arbor.ILogger
	interval time.Duration
}

// NewNotifier creates a progress notifier from the [progress] config section
func NewNotifier(tasks interfaces.TaskService, config common.ProgressConfig, logger arbor.ILogger) *Notifier {
	return &Notifier{
		tasks:    tasks,
		logger:   logger,
		interval: common.ParseDurationOr(config.Interval, DefaultInterval),
	}
}

// Watch pushes the current snapshot of taskID immediately and then once per
// interval. It returns nil after pushing a terminal snapshot, ctx.Err() when
// the subscriber goes away, the sink's error when a push fails, and a
// NotFound error when the task does not exist or disappears.
func (n *Notifier) Watch(ctx context.Context, taskID string, sink interfaces.ProgressSink) error {
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	pushes := 0
	for {
		task, err := n.tasks.Get(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			n.logger.Debug().Err(err).Str("task_id", taskID).Int("pushes", pushes).Msg("Progress watch ended, task unavailable")
			return err
		}

		if err := sink(task); err != nil {
			n.logger.Debug().Err(err).Str("task_id", taskID).Msg("Progress sink failed")
			return err
		}
		pushes++

		if task.Status.IsTerminal() {
			n.logger.Debug().Str("task_id", taskID).Str("status", string(task.Status)).Int("pushes", pushes).Msg("Progress watch completed")
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
