// -----------------------------------------------------------------------
// Task Engine - simulated task lifecycle and stepping
// -----------------------------------------------------------------------

package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/agenthub/internal/common"
	"github.com/ternarybob/agenthub/internal/interfaces"
	"github.com/ternarybob/agenthub/internal/models"
	"github.com/ternarybob/arbor"
)

var completedResult = json.RawMessage(`{"message":"task completed"}`)

// errStopStepping aborts a stepper update when the task has already reached a terminal state
var errStopStepping = errors.New("task is terminal")

// Engine creates tasks and advances each one on its own stepper goroutine.
// Every transition is a read-modify-write through TaskStorage.UpdateTask, so
// a terminal task is never modified again.
type Engine struct {
	storage    interfaces.TaskStorage
	events     interfaces.EventService
	logger     arbor.ILogger
	steps      int
	durations  map[string]time.Duration
	fallback   time.Duration
	background *common.Background

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewEngine creates a task engine. events may be nil.
func NewEngine(storage interfaces.TaskStorage, events interfaces.EventService, config common.TasksConfig, logger arbor.ILogger) *Engine {
	steps := config.Steps
	if steps <= 0 {
		steps = 10
	}

	durations := make(map[string]time.Duration, len(config.Durations))
	for taskType, d := range config.Durations {
		durations[strings.ToLower(taskType)] = common.ParseDurationOr(d, 2*time.Second)
	}

	return &Engine{
		storage:    storage,
		events:     events,
		logger:     logger,
		steps:      steps,
		durations:  durations,
		fallback:   common.ParseDurationOr(config.Default, 2*time.Second),
		background: common.NewBackground(context.Background(), logger),
		cancels:    make(map[string]context.CancelFunc),
	}
}

// DurationFor returns the nominal run time of a task type
func (e *Engine) DurationFor(taskType string) time.Duration {
	if d, ok := e.durations[strings.ToLower(taskType)]; ok {
		return d
	}
	return e.fallback
}

// Create validates and persists a pending task, then starts stepping it in the background.
// It returns ErrClosed once the engine is closed.
func (e *Engine) Create(ctx context.Context, req models.CreateTaskRequest) (*models.Task, error) {
	req.Type = strings.TrimSpace(req.Type)
	req.Name = strings.TrimSpace(req.Name)
	if err := common.ValidateStruct(req); err != nil {
		return nil, err
	}
	if e.background.Closed() {
		return nil, fmt.Errorf("task engine: %w", common.ErrClosed)
	}

	config := req.Config
	if config == nil {
		config = map[string]interface{}{}
	}

	now := time.Now()
	task := &models.Task{
		ID:        common.NewID(),
		Type:      req.Type,
		Name:      req.Name,
		Config:    config,
		Status:    models.TaskStatusPending,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := e.storage.SaveTask(ctx, task); err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("task_id", task.ID).
		Str("type", task.Type).
		Str("name", task.Name).
		Dur("duration", e.DurationFor(task.Type)).
		Msg("Task created")

	// Closed between the check and here: the task stays pending for the next Start
	if !e.startStepper(task.ID) {
		return nil, fmt.Errorf("task %s stored but not started: %w", task.ID, common.ErrClosed)
	}

	return task.Clone(), nil
}

// Get returns a snapshot of the task
func (e *Engine) Get(ctx context.Context, id string) (*models.Task, error) {
	return e.storage.GetTask(ctx, id)
}

// List returns all tasks in creation order
func (e *Engine) List(ctx context.Context) ([]*models.Task, error) {
	return e.storage.ListTasks(ctx)
}

// Cancel stops a pending or running task. Cancelling a terminal task is a conflict.
func (e *Engine) Cancel(ctx context.Context, id string) (*models.Task, error) {
	task, err := e.storage.UpdateTask(ctx, id, func(task *models.Task) error {
		if task.Status.IsTerminal() {
			return common.ConflictError("task %s is already %s", task.ID, task.Status)
		}
		task.Status = models.TaskStatusCancelled
		task.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if cancel, ok := e.cancels[id]; ok {
		cancel()
	}
	e.mu.Unlock()

	e.logger.Info().Str("task_id", id).Int("progress", task.Progress).Msg("Task cancelled")
	e.publish(ctx, interfaces.EventTaskCancelled, task)

	return task, nil
}

// Start resumes stepping for tasks left pending or running by a previous process
func (e *Engine) Start(ctx context.Context) error {
	tasks, err := e.storage.ListTasks(ctx)
	if err != nil {
		return err
	}

	resumed := 0
	for _, task := range tasks {
		if task.Status.IsTerminal() {
			continue
		}
		e.startStepper(task.ID)
		resumed++
	}

	if resumed > 0 {
		e.logger.Info().Int("count", resumed).Msg("Resumed unfinished tasks")
	}
	return nil
}

// Wait blocks until every stepper has exited
func (e *Engine) Wait() {
	e.background.Wait()
}

// Close stops all steppers and waits for them
func (e *Engine) Close() {
	e.background.Close()
}

// startStepper reports false when the engine is closed
func (e *Engine) startStepper(id string) bool {
	ctx, cancel := context.WithCancel(e.background.Context())

	e.mu.Lock()
	if _, running := e.cancels[id]; running {
		e.mu.Unlock()
		cancel()
		return true
	}
	e.cancels[id] = cancel
	e.mu.Unlock()

	started := e.background.Go("task:"+id, func(context.Context) {
		defer e.forget(id)
		e.step(ctx, id)
	})
	if !started {
		e.forget(id)
	}
	return started
}

func (e *Engine) forget(id string) {
	e.mu.Lock()
	if cancel, ok := e.cancels[id]; ok {
		cancel()
		delete(e.cancels, id)
	}
	e.mu.Unlock()
}

// step drives one task from its stored progress to completion
func (e *Engine) step(ctx context.Context, id string) {
	// Storage writes ignore stepper cancellation
	storeCtx := context.WithoutCancel(ctx)

	task, err := e.storage.UpdateTask(storeCtx, id, func(task *models.Task) error {
		if task.Status.IsTerminal() {
			return errStopStepping
		}
		if task.Status == models.TaskStatusPending {
			task.Status = models.TaskStatusRunning
			task.UpdatedAt = time.Now()
		}
		return nil
	})
	if err != nil {
		e.stepFailed(storeCtx, id, err)
		return
	}

	interval := e.DurationFor(task.Type) / time.Duration(e.steps)
	increment := 100 / e.steps
	if increment < 1 {
		increment = 1
	}

	e.logger.Debug().Str("task_id", id).Int("progress", task.Progress).Dur("step", interval).Msg("Task running")

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		task, err = e.storage.UpdateTask(storeCtx, id, func(task *models.Task) error {
			if task.Status.IsTerminal() {
				return errStopStepping
			}
			task.Progress += increment
			if task.Progress >= 100 {
				task.Progress = 100
				task.Status = models.TaskStatusCompleted
				task.Result = completedResult
			}
			task.UpdatedAt = time.Now()
			return nil
		})
		if err != nil {
			e.stepFailed(storeCtx, id, err)
			return
		}

		if task.Status == models.TaskStatusCompleted {
			e.logger.Info().Str("task_id", id).Str("type", task.Type).Msg("Task completed")
			e.publish(storeCtx, interfaces.EventTaskCompleted, task)
			return
		}

		timer.Reset(interval)
	}
}

// stepFailed handles a stepper update error. A vanished or already terminal
// task just ends the stepper; any other error marks the task failed.
func (e *Engine) stepFailed(ctx context.Context, id string, err error) {
	if errors.Is(err, errStopStepping) || errors.Is(err, common.ErrNotFound) {
		return
	}

	e.logger.Error().Err(err).Str("task_id", id).Msg("Task step failed")

	_, updateErr := e.storage.UpdateTask(ctx, id, func(task *models.Task) error {
		if task.Status.IsTerminal() {
			return errStopStepping
		}
		task.Status = models.TaskStatusFailed
		task.Error = err.Error()
		task.UpdatedAt = time.Now()
		return nil
	})
	if updateErr != nil && !errors.Is(updateErr, errStopStepping) {
		e.logger.Warn().Err(updateErr).Str("task_id", id).Msg("Failed to mark task as failed")
	}
}

func (e *Engine) publish(ctx context.Context, eventType interfaces.EventType, task *models.Task) {
	if e.events == nil {
		return
	}
	if err := e.events.PublishSync(ctx, interfaces.Event{Type: eventType, Payload: task}); err != nil {
		e.logger.Warn().Err(err).Str("task_id", task.ID).Str("event_type", string(eventType)).Msg("Task event handlers failed")
	}
}
