// -----------------------------------------------------------------------
// Task - Simulated long-running unit of work
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"time"
)

// TaskStatus is the lifecycle state of a task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// Known task types. Other values are accepted and use the default duration.
const (
	TaskTypeDownload = "download"
	TaskTypeScrape   = "scrape"
	TaskTypeAnalysis = "analysis"
	TaskTypeOther    = "other"
)

// Task represents a simulated background task.
// Progress only increases; Progress == 100 exactly when Status is completed.
type Task struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Name      string                 `json:"name"`
	Config    map[string]interface{} `json:"config"`
	Status    TaskStatus             `json:"status"`
	Progress  int                    `json:"progress"`
	Result    json.RawMessage        `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

// CreateTaskRequest is the input accepted by the task engine
type CreateTaskRequest struct {
	Type   string                 `json:"type" validate:"required,max=64"`
	Name   string                 `json:"name" validate:"required,max=256"`
	Config map[string]interface{} `json:"config"`
}

// Clone returns a deep copy safe to hand to callers
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Config = cloneMap(t.Config)
	if t.Result != nil {
		c.Result = append(json.RawMessage(nil), t.Result...)
	}
	return &c
}

func (t *Task) GetID() string { return t.ID }

// cloneMap copies a decoded JSON object. Nested values are copied recursively.
func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return cloneMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}
