package interfaces

import (
	"context"
	"time"
)

// RefreshTarget is a kind of entity the scheduler refreshes on every tick
type RefreshTarget struct {
	// Kind names the entity type in logs and status, e.g. "subscription"
	Kind string
	// ListDue returns the ids to refresh now
	ListDue func(ctx context.Context) ([]string, error)
	// Refresh refreshes one entity; errors are logged and counted
	Refresh func(ctx context.Context, id string) error
}

// KindStatus reports the outcome of the last tick for one kind
type KindStatus struct {
	Kind       string `json:"kind"`
	Dispatched int    `json:"dispatched"`
	Failed     int    `json:"failed"`
}

// SchedulerStatus is the externally visible scheduler state
type SchedulerStatus struct {
	Enabled   bool          `json:"enabled"`
	Running   bool          `json:"running"`
	Schedule  string        `json:"schedule"`
	TickCount int64         `json:"tickCount"`
	LastRun   *time.Time    `json:"lastRun"`
	NextRun   *time.Time    `json:"nextRun"`
	Duration  string        `json:"lastDuration,omitempty"`
	Kinds     []*KindStatus `json:"kinds"`
}

// SchedulerService manages cron-based refreshing
type SchedulerService interface {
	// Register adds a refresh target; must be called before Start
	Register(target RefreshTarget) error

	// Start the cron loop
	Start() error

	// Stop the cron loop and wait for a running tick
	Stop() error

	// Tick runs one refresh cycle and returns once every dispatch settles
	Tick(ctx context.Context)

	// TriggerNow starts a cycle in the background
	TriggerNow() error

	// IsRunning returns true if the cron loop is active
	IsRunning() bool

	// Status returns a snapshot of scheduler state
	Status() *SchedulerStatus
}
