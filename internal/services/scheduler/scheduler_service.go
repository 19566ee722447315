package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/agenthub/internal/common"
	"github.com/ternarybob/agenthub/internal/interfaces"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultSchedule fires every five minutes
	DefaultSchedule = "*/5 * * * *"

	// DefaultRefreshTimeout bounds one dispatched refresh
	DefaultRefreshTimeout = 30 * time.Second

	defaultMaxConcurrency = 4
)

// targetEntry is a registered refresh target with the outcome of its last tick
type targetEntry struct {
	target     interfaces.RefreshTarget
	dispatched int
	failed     int
}

// Service implements SchedulerService on top of robfig/cron.
//
// A tick lists the due ids of every registered kind and refreshes them with
// bounded concurrency. Ticks never overlap: cron skips a firing while the
// previous one runs, and manual triggers wait for the running tick.
type Service struct {
	cron           *cron.Cron
	logger         arbor.ILogger
	schedule       string
	enabled        bool
	maxConcurrency int
	refreshTimeout time.Duration

	jobMu   sync.Mutex // Protects targets and tick results
	tickMu  sync.Mutex // Serializes ticks
	targets []*targetEntry
	cronID  cron.EntryID
	running bool

	tickCount    atomic.Int64
	lastRun      *time.Time
	lastDuration time.Duration

	background *common.Background
}

// NewService creates a new scheduler service from the [scheduler] config section
func NewService(config common.SchedulerConfig, logger arbor.ILogger) *Service {
	schedule := config.Schedule
	if schedule == "" {
		schedule = DefaultSchedule
	}
	maxConcurrency := config.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}

	cronLogger := newCronLogger(logger)
	return &Service{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		logger:         logger,
		schedule:       schedule,
		enabled:        config.Enabled,
		maxConcurrency: maxConcurrency,
		refreshTimeout: common.ParseDurationOr(config.RefreshTimeout, DefaultRefreshTimeout),
		background:     common.NewBackground(context.Background(), logger),
	}
}

// Register adds a refresh target. Registering after Start is rejected.
func (s *Service) Register(target interfaces.RefreshTarget) error {
	if target.Kind == "" || target.ListDue == nil || target.Refresh == nil {
		return fmt.Errorf("refresh target requires kind, list and refresh functions")
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if s.running {
		return fmt.Errorf("cannot register %s while scheduler is running", target.Kind)
	}
	for _, entry := range s.targets {
		if entry.target.Kind == target.Kind {
			return fmt.Errorf("refresh target %s already registered", target.Kind)
		}
	}

	s.targets = append(s.targets, &targetEntry{target: target})
	s.logger.Debug().Str("kind", target.Kind).Msg("Refresh target registered")
	return nil
}

// Start begins the cron loop. A disabled scheduler starts nothing and reports no error.
func (s *Service) Start() error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if !s.enabled {
		s.logger.Info().Msg("Scheduler disabled, recurring refresh will not run")
		return nil
	}

	id, err := s.cron.AddFunc(s.schedule, func() {
		s.Tick(s.background.Context())
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	s.cronID = id

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("schedule", s.schedule).
		Int("targets", len(s.targets)).
		Int("max_concurrency", s.maxConcurrency).
		Msg("Scheduler started")
	return nil
}

// Stop halts the cron loop and waits for a running tick to settle
func (s *Service) Stop() error {
	s.jobMu.Lock()
	wasRunning := s.running
	s.running = false
	s.jobMu.Unlock()

	// Cancels in-flight refreshes so a running tick settles quickly
	s.background.Close()

	if wasRunning {
		<-s.cron.Stop().Done()
		s.cron.Remove(s.cronID)
		s.logger.Info().Msg("Scheduler stopped")
	}
	return nil
}

// Tick runs one refresh cycle across every registered kind. It returns only
// after every dispatched refresh has finished or timed out.
func (s *Service) Tick(ctx context.Context) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	start := time.Now()
	tick := s.tickCount.Add(1)

	s.jobMu.Lock()
	entries := append([]*targetEntry(nil), s.targets...)
	s.jobMu.Unlock()

	for _, entry := range entries {
		dispatched, failed := s.runTarget(ctx, entry.target)

		s.jobMu.Lock()
		entry.dispatched = dispatched
		entry.failed = failed
		s.jobMu.Unlock()
	}

	duration := time.Since(start)
	finished := time.Now()
	s.jobMu.Lock()
	s.lastRun = &finished
	s.lastDuration = duration
	s.jobMu.Unlock()

	s.logger.Debug().
		Int64("tick", tick).
		Dur("duration", duration).
		Msg("Scheduler tick completed")
}

// runTarget refreshes every due id of one kind and returns the dispatch and failure counts
func (s *Service) runTarget(ctx context.Context, target interfaces.RefreshTarget) (int, int) {
	ids, err := target.ListDue(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str("kind", target.Kind).Msg("Failed to list refresh candidates")
		return 0, 0
	}
	if len(ids) == 0 {
		return 0, 0
	}

	var failed atomic.Int32
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.maxConcurrency)

	for _, id := range ids {
		group.Go(func() error {
			if err := s.refreshOne(groupCtx, target, id); err != nil {
				failed.Add(1)
				s.logger.Warn().
					Err(err).
					Str("kind", target.Kind).
					Str("id", id).
					Msg("Scheduled refresh failed")
			}
			// Failures never cancel sibling refreshes
			return nil
		})
	}
	_ = group.Wait()

	s.logger.Info().
		Str("kind", target.Kind).
		Int("dispatched", len(ids)).
		Int("failed", int(failed.Load())).
		Msg("Scheduled refresh dispatched")

	return len(ids), int(failed.Load())
}

func (s *Service) refreshOne(ctx context.Context, target interfaces.RefreshTarget, id string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s refresh: %v", target.Kind, r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.refreshTimeout)
	defer cancel()
	return target.Refresh(ctx, id)
}

// TriggerNow runs a tick in the background
func (s *Service) TriggerNow() error {
	if !s.background.Go("scheduler:trigger", s.Tick) {
		return fmt.Errorf("scheduler is stopped")
	}
	s.logger.Info().Msg("Scheduler tick triggered manually")
	return nil
}

// Wait blocks until manually triggered ticks have finished
func (s *Service) Wait() {
	s.background.Wait()
}

// IsRunning returns true if the cron loop is active
func (s *Service) IsRunning() bool {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	return s.running
}

// Status returns a snapshot of scheduler state
func (s *Service) Status() *interfaces.SchedulerStatus {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	status := &interfaces.SchedulerStatus{
		Enabled:   s.enabled,
		Running:   s.running,
		Schedule:  s.schedule,
		TickCount: s.tickCount.Load(),
		Kinds:     make([]*interfaces.KindStatus, 0, len(s.targets)),
	}
	if s.lastRun != nil {
		lastRun := *s.lastRun
		status.LastRun = &lastRun
		status.Duration = s.lastDuration.String()
	}
	if s.running {
		if next := s.cron.Entry(s.cronID).Next; !next.IsZero() {
			status.NextRun = &next
		}
	}
	for _, entry := range s.targets {
		status.Kinds = append(status.Kinds, &interfaces.KindStatus{
			Kind:       entry.target.Kind,
			Dispatched: entry.dispatched,
			Failed:     entry.failed,
		})
	}
	return status
}
