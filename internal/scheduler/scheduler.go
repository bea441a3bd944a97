package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/harun/webpilot/internal/config"
)

// RunFunc executes one scheduled instruction. The scheduler does not
// care about the outcome; failures are the runner's to log and record.
type RunFunc func(ctx context.Context, schedule config.ScheduleConfig)

// Scheduler fires recurring instructions from configuration. Cron
// expressions use the standard five-field format plus descriptors like
// @hourly.
type Scheduler struct {
	cron   *cron.Cron
	run    RunFunc
	logger zerolog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
	started bool
}

// New creates a scheduler that dispatches through run.
func New(run RunFunc, logger zerolog.Logger) (*Scheduler, error) {
	if run == nil {
		return nil, fmt.Errorf("run callback is required")
	}

	return &Scheduler{
		cron:    cron.New(),
		run:     run,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
	}, nil
}

// Apply replaces the active schedule set. Safe to call on config
// reload; unchanged names are re-registered with their new spec.
func (s *Scheduler) Apply(schedules []config.ScheduleConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, id := range s.entries {
		s.cron.Remove(id)
		delete(s.entries, name)
	}

	for _, schedule := range schedules {
		schedule := schedule
		if schedule.Name == "" {
			return fmt.Errorf("schedule name is required")
		}
		if schedule.Instruction == "" {
			return fmt.Errorf("schedule %q has no instruction", schedule.Name)
		}

		id, err := s.cron.AddFunc(schedule.Cron, func() {
			s.logger.Info().
				Str("schedule", schedule.Name).
				Msg("Running scheduled instruction")
			s.run(context.Background(), schedule)
		})
		if err != nil {
			return fmt.Errorf("invalid cron spec for schedule %q: %w", schedule.Name, err)
		}
		s.entries[schedule.Name] = id
	}

	s.logger.Info().Int("schedules", len(schedules)).Msg("Schedules applied")
	return nil
}

// Start begins firing schedules.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.cron.Start()
		s.started = true
		s.logger.Info().Msg("Scheduler started")
	}
}

// Stop stops the scheduler and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()

	if started {
		<-s.cron.Stop().Done()
		s.logger.Info().Msg("Scheduler stopped")
	}
}

// NextRuns reports the next fire time per schedule name.
func (s *Scheduler) NextRuns() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]time.Time, len(s.entries))
	for name, id := range s.entries {
		next[name] = s.cron.Entry(id).Next
	}
	return next
}
