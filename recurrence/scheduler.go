/*
scheduler.go - Automated recurring invoice generation

PURPOSE:
  Runs the Driver once per day at a fixed wall-clock time for the lifetime of
  the process, and exposes RunNow for on-demand runs (admin API, CLI one-shot).

DESIGN:
  - robfig/cron job, default "0 2 * * *" in the configured timezone
  - Every trigger goes through RunNow, so scheduled, manual and CLI runs share
    one code path, one run lock and one run history
  - A trigger that arrives while a run holds the lock is skipped with
    ErrRunInProgress; the lock is per process, cross-process duplicates are
    rejected by the store's unique invoice number index
  - A failed run is logged and recorded; the next fire is unaffected
  - Stop waits for an in-flight run to finish but never interrupts it

CONFIGURATION:
  - Spec: cron expression (default: 0 2 * * *)
  - Location: timezone for Spec and for "today" (default: server local)
  - RunTimeout: bound on one run's store I/O (default: 5 minutes)
  - Enabled: whether Start schedules anything (default: true)

USAGE:
  scheduler := recurrence.NewScheduler(driver, store, log)
  scheduler.Start()
  // ... later
  scheduler.Stop(ctx)

SEE ALSO:
  - driver.go: Driver.Run
  - api/handlers.go: TriggerRecurringRun (manual run)
  - cmd/invoicepro/generate.go: one-shot mode
*/
package recurrence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/warp/invoicepro/invoice"
)

// DefaultSpec fires daily at 02:00.
const DefaultSpec = "0 2 * * *"

// ErrRunInProgress is returned by RunNow when another run holds the run lock.
var ErrRunInProgress = errors.New("recurring generation run already in progress")

// Trigger names what started a run.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
	TriggerCLI       Trigger = "cli"
)

// RunRecorder persists generation run history.
type RunRecorder interface {
	SaveGenerationRun(ctx context.Context, run invoice.GenerationRun) error
}

// Scheduler handles automated recurring invoice generation.
type Scheduler struct {
	Driver     *Driver
	Recorder   RunRecorder // optional
	Spec       string
	Location   *time.Location
	RunTimeout time.Duration
	Enabled    bool

	// Now is the clock used for "current time" of each run.
	Now func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running sync.Mutex
	log     zerolog.Logger
}

// NewScheduler creates a new scheduler.
func NewScheduler(driver *Driver, recorder RunRecorder, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		Driver:     driver,
		Recorder:   recorder,
		Spec:       DefaultSpec,
		Location:   time.Local,
		RunTimeout: 5 * time.Minute,
		Enabled:    true,
		Now:        time.Now,
		log:        log.With().Str("component", "recurrence.scheduler").Logger(),
	}
}

// Start begins the scheduler. It is a no-op when disabled or already started.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.log.Info().Msg("scheduler disabled, not starting")
		return nil
	}
	if s.cron != nil {
		return nil
	}

	logger := cronLogger{log: s.log}
	c := cron.New(
		cron.WithLocation(s.location()),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(s.Spec, s.fire); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.Spec, err)
	}
	c.Start()
	s.cron = c

	s.log.Info().
		Str("spec", s.Spec).
		Str("tz", s.location().String()).
		Time("next_run", s.nextRunLocked()).
		Msg("scheduler started")
	return nil
}

// Stop stops the scheduler and waits for an in-flight run to complete, or
// for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop()
	s.cron = nil

	select {
	case <-done.Done():
		s.log.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn().Msg("scheduler stop timed out with a run in flight")
		return ctx.Err()
	}
}

// fire is the cron job. RunNow logs and records the outcome.
func (s *Scheduler) fire() {
	_, _ = s.RunNow(context.Background(), TriggerScheduled)
}

// RunNow performs one driver run immediately and records it.
func (s *Scheduler) RunNow(ctx context.Context, trigger Trigger) (Summary, error) {
	if !s.running.TryLock() {
		runsSkipped.Inc()
		s.log.Warn().Str("trigger", string(trigger)).Msg("run already in progress, skipping")
		return Summary{}, ErrRunInProgress
	}
	defer s.running.Unlock()

	if s.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.RunTimeout)
		defer cancel()
	}

	started := s.now()
	run := invoice.GenerationRun{
		ID:        uuid.NewString(),
		Trigger:   string(trigger),
		Status:    invoice.RunStatusRunning,
		StartedAt: started.UTC(),
	}
	s.record(ctx, run)

	s.log.Info().Str("trigger", string(trigger)).Time("now", started).Msg("generation run started")

	summary, err := s.Driver.Run(ctx, started)

	completed := s.now()
	run.CompletedAt = &completed
	run.Created = summary.Created
	run.Skipped = summary.Skipped
	run.Failed = len(summary.Errors)
	run.Generated = summary.Generated
	for _, tErr := range summary.Errors {
		run.Errors = append(run.Errors, tErr.Error())
	}
	if err != nil {
		run.Status = invoice.RunStatusFailed
		run.Error = err.Error()
	} else {
		run.Status = invoice.RunStatusCompleted
		lastSuccess.SetToCurrentTime()
	}
	s.record(ctx, run)

	runDuration.Observe(completed.Sub(started).Seconds())
	runsTotal.WithLabelValues(string(trigger), run.Status).Inc()

	if err != nil {
		s.log.Error().Err(err).Str("trigger", string(trigger)).Msg("generation run failed")
		return summary, err
	}
	s.log.Info().
		Str("trigger", string(trigger)).
		Int("templates", summary.Templates).
		Int("created", summary.Created).
		Int("skipped", summary.Skipped).
		Int("failed", len(summary.Errors)).
		Dur("took", completed.Sub(started)).
		Msg("generation run completed")
	return summary, nil
}

// NextRun returns when the next scheduled run will occur.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRunLocked()
}

func (s *Scheduler) nextRunLocked() time.Time {
	if s.cron != nil {
		if entries := s.cron.Entries(); len(entries) > 0 && !entries[0].Next.IsZero() {
			return entries[0].Next
		}
	}
	sched, err := cron.ParseStandard(s.Spec)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(s.now())
}

// record saves run history; failures are logged, never returned.
func (s *Scheduler) record(ctx context.Context, run invoice.GenerationRun) {
	if s.Recorder == nil {
		return
	}
	// The run context may already be past its deadline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.Recorder.SaveGenerationRun(ctx, run); err != nil {
		s.log.Warn().Err(err).Str("run_id", run.ID).Msg("failed to record generation run")
	}
}

// Today is the current calendar date in the scheduler's location.
func (s *Scheduler) Today() invoice.Date {
	return invoice.DateOf(s.now())
}

func (s *Scheduler) now() time.Time {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return now().In(s.location())
}

func (s *Scheduler) location() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

// cronLogger routes robfig/cron logs into zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
