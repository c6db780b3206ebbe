// Package scheduler runs the periodic extremes refresh.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultTimeout bounds a single refresh run.
const DefaultTimeout = 30 * time.Minute

// EventExtremesRefreshed is the Event.Type sent after every run.
const EventExtremesRefreshed = "extremes_refreshed"

// Refresher recomputes the extremes snapshot and reports how many contracts
// it covers.
type Refresher interface {
	RefreshExtremes(ctx context.Context) (int, error)
}

// Event describes a finished run.
type Event struct {
	Type      string    `json:"type"`
	Contracts int       `json:"contracts"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
	Took      string    `json:"took"`
}

// Scheduler triggers the refresh on a cron schedule and passes each result
// to notify.
type Scheduler struct {
	job     Refresher
	notify  func(Event)
	cron    *cron.Cron
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

// New creates a scheduler. notify and logger may be nil.
func New(job Refresher, notify func(Event), logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")
	return &Scheduler{
		job:    job,
		notify: notify,
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger{logger}),
			cron.SkipIfStillRunning(cronLogger{logger}),
		)),
		logger:  logger,
		timeout: DefaultTimeout,
		now:     time.Now,
	}
}

// Start registers the job under schedule (standard five fields or
// descriptors such as "@every 24h") and starts the cron loop. An empty
// schedule leaves the scheduler idle.
func (s *Scheduler) Start(schedule string) error {
	if schedule == "" {
		s.logger.Info("extremes refresh disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		_ = s.RunNow(ctx)
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("extremes refresh scheduled", "schedule", schedule)
	return nil
}

// Stop halts the cron loop. The returned context is done once a running
// refresh has finished.
func (s *Scheduler) Stop() context.Context {
	ctx := s.cron.Stop()
	s.logger.Info("scheduler stopped")
	return ctx
}

// Next returns the next scheduled run, or the zero time when idle.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunNow performs one refresh synchronously and notifies the result.
func (s *Scheduler) RunNow(ctx context.Context) error {
	start := s.now()
	n, err := s.job.RefreshExtremes(ctx)
	took := s.now().Sub(start)

	ev := Event{
		Type:      EventExtremesRefreshed,
		Contracts: n,
		At:        s.now(),
		Took:      took.Round(time.Millisecond).String(),
	}
	if err != nil {
		ev.Error = err.Error()
		s.logger.Error("extremes refresh failed", "error", err, "took", took)
	} else {
		s.logger.Info("extremes refreshed", "contracts", n, "took", took)
	}
	if s.notify != nil {
		s.notify(ev)
	}
	return err
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
