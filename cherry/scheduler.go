package cherry

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
)

// JobID identifies a job armed on a Scheduler
type JobID = uuid.UUID

// Scheduler runs callbacks at (or after) a target instant, on top of a
// gocron scheduler running in loc. Jobs are one-shot or daily.
//
// Cancel removes a job that hasn't fired, but a callback already running
// is not interrupted. Callers that need a stronger guarantee must re-check
// their own state inside the callback.
type Scheduler struct {
	cron   gocron.Scheduler
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	jobs    map[JobID]struct{}
	stopped bool
}

// NewScheduler creates and starts a scheduler whose daily jobs run in loc
func NewScheduler(loc *time.Location, logger *slog.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	cron, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("error creating scheduler: %w", err)
	}
	cron.Start()
	return &Scheduler{
		cron:   cron,
		logger: logger.With(loggerNameKey, "scheduler"),
		now:    time.Now,
		jobs:   map[JobID]struct{}{},
	}, nil
}

// Schedule arms fn to run once at the given instant. Instants in the past
// run immediately. uuid.Nil is returned if the scheduler is stopped or
// the job could not be created.
func (s *Scheduler) Schedule(at time.Time, fn func()) JobID {
	start := gocron.OneTimeJobStartDateTime(at)
	if !at.After(s.now()) {
		start = gocron.OneTimeJobStartImmediately()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return uuid.Nil
	}

	var id JobID
	job, err := s.cron.NewJob(
		gocron.OneTimeJob(start),
		gocron.NewTask(
			func() {
				s.mu.Lock()
				_, active := s.jobs[id]
				delete(s.jobs, id)
				s.mu.Unlock()
				if active {
					fn()
				}
			},
		),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("one-time"),
	)
	if err != nil {
		s.logger.Error("error scheduling job", "at", at, tint.Err(err))
		return uuid.Nil
	}
	id = job.ID()
	s.jobs[id] = struct{}{}
	return id
}

// Daily arms fn to run every day at hour:minute in the scheduler's
// location. The returned ID cancels all future runs.
func (s *Scheduler) Daily(name string, hour, minute uint, fn func()) JobID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return uuid.Nil
	}
	job, err := s.cron.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(hour, minute, 0))),
		gocron.NewTask(fn),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("daily"),
		gocron.WithName(name),
	)
	if err != nil {
		s.logger.Error("error scheduling daily job", "name", name, tint.Err(err))
		return uuid.Nil
	}
	s.jobs[job.ID()] = struct{}{}
	return job.ID()
}

// NextRun returns the next time the job is due
func (s *Scheduler) NextRun(id JobID) (time.Time, error) {
	for _, job := range s.cron.Jobs() {
		if job.ID() == id {
			return job.NextRun()
		}
	}
	return time.Time{}, fmt.Errorf("%w: job %s", ErrNotFound, id)
}

// Cancel removes the job. It reports whether the job was still pending.
func (s *Scheduler) Cancel(id JobID) bool {
	s.mu.Lock()
	_, ok := s.jobs[id]
	delete(s.jobs, id)
	s.mu.Unlock()
	if !ok {
		return false
	}
	if err := s.cron.RemoveJob(id); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
		s.logger.Warn("error removing job", "job_id", id, tint.Err(err))
	}
	return true
}

// Pending returns the number of armed jobs
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Stop removes all pending jobs and waits for running callbacks to
// return. Jobs scheduled after Stop are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	clear(s.jobs)
	s.mu.Unlock()

	if err := s.cron.Shutdown(); err != nil {
		s.logger.Warn("error shutting down scheduler", tint.Err(err))
	}
}
