package cherry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
)

const reconcileConcurrency = 4

// ChannelDeleteFunc deletes a channel. Implementations should return
// ErrNotFound (or nil) when the channel is already gone.
type ChannelDeleteFunc func(ctx context.Context, channelID string) error

// ScheduledDeletion is a pending channel deletion
type ScheduledDeletion struct {
	ChannelID string    `json:"channel_id"`
	At        time.Time `json:"at"`
}

// DeletionSchedule deletes channels at a target instant. The persisted
// schedule (channel ID -> instant) is the source of truth: jobs are
// re-armed from it at startup and once a day, and every job re-checks
// it before deleting anything. Cancel and a firing job for the same
// channel are serialized by a per-channel lock.
type DeletionSchedule struct {
	doc           *Document[map[string]time.Time]
	scheduler     *Scheduler
	deleteChannel ChannelDeleteFunc
	loc           *time.Location
	logger        *slog.Logger
	now           func() time.Time

	mu       sync.Mutex
	jobs     map[string]JobID
	channels map[string]*sync.Mutex
	daily    JobID
	ctx      context.Context
}

func NewDeletionSchedule(
	store KeyValueStore,
	scheduler *Scheduler,
	deleteChannel ChannelDeleteFunc,
	loc *time.Location,
	logger *slog.Logger,
) *DeletionSchedule {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	logger = logger.With(loggerNameKey, "deletion_schedule")
	return &DeletionSchedule{
		doc: NewDocument(
			store,
			documentDeleteSchedule,
			emptyMap[string, time.Time](),
			logger,
		),
		scheduler:     scheduler,
		deleteChannel: deleteChannel,
		loc:           loc,
		logger:        logger,
		now:           time.Now,
		jobs:          map[string]JobID{},
		channels:      map[string]*sync.Mutex{},
		ctx:           context.Background(),
	}
}

// Start reconciles the persisted schedule and arms a daily reconcile at
// midnight. ctx is used for all deletions fired afterward.
func (s *DeletionSchedule) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	if s.daily != uuid.Nil {
		s.scheduler.Cancel(s.daily)
	}
	s.daily = s.scheduler.Daily(
		"deletion-reconcile", 0, 0, func() {
			s.logger.InfoContext(ctx, "running daily deletion reconcile")
			s.Reconcile(ctx)
		},
	)
	daily := s.daily
	s.mu.Unlock()

	if next, err := s.scheduler.NextRun(daily); err == nil {
		s.logger.InfoContext(ctx, "armed daily deletion reconcile", "next_run", next.In(s.loc))
	}

	s.Reconcile(ctx)
}

// Reconcile deletes every channel whose instant has passed, and arms a
// job for every future entry.
func (s *DeletionSchedule) Reconcile(ctx context.Context) {
	entries := s.doc.Load(ctx)
	now := s.now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileConcurrency)

	for channelID, at := range entries {
		if at.After(now) {
			s.logger.InfoContext(
				ctx,
				"arming scheduled deletion",
				"channel_id", channelID,
				"at", at,
			)
			s.arm(channelID, at)
			continue
		}
		s.logger.InfoContext(ctx, "deleting overdue channel", "channel_id", channelID, "at", at)
		g.Go(
			func() error {
				s.fire(gctx, channelID)
				return nil
			},
		)
	}
	_ = g.Wait()
}

// Schedule persists a deletion for channelID at the given instant,
// replacing any pending one, and arms its job.
func (s *DeletionSchedule) Schedule(ctx context.Context, channelID string, at time.Time) error {
	unlock := s.lockChannel(channelID)
	defer unlock()

	if _, err := s.doc.Update(
		ctx, func(v *map[string]time.Time) error {
			(*v)[channelID] = at.UTC()
			return nil
		},
	); err != nil {
		return err
	}
	s.arm(channelID, at)
	s.logger.InfoContext(ctx, "scheduled deletion", "channel_id", channelID, "at", at)
	return nil
}

// Cancel removes the pending deletion for channelID. ErrNotFound is
// returned when nothing was scheduled.
func (s *DeletionSchedule) Cancel(ctx context.Context, channelID string) error {
	unlock := s.lockChannel(channelID)
	defer unlock()

	_, err := s.doc.Update(
		ctx, func(v *map[string]time.Time) error {
			if _, ok := (*v)[channelID]; !ok {
				return ErrNotFound
			}
			delete(*v, channelID)
			return nil
		},
	)
	// the persisted entry is what fire() checks, so the job is
	// removed regardless
	s.disarm(channelID)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "canceled scheduled deletion", "channel_id", channelID)
	return nil
}

// List returns pending deletions, soonest first
func (s *DeletionSchedule) List(ctx context.Context) []ScheduledDeletion {
	entries := s.doc.Load(ctx)
	rv := make([]ScheduledDeletion, 0, len(entries))
	for channelID, at := range entries {
		rv = append(rv, ScheduledDeletion{ChannelID: channelID, At: at})
	}
	sort.Slice(
		rv, func(i, j int) bool {
			if rv[i].At.Equal(rv[j].At) {
				return rv[i].ChannelID < rv[j].ChannelID
			}
			return rv[i].At.Before(rv[j].At)
		},
	)
	return rv
}

// Stop cancels the daily reconcile and every armed deletion job. The
// persisted schedule is left as-is.
func (s *DeletionSchedule) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.daily != uuid.Nil {
		s.scheduler.Cancel(s.daily)
		s.daily = uuid.Nil
	}
	for channelID, id := range s.jobs {
		s.scheduler.Cancel(id)
		delete(s.jobs, channelID)
	}
}

func (s *DeletionSchedule) arm(channelID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.jobs[channelID]; ok {
		s.scheduler.Cancel(prev)
	}
	ctx := s.ctx
	var id JobID
	id = s.scheduler.Schedule(
		at, func() {
			s.mu.Lock()
			if s.jobs[channelID] == id {
				delete(s.jobs, channelID)
			}
			s.mu.Unlock()
			s.fire(ctx, channelID)
		},
	)
	s.jobs[channelID] = id
}

func (s *DeletionSchedule) disarm(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.jobs[channelID]; ok {
		s.scheduler.Cancel(id)
		delete(s.jobs, channelID)
	}
}

// fire deletes the channel if the persisted entry still exists and is
// due, then removes the entry. Failures other than the channel already
// being gone leave the entry in place to be retried by the next
// reconcile.
func (s *DeletionSchedule) fire(ctx context.Context, channelID string) {
	logger := s.logger.With("channel_id", channelID)
	unlock := s.lockChannel(channelID)
	defer unlock()

	entries := s.doc.Load(ctx)
	at, ok := entries[channelID]
	if !ok {
		logger.InfoContext(ctx, "deletion no longer scheduled, skipping")
		return
	}
	if at.After(s.now()) {
		logger.InfoContext(ctx, "deletion was rescheduled, skipping", "at", at)
		return
	}

	err := s.deleteChannel(ctx, channelID)
	switch {
	case err == nil:
		logger.InfoContext(ctx, "deleted scheduled channel")
	case errors.Is(err, ErrNotFound):
		logger.WarnContext(ctx, "channel was already deleted")
	default:
		logger.ErrorContext(ctx, "error deleting scheduled channel", tint.Err(err))
		return
	}

	if _, err = s.doc.Update(
		ctx, func(v *map[string]time.Time) error {
			// only remove the entry that fired, not a newer reschedule
			if cur, exists := (*v)[channelID]; exists && cur.Equal(at) {
				delete(*v, channelID)
			}
			return nil
		},
	); err != nil {
		logger.ErrorContext(ctx, "error removing fired deletion", tint.Err(err))
	}
}

// lockChannel acquires the lock for channelID and returns its release
func (s *DeletionSchedule) lockChannel(channelID string) func() {
	s.mu.Lock()
	l, ok := s.channels[channelID]
	if !ok {
		l = &sync.Mutex{}
		s.channels[channelID] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// parseDeletionDate parses a YYYY-MM-DD date as midnight in loc
func parseDeletionDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}
