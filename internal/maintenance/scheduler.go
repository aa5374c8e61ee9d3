// Package maintenance runs the periodic jobs: deadline reminders and invitation expiry.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/tasks"
	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	JobDeadlines   = "deadline_reminders"
	JobInvitations = "invitation_expiry"

	defaultDeadlineSpec   = "@hourly"
	defaultInvitationSpec = "@daily"
	reminderWindow        = 24 * time.Hour
)

// DeadlineSource lists incomplete tasks by deadline.
type DeadlineSource interface {
	DueBetween(ctx context.Context, from, to time.Time) ([]tasks.DueTask, error)
	Overdue(ctx context.Context, now time.Time) ([]tasks.DueTask, error)
}

// ReminderLog answers whether a reminder was already sent inside the window.
type ReminderLog interface {
	ExistsSince(ctx context.Context, userID string, notificationType notifications.Type, taskID string, since time.Time) (bool, error)
}

// InvitationExpirer flips stale pending invitations to EXPIRED.
type InvitationExpirer interface {
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// JobObserver is told about every job run.
type JobObserver interface {
	ObserveJob(job string, err error)
}

// Dependencies wires the scheduler to the services it drives. A nil source disables its job.
type Dependencies struct {
	Deadlines   DeadlineSource
	Reminders   ReminderLog
	Notifier    notifications.Notifier
	Invitations InvitationExpirer
}

// Scheduler coordinates the background jobs on a cron instance.
type Scheduler struct {
	deps     Dependencies
	cron     *cron.Cron
	now      func() time.Time
	log      *zap.Logger
	observer JobObserver

	deadlineSchedule   string
	invitationSchedule string
}

// Option customises the Scheduler.
type Option func(*Scheduler)

// WithCron injects a preconfigured cron instance.
func WithCron(c *cron.Cron) Option {
	return func(scheduler *Scheduler) {
		if c != nil {
			scheduler.cron = c
		}
	}
}

// WithNow overrides the clock used for reminder windows and expiry.
func WithNow(now func() time.Time) Option {
	return func(scheduler *Scheduler) {
		if now != nil {
			scheduler.now = now
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(scheduler *Scheduler) {
		if logger != nil {
			scheduler.log = logger
		}
	}
}

func WithObserver(observer JobObserver) Option {
	return func(scheduler *Scheduler) {
		scheduler.observer = observer
	}
}

// WithDeadlineSchedule overrides the cron specification of the reminder scan.
func WithDeadlineSchedule(spec string) Option {
	return func(scheduler *Scheduler) {
		if spec != "" {
			scheduler.deadlineSchedule = spec
		}
	}
}

// WithInvitationSchedule overrides the cron specification of invitation expiry.
func WithInvitationSchedule(spec string) Option {
	return func(scheduler *Scheduler) {
		if spec != "" {
			scheduler.invitationSchedule = spec
		}
	}
}

func NewScheduler(deps Dependencies, opts ...Option) *Scheduler {
	scheduler := &Scheduler{
		deps:               deps,
		now:                time.Now,
		log:                zap.NewNop(),
		deadlineSchedule:   defaultDeadlineSpec,
		invitationSchedule: defaultInvitationSpec,
	}
	for _, opt := range opts {
		opt(scheduler)
	}
	if scheduler.cron == nil {
		scheduler.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return scheduler
}

func (s *Scheduler) remindersEnabled() bool {
	return s.deps.Deadlines != nil && s.deps.Notifier != nil
}

// Start registers the enabled jobs and launches the cron loop.
func (s *Scheduler) Start() error {
	if s.remindersEnabled() {
		if _, err := s.cron.AddFunc(s.deadlineSchedule, func() {
			stats, err := s.ScanDeadlines(context.Background())
			s.observe(JobDeadlines, err)
			if err != nil {
				s.log.Warn("deadline scan failed", zap.Error(err))
				return
			}
			s.log.Debug("deadline scan finished", zap.Int("approaching", stats.Approaching), zap.Int("overdue", stats.Overdue))
		}); err != nil {
			return fmt.Errorf("maintenance: schedule %s: %w", JobDeadlines, err)
		}
	}
	if s.deps.Invitations != nil {
		if _, err := s.cron.AddFunc(s.invitationSchedule, func() {
			expired, err := s.ExpireInvitations(context.Background())
			s.observe(JobInvitations, err)
			if err != nil {
				s.log.Warn("invitation expiry failed", zap.Error(err))
				return
			}
			s.log.Debug("invitation expiry finished", zap.Int64("expired", expired))
		}); err != nil {
			return fmt.Errorf("maintenance: schedule %s: %w", JobInvitations, err)
		}
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler; the returned context is done once running jobs complete.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunOnce executes every enabled job sequentially and aggregates their failures.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var errs error
	if s.remindersEnabled() {
		_, err := s.ScanDeadlines(ctx)
		s.observe(JobDeadlines, err)
		errs = multierr.Append(errs, err)
	}
	if s.deps.Invitations != nil {
		_, err := s.ExpireInvitations(ctx)
		s.observe(JobInvitations, err)
		errs = multierr.Append(errs, err)
	}
	return errs
}

// ReminderStats counts the reminders sent by one scan.
type ReminderStats struct {
	Approaching int
	Overdue     int
	Skipped     int
}

// ScanDeadlines notifies the assignee, or the creator of unassigned tasks, about tasks due within
// the next 24 hours and tasks already overdue. Each task gets at most one reminder of each type
// per 24 hour window.
func (s *Scheduler) ScanDeadlines(ctx context.Context) (ReminderStats, error) {
	var stats ReminderStats
	if !s.remindersEnabled() {
		return stats, nil
	}
	now := s.now().UTC()

	var errs error
	approaching, err := s.deps.Deadlines.DueBetween(ctx, now, now.Add(reminderWindow))
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	for _, task := range approaching {
		sent, err := s.remind(ctx, task, notifications.TypeDeadlineApproaching, now)
		errs = multierr.Append(errs, err)
		if sent {
			stats.Approaching++
		} else if err == nil {
			stats.Skipped++
		}
	}

	overdue, err := s.deps.Deadlines.Overdue(ctx, now)
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	for _, task := range overdue {
		sent, err := s.remind(ctx, task, notifications.TypeTaskOverdue, now)
		errs = multierr.Append(errs, err)
		if sent {
			stats.Overdue++
		} else if err == nil {
			stats.Skipped++
		}
	}
	return stats, errs
}

func (s *Scheduler) remind(ctx context.Context, task tasks.DueTask, notificationType notifications.Type, now time.Time) (bool, error) {
	recipient := reminderRecipient(task)
	if recipient == "" {
		return false, nil
	}
	if s.deps.Reminders != nil {
		exists, err := s.deps.Reminders.ExistsSince(ctx, recipient, notificationType, task.ID, now.Add(-reminderWindow))
		if err != nil {
			return false, err
		}
		if exists {
			return false, nil
		}
	}

	title, message := "Deadline approaching", fmt.Sprintf("%q is due %s", task.Title, task.Deadline.UTC().Format(time.RFC1123))
	if notificationType == notifications.TypeTaskOverdue {
		title, message = "Task overdue", fmt.Sprintf("%q was due %s", task.Title, task.Deadline.UTC().Format(time.RFC1123))
	}
	err := s.deps.Notifier.Notify(ctx, notifications.Input{
		UserID:  recipient,
		Type:    notificationType,
		Title:   title,
		Message: message,
		BoardID: task.BoardID,
		TaskID:  task.ID,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func reminderRecipient(task tasks.DueTask) string {
	if task.AssigneeID != nil && *task.AssigneeID != "" {
		return *task.AssigneeID
	}
	if task.UserID != nil {
		return *task.UserID
	}
	return ""
}

// ExpireInvitations marks overdue pending invitations as EXPIRED.
func (s *Scheduler) ExpireInvitations(ctx context.Context) (int64, error) {
	if s.deps.Invitations == nil {
		return 0, nil
	}
	return s.deps.Invitations.ExpireStale(ctx, s.now().UTC())
}

func (s *Scheduler) observe(job string, err error) {
	if s.observer != nil {
		s.observer.ObserveJob(job, err)
	}
}
