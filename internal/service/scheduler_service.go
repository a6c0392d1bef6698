package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-li-api/internal/models"
	"github.com/noah-isme/sma-li-api/pkg/config"
)

type sweepStore interface {
	ListDueReminderRows(ctx context.Context) ([]models.DueReminderRow, error)
	ListStuckReviews(ctx context.Context, before time.Time) ([]models.StuckReviewRow, error)
}

type sweepNotifier interface {
	NotifyDedupe(ctx context.Context, userID string, t models.NotificationType, applicationID, dedupeKey string, data map[string]string) error
}

type batchFlusher interface {
	FlushBatches(ctx context.Context) error
}

// SchedulerService drives the two periodic jobs: the daily deadline and
// escalation sweep, and the batch flush. Reminders fire on or after their
// lead day so a missed sweep run (downtime) fires late instead of never;
// dedupe keys keep each window to a single row. Escalations re-fire every
// sweep day for as long as an application stays stuck.
type SchedulerService struct {
	store   sweepStore
	notify  sweepNotifier
	flusher batchFlusher
	cfg     config.WorkflowConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewSchedulerService constructs the scheduler.
func NewSchedulerService(store sweepStore, notify sweepNotifier, flusher batchFlusher, cfg config.WorkflowConfig, logger *zap.Logger) *SchedulerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 24 * time.Hour
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Minute
	}
	if cfg.BLI04DueDays <= 0 {
		cfg.BLI04DueDays = 14
	}
	if len(cfg.ReminderLeadDays) == 0 {
		cfg.ReminderLeadDays = []int{14, 7, 3, 1}
	}
	if cfg.EscalationAfterDays <= 0 {
		cfg.EscalationAfterDays = 7
	}
	return &SchedulerService{
		store:   store,
		notify:  notify,
		flusher: flusher,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Start launches the sweep and flush loops. Both stop when ctx is cancelled.
// The flush loop relies on FlushBatches' own skip-if-running guard, so a
// slow flush makes the next tick a no-op instead of overlapping.
func (s *SchedulerService) Start(ctx context.Context) {
	go s.loop(ctx, "sweep", s.cfg.SweepInterval, s.RunSweep)
	go s.loop(ctx, "flush", s.cfg.FlushInterval, s.RunFlush)
}

func (s *SchedulerService) loop(ctx context.Context, name string, interval time.Duration, run func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.Info("scheduler loop started", zap.String("job", name), zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler loop stopped", zap.String("job", name))
			return
		case <-ticker.C:
			if err := run(ctx); err != nil {
				s.logger.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
			}
		}
	}
}

// RunSweep executes one pass of deadline reminders, overdue notices and
// review escalations. Per-row failures are logged and do not stop the pass.
func (s *SchedulerService) RunSweep(ctx context.Context) error {
	if err := s.sweepDeadlines(ctx); err != nil {
		return err
	}
	return s.sweepEscalations(ctx)
}

// RunFlush executes one batch flush.
func (s *SchedulerService) RunFlush(ctx context.Context) error {
	return s.flusher.FlushBatches(ctx)
}

func (s *SchedulerService) sweepDeadlines(ctx context.Context) error {
	rows, err := s.store.ListDueReminderRows(ctx)
	if err != nil {
		return err
	}

	leads := append([]int(nil), s.cfg.ReminderLeadDays...)
	sort.Ints(leads)
	today := dateOf(s.now().UTC())

	for _, row := range rows {
		due := dateOf(row.SessionEndDate.AddDate(0, 0, s.cfg.BLI04DueDays))
		daysUntil := int(due.Sub(today).Hours() / 24)

		if daysUntil < 0 {
			key := fmt.Sprintf("BLI04_OVERDUE:%s:%s", row.ApplicationID, today.Format("2006-01-02"))
			data := map[string]string{"daysOverdue": strconv.Itoa(-daysUntil)}
			if err := s.notify.NotifyDedupe(ctx, row.StudentID, models.NotifyBLI04Overdue, row.ApplicationID, key, data); err != nil {
				s.logger.Warn("failed to send overdue notice", zap.String("application_id", row.ApplicationID), zap.Error(err))
			}
			continue
		}

		lead, ok := matchLead(leads, daysUntil)
		if !ok {
			continue
		}
		key := fmt.Sprintf("BLI04_REMINDER:%s:%d", row.ApplicationID, lead)
		data := map[string]string{"daysLeft": strconv.Itoa(daysUntil)}
		if err := s.notify.NotifyDedupe(ctx, row.StudentID, models.NotifyBLI04Reminder, row.ApplicationID, key, data); err != nil {
			s.logger.Warn("failed to send deadline reminder", zap.String("application_id", row.ApplicationID), zap.Error(err))
		}
	}
	return nil
}

func (s *SchedulerService) sweepEscalations(ctx context.Context) error {
	cutoff := s.now().UTC().AddDate(0, 0, -s.cfg.EscalationAfterDays)
	rows, err := s.store.ListStuckReviews(ctx, cutoff)
	if err != nil {
		return err
	}

	day := dateOf(s.now().UTC()).Format("2006-01-02")
	for _, row := range rows {
		key := fmt.Sprintf("REVIEW_ESCALATION:%s:%s", row.ApplicationID, day)
		data := map[string]string{"studentName": row.StudentID}
		if err := s.notify.NotifyDedupe(ctx, row.CoordinatorID, models.NotifyReviewEscalation, row.ApplicationID, key, data); err != nil {
			s.logger.Warn("failed to send review escalation", zap.String("application_id", row.ApplicationID), zap.Error(err))
		}
	}
	return nil
}

// matchLead selects the smallest configured lead that is >= daysUntil. A
// sweep that skipped the exact lead day still fires on the next run; the
// dedupe key scoped to the lead keeps the window to one reminder.
func matchLead(sortedLeads []int, daysUntil int) (int, bool) {
	for _, lead := range sortedLeads {
		if lead >= daysUntil {
			return lead, true
		}
	}
	return 0, false
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
