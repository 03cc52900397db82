package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shyamb/lesson-notifier/internal/domain"
)

// DedupKey selects which calendar date deduplicates reminders.
type DedupKey string

const (
	// DedupKeyRunDate keys reminders on the date of the scan that created
	// them. A class whose window straddles midnight can receive a second
	// reminder the next day; this matches the historical behavior.
	DedupKeyRunDate DedupKey = "run_date"
	// DedupKeyClassDate keys reminders on the date of the class itself.
	DedupKeyClassDate DedupKey = "class_date"
)

const dateKeyLayout = "2006-01-02"

// ReminderConfig contains reminder scheduler configuration.
type ReminderConfig struct {
	// WindowStart and WindowEnd bound, as offsets from the scan time, the
	// range of upcoming class times that warrant a reminder. Both bounds
	// are inclusive.
	WindowStart time.Duration
	WindowEnd   time.Duration
	DedupKey    DedupKey
}

// DefaultReminderConfig returns default reminder scheduler configuration.
// The one-hour window centered four hours ahead guarantees a class is seen
// by at least one 30-minute scan before it leaves the window.
func DefaultReminderConfig() ReminderConfig {
	return ReminderConfig{
		WindowStart: 3*time.Hour + 30*time.Minute,
		WindowEnd:   4*time.Hour + 30*time.Minute,
		DedupKey:    DedupKeyRunDate,
	}
}

// ReminderScheduler creates at most one class reminder per eligible user per
// calendar day.
type ReminderScheduler struct {
	config   ReminderConfig
	repo     Repository
	renderer *Renderer
}

// NewReminderScheduler creates a new reminder scheduler.
func NewReminderScheduler(config ReminderConfig, repo Repository, renderer *Renderer) *ReminderScheduler {
	return &ReminderScheduler{
		config:   config,
		repo:     repo,
		renderer: renderer,
	}
}

// Run scans users for classes starting inside the reminder window and
// inserts pending reminder notifications for them. It returns the number of
// reminders created. Per-user failures are logged and skipped; only a store
// failure on the role queries aborts the run.
func (s *ReminderScheduler) Run(ctx context.Context, now time.Time) (int, error) {
	recordReminderScan()

	windowStart := now.Add(s.config.WindowStart)
	windowEnd := now.Add(s.config.WindowEnd)

	admins, err := s.repo.ListUsersByRole(ctx, domain.RoleAdmin)
	if err != nil {
		return 0, fmt.Errorf("list admins: %w", err)
	}

	ccList := make([]string, 0, len(admins))
	for _, a := range admins {
		if a.Email != "" {
			ccList = append(ccList, a.Email)
		}
	}

	// Reminders always carry an admin observer on CC. Without one there is
	// nobody to follow up on no-shows, so the scan is not worth running.
	if len(ccList) == 0 {
		slog.Warn("no admin users found for reminder CC, skipping scan")
		return 0, nil
	}

	slog.Debug("scanning for upcoming classes",
		"window_start", windowStart,
		"window_end", windowEnd,
		"cc", ccList,
	)

	students, err := s.repo.ListUsersByRole(ctx, domain.RoleUser)
	if err != nil {
		return 0, fmt.Errorf("list students: %w", err)
	}

	created := 0
	for _, user := range students {
		if user.NextClassTime == "" {
			continue
		}

		classTime, err := time.Parse(time.RFC3339, user.NextClassTime)
		if err != nil {
			slog.Warn("unparseable next class time",
				"user", user.Email,
				"value", user.NextClassTime,
			)
			continue
		}

		if classTime.Before(windowStart) || classTime.After(windowEnd) {
			continue
		}

		dateKey := s.dateKey(now, classTime)

		exists, err := s.repo.HasReminder(ctx, user.Email, dateKey)
		if err != nil {
			slog.Error("reminder lookup failed", "user", user.Email, "error", err)
			continue
		}
		if exists {
			continue
		}

		name := user.DisplayName
		if name == "" {
			name = "Student"
		}

		subject, body, err := s.renderer.RenderReminder(name, classTime)
		if err != nil {
			slog.Error("failed to render reminder", "user", user.Email, "error", err)
			continue
		}

		ct := classTime
		reminder := &domain.Notification{
			Type:         domain.NotificationTypeClassReminder,
			Recipient:    user.Email,
			CC:           ccList,
			Subject:      subject,
			Message:      body,
			Status:       domain.NotificationStatusPending,
			StudentName:  name,
			ClassTime:    &ct,
			ReminderDate: dateKey,
		}

		if err := s.repo.CreateNotification(ctx, reminder); err != nil {
			slog.Error("failed to create reminder", "user", user.Email, "error", err)
			continue
		}

		created++
		recordReminderCreated()
		slog.Info("created class reminder",
			"recipient", user.Email,
			"class_time", classTime,
			"reminder_date", dateKey,
		)
	}

	if created > 0 {
		slog.Info("reminder scan complete", "created", created)
	}

	return created, nil
}

func (s *ReminderScheduler) dateKey(now, classTime time.Time) string {
	if s.config.DedupKey == DedupKeyClassDate {
		return classTime.UTC().Format(dateKeyLayout)
	}
	return now.UTC().Format(dateKeyLayout)
}
