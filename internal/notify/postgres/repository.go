// Package postgres provides the PostgreSQL implementation of the notify repository.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shyamb/lesson-notifier/internal/domain"
	"github.com/shyamb/lesson-notifier/internal/notify"
)

// Repository implements notify.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// FetchPending returns up to limit pending notifications, oldest first.
func (r *Repository) FetchPending(ctx context.Context, limit int) ([]*domain.Notification, error) {
	query := `
		SELECT id, type, recipient, cc, subject, message, status, error, reason,
		       student_name, class_time, reminder_date, created_at, sent_at
		FROM notifications
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch pending: %w", err)
	}
	defer rows.Close()

	items := make([]*domain.Notification, 0)
	for rows.Next() {
		var n domain.Notification
		err := rows.Scan(
			&n.ID,
			&n.Type,
			&n.Recipient,
			&n.CC,
			&n.Subject,
			&n.Message,
			&n.Status,
			&n.Error,
			&n.Reason,
			&n.StudentName,
			&n.ClassTime,
			&n.ReminderDate,
			&n.CreatedAt,
			&n.SentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, &n)
	}

	return items, rows.Err()
}

// MarkSent transitions a pending notification to sent.
func (r *Repository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	query := `UPDATE notifications SET status = 'sent', sent_at = $2 WHERE id = $1 AND status = 'pending'`
	result, err := r.db.Exec(ctx, query, id, sentAt)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return notify.ErrNotificationNotFound
	}
	return nil
}

// MarkFailed transitions a pending notification to failed with an error message.
func (r *Repository) MarkFailed(ctx context.Context, id, reason string) error {
	query := `UPDATE notifications SET status = 'failed', error = $2 WHERE id = $1 AND status = 'pending'`
	result, err := r.db.Exec(ctx, query, id, reason)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return notify.ErrNotificationNotFound
	}
	return nil
}

// MarkSkipped transitions a pending notification to skipped with a reason.
func (r *Repository) MarkSkipped(ctx context.Context, id, reason string) error {
	query := `UPDATE notifications SET status = 'skipped', reason = $2 WHERE id = $1 AND status = 'pending'`
	result, err := r.db.Exec(ctx, query, id, reason)
	if err != nil {
		return fmt.Errorf("mark skipped: %w", err)
	}
	if result.RowsAffected() == 0 {
		return notify.ErrNotificationNotFound
	}
	return nil
}

// CreateNotification inserts a new notification and fills in its generated
// ID and creation timestamp.
func (r *Repository) CreateNotification(ctx context.Context, n *domain.Notification) error {
	n.ID = uuid.NewString()

	cc := n.CC
	if cc == nil {
		cc = []string{}
	}

	query := `
		INSERT INTO notifications (id, type, recipient, cc, subject, message, status,
		                           student_name, class_time, reminder_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		n.ID,
		n.Type,
		n.Recipient,
		cc,
		n.Subject,
		n.Message,
		n.Status,
		n.StudentName,
		n.ClassTime,
		n.ReminderDate,
	).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// HasReminder reports whether a class reminder exists for the recipient and
// dedup date key.
func (r *Repository) HasReminder(ctx context.Context, recipient, reminderDate string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE recipient = $1 AND type = 'class_reminder' AND reminder_date = $2
		)
	`
	var exists bool
	if err := r.db.QueryRow(ctx, query, recipient, reminderDate).Scan(&exists); err != nil {
		return false, fmt.Errorf("has reminder: %w", err)
	}
	return exists, nil
}

// ListUsersByRole returns all users with the given role.
func (r *Repository) ListUsersByRole(ctx context.Context, role domain.Role) ([]domain.User, error) {
	query := `
		SELECT id, email, display_name, role, next_class_time, created_at, updated_at
		FROM users
		WHERE role = $1
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query, role)
	if err != nil {
		return nil, fmt.Errorf("list users by role: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		var u domain.User
		err := rows.Scan(
			&u.ID,
			&u.Email,
			&u.DisplayName,
			&u.Role,
			&u.NextClassTime,
			&u.CreatedAt,
			&u.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

// QueueStats returns notification counts by status.
func (r *Repository) QueueStats(ctx context.Context) (*notify.QueueStats, error) {
	query := `SELECT status, COUNT(*) FROM notifications GROUP BY status`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := &notify.QueueStats{}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan queue stats: %w", err)
		}
		switch domain.NotificationStatus(status) {
		case domain.NotificationStatusPending:
			stats.Pending = count
		case domain.NotificationStatusSent:
			stats.Sent = count
		case domain.NotificationStatusFailed:
			stats.Failed = count
		case domain.NotificationStatusSkipped:
			stats.Skipped = count
		}
	}

	return stats, rows.Err()
}
