// Package notify implements the notification dispatch loop and the class
// reminder scheduler.
package notify

import (
	"context"
	"time"

	"github.com/shyamb/lesson-notifier/internal/domain"
)

// Repository defines the interface for notification and user data access.
type Repository interface {
	// FetchPending returns up to limit notifications still awaiting a
	// delivery decision, oldest first.
	FetchPending(ctx context.Context, limit int) ([]*domain.Notification, error)

	// Terminal status writes. Each notification receives exactly one of
	// these over its lifetime.
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id, reason string) error
	MarkSkipped(ctx context.Context, id, reason string) error

	// CreateNotification inserts a new pending notification and fills in
	// the generated ID and creation timestamp.
	CreateNotification(ctx context.Context, n *domain.Notification) error

	// HasReminder reports whether a class reminder already exists for the
	// recipient under the given dedup date key.
	HasReminder(ctx context.Context, recipient, reminderDate string) (bool, error)

	ListUsersByRole(ctx context.Context, role domain.Role) ([]domain.User, error)

	// QueueStats returns notification counts by status for metrics.
	QueueStats(ctx context.Context) (*QueueStats, error)
}

// QueueStats contains notification counts by status.
type QueueStats struct {
	Pending int64
	Sent    int64
	Failed  int64
	Skipped int64
}

// Message is an outbound email.
type Message struct {
	To       string
	CC       []string
	Subject  string
	Body     string
	HTMLBody string
}

// Sender delivers a message to its recipient plus CC list.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
