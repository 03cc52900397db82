//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/shyamb/lesson-notifier/internal/domain"
)

// resetTables clears both tables so each test starts from an empty store.
func resetTables(t *testing.T) {
	t.Helper()
	_, err := testDB.Exec(context.Background(), `TRUNCATE notifications, users`)
	require.NoError(t, err)
}

func insertUser(t *testing.T, email, displayName string, role domain.Role, nextClassTime string) {
	t.Helper()
	_, err := testDB.Exec(context.Background(), `
		INSERT INTO users (email, display_name, role, next_class_time)
		VALUES ($1, $2, $3, $4)
	`, email, displayName, role, nextClassTime)
	require.NoError(t, err)
}

// insertNotification queues a pending record directly, the way the upstream
// scheduling app does, and returns its ID.
func insertNotification(t *testing.T, notificationType domain.NotificationType, recipient, subject, message string) string {
	t.Helper()
	id := uuid.NewString()
	_, err := testDB.Exec(context.Background(), `
		INSERT INTO notifications (id, type, recipient, subject, message, status, created_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6)
	`, id, notificationType, recipient, subject, message, time.Now())
	require.NoError(t, err)
	return id
}

// currentStatus is a non-failing variant for polling loops.
func currentStatus(id string) string {
	var status string
	if err := testDB.QueryRow(context.Background(),
		`SELECT status FROM notifications WHERE id = $1`, id,
	).Scan(&status); err != nil {
		return ""
	}
	return status
}

func notificationStatus(t *testing.T, id string) (status, errMsg, reason string) {
	t.Helper()
	err := testDB.QueryRow(context.Background(),
		`SELECT status, error, reason FROM notifications WHERE id = $1`, id,
	).Scan(&status, &errMsg, &reason)
	require.NoError(t, err)
	return status, errMsg, reason
}
