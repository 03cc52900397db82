package domain

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is read-only from the notifier's perspective; account management
// happens in the tutoring app that shares this database.
type User struct {
	ID          string
	Email       string
	DisplayName string
	Role        Role
	// NextClassTime is the RFC 3339 timestamp of the user's next scheduled
	// lesson, or empty when nothing is booked. Kept as text because the
	// upstream app writes it free-form.
	NextClassTime string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
