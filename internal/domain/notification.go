package domain

import "time"

// NotificationType identifies the delivery channel a notification is meant for.
type NotificationType string

const (
	NotificationTypeEmail         NotificationType = "email"
	NotificationTypeWhatsApp      NotificationType = "whatsapp"
	NotificationTypeClassReminder NotificationType = "class_reminder"
)

// NotificationStatus represents the processing state of a notification.
// A notification leaves pending exactly once and never returns to it.
type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
	NotificationStatusSkipped NotificationStatus = "skipped"
)

// Notification is a queued delivery request.
// StudentName, ClassTime and ReminderDate are set only on class reminders
// generated by the reminder scheduler.
type Notification struct {
	ID           string
	Type         NotificationType
	Recipient    string
	CC           []string
	Subject      string
	Message      string
	Status       NotificationStatus
	Error        string
	Reason       string
	StudentName  string
	ClassTime    *time.Time
	ReminderDate string
	CreatedAt    time.Time
	SentAt       *time.Time
}
