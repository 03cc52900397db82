package notify

import "errors"

// Repository errors.
var (
	ErrNotificationNotFound = errors.New("notification not found")
)
