package domain

import "time"

// Profile is the projection of a user record needed for recipient
// resolution. Account management itself lives outside this service.
type Profile struct {
	ID          string
	Email       string
	PhoneNumber string
	CreatedAt   time.Time
}

// UsageRecord is one metering entry written per channel send, consumed by
// the licensing/billing side.
type UsageRecord struct {
	ID             string
	UserID         string
	NotificationID string
	Channel        string
	ItemPrice      float64
	Count          int
	Comment        string
	CreatedAt      time.Time
}
