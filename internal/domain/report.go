package domain

import (
	"fmt"
	"strings"
	"time"
)

// DeliveryStatus is the tracked outcome of one provider send.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "PENDING"
	DeliveryDelivered DeliveryStatus = "DELIVERED"
	DeliveryFailed    DeliveryStatus = "FAILED"
)

func (s DeliveryStatus) String() string { return string(s) }

func (s DeliveryStatus) IsValid() bool {
	switch s {
	case DeliveryPending, DeliveryDelivered, DeliveryFailed:
		return true
	}
	return false
}

// DeliveryReport is one row per (notification, recipient, provider) send.
// The id doubles as the dispatch id handed to the gateway, so asynchronous
// provider callbacks can be correlated back to this row.
type DeliveryReport struct {
	ID             string
	NotificationID string
	RecipientID    string
	Channel        string
	Provider       string
	Status         DeliveryStatus
	Payload        *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (r *DeliveryReport) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: delivery report id is required", ErrValidation)
	}
	if strings.TrimSpace(r.NotificationID) == "" {
		return fmt.Errorf("%w: notification id is required", ErrValidation)
	}
	if strings.TrimSpace(r.Provider) == "" {
		return fmt.Errorf("%w: provider is required", ErrValidation)
	}
	return nil
}
