package repository

import (
	"encoding/json"
	"time"

	"github.com/velis74/notify-engine/internal/domain"
)

// NotificationModel is the persistence model for the notifications table.
// Transient dispatch state (sender map, pre-resolved recipients, fallback
// flag) is kept as a JSON document in extra_data.
type NotificationModel struct {
	ID               string       `gorm:"type:uuid;primaryKey"`
	Level            domain.Level `gorm:"type:varchar(16);not null"`
	Type             domain.Type  `gorm:"type:varchar(16);not null"`
	Locale           *string      `gorm:"type:varchar(8)"`
	Recipients       *string      `gorm:"type:varchar(2048)"`
	RequiredChannels *string      `gorm:"type:varchar(64)"`
	SentChannels     *string      `gorm:"type:varchar(64)"`
	FailedChannels   *string      `gorm:"type:varchar(64)"`
	CreatedAt        time.Time
	SentAt           *time.Time `gorm:"type:timestamptz"`
	DelayedTo        *time.Time `gorm:"type:timestamptz"`
	SendAt           *time.Time `gorm:"type:timestamptz"`
	ClaimedAt        *time.Time `gorm:"type:timestamptz"`
	Exceptions       *string    `gorm:"type:text"`
	MessageID        *string    `gorm:"type:uuid"`
	Message          *MessageModel
	ExtraData        *string `gorm:"type:text"`
}

func (NotificationModel) TableName() string {
	return "notifications"
}

// MessageModel is the persistence model for messages (one-to-one owned).
type MessageModel struct {
	ID          string  `gorm:"type:uuid;primaryKey"`
	Subject     *string `gorm:"type:text"`
	Body        string  `gorm:"type:text;not null"`
	Footer      *string `gorm:"type:text"`
	ContentType string  `gorm:"type:varchar(64);not null"`
}

func (MessageModel) TableName() string {
	return "messages"
}

// DeliveryReportModel is the persistence model for delivery_reports.
type DeliveryReportModel struct {
	ID             string                `gorm:"type:uuid;primaryKey"`
	NotificationID string                `gorm:"type:uuid;not null"`
	RecipientID    string                `gorm:"type:varchar(64);not null"`
	Channel        string                `gorm:"type:varchar(64);not null"`
	Provider       string                `gorm:"type:varchar(128);not null"`
	Status         domain.DeliveryStatus `gorm:"type:varchar(16);not null"`
	Payload        *string               `gorm:"type:text"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (DeliveryReportModel) TableName() string {
	return "delivery_reports"
}

// ProfileModel is the persistence model for user profiles.
type ProfileModel struct {
	ID          string  `gorm:"type:varchar(64);primaryKey"`
	Email       *string `gorm:"type:varchar(255)"`
	PhoneNumber *string `gorm:"type:varchar(32)"`
	CreatedAt   time.Time
}

func (ProfileModel) TableName() string {
	return "profiles"
}

// UsageLogModel is the persistence model for per-send metering entries.
type UsageLogModel struct {
	ID             string  `gorm:"type:uuid;primaryKey"`
	UserID         string  `gorm:"type:varchar(64)"`
	NotificationID string  `gorm:"type:uuid"`
	Channel        string  `gorm:"type:varchar(64);not null"`
	ItemPrice      float64 `gorm:"not null;default:0"`
	Count          int     `gorm:"not null;default:0"`
	Comment        *string `gorm:"type:text"`
	CreatedAt      time.Time
}

func (UsageLogModel) TableName() string {
	return "notification_usage_log"
}

func notificationModelFromDomain(n *domain.Notification) *NotificationModel {
	if n == nil {
		return nil
	}

	model := &NotificationModel{
		ID:               n.ID,
		Level:            n.Level,
		Type:             n.Type,
		Locale:           optionalString(n.Locale),
		Recipients:       optionalString(n.Recipients),
		RequiredChannels: optionalString(n.RequiredChannels),
		SentChannels:     n.SentChannels,
		FailedChannels:   n.FailedChannels,
		CreatedAt:        n.CreatedAt,
		SentAt:           n.SentAt,
		DelayedTo:        n.DelayedTo,
		SendAt:           n.SendAt,
		Exceptions:       n.Exceptions,
	}

	if n.Message != nil {
		model.Message = &MessageModel{
			ID:          n.Message.ID,
			Subject:     optionalString(n.Message.Subject),
			Body:        n.Message.Body,
			Footer:      optionalString(n.Message.Footer),
			ContentType: n.Message.ContentType,
		}
		model.MessageID = &n.Message.ID
	}

	if encoded := encodeTransientData(n.TransientData()); encoded != "" {
		model.ExtraData = &encoded
	}

	return model
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	n := &domain.Notification{
		ID:               m.ID,
		Level:            m.Level,
		Type:             m.Type,
		Locale:           stringValue(m.Locale),
		Recipients:       stringValue(m.Recipients),
		RequiredChannels: stringValue(m.RequiredChannels),
		SentChannels:     m.SentChannels,
		FailedChannels:   m.FailedChannels,
		CreatedAt:        m.CreatedAt,
		SentAt:           m.SentAt,
		DelayedTo:        m.DelayedTo,
		SendAt:           m.SendAt,
		Exceptions:       m.Exceptions,
	}

	if m.Message != nil {
		n.Message = &domain.Message{
			ID:          m.Message.ID,
			Subject:     stringValue(m.Message.Subject),
			Body:        m.Message.Body,
			Footer:      stringValue(m.Message.Footer),
			ContentType: m.Message.ContentType,
		}
	}

	if m.ExtraData != nil {
		n.Rehydrate(decodeTransientData(*m.ExtraData))
	}

	return n
}

func reportModelFromDomain(r *domain.DeliveryReport) *DeliveryReportModel {
	if r == nil {
		return nil
	}

	return &DeliveryReportModel{
		ID:             r.ID,
		NotificationID: r.NotificationID,
		RecipientID:    r.RecipientID,
		Channel:        r.Channel,
		Provider:       r.Provider,
		Status:         r.Status,
		Payload:        r.Payload,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func reportModelToDomain(m *DeliveryReportModel) *domain.DeliveryReport {
	if m == nil {
		return nil
	}

	return &domain.DeliveryReport{
		ID:             m.ID,
		NotificationID: m.NotificationID,
		RecipientID:    m.RecipientID,
		Channel:        m.Channel,
		Provider:       m.Provider,
		Status:         m.Status,
		Payload:        m.Payload,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func profileModelToDomain(m *ProfileModel) *domain.Profile {
	if m == nil {
		return nil
	}

	return &domain.Profile{
		ID:          m.ID,
		Email:       stringValue(m.Email),
		PhoneNumber: stringValue(m.PhoneNumber),
		CreatedAt:   m.CreatedAt,
	}
}

func usageModelFromDomain(u *domain.UsageRecord) *UsageLogModel {
	if u == nil {
		return nil
	}

	return &UsageLogModel{
		ID:             u.ID,
		UserID:         u.UserID,
		NotificationID: u.NotificationID,
		Channel:        u.Channel,
		ItemPrice:      u.ItemPrice,
		Count:          u.Count,
		Comment:        optionalString(u.Comment),
		CreatedAt:      u.CreatedAt,
	}
}

func encodeTransientData(data domain.TransientData) string {
	if data.User == "" && len(data.Sender) == 0 && len(data.RecipientsList) == 0 && !data.EmailFallback {
		return ""
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	return string(encoded)
}

func decodeTransientData(raw string) domain.TransientData {
	var data domain.TransientData
	// Corrupt extra data must never block a dispatch; fields stay zero.
	_ = json.Unmarshal([]byte(raw), &data)
	return data
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
