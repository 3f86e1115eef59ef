package domain

import (
	"fmt"
	"strings"
	"time"
)

// Level represents the severity of a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

func (l Level) String() string { return string(l) }

func (l Level) IsValid() bool {
	switch l {
	case LevelSuccess, LevelInfo, LevelWarning, LevelError:
		return true
	}
	return false
}

func ParseLevelFromString(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if !l.IsValid() {
		return "", fmt.Errorf("%w: invalid level %q", ErrValidation, s)
	}
	return l, nil
}

// Type distinguishes regular notifications from maintenance announcements.
type Type string

const (
	TypeStandard    Type = "standard"
	TypeMaintenance Type = "maintenance"
)

func (t Type) String() string { return string(t) }

func (t Type) IsValid() bool {
	switch t {
	case TypeStandard, TypeMaintenance:
		return true
	}
	return false
}

func ParseTypeFromString(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: invalid type %q", ErrValidation, s)
	}
	return t, nil
}

// Contact is a pre-resolved delivery target attached to a notification,
// bypassing profile lookups during recipient resolution.
type Contact struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// TransientData is the per-notification state that is not modelled as
// dedicated columns. It is stored as JSON alongside the notification so a
// deferred dispatch can rehydrate the fields the original caller supplied.
type TransientData struct {
	User           string            `json:"user,omitempty"`
	Sender         map[string]string `json:"sender,omitempty"`
	RecipientsList []Contact         `json:"recipientsList,omitempty"`
	EmailFallback  bool              `json:"emailFallback,omitempty"`
}

// Notification is one unit of delivery work. Channel name lists
// (required/sent/failed) are persisted comma-joined, matching the storage
// contract consumed by callers.
type Notification struct {
	ID               string
	Level            Level
	Type             Type
	Locale           string
	Recipients       string // comma-joined user identifiers
	RequiredChannels string
	SentChannels     *string
	FailedChannels   *string
	CreatedAt        time.Time
	SentAt           *time.Time
	DelayedTo        *time.Time
	SendAt           *time.Time
	Exceptions       *string
	Message          *Message

	// Rehydrated from TransientData; never mapped to own columns.
	UserID         string
	Sender         map[string]string
	RecipientsList []Contact
	EmailFallback  bool
}

func (n *Notification) Validate() error {
	if !n.Level.IsValid() {
		return fmt.Errorf("%w: invalid level %q", ErrValidation, n.Level)
	}
	if !n.Type.IsValid() {
		return fmt.Errorf("%w: invalid type %q", ErrValidation, n.Type)
	}
	if n.Message == nil {
		return fmt.Errorf("%w: message is required", ErrValidation)
	}
	return n.Message.Validate()
}

// RequiredChannelList splits RequiredChannels on commas, drops empty entries
// and deduplicates while preserving first-seen order.
func (n *Notification) RequiredChannelList() []string {
	return splitChannelList(n.RequiredChannels)
}

// SenderFor returns the configured per-channel sender id, or empty.
func (n *Notification) SenderFor(channel string) string {
	if n.Sender == nil {
		return ""
	}
	return n.Sender[channel]
}

// Rehydrate restores the transient fields from stored per-notification data.
func (n *Notification) Rehydrate(data TransientData) {
	n.UserID = data.User
	n.Sender = data.Sender
	n.RecipientsList = data.RecipientsList
	n.EmailFallback = data.EmailFallback
}

// TransientData captures the current transient fields for persistence.
func (n *Notification) TransientData() TransientData {
	return TransientData{
		User:           n.UserID,
		Sender:         n.Sender,
		RecipientsList: n.RecipientsList,
		EmailFallback:  n.EmailFallback,
	}
}

func splitChannelList(joined string) []string {
	parts := strings.Split(joined, ",")
	seen := make(map[string]bool, len(parts))
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		name := strings.TrimSpace(part)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// JoinChannelList is the inverse of RequiredChannelList for the sent/failed
// bookkeeping fields. Returns nil for an empty list so the column stays NULL.
func JoinChannelList(channels []string) *string {
	if len(channels) == 0 {
		return nil
	}
	joined := strings.Join(channels, ",")
	return &joined
}
