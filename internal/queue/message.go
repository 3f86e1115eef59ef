package queue

import (
	"fmt"
	"strings"

	"github.com/velis74/notify-engine/internal/domain"
)

// DispatchMessage is the broker payload for one deferred notification
// dispatch. The worker reloads the full row by id, so the payload stays a
// reference rather than a copy that could go stale in the queue.
type DispatchMessage struct {
	NotificationID string       `json:"notificationId"`
	CorrelationID  string       `json:"correlationId,omitempty"`
	Level          domain.Level `json:"level,omitempty"`
}

func (m DispatchMessage) Validate() error {
	if strings.TrimSpace(m.NotificationID) == "" {
		return fmt.Errorf("notificationId is required")
	}
	if m.Level != "" && !m.Level.IsValid() {
		return fmt.Errorf("invalid level %q", m.Level)
	}
	return nil
}
