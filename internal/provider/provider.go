package provider

import (
	"context"

	"github.com/velis74/notify-engine/internal/domain"
)

// OutboundMessage is the rendered payload handed to a gateway. SMS-class
// providers collapse subject and body into a plain-text Body.
type OutboundMessage struct {
	Subject     string
	Body        string
	ContentType string
}

// SendRequest carries everything one gateway call needs. Overrides travel
// with the request instead of being written into provider state, so one
// integration instance can serve concurrent dispatches.
type SendRequest struct {
	Sender           string
	Recipient        domain.Recipient
	Message          OutboundMessage
	DispatchID       string
	SettingOverrides map[string]string
}

// Integration is the outbound port for one delivery provider (an SMS
// gateway, an SMTP relay, a push gateway). One instance is registered per
// configured gateway and shared across sends; implementations keep no
// per-send state.
type Integration interface {
	// Name identifies the provider in configuration, failover chains and
	// delivery report rows.
	Name() string

	// IsSMSProvider reports whether sent counts are multiplied by the
	// per-message segment count for billing.
	IsSMSProvider() bool

	// EnsureCredentials validates the provider's credentials, preferring
	// dispatch-context overrides over process configuration. Returns an
	// error wrapping domain.ErrCredentialsMissing when unconfigured.
	EnsureCredentials(ctx context.Context, overrides map[string]string) error

	// GetMessage renders the outgoing payload for a notification.
	GetMessage(n *domain.Notification) (OutboundMessage, error)

	// ClientSend performs the network call for one recipient. It never
	// retries internally; failover is the caller's responsibility.
	ClientSend(ctx context.Context, req SendRequest) error

	// ParseDeliveryReport interprets the raw callback payload attached to a
	// report and derives the delivery status. Must be idempotent for a
	// fixed payload.
	ParseDeliveryReport(report *domain.DeliveryReport) (domain.DeliveryStatus, error)
}

// DLREnqueuer is implemented by providers that need an explicit
// delivery-report poll or callback registration after a successful send.
type DLREnqueuer interface {
	EnqueueDLRRequest(ctx context.Context, dispatchID string) error
}
