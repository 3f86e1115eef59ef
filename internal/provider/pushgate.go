package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/velis74/notify-engine/internal/domain"
)

const (
	PushGateName = "pushgate"

	PushGateServerKeySetting = "PUSHGATE_SERVER_KEY"
)

type pushGateRequest struct {
	Token    string `json:"token"`
	Title    string `json:"title,omitempty"`
	Body     string `json:"body"`
	Priority string `json:"priority"`
	Tag      string `json:"tag"`
}

type pushGateEventPayload struct {
	Event string `json:"event"`
}

// PushGateProvider delivers push notifications through an FCM-style HTTP
// gateway. The recipient identifier doubles as the device token reference.
type PushGateProvider struct {
	client    *resty.Client
	endpoint  string
	serverKey string
}

func NewPushGateProvider(endpoint, serverKey string) (*PushGateProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultGatewayTimeout)
	client.SetRetryCount(0)

	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("pushgate endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid pushgate endpoint: %w", err)
	}

	return &PushGateProvider{
		client:    client,
		endpoint:  trimmedEndpoint,
		serverKey: strings.TrimSpace(serverKey),
	}, nil
}

func (p *PushGateProvider) Name() string { return PushGateName }

func (p *PushGateProvider) IsSMSProvider() bool { return false }

func (p *PushGateProvider) EnsureCredentials(_ context.Context, overrides map[string]string) error {
	if p.resolveServerKey(overrides) == "" {
		return fmt.Errorf("%w: %s", domain.ErrCredentialsMissing, PushGateServerKeySetting)
	}
	return nil
}

func (p *PushGateProvider) GetMessage(n *domain.Notification) (OutboundMessage, error) {
	if n == nil || n.Message == nil {
		return OutboundMessage{}, fmt.Errorf("%w: notification message is required", domain.ErrValidation)
	}

	return OutboundMessage{
		Subject:     n.Message.Subject,
		Body:        PlainTextMessage(n),
		ContentType: domain.ContentTypePlain,
	}, nil
}

func (p *PushGateProvider) ClientSend(ctx context.Context, req SendRequest) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("pushgate provider is not initialized")
	}
	if req.Recipient.Identifier == "" {
		return &SendError{
			Provider:  PushGateName,
			Message:   "recipient has no device identifier",
			Transient: false,
		}
	}

	body := pushGateRequest{
		Token:    req.Recipient.Identifier,
		Title:    req.Message.Subject,
		Body:     req.Message.Body,
		Priority: "normal",
		Tag:      req.DispatchID,
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "key="+p.resolveServerKey(req.SettingOverrides)).
		SetBody(body).
		Post(p.endpoint)
	if err != nil {
		return &SendError{
			Provider:  PushGateName,
			Message:   "gateway request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	return &SendError{
		Provider:   PushGateName,
		StatusCode: statusCode,
		Message:    strings.TrimSpace(response.String()),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func (p *PushGateProvider) ParseDeliveryReport(report *domain.DeliveryReport) (domain.DeliveryStatus, error) {
	if report == nil || report.Payload == nil {
		return "", fmt.Errorf("%w: delivery report payload is empty", domain.ErrValidation)
	}

	var payload pushGateEventPayload
	if err := json.Unmarshal([]byte(*report.Payload), &payload); err != nil {
		return "", fmt.Errorf("pushgate delivery report is not valid JSON: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(payload.Event)) {
	case "delivered", "opened":
		return domain.DeliveryDelivered, nil
	case "unregistered", "invalid_token", "failed":
		return domain.DeliveryFailed, nil
	default:
		return domain.DeliveryPending, nil
	}
}

func (p *PushGateProvider) resolveServerKey(overrides map[string]string) string {
	if overrides != nil {
		if key := strings.TrimSpace(overrides[PushGateServerKeySetting]); key != "" {
			return key
		}
	}
	return p.serverKey
}
