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
	SMSRelayName = "smsrelay"

	SMSRelayUsernameSetting = "SMSRELAY_USERNAME"
	SMSRelayPasswordSetting = "SMSRELAY_PASSWORD"
)

type smsRelayDeliveryPayload struct {
	State string `json:"state"`
}

// SMSRelayProvider is the fallback SMS gateway, a legacy form-encoded HTTP
// API that answers with OK/ERR text bodies.
type SMSRelayProvider struct {
	client   *resty.Client
	endpoint string
	username string
	password string
}

func NewSMSRelayProvider(endpoint, username, password string) (*SMSRelayProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultGatewayTimeout)
	client.SetRetryCount(0)

	return NewSMSRelayProviderWithClient(endpoint, username, password, client)
}

func NewSMSRelayProviderWithClient(endpoint, username, password string, client *resty.Client) (*SMSRelayProvider, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("smsrelay endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid smsrelay endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultGatewayTimeout)
	}
	client.SetRetryCount(0)

	return &SMSRelayProvider{
		client:   client,
		endpoint: trimmedEndpoint,
		username: strings.TrimSpace(username),
		password: password,
	}, nil
}

func (p *SMSRelayProvider) Name() string { return SMSRelayName }

func (p *SMSRelayProvider) IsSMSProvider() bool { return true }

func (p *SMSRelayProvider) EnsureCredentials(_ context.Context, overrides map[string]string) error {
	username, password := p.resolveCredentials(overrides)
	if username == "" || password == "" {
		return fmt.Errorf("%w: %s/%s", domain.ErrCredentialsMissing, SMSRelayUsernameSetting, SMSRelayPasswordSetting)
	}
	return nil
}

func (p *SMSRelayProvider) GetMessage(n *domain.Notification) (OutboundMessage, error) {
	if n == nil || n.Message == nil {
		return OutboundMessage{}, fmt.Errorf("%w: notification message is required", domain.ErrValidation)
	}

	return OutboundMessage{
		Body:        PlainTextMessage(n),
		ContentType: domain.ContentTypePlain,
	}, nil
}

func (p *SMSRelayProvider) ClientSend(ctx context.Context, req SendRequest) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("smsrelay provider is not initialized")
	}
	if req.Recipient.PhoneNumber == "" {
		return &SendError{
			Provider:  SMSRelayName,
			Message:   fmt.Sprintf("recipient %s has no phone number", req.Recipient.Identifier),
			Transient: false,
		}
	}

	username, password := p.resolveCredentials(req.SettingOverrides)

	response, err := p.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"username":  username,
			"password":  password,
			"from":      req.Sender,
			"to":        req.Recipient.PhoneNumber,
			"message":   req.Message.Body,
			"reference": req.DispatchID,
		}).
		Post(p.endpoint)
	if err != nil {
		return &SendError{
			Provider:  SMSRelayName,
			Message:   "gateway request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	bodyText := strings.TrimSpace(response.String())

	if statusCode >= 200 && statusCode < 300 && strings.HasPrefix(bodyText, "OK") {
		return nil
	}

	transient := isTransientHTTPStatus(statusCode)
	if strings.HasPrefix(bodyText, "ERR:THROTTLED") {
		transient = true
	}

	return &SendError{
		Provider:   SMSRelayName,
		StatusCode: statusCode,
		Message:    bodyText,
		Transient:  transient,
	}
}

func (p *SMSRelayProvider) ParseDeliveryReport(report *domain.DeliveryReport) (domain.DeliveryStatus, error) {
	if report == nil || report.Payload == nil {
		return "", fmt.Errorf("%w: delivery report payload is empty", domain.ErrValidation)
	}

	var payload smsRelayDeliveryPayload
	if err := json.Unmarshal([]byte(*report.Payload), &payload); err != nil {
		return "", fmt.Errorf("smsrelay delivery report is not valid JSON: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(payload.State)) {
	case "delivered":
		return domain.DeliveryDelivered, nil
	case "failed", "undeliverable", "expired":
		return domain.DeliveryFailed, nil
	default:
		return domain.DeliveryPending, nil
	}
}

func (p *SMSRelayProvider) resolveCredentials(overrides map[string]string) (string, string) {
	username := p.username
	password := p.password
	if overrides != nil {
		if v := strings.TrimSpace(overrides[SMSRelayUsernameSetting]); v != "" {
			username = v
		}
		if v := overrides[SMSRelayPasswordSetting]; v != "" {
			password = v
		}
	}
	return username, password
}
