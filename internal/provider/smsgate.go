package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/velis74/notify-engine/internal/domain"
)

const (
	SMSGateName = "smsgate"

	// SMSGateAPIKeySetting is the override key honored by EnsureCredentials.
	SMSGateAPIKeySetting = "SMSGATE_API_KEY"

	defaultGatewayTimeout = 10 * time.Second
)

type smsGateRequest struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Text       string `json:"text"`
	Reference  string `json:"reference"`
	DLRCallback string `json:"dlrCallback,omitempty"`
}

type smsGateDeliveryPayload struct {
	Status string `json:"status"`
}

// SMSGateProvider sends plain-text messages through a JSON HTTP SMS gateway
// and interprets its SMPP-style delivery reports.
type SMSGateProvider struct {
	client      *resty.Client
	endpoint    string
	apiKey      string
	callbackURL string
}

func NewSMSGateProvider(endpoint, apiKey, callbackURL string) (*SMSGateProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultGatewayTimeout)
	client.SetRetryCount(0)

	return NewSMSGateProviderWithClient(endpoint, apiKey, callbackURL, client)
}

func NewSMSGateProviderWithClient(endpoint, apiKey, callbackURL string, client *resty.Client) (*SMSGateProvider, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("smsgate endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid smsgate endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultGatewayTimeout)
	}
	client.SetRetryCount(0)

	return &SMSGateProvider{
		client:      client,
		endpoint:    trimmedEndpoint,
		apiKey:      strings.TrimSpace(apiKey),
		callbackURL: strings.TrimSpace(callbackURL),
	}, nil
}

func (p *SMSGateProvider) Name() string { return SMSGateName }

func (p *SMSGateProvider) IsSMSProvider() bool { return true }

func (p *SMSGateProvider) EnsureCredentials(_ context.Context, overrides map[string]string) error {
	if p.resolveAPIKey(overrides) == "" {
		return fmt.Errorf("%w: %s", domain.ErrCredentialsMissing, SMSGateAPIKeySetting)
	}
	return nil
}

func (p *SMSGateProvider) GetMessage(n *domain.Notification) (OutboundMessage, error) {
	if n == nil || n.Message == nil {
		return OutboundMessage{}, fmt.Errorf("%w: notification message is required", domain.ErrValidation)
	}

	return OutboundMessage{
		Body:        PlainTextMessage(n),
		ContentType: domain.ContentTypePlain,
	}, nil
}

func (p *SMSGateProvider) ClientSend(ctx context.Context, req SendRequest) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("smsgate provider is not initialized")
	}
	if req.Recipient.PhoneNumber == "" {
		return &SendError{
			Provider:  SMSGateName,
			Message:   fmt.Sprintf("recipient %s has no phone number", req.Recipient.Identifier),
			Transient: false,
		}
	}

	body := smsGateRequest{
		From:        req.Sender,
		To:          req.Recipient.PhoneNumber,
		Text:        req.Message.Body,
		Reference:   req.DispatchID,
		DLRCallback: p.callbackURL,
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+p.resolveAPIKey(req.SettingOverrides)).
		SetBody(body).
		Post(p.endpoint)
	if err != nil {
		return &SendError{
			Provider:  SMSGateName,
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
		Provider:   SMSGateName,
		StatusCode: statusCode,
		Message:    strings.TrimSpace(response.String()),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

// EnqueueDLRRequest registers the callback URL for a dispatched message so
// the gateway pushes its delivery report instead of waiting for a poll.
func (p *SMSGateProvider) EnqueueDLRRequest(ctx context.Context, dispatchID string) error {
	if p.callbackURL == "" {
		return nil
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+p.apiKey).
		SetQueryParam("reference", dispatchID).
		SetQueryParam("callback", p.callbackURL).
		Get(p.endpoint + "/dlr")
	if err != nil {
		return fmt.Errorf("smsgate dlr registration failed: %w", err)
	}
	if response.StatusCode() >= 300 {
		return fmt.Errorf("smsgate dlr registration returned status %d", response.StatusCode())
	}
	return nil
}

// ParseDeliveryReport maps the gateway's SMPP-style status vocabulary onto
// the tracked delivery statuses.
func (p *SMSGateProvider) ParseDeliveryReport(report *domain.DeliveryReport) (domain.DeliveryStatus, error) {
	if report == nil || report.Payload == nil {
		return "", fmt.Errorf("%w: delivery report payload is empty", domain.ErrValidation)
	}

	var payload smsGateDeliveryPayload
	if err := json.Unmarshal([]byte(*report.Payload), &payload); err != nil {
		return "", fmt.Errorf("smsgate delivery report is not valid JSON: %w", err)
	}

	switch strings.ToUpper(strings.TrimSpace(payload.Status)) {
	case "DELIVRD":
		return domain.DeliveryDelivered, nil
	case "UNDELIV", "EXPIRED", "REJECTD", "DELETED":
		return domain.DeliveryFailed, nil
	case "ACCEPTD", "ENROUTE", "":
		return domain.DeliveryPending, nil
	default:
		return domain.DeliveryPending, nil
	}
}

func (p *SMSGateProvider) resolveAPIKey(overrides map[string]string) string {
	if overrides != nil {
		if key := strings.TrimSpace(overrides[SMSGateAPIKeySetting]); key != "" {
			return key
		}
	}
	return p.apiKey
}
