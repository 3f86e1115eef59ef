package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/velis74/notify-engine/internal/domain"
	mail "gopkg.in/mail.v2"
)

const (
	SMTPName = "smtp"

	SMTPHostSetting     = "SMTP_HOST"
	SMTPUsernameSetting = "SMTP_USERNAME"
	SMTPPasswordSetting = "SMTP_PASSWORD"
)

type smtpEventPayload struct {
	Event string `json:"event"`
}

// SMTPProvider delivers email through a configured SMTP relay.
type SMTPProvider struct {
	host     string
	port     int
	username string
	password string

	// send is swapped in tests to avoid a live SMTP dialer.
	send func(host string, port int, username, password string, msg *mail.Message) error
}

func NewSMTPProvider(host string, port int, username, password string) (*SMTPProvider, error) {
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if port <= 0 {
		port = 587
	}

	return &SMTPProvider{
		host:     strings.TrimSpace(host),
		port:     port,
		username: strings.TrimSpace(username),
		password: password,
		send:     dialAndSend,
	}, nil
}

func dialAndSend(host string, port int, username, password string, msg *mail.Message) error {
	dialer := mail.NewDialer(host, port, username, password)
	return dialer.DialAndSend(msg)
}

func (p *SMTPProvider) Name() string { return SMTPName }

func (p *SMTPProvider) IsSMSProvider() bool { return false }

func (p *SMTPProvider) EnsureCredentials(_ context.Context, overrides map[string]string) error {
	host, username, password := p.resolveCredentials(overrides)
	if host == "" || username == "" || password == "" {
		return fmt.Errorf("%w: %s/%s/%s", domain.ErrCredentialsMissing, SMTPHostSetting, SMTPUsernameSetting, SMTPPasswordSetting)
	}
	return nil
}

func (p *SMTPProvider) GetMessage(n *domain.Notification) (OutboundMessage, error) {
	if n == nil || n.Message == nil {
		return OutboundMessage{}, fmt.Errorf("%w: notification message is required", domain.ErrValidation)
	}

	body := n.Message.Body
	if n.Message.Footer != "" {
		if n.Message.ContentType == domain.ContentTypeHTML {
			body += "<br/><br/>" + n.Message.Footer
		} else {
			body += "\n\n" + n.Message.Footer
		}
	}

	return OutboundMessage{
		Subject:     n.Message.Subject,
		Body:        body,
		ContentType: n.Message.ContentType,
	}, nil
}

func (p *SMTPProvider) ClientSend(_ context.Context, req SendRequest) error {
	if p == nil {
		return fmt.Errorf("smtp provider is not initialized")
	}
	if req.Recipient.Email == "" {
		return &SendError{
			Provider:  SMTPName,
			Message:   fmt.Sprintf("recipient %s has no email address", req.Recipient.Identifier),
			Transient: false,
		}
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", req.Sender)
	msg.SetHeader("To", req.Recipient.Email)
	msg.SetHeader("Subject", req.Message.Subject)
	msg.SetHeader("X-Dispatch-ID", req.DispatchID)

	contentType := req.Message.ContentType
	if contentType == "" {
		contentType = domain.ContentTypePlain
	}
	msg.SetBody(contentType, req.Message.Body)

	host, username, password := p.resolveCredentials(req.SettingOverrides)
	if err := p.send(host, p.port, username, password, msg); err != nil {
		return &SendError{
			Provider:  SMTPName,
			Message:   "smtp delivery failed",
			Transient: true,
			Cause:     err,
		}
	}
	return nil
}

// ParseDeliveryReport interprets relay event callbacks (delivery/bounce
// notifications forwarded by the mail infrastructure).
func (p *SMTPProvider) ParseDeliveryReport(report *domain.DeliveryReport) (domain.DeliveryStatus, error) {
	if report == nil || report.Payload == nil {
		return "", fmt.Errorf("%w: delivery report payload is empty", domain.ErrValidation)
	}

	var payload smtpEventPayload
	if err := json.Unmarshal([]byte(*report.Payload), &payload); err != nil {
		return "", fmt.Errorf("smtp delivery report is not valid JSON: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(payload.Event)) {
	case "delivered":
		return domain.DeliveryDelivered, nil
	case "bounce", "dropped", "rejected":
		return domain.DeliveryFailed, nil
	default:
		return domain.DeliveryPending, nil
	}
}

func (p *SMTPProvider) resolveCredentials(overrides map[string]string) (string, string, string) {
	host := p.host
	username := p.username
	password := p.password
	if overrides != nil {
		if v := strings.TrimSpace(overrides[SMTPHostSetting]); v != "" {
			host = v
		}
		if v := strings.TrimSpace(overrides[SMTPUsernameSetting]); v != "" {
			username = v
		}
		if v := overrides[SMTPPasswordSetting]; v != "" {
			password = v
		}
	}
	return host, username, password
}
