package channel

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/velis74/notify-engine/internal/domain"
	"github.com/velis74/notify-engine/internal/observability"
	"github.com/velis74/notify-engine/internal/provider"
	"github.com/velis74/notify-engine/internal/ratelimit"
	"github.com/velis74/notify-engine/internal/repository"
	"go.uber.org/zap"
)

// Channel delivers one notification over one medium to every resolved
// recipient, failing over between configured providers per recipient.
type Channel interface {
	Name() string

	// ProviderSettingName is the configuration key whose value is this
	// channel's ordered provider chain; dispatch-context overrides are keyed
	// by the same name.
	ProviderSettingName() string

	// GetRecipients resolves and deduplicates the notification's recipients
	// using the channel's unique attribute.
	GetRecipients(ctx context.Context, n *domain.Notification) ([]domain.Recipient, error)

	// Send delivers to all recipients and returns the billable sent count.
	// Recipient-level failures are contained; a returned error means the
	// channel as a whole failed.
	Send(ctx context.Context, n *domain.Notification, dctx domain.DispatchContext) (int, error)
}

// Config describes one channel instance.
type Config struct {
	Name            string
	ProviderSetting string
	UniqueBy        domain.UniqueAttribute

	// Providers is the default failover chain, overridable per dispatch.
	Providers []string

	// RequiresPhone marks media that cannot reach a phone-less recipient.
	// Such recipients are delivered through FallbackProvider when the
	// notification allows it, or skipped.
	RequiresPhone    bool
	FallbackProvider string
}

// Deps are the collaborators shared by all channel instances.
type Deps struct {
	Resolver *Resolver
	Registry *provider.Registry
	Reports  repository.DeliveryReportRepository
	Limiter  ratelimit.RateLimiter
	Logger   *zap.Logger
	Metrics  *observability.Metrics

	// NewDispatchID mints the per-send id shared by the gateway reference
	// and the delivery report row. Defaults to a random UUID.
	NewDispatchID func() string
}

type baseChannel struct {
	cfg  Config
	deps Deps
}

func newChannel(cfg Config, deps Deps) (*baseChannel, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: channel name is required", domain.ErrValidation)
	}
	if cfg.ProviderSetting == "" {
		return nil, fmt.Errorf("%w: provider setting name is required", domain.ErrValidation)
	}
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("%w: channel %q needs at least one provider", domain.ErrValidation, cfg.Name)
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("%w: resolver is required", domain.ErrValidation)
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("%w: provider registry is required", domain.ErrValidation)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.NewDispatchID == nil {
		deps.NewDispatchID = uuid.NewString
	}
	return &baseChannel{cfg: cfg, deps: deps}, nil
}

func (c *baseChannel) Name() string                { return c.cfg.Name }
func (c *baseChannel) ProviderSettingName() string { return c.cfg.ProviderSetting }

func (c *baseChannel) GetRecipients(ctx context.Context, n *domain.Notification) ([]domain.Recipient, error) {
	return c.deps.Resolver.Resolve(ctx, n, c.cfg.UniqueBy)
}

// Send resolves recipients, renders the message once from the primary
// provider and delivers per recipient with failover. The provider exclusion
// set lives on the stack of this call; concurrent dispatches of the same
// channel never observe each other's failovers.
func (c *baseChannel) Send(ctx context.Context, n *domain.Notification, dctx domain.DispatchContext) (int, error) {
	recipients, err := c.GetRecipients(ctx, n)
	if err != nil {
		return 0, err
	}
	if len(recipients) == 0 {
		return 0, fmt.Errorf("%w: channel %q resolved no recipients", domain.ErrNoValidRecipients, c.cfg.Name)
	}

	sender := dctx.SenderFor(c.cfg.Name)
	if sender == "" {
		sender = n.SenderFor(c.cfg.Name)
	}
	if sender == "" {
		return 0, fmt.Errorf("%w: channel %q has no sender configured", domain.ErrValidation, c.cfg.Name)
	}

	chain := c.cfg.Providers
	if override, ok := dctx.ProvidersFor(c.cfg.ProviderSetting); ok {
		chain = override
	}

	excluded := make(map[string]bool, len(chain))
	primary, ok := c.deps.Registry.NextInChain(chain, excluded)
	if !ok {
		return 0, fmt.Errorf("channel %q: no registered provider in chain %v", c.cfg.Name, chain)
	}

	msg, err := primary.GetMessage(n)
	if err != nil {
		return 0, fmt.Errorf("channel %q: failed to render message: %w", c.cfg.Name, err)
	}

	sentNo := 0
	fallbackNo := 0
	for _, recipient := range recipients {
		if c.cfg.RequiresPhone && recipient.PhoneNumber == "" {
			if c.sendFallback(ctx, n, recipient, sender, dctx) {
				fallbackNo++
			}
			continue
		}
		if c.deliver(ctx, n, recipient, msg, sender, chain, excluded, dctx) {
			sentNo++
		}
	}

	if primary.IsSMSProvider() {
		sentNo *= provider.SegmentCount(msg.Body)
	}
	sentNo += fallbackNo

	c.deps.Metrics.RecipientsReached(c.cfg.Name, sentNo)
	return sentNo, nil
}

// deliver attempts one recipient against the chain, excluding providers that
// failed earlier in this Send call. Exhaustion is logged, not propagated.
func (c *baseChannel) deliver(
	ctx context.Context,
	n *domain.Notification,
	recipient domain.Recipient,
	msg provider.OutboundMessage,
	sender string,
	chain []string,
	excluded map[string]bool,
	dctx domain.DispatchContext,
) bool {
	for {
		p, ok := c.deps.Registry.NextInChain(chain, excluded)
		if !ok {
			c.deps.Logger.Warn("provider chain exhausted for recipient",
				zap.String("channel", c.cfg.Name),
				zap.String("notificationId", n.ID),
				zap.String("recipientId", recipient.Identifier),
			)
			c.deps.Metrics.ChannelSendObserved(c.cfg.Name, "exhausted")
			return false
		}

		err := c.attempt(ctx, p, n, recipient, msg, sender, dctx)
		if err == nil {
			c.deps.Metrics.ChannelSendObserved(c.cfg.Name, "sent")
			return true
		}

		c.deps.Logger.Warn("provider send failed, failing over",
			zap.String("channel", c.cfg.Name),
			zap.String("provider", p.Name()),
			zap.String("notificationId", n.ID),
			zap.String("recipientId", recipient.Identifier),
			zap.Bool("transient", provider.IsTransient(err)),
			zap.Error(err),
		)
		excluded[p.Name()] = true
		c.deps.Metrics.ProviderFailover(c.cfg.Name, p.Name())
	}
}

// sendFallback delivers to a phone-less recipient over the fallback provider
// when the notification opted in. One attempt, no failover.
func (c *baseChannel) sendFallback(
	ctx context.Context,
	n *domain.Notification,
	recipient domain.Recipient,
	sender string,
	dctx domain.DispatchContext,
) bool {
	if !n.EmailFallback || c.cfg.FallbackProvider == "" || recipient.Email == "" {
		c.deps.Logger.Debug("skipping recipient without a usable address",
			zap.String("channel", c.cfg.Name),
			zap.String("notificationId", n.ID),
			zap.String("recipientId", recipient.Identifier),
		)
		return false
	}

	p, err := c.deps.Registry.Resolve(c.cfg.FallbackProvider)
	if err != nil {
		c.deps.Logger.Error("fallback provider is not registered",
			zap.String("channel", c.cfg.Name),
			zap.String("provider", c.cfg.FallbackProvider),
			zap.Error(err),
		)
		return false
	}

	msg, err := p.GetMessage(n)
	if err != nil {
		c.deps.Logger.Error("fallback message rendering failed",
			zap.String("channel", c.cfg.Name),
			zap.String("provider", p.Name()),
			zap.Error(err),
		)
		return false
	}

	if err := c.attempt(ctx, p, n, recipient, msg, sender, dctx); err != nil {
		c.deps.Logger.Warn("fallback send failed",
			zap.String("channel", c.cfg.Name),
			zap.String("provider", p.Name()),
			zap.String("notificationId", n.ID),
			zap.String("recipientId", recipient.Identifier),
			zap.Error(err),
		)
		c.deps.Metrics.ChannelSendObserved(c.cfg.Name, "fallback_failed")
		return false
	}

	c.deps.Metrics.ChannelSendObserved(c.cfg.Name, "fallback_sent")
	return true
}

// attempt performs one provider call end to end: credential check, rate
// limit, gateway send and delivery report creation. Any error fails the
// attempt; a send without a report row is treated as not sent.
func (c *baseChannel) attempt(
	ctx context.Context,
	p provider.Integration,
	n *domain.Notification,
	recipient domain.Recipient,
	msg provider.OutboundMessage,
	sender string,
	dctx domain.DispatchContext,
) error {
	if err := p.EnsureCredentials(ctx, dctx.SettingOverrides); err != nil {
		return err
	}

	if c.deps.Limiter != nil {
		if err := c.deps.Limiter.Wait(ctx, c.cfg.Name); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	dispatchID := c.deps.NewDispatchID()
	err := p.ClientSend(ctx, provider.SendRequest{
		Sender:           sender,
		Recipient:        recipient,
		Message:          msg,
		DispatchID:       dispatchID,
		SettingOverrides: dctx.SettingOverrides,
	})
	if err != nil {
		return err
	}

	if c.deps.Reports != nil && n.ID != "" {
		report := &domain.DeliveryReport{
			ID:             dispatchID,
			NotificationID: n.ID,
			RecipientID:    recipient.Identifier,
			Channel:        c.cfg.Name,
			Provider:       p.Name(),
			Status:         domain.DeliveryPending,
		}
		if err := c.deps.Reports.Create(ctx, report); err != nil {
			return fmt.Errorf("delivery report not recorded: %w", err)
		}
	}

	if enqueuer, ok := p.(provider.DLREnqueuer); ok {
		if err := enqueuer.EnqueueDLRRequest(ctx, dispatchID); err != nil {
			c.deps.Logger.Warn("delivery report request not enqueued",
				zap.String("channel", c.cfg.Name),
				zap.String("provider", p.Name()),
				zap.String("dispatchId", dispatchID),
				zap.Error(err),
			)
		}
	}

	return nil
}
