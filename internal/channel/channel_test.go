package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/velis74/notify-engine/internal/domain"
	"github.com/velis74/notify-engine/internal/provider"
	"go.uber.org/zap"
)

type fakeIntegration struct {
	name string
	sms  bool

	ensureCredentialsFn func(ctx context.Context, overrides map[string]string) error
	getMessageFn        func(n *domain.Notification) (provider.OutboundMessage, error)
	clientSendFn        func(ctx context.Context, req provider.SendRequest) error

	sent []provider.SendRequest
}

func (f *fakeIntegration) Name() string        { return f.name }
func (f *fakeIntegration) IsSMSProvider() bool { return f.sms }

func (f *fakeIntegration) EnsureCredentials(ctx context.Context, overrides map[string]string) error {
	if f.ensureCredentialsFn != nil {
		return f.ensureCredentialsFn(ctx, overrides)
	}
	return nil
}

func (f *fakeIntegration) GetMessage(n *domain.Notification) (provider.OutboundMessage, error) {
	if f.getMessageFn != nil {
		return f.getMessageFn(n)
	}
	return provider.OutboundMessage{Subject: "subject", Body: "body", ContentType: domain.ContentTypePlain}, nil
}

func (f *fakeIntegration) ClientSend(ctx context.Context, req provider.SendRequest) error {
	if f.clientSendFn != nil {
		if err := f.clientSendFn(ctx, req); err != nil {
			return err
		}
	}
	f.sent = append(f.sent, req)
	return nil
}

func (f *fakeIntegration) ParseDeliveryReport(report *domain.DeliveryReport) (domain.DeliveryStatus, error) {
	return domain.DeliveryPending, nil
}

type fakeReportRepo struct {
	createFn func(ctx context.Context, report *domain.DeliveryReport) error

	created []domain.DeliveryReport
}

func (f *fakeReportRepo) Create(ctx context.Context, report *domain.DeliveryReport) error {
	if f.createFn != nil {
		if err := f.createFn(ctx, report); err != nil {
			return err
		}
	}
	f.created = append(f.created, *report)
	return nil
}

func (f *fakeReportRepo) GetByID(ctx context.Context, id string) (*domain.DeliveryReport, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeReportRepo) AttachPayload(ctx context.Context, id string, payload string) error {
	return nil
}

func (f *fakeReportRepo) UpdateStatus(ctx context.Context, id string, status domain.DeliveryStatus) error {
	return nil
}

func newTestDeps(t *testing.T, reports *fakeReportRepo, integrations ...provider.Integration) Deps {
	t.Helper()

	registry := provider.NewRegistry()
	for _, p := range integrations {
		if err := registry.Register(p); err != nil {
			t.Fatalf("Register(%q) error = %v", p.Name(), err)
		}
	}

	profiles := &fakeProfileRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Profile, error) {
			t.Fatalf("unexpected profile lookup for %q", id)
			return nil, nil
		},
	}

	seq := 0
	return Deps{
		Resolver: NewResolver(profiles, zap.NewNop()),
		Registry: registry,
		Reports:  reports,
		Logger:   zap.NewNop(),
		NewDispatchID: func() string {
			seq++
			return fmt.Sprintf("dispatch-%d", seq)
		},
	}
}

func mailNotification(contacts ...domain.Contact) *domain.Notification {
	return &domain.Notification{
		ID:             "ntf-1",
		Sender:         map[string]string{EmailChannelName: "noreply@example.com", SMSChannelName: "ACME"},
		RecipientsList: contacts,
		Message:        &domain.Message{Subject: "subject", Body: "body", ContentType: domain.ContentTypePlain},
	}
}

func TestChannelSendDeliversToAllRecipients(t *testing.T) {
	t.Parallel()

	gateway := &fakeIntegration{name: "smtp"}
	reports := &fakeReportRepo{}
	ch, err := NewEmailChannel([]string{"smtp"}, newTestDeps(t, reports, gateway))
	if err != nil {
		t.Fatalf("NewEmailChannel() error = %v", err)
	}

	n := mailNotification(
		domain.Contact{ID: "u1", Email: "a@example.com"},
		domain.Contact{ID: "u2", Email: "b@example.com"},
	)

	sent, err := ch.Send(context.Background(), n, domain.DispatchContext{})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if sent != 2 {
		t.Fatalf("sent = %d, want 2", sent)
	}
	if len(gateway.sent) != 2 {
		t.Fatalf("gateway calls = %d, want 2", len(gateway.sent))
	}
	if gateway.sent[0].Sender != "noreply@example.com" {
		t.Fatalf("sender = %q, want noreply@example.com", gateway.sent[0].Sender)
	}
	if gateway.sent[0].DispatchID == gateway.sent[1].DispatchID {
		t.Fatal("dispatch ids must be unique per send")
	}
	if len(reports.created) != 2 {
		t.Fatalf("delivery reports = %d, want 2", len(reports.created))
	}
	if reports.created[0].ID != gateway.sent[0].DispatchID {
		t.Fatalf("report id = %q, want dispatch id %q", reports.created[0].ID, gateway.sent[0].DispatchID)
	}
	if reports.created[0].Status != domain.DeliveryPending {
		t.Fatalf("report status = %s, want PENDING", reports.created[0].Status)
	}
}

func TestChannelSendFailsOverToNextProvider(t *testing.T) {
	t.Parallel()

	broken := &fakeIntegration{
		name: "alpha",
		clientSendFn: func(ctx context.Context, req provider.SendRequest) error {
			return &provider.SendError{Provider: "alpha", StatusCode: 502, Message: "bad gateway", Transient: true}
		},
	}
	healthy := &fakeIntegration{name: "beta"}
	reports := &fakeReportRepo{}

	ch, err := NewEmailChannel([]string{"alpha", "beta"}, newTestDeps(t, reports, broken, healthy))
	if err != nil {
		t.Fatalf("NewEmailChannel() error = %v", err)
	}

	n := mailNotification(
		domain.Contact{ID: "u1", Email: "a@example.com"},
		domain.Contact{ID: "u2", Email: "b@example.com"},
	)

	sent, err := ch.Send(context.Background(), n, domain.DispatchContext{})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if sent != 2 {
		t.Fatalf("sent = %d, want 2", sent)
	}
	if len(healthy.sent) != 2 {
		t.Fatalf("healthy provider calls = %d, want 2", len(healthy.sent))
	}
	// The failed provider is excluded for the rest of this call, so only the
	// first recipient ever hits it.
	if len(broken.sent) != 0 {
		t.Fatalf("broken provider successful sends = %d, want 0", len(broken.sent))
	}
	if len(reports.created) != 2 {
		t.Fatalf("delivery reports = %d, want 2 (one per recipient)", len(reports.created))
	}
	for _, report := range reports.created {
		if report.Provider != "beta" {
			t.Fatalf("report provider = %q, want beta", report.Provider)
		}
	}
}

func TestChannelSendProviderExclusionIsLocalToCall(t *testing.T) {
	t.Parallel()

	failNext := true
	flaky := &fakeIntegration{
		name: "alpha",
		clientSendFn: func(ctx context.Context, req provider.SendRequest) error {
			if failNext {
				failNext = false
				return errors.New("transient outage")
			}
			return nil
		},
	}
	backup := &fakeIntegration{name: "beta"}
	reports := &fakeReportRepo{}

	ch, err := NewEmailChannel([]string{"alpha", "beta"}, newTestDeps(t, reports, flaky, backup))
	if err != nil {
		t.Fatalf("NewEmailChannel() error = %v", err)
	}

	n := mailNotification(domain.Contact{ID: "u1", Email: "a@example.com"})

	if _, err := ch.Send(context.Background(), n, domain.DispatchContext{}); err != nil {
		t.Fatalf("first Send() error = %v", err)
	}
	if len(backup.sent) != 1 {
		t.Fatalf("backup calls after first send = %d, want 1", len(backup.sent))
	}

	// A later call starts from the configured primary again.
	if _, err := ch.Send(context.Background(), n, domain.DispatchContext{}); err != nil {
		t.Fatalf("second Send() error = %v", err)
	}
	if len(flaky.sent) != 1 {
		t.Fatalf("primary calls after second send = %d, want 1", len(flaky.sent))
	}
	if len(backup.sent) != 1 {
		t.Fatalf("backup calls after second send = %d, want 1", len(backup.sent))
	}
}

func TestChannelSendNoValidRecipients(t *testing.T) {
	t.Parallel()

	gateway := &fakeIntegration{name: "smtp"}
	ch, err := NewEmailChannel([]string{"smtp"}, newTestDeps(t, &fakeReportRepo{}, gateway))
	if err != nil {
		t.Fatalf("NewEmailChannel() error = %v", err)
	}

	n := mailNotification()
	n.Recipients = ""

	_, err = ch.Send(context.Background(), n, domain.DispatchContext{})
	if !errors.Is(err, domain.ErrNoValidRecipients) {
		t.Fatalf("error = %v, want ErrNoValidRecipients", err)
	}
	if len(gateway.sent) != 0 {
		t.Fatalf("gateway calls = %d, want 0", len(gateway.sent))
	}
}

func TestChannelSendChainExhaustionSkipsRecipient(t *testing.T) {
	t.Parallel()

	broken := &fakeIntegration{
		name: "alpha",
		clientSendFn: func(ctx context.Context, req provider.SendRequest) error {
			return errors.New("gateway down")
		},
	}
	reports := &fakeReportRepo{}

	ch, err := NewEmailChannel([]string{"alpha"}, newTestDeps(t, reports, broken))
	if err != nil {
		t.Fatalf("NewEmailChannel() error = %v", err)
	}

	n := mailNotification(
		domain.Contact{ID: "u1", Email: "a@example.com"},
		domain.Contact{ID: "u2", Email: "b@example.com"},
	)

	sent, err := ch.Send(context.Background(), n, domain.DispatchContext{})
	if err != nil {
		t.Fatalf("Send() error = %v, recipient exhaustion must not fail the channel", err)
	}
	if sent != 0 {
		t.Fatalf("sent = %d, want 0", sent)
	}
	if len(reports.created) != 0 {
		t.Fatalf("delivery reports = %d, want 0 for failed sends", len(reports.created))
	}
}

func TestChannelSendMultipliesSMSSegments(t *testing.T) {
	t.Parallel()

	gateway := &fakeIntegration{
		name: "smsgate",
		sms:  true,
		getMessageFn: func(n *domain.Notification) (provider.OutboundMessage, error) {
			return provider.OutboundMessage{Body: strings.Repeat("a", 161), ContentType: domain.ContentTypePlain}, nil
		},
	}
	reports := &fakeReportRepo{}

	ch, err := NewSMSChannel([]string{"smsgate"}, "", newTestDeps(t, reports, gateway))
	if err != nil {
		t.Fatalf("NewSMSChannel() error = %v", err)
	}

	n := mailNotification(domain.Contact{ID: "u1", PhoneNumber: "+38631123456"})

	sent, err := ch.Send(context.Background(), n, domain.DispatchContext{})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if sent != 2 {
		t.Fatalf("sent = %d, want 2 (one recipient, two segments)", sent)
	}
	if len(reports.created) != 1 {
		t.Fatalf("delivery reports = %d, want 1", len(reports.created))
	}
}

func TestSMSChannelEmailFallbackForPhonelessRecipient(t *testing.T) {
	t.Parallel()

	smsGateway := &fakeIntegration{name: "smsgate", sms: true}
	mailGateway := &fakeIntegration{name: "smtp"}
	reports := &fakeReportRepo{}

	ch, err := NewSMSChannel([]string{"smsgate"}, "smtp", newTestDeps(t, reports, smsGateway, mailGateway))
	if err != nil {
		t.Fatalf("NewSMSChannel() error = %v", err)
	}

	n := mailNotification(
		domain.Contact{ID: "u1", PhoneNumber: "+38631123456"},
		domain.Contact{ID: "u2", Email: "b@example.com"},
	)
	n.EmailFallback = true

	sent, err := ch.Send(context.Background(), n, domain.DispatchContext{})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if sent != 2 {
		t.Fatalf("sent = %d, want 2", sent)
	}
	if len(smsGateway.sent) != 1 {
		t.Fatalf("sms calls = %d, want 1", len(smsGateway.sent))
	}
	if len(mailGateway.sent) != 1 {
		t.Fatalf("fallback mail calls = %d, want 1", len(mailGateway.sent))
	}
	if len(reports.created) != 2 {
		t.Fatalf("delivery reports = %d, want 2", len(reports.created))
	}
}

func TestSMSChannelSkipsPhonelessRecipientWithoutFallback(t *testing.T) {
	t.Parallel()

	smsGateway := &fakeIntegration{name: "smsgate", sms: true}
	reports := &fakeReportRepo{}

	ch, err := NewSMSChannel([]string{"smsgate"}, "", newTestDeps(t, reports, smsGateway))
	if err != nil {
		t.Fatalf("NewSMSChannel() error = %v", err)
	}

	n := mailNotification(
		domain.Contact{ID: "u1", PhoneNumber: "+38631123456"},
		domain.Contact{ID: "u2", Email: "b@example.com"},
	)

	sent, err := ch.Send(context.Background(), n, domain.DispatchContext{})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
	if len(smsGateway.sent) != 1 {
		t.Fatalf("sms calls = %d, want 1", len(smsGateway.sent))
	}
}

func TestChannelSendRequiresSender(t *testing.T) {
	t.Parallel()

	gateway := &fakeIntegration{name: "smtp"}
	ch, err := NewEmailChannel([]string{"smtp"}, newTestDeps(t, &fakeReportRepo{}, gateway))
	if err != nil {
		t.Fatalf("NewEmailChannel() error = %v", err)
	}

	n := mailNotification(domain.Contact{ID: "u1", Email: "a@example.com"})
	n.Sender = nil

	_, err = ch.Send(context.Background(), n, domain.DispatchContext{})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestChannelSendSenderOverrideWins(t *testing.T) {
	t.Parallel()

	gateway := &fakeIntegration{name: "smtp"}
	ch, err := NewEmailChannel([]string{"smtp"}, newTestDeps(t, &fakeReportRepo{}, gateway))
	if err != nil {
		t.Fatalf("NewEmailChannel() error = %v", err)
	}

	n := mailNotification(domain.Contact{ID: "u1", Email: "a@example.com"})
	dctx := domain.DispatchContext{
		SenderOverrides: map[string]string{EmailChannelName: "alerts@example.com"},
	}

	if _, err := ch.Send(context.Background(), n, dctx); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if gateway.sent[0].Sender != "alerts@example.com" {
		t.Fatalf("sender = %q, want alerts@example.com", gateway.sent[0].Sender)
	}
}

func TestChannelSendProviderChainOverride(t *testing.T) {
	t.Parallel()

	primary := &fakeIntegration{name: "alpha"}
	alternate := &fakeIntegration{name: "beta"}

	ch, err := NewEmailChannel([]string{"alpha"}, newTestDeps(t, &fakeReportRepo{}, primary, alternate))
	if err != nil {
		t.Fatalf("NewEmailChannel() error = %v", err)
	}

	n := mailNotification(domain.Contact{ID: "u1", Email: "a@example.com"})
	dctx := domain.DispatchContext{
		ProviderOverrides: map[string][]string{EmailProviderSetting: {"beta"}},
	}

	if _, err := ch.Send(context.Background(), n, dctx); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(primary.sent) != 0 || len(alternate.sent) != 1 {
		t.Fatalf("calls alpha=%d beta=%d, want 0/1", len(primary.sent), len(alternate.sent))
	}
}

func TestChannelSendReportFailureTriggersFailover(t *testing.T) {
	t.Parallel()

	primary := &fakeIntegration{name: "alpha"}
	backup := &fakeIntegration{name: "beta"}
	reports := &fakeReportRepo{
		createFn: func(ctx context.Context, report *domain.DeliveryReport) error {
			if report.Provider == "alpha" {
				return errors.New("insert failed")
			}
			return nil
		},
	}

	ch, err := NewEmailChannel([]string{"alpha", "beta"}, newTestDeps(t, reports, primary, backup))
	if err != nil {
		t.Fatalf("NewEmailChannel() error = %v", err)
	}

	n := mailNotification(domain.Contact{ID: "u1", Email: "a@example.com"})

	sent, err := ch.Send(context.Background(), n, domain.DispatchContext{})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
	if len(reports.created) != 1 {
		t.Fatalf("delivery reports = %d, want 1", len(reports.created))
	}
	if reports.created[0].Provider != "beta" {
		t.Fatalf("report provider = %q, want beta", reports.created[0].Provider)
	}
}

func TestChannelSendCredentialFailureExcludesProvider(t *testing.T) {
	t.Parallel()

	unconfigured := &fakeIntegration{
		name: "alpha",
		ensureCredentialsFn: func(ctx context.Context, overrides map[string]string) error {
			return fmt.Errorf("%w: api key", domain.ErrCredentialsMissing)
		},
	}
	configured := &fakeIntegration{name: "beta"}

	ch, err := NewEmailChannel([]string{"alpha", "beta"}, newTestDeps(t, &fakeReportRepo{}, unconfigured, configured))
	if err != nil {
		t.Fatalf("NewEmailChannel() error = %v", err)
	}

	n := mailNotification(domain.Contact{ID: "u1", Email: "a@example.com"})

	sent, err := ch.Send(context.Background(), n, domain.DispatchContext{})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
	if len(unconfigured.sent) != 0 || len(configured.sent) != 1 {
		t.Fatalf("calls alpha=%d beta=%d, want 0/1", len(unconfigured.sent), len(configured.sent))
	}
}
