package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/velis74/notify-engine/internal/domain"
)

func TestSMSGateClientSendSuccess(t *testing.T) {
	t.Parallel()

	var gotBody smsGateRequest
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"accepted":1}`))
	}))
	defer server.Close()

	p, err := NewSMSGateProvider(server.URL, "key-123", "https://api.example.com/dlr")
	if err != nil {
		t.Fatalf("NewSMSGateProvider() error = %v", err)
	}

	err = p.ClientSend(context.Background(), SendRequest{
		Sender:     "ACME",
		Recipient:  domain.NewRecipient("u1", "+38631123456", "", ""),
		Message:    OutboundMessage{Body: "hello", ContentType: domain.ContentTypePlain},
		DispatchID: "d-1",
	})
	if err != nil {
		t.Fatalf("ClientSend() error = %v", err)
	}

	if gotAuth != "Bearer key-123" {
		t.Fatalf("auth header = %q, want Bearer key-123", gotAuth)
	}
	if gotBody.To != "+38631123456" {
		t.Fatalf("to = %q, want +38631123456", gotBody.To)
	}
	if gotBody.From != "ACME" {
		t.Fatalf("from = %q, want ACME", gotBody.From)
	}
	if gotBody.Reference != "d-1" {
		t.Fatalf("reference = %q, want d-1", gotBody.Reference)
	}
	if gotBody.DLRCallback != "https://api.example.com/dlr" {
		t.Fatalf("dlrCallback = %q, want callback url", gotBody.DLRCallback)
	}
}

func TestSMSGateClientSendCredentialOverride(t *testing.T) {
	t.Parallel()

	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p, err := NewSMSGateProvider(server.URL, "configured-key", "")
	if err != nil {
		t.Fatalf("NewSMSGateProvider() error = %v", err)
	}

	err = p.ClientSend(context.Background(), SendRequest{
		Sender:           "ACME",
		Recipient:        domain.NewRecipient("u1", "+38631123456", "", ""),
		Message:          OutboundMessage{Body: "hi"},
		DispatchID:       "d-2",
		SettingOverrides: map[string]string{SMSGateAPIKeySetting: "override-key"},
	})
	if err != nil {
		t.Fatalf("ClientSend() error = %v", err)
	}
	if gotAuth != "Bearer override-key" {
		t.Fatalf("auth header = %q, want Bearer override-key", gotAuth)
	}
}

func TestSMSGateClientSendStatusClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		statusCode    int
		wantTransient bool
	}{
		{name: "too many requests is transient", statusCode: http.StatusTooManyRequests, wantTransient: true},
		{name: "bad request is permanent", statusCode: http.StatusBadRequest, wantTransient: false},
		{name: "bad gateway is transient", statusCode: http.StatusBadGateway, wantTransient: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
				_, _ = w.Write([]byte("gateway failed"))
			}))
			defer server.Close()

			p, err := NewSMSGateProvider(server.URL, "key", "")
			if err != nil {
				t.Fatalf("NewSMSGateProvider() error = %v", err)
			}

			err = p.ClientSend(context.Background(), SendRequest{
				Sender:    "ACME",
				Recipient: domain.NewRecipient("u1", "+38631123456", "", ""),
				Message:   OutboundMessage{Body: "hi"},
			})
			if err == nil {
				t.Fatal("ClientSend() should fail")
			}

			var sendErr *SendError
			if !errors.As(err, &sendErr) {
				t.Fatalf("error type = %T, want *SendError", err)
			}
			if sendErr.Transient != tc.wantTransient {
				t.Fatalf("transient = %v, want %v", sendErr.Transient, tc.wantTransient)
			}
			if IsTransient(err) != tc.wantTransient {
				t.Fatalf("IsTransient = %v, want %v", IsTransient(err), tc.wantTransient)
			}
		})
	}
}

func TestSMSGateClientSendRequiresPhone(t *testing.T) {
	t.Parallel()

	p, err := NewSMSGateProvider("http://localhost:1", "key", "")
	if err != nil {
		t.Fatalf("NewSMSGateProvider() error = %v", err)
	}

	err = p.ClientSend(context.Background(), SendRequest{
		Sender:    "ACME",
		Recipient: domain.NewRecipient("u1", "", "u1@example.com", ""),
		Message:   OutboundMessage{Body: "hi"},
	})
	if err == nil {
		t.Fatal("ClientSend() should fail without a phone number")
	}
	if IsTransient(err) {
		t.Fatal("missing phone number must not be transient")
	}
}

func TestSMSGateEnsureCredentials(t *testing.T) {
	t.Parallel()

	p, err := NewSMSGateProvider("http://localhost:1", "", "")
	if err != nil {
		t.Fatalf("NewSMSGateProvider() error = %v", err)
	}

	if err := p.EnsureCredentials(context.Background(), nil); !errors.Is(err, domain.ErrCredentialsMissing) {
		t.Fatalf("error = %v, want ErrCredentialsMissing", err)
	}

	overrides := map[string]string{SMSGateAPIKeySetting: "from-context"}
	if err := p.EnsureCredentials(context.Background(), overrides); err != nil {
		t.Fatalf("EnsureCredentials() with override error = %v", err)
	}
}

func TestSMSGateParseDeliveryReport(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		payload string
		want    domain.DeliveryStatus
	}{
		{name: "delivered", payload: `{"status":"DELIVRD"}`, want: domain.DeliveryDelivered},
		{name: "undeliverable", payload: `{"status":"UNDELIV"}`, want: domain.DeliveryFailed},
		{name: "expired", payload: `{"status":"EXPIRED"}`, want: domain.DeliveryFailed},
		{name: "accepted stays pending", payload: `{"status":"ACCEPTD"}`, want: domain.DeliveryPending},
		{name: "unknown stays pending", payload: `{"status":"WAT"}`, want: domain.DeliveryPending},
	}

	p, err := NewSMSGateProvider("http://localhost:1", "key", "")
	if err != nil {
		t.Fatalf("NewSMSGateProvider() error = %v", err)
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			payload := tc.payload
			report := &domain.DeliveryReport{Payload: &payload}

			got, err := p.ParseDeliveryReport(report)
			if err != nil {
				t.Fatalf("ParseDeliveryReport() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("status = %s, want %s", got, tc.want)
			}

			// Same payload parsed twice derives the same status.
			again, err := p.ParseDeliveryReport(report)
			if err != nil {
				t.Fatalf("second ParseDeliveryReport() error = %v", err)
			}
			if again != got {
				t.Fatalf("second parse = %s, want %s", again, got)
			}
		})
	}
}

func TestSMSGateParseDeliveryReportRejectsEmptyPayload(t *testing.T) {
	t.Parallel()

	p, err := NewSMSGateProvider("http://localhost:1", "key", "")
	if err != nil {
		t.Fatalf("NewSMSGateProvider() error = %v", err)
	}

	if _, err := p.ParseDeliveryReport(&domain.DeliveryReport{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}
