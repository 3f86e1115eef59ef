package domain

import (
	"errors"
	"testing"
)

func TestParseLevelFromString(t *testing.T) {
	t.Parallel()

	level, err := ParseLevelFromString("  Warning ")
	if err != nil {
		t.Fatalf("ParseLevelFromString() error = %v", err)
	}
	if level != LevelWarning {
		t.Fatalf("level = %s, want %s", level, LevelWarning)
	}

	if _, err := ParseLevelFromString("fatal"); !errors.Is(err, ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestRequiredChannelListDeduplicates(t *testing.T) {
	t.Parallel()

	n := &Notification{RequiredChannels: "email, sms,,email,sms ,push"}

	got := n.RequiredChannelList()
	want := []string{"email", "sms", "push"}
	if len(got) != len(want) {
		t.Fatalf("channels = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("channels[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRequiredChannelListEmpty(t *testing.T) {
	t.Parallel()

	n := &Notification{RequiredChannels: " , ,"}
	if got := n.RequiredChannelList(); len(got) != 0 {
		t.Fatalf("channels = %v, want empty", got)
	}
}

func TestJoinChannelList(t *testing.T) {
	t.Parallel()

	if got := JoinChannelList(nil); got != nil {
		t.Fatalf("JoinChannelList(nil) = %v, want nil", got)
	}

	got := JoinChannelList([]string{"email", "sms"})
	if got == nil || *got != "email,sms" {
		t.Fatalf("JoinChannelList() = %v, want email,sms", got)
	}
}

func TestNotificationRehydrateRoundTrip(t *testing.T) {
	t.Parallel()

	n := &Notification{
		UserID:        "u1",
		Sender:        map[string]string{"sms": "ACME"},
		EmailFallback: true,
		RecipientsList: []Contact{
			{ID: "c1", Email: "c1@example.com"},
		},
	}

	data := n.TransientData()

	restored := &Notification{}
	restored.Rehydrate(data)

	if restored.UserID != "u1" {
		t.Fatalf("user = %q, want u1", restored.UserID)
	}
	if restored.SenderFor("sms") != "ACME" {
		t.Fatalf("sender = %q, want ACME", restored.SenderFor("sms"))
	}
	if !restored.EmailFallback {
		t.Fatal("email fallback should survive rehydration")
	}
	if len(restored.RecipientsList) != 1 || restored.RecipientsList[0].ID != "c1" {
		t.Fatalf("recipients list = %v, want one contact c1", restored.RecipientsList)
	}
}

func TestNotificationValidateRequiresMessage(t *testing.T) {
	t.Parallel()

	n := &Notification{Level: LevelInfo, Type: TypeStandard}
	if err := n.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}

	n.Message = &Message{Body: "hello", ContentType: ContentTypePlain}
	if err := n.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}
