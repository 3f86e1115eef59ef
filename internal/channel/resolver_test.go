package channel

import (
	"context"
	"errors"
	"testing"

	"github.com/velis74/notify-engine/internal/domain"
	"go.uber.org/zap"
)

type fakeProfileRepo struct {
	getByIDFn func(ctx context.Context, id string) (*domain.Profile, error)
}

func (f *fakeProfileRepo) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	return f.getByIDFn(ctx, id)
}

func TestResolverUsesExplicitContactListVerbatim(t *testing.T) {
	t.Parallel()

	profiles := &fakeProfileRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Profile, error) {
			t.Fatal("profile lookup should not happen with an explicit contact list")
			return nil, nil
		},
	}
	resolver := NewResolver(profiles, zap.NewNop())

	n := &domain.Notification{
		Recipients: "u1,u2",
		RecipientsList: []domain.Contact{
			{ID: "c1", Email: "a@example.com"},
			{ID: "c2", Email: "b@example.com"},
			{ID: "c3", Email: "a@example.com"},
		},
	}

	got, err := resolver.Resolve(context.Background(), n, domain.UniqueByEmail)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("recipients = %d, want 2 after email dedup", len(got))
	}
	if got[0].Identifier != "c1" || got[1].Identifier != "c2" {
		t.Fatalf("order = %s,%s, want c1,c2", got[0].Identifier, got[1].Identifier)
	}
}

func TestResolverSkipsUnknownIdentifiers(t *testing.T) {
	t.Parallel()

	profiles := &fakeProfileRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Profile, error) {
			if id == "ghost" {
				return nil, domain.ErrNotFound
			}
			return &domain.Profile{ID: id, Email: id + "@example.com"}, nil
		},
	}
	resolver := NewResolver(profiles, zap.NewNop())

	n := &domain.Notification{Recipients: "u1, ghost ,u2"}

	got, err := resolver.Resolve(context.Background(), n, domain.UniqueByIdentifier)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("recipients = %d, want 2", len(got))
	}
	if got[0].Identifier != "u1" || got[1].Identifier != "u2" {
		t.Fatalf("order = %s,%s, want u1,u2", got[0].Identifier, got[1].Identifier)
	}
}

func TestResolverPropagatesStorageErrors(t *testing.T) {
	t.Parallel()

	storageErr := errors.New("connection reset")
	profiles := &fakeProfileRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Profile, error) {
			return nil, storageErr
		},
	}
	resolver := NewResolver(profiles, zap.NewNop())

	_, err := resolver.Resolve(context.Background(), &domain.Notification{Recipients: "u1"}, domain.UniqueByIdentifier)
	if !errors.Is(err, storageErr) {
		t.Fatalf("error = %v, want wrapped storage error", err)
	}
}

func TestResolverDeduplicatesProfileRecipients(t *testing.T) {
	t.Parallel()

	profiles := &fakeProfileRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Profile, error) {
			return &domain.Profile{ID: id, Email: "shared@example.com"}, nil
		},
	}
	resolver := NewResolver(profiles, zap.NewNop())

	got, err := resolver.Resolve(context.Background(), &domain.Notification{Recipients: "u1,u2"}, domain.UniqueByEmail)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("recipients = %d, want 1 for a shared mailbox", len(got))
	}
}
