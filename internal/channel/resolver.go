package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/velis74/notify-engine/internal/domain"
	"github.com/velis74/notify-engine/internal/repository"
	"go.uber.org/zap"
)

// Resolver turns a notification's raw recipient reference into a
// deduplicated, ordered recipient set. An explicit contact list on the
// notification is used verbatim; otherwise each referenced identifier is
// loaded from profile storage.
type Resolver struct {
	profiles repository.ProfileRepository
	logger   *zap.Logger
}

func NewResolver(profiles repository.ProfileRepository, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{profiles: profiles, logger: logger}
}

// Resolve yields recipients in input order, deduplicated by the channel's
// unique attribute. Unknown identifiers are skipped and logged; they never
// abort resolution of their siblings.
func (r *Resolver) Resolve(
	ctx context.Context,
	n *domain.Notification,
	uniqueBy domain.UniqueAttribute,
) ([]domain.Recipient, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: notification is required", domain.ErrValidation)
	}

	if len(n.RecipientsList) > 0 {
		recipients := make([]domain.Recipient, 0, len(n.RecipientsList))
		for _, contact := range n.RecipientsList {
			recipients = append(recipients, domain.NewRecipient(contact.ID, contact.PhoneNumber, contact.Email, uniqueBy))
		}
		return domain.DeduplicateRecipients(recipients), nil
	}

	ids := strings.Split(n.Recipients, ",")
	recipients := make([]domain.Recipient, 0, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}

		profile, err := r.profiles.GetByID(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			r.logger.Warn("skipping unresolvable recipient",
				zap.String("notificationId", n.ID),
				zap.String("recipientId", id),
				zap.Error(fmt.Errorf("%w: unknown identifier %q", domain.ErrRecipientResolution, id)),
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load profile %q: %w", id, err)
		}

		recipients = append(recipients, domain.NewRecipient(profile.ID, profile.PhoneNumber, profile.Email, uniqueBy))
	}

	return domain.DeduplicateRecipients(recipients), nil
}
