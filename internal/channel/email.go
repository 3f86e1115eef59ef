package channel

import "github.com/velis74/notify-engine/internal/domain"

const (
	EmailChannelName     = "mail"
	EmailProviderSetting = "EMAIL_PROVIDERS"
)

// NewEmailChannel builds the mail channel. Recipients are deduplicated by
// email address so two accounts sharing a mailbox get one copy.
func NewEmailChannel(providers []string, deps Deps) (Channel, error) {
	return newChannel(Config{
		Name:            EmailChannelName,
		ProviderSetting: EmailProviderSetting,
		UniqueBy:        domain.UniqueByEmail,
		Providers:       providers,
	}, deps)
}
