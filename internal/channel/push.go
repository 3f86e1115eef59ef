package channel

import "github.com/velis74/notify-engine/internal/domain"

const (
	PushChannelName     = "push"
	PushProviderSetting = "PUSH_PROVIDERS"
)

// NewPushChannel builds the push channel. Device tokens are carried in the
// recipient identifier, so deduplication runs on it.
func NewPushChannel(providers []string, deps Deps) (Channel, error) {
	return newChannel(Config{
		Name:            PushChannelName,
		ProviderSetting: PushProviderSetting,
		UniqueBy:        domain.UniqueByIdentifier,
		Providers:       providers,
	}, deps)
}
