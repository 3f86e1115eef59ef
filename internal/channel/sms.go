package channel

import "github.com/velis74/notify-engine/internal/domain"

const (
	SMSChannelName     = "sms"
	SMSProviderSetting = "SMS_PROVIDERS"
)

// NewSMSChannel builds the sms channel. Recipients are deduplicated by
// normalized phone number; recipients without one are routed to
// fallbackProvider when the notification allows an email fallback.
func NewSMSChannel(providers []string, fallbackProvider string, deps Deps) (Channel, error) {
	return newChannel(Config{
		Name:             SMSChannelName,
		ProviderSetting:  SMSProviderSetting,
		UniqueBy:         domain.UniqueByPhone,
		Providers:        providers,
		RequiresPhone:    true,
		FallbackProvider: fallbackProvider,
	}, deps)
}
