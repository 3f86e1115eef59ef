package domain

// DispatchContext carries the transient per-call configuration for one
// dispatch: an alternate storage route, provider chain overrides and
// credential/sender overrides. It is passed by value through the
// coordinator, channel and provider call chain and never stored.
type DispatchContext struct {
	// DatabaseDSN routes all writes of this dispatch to an alternate
	// connection, opened for this notification only and closed afterwards.
	DatabaseDSN string

	// ProviderOverrides maps a channel's provider setting name to an
	// ordered provider-name chain, replacing the configured chain.
	ProviderOverrides map[string][]string

	// SettingOverrides take precedence over process configuration when a
	// provider resolves its credentials.
	SettingOverrides map[string]string

	// SenderOverrides replace the notification's per-channel sender ids.
	SenderOverrides map[string]string
}

// ProvidersFor returns the overridden provider chain for a setting name.
func (c DispatchContext) ProvidersFor(settingName string) ([]string, bool) {
	if c.ProviderOverrides == nil {
		return nil, false
	}
	chain, ok := c.ProviderOverrides[settingName]
	return chain, ok && len(chain) > 0
}

// Setting returns an override value, preferring the dispatch context.
func (c DispatchContext) Setting(key string) (string, bool) {
	if c.SettingOverrides == nil {
		return "", false
	}
	v, ok := c.SettingOverrides[key]
	return v, ok && v != ""
}

// SenderFor returns the overridden sender for a channel, or empty.
func (c DispatchContext) SenderFor(channel string) string {
	if c.SenderOverrides == nil {
		return ""
	}
	return c.SenderOverrides[channel]
}
