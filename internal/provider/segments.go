package provider

import "strings"

// SMS segment limits: GSM-7 packs 160 septets into one part, 153 per part
// when concatenated; UCS-2 fits 70 code points, 67 when concatenated.
const (
	gsm7SingleLimit = 160
	gsm7MultiLimit  = 153
	ucs2SingleLimit = 70
	ucs2MultiLimit  = 67
)

const gsm7BasicSet = "@£$¥èéùìòÇ\nØø\rÅåΔ_ΦΓΛΩΠΨΣΘΞÆæßÉ !\"#¤%&'()*+,-./0123456789:;<=>?" +
	"¡ABCDEFGHIJKLMNOPQRSTUVWXYZÄÖÑÜ§¿abcdefghijklmnopqrstuvwxyzäöñüà"

const gsm7ExtensionSet = "^{}\\[~]|€"

// SegmentCount returns the number of SMS parts needed for a message, the
// multiplier applied to sent counts for SMS-class providers.
func SegmentCount(message string) int {
	if message == "" {
		return 1
	}

	septets, gsm7 := gsm7Length(message)
	if gsm7 {
		if septets <= gsm7SingleLimit {
			return 1
		}
		return ceilDiv(septets, gsm7MultiLimit)
	}

	runes := len([]rune(message))
	if runes <= ucs2SingleLimit {
		return 1
	}
	return ceilDiv(runes, ucs2MultiLimit)
}

// gsm7Length returns the septet count and whether the message fits the
// GSM-7 alphabet at all. Extension characters escape to two septets.
func gsm7Length(message string) (int, bool) {
	septets := 0
	for _, r := range message {
		switch {
		case strings.ContainsRune(gsm7BasicSet, r):
			septets++
		case strings.ContainsRune(gsm7ExtensionSet, r):
			septets += 2
		default:
			return 0, false
		}
	}
	return septets, true
}

func ceilDiv(n, d int) int {
	return (n + d - 1) / d
}
