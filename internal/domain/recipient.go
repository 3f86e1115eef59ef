package domain

import "strings"

// UniqueAttribute selects which recipient field defines identity during
// deduplication. Channels pick the attribute that avoids duplicate sends for
// their medium (e.g. two user ids sharing one email address).
type UniqueAttribute string

const (
	UniqueByIdentifier UniqueAttribute = "identifier"
	UniqueByEmail      UniqueAttribute = "email"
	UniqueByPhone      UniqueAttribute = "phone_number"
)

// Recipient is a resolved delivery target. PhoneNumber is normalized at
// construction; an unparseable number becomes empty rather than an error.
type Recipient struct {
	Identifier  string
	PhoneNumber string
	Email       string
	UniqueBy    UniqueAttribute
}

func NewRecipient(identifier, phoneNumber, email string, uniqueBy UniqueAttribute) Recipient {
	if uniqueBy == "" {
		uniqueBy = UniqueByIdentifier
	}
	return Recipient{
		Identifier:  identifier,
		PhoneNumber: NormalizePhoneNumber(phoneNumber),
		Email:       strings.TrimSpace(email),
		UniqueBy:    uniqueBy,
	}
}

// DedupKey returns the value of the configured unique attribute. Two
// recipients are considered equal iff their dedup keys match as strings.
func (r Recipient) DedupKey() string {
	switch r.UniqueBy {
	case UniqueByEmail:
		return r.Email
	case UniqueByPhone:
		return r.PhoneNumber
	default:
		return r.Identifier
	}
}

// DeduplicateRecipients drops recipients whose dedup key was already seen,
// preserving first-seen order. An empty key carries no identity and is never
// collapsed.
func DeduplicateRecipients(recipients []Recipient) []Recipient {
	seen := make(map[string]bool, len(recipients))
	out := make([]Recipient, 0, len(recipients))
	for _, r := range recipients {
		key := r.DedupKey()
		if key != "" && seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// NormalizePhoneNumber strips formatting characters and keeps a leading plus.
// Returns empty for anything that does not look like a dialable number; full
// carrier-grade validation is the gateway's concern.
func NormalizePhoneNumber(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	var b strings.Builder
	for i, r := range trimmed {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
			// separator, drop
		default:
			return ""
		}
	}

	digits := strings.TrimPrefix(b.String(), "+")
	if len(digits) < 6 || len(digits) > 15 {
		return ""
	}
	return b.String()
}
