package domain

import "errors"

// Sentinel errors shared across layers. Callers classify with errors.Is and
// wrap with fmt.Errorf("%w: ...") to add context.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	// ErrRecipientResolution marks a recipient reference that could not be
	// resolved to a profile. Siblings are unaffected; the bad reference is
	// skipped and logged.
	ErrRecipientResolution = errors.New("recipient resolution failed")

	// ErrNoValidRecipients aborts a single channel send when resolution
	// yields an empty recipient set.
	ErrNoValidRecipients = errors.New("no valid recipients")

	// ErrCredentialsMissing marks a provider whose credentials are absent
	// from both the dispatch context overrides and process configuration.
	// It aborts that provider attempt only and triggers failover.
	ErrCredentialsMissing = errors.New("provider credentials missing")

	// ErrInvalidIdentifier rejects a malformed delivery-report correlation id.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrQuotaExceeded is returned by the metering gate when a send would
	// exceed the configured usage limit.
	ErrQuotaExceeded = errors.New("usage quota exceeded")
)
