package domain

import "fmt"

// Message content types.
const (
	ContentTypePlain = "text/plain"
	ContentTypeHTML  = "text/html"
)

// Message is the subject/body payload owned by exactly one notification.
// Immutable after creation.
type Message struct {
	ID          string
	Subject     string
	Body        string
	Footer      string
	ContentType string
}

// Summary is a short human-readable label for audit rows: the subject when
// present, otherwise the body. Nil-safe.
func (m *Message) Summary() string {
	if m == nil {
		return ""
	}
	if m.Subject != "" {
		return m.Subject
	}
	return m.Body
}

func (m *Message) Validate() error {
	if m.Body == "" {
		return fmt.Errorf("%w: message body is required", ErrValidation)
	}
	switch m.ContentType {
	case ContentTypePlain, ContentTypeHTML:
		return nil
	}
	return fmt.Errorf("%w: invalid content type %q", ErrValidation, m.ContentType)
}
