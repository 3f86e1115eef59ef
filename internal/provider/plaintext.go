package provider

import (
	"regexp"
	"strings"

	"github.com/velis74/notify-engine/internal/domain"
)

var (
	htmlTagPattern    = regexp.MustCompile(`(?s)<[^>]*>`)
	horizontalSpaces  = regexp.MustCompile(`[ \t]+`)
	leadingLineSpaces = strings.NewReplacer("\n ", "\n")
)

// PlainTextMessage renders a notification for SMS-class providers: subject,
// a blank line, then the HTML-stripped body, with collapsed horizontal
// whitespace and CRLF line endings.
func PlainTextMessage(n *domain.Notification) string {
	if n == nil || n.Message == nil {
		return ""
	}

	message := n.Message.Subject
	if message != "" {
		message += "\n\n"
	}
	message += n.Message.Body

	text := htmlTagPattern.ReplaceAllString(message, "")
	text = htmlUnescapeBasics(text)
	text = horizontalSpaces.ReplaceAllString(text, " ")
	text = leadingLineSpaces.Replace(text)
	text = strings.ReplaceAll(text, "\n", "\r\n")
	return strings.TrimSpace(text)
}

func htmlUnescapeBasics(s string) string {
	replacer := strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
	)
	return replacer.Replace(s)
}
