package services

import (
	"fmt"
	"html"
	"strings"
)

// formatContentMessage builds the HTML broadcast message for one content row.
// Returns false when the row has no summary and so nothing worth publishing.
func formatContentMessage(row publishCandidate) (string, bool) {
	if strings.TrimSpace(row.Summary) == "" {
		return "", false
	}

	var b strings.Builder
	b.WriteString(formatEntityHeader(row))
	b.WriteString("\n\n")
	b.WriteString(html.EscapeString(strings.TrimSpace(row.Summary)))

	if link := sourceLink(row); link != "" {
		b.WriteString(fmt.Sprintf("\n\n<a href=\"%s\">View original</a>", link))
	}

	return truncateMessage(b.String()), true
}

// formatFallbackMessage builds a message from the raw content text, used for
// forced publishes when no summary exists.
func formatFallbackMessage(row publishCandidate) string {
	content := strings.TrimSpace(row.Content)
	if len(content) > 500 {
		content = content[:500] + "..."
	}

	var b strings.Builder
	b.WriteString(formatEntityHeader(row))
	b.WriteString("\n\n")
	b.WriteString(html.EscapeString(content))

	if link := sourceLink(row); link != "" {
		b.WriteString(fmt.Sprintf("\n\n<a href=\"%s\">View original</a>", link))
	}

	return truncateMessage(b.String())
}

func formatEntityHeader(row publishCandidate) string {
	name := html.EscapeString(row.EntityName)
	if row.EntityUsername != "" {
		return fmt.Sprintf("<b><a href=\"https://t.me/%s\">%s</a></b> (%s)",
			row.EntityUsername, name, html.EscapeString(row.SourceName))
	}
	return fmt.Sprintf("<b>%s</b> (%s)", name, html.EscapeString(row.SourceName))
}

// sourceLink builds a link back to the original post based on its type
func sourceLink(row publishCandidate) string {
	if row.ExternalID == "" {
		return ""
	}
	if strings.HasPrefix(row.ExternalID, "http://") || strings.HasPrefix(row.ExternalID, "https://") {
		return row.ExternalID
	}

	switch strings.ToLower(row.ContentType) {
	case "twitter", "tweet":
		return "https://twitter.com/i/status/" + row.ExternalID
	case "telegram":
		if row.EntityUsername != "" {
			return fmt.Sprintf("https://t.me/%s/%s", row.EntityUsername, row.ExternalID)
		}
		return ""
	default:
		return ""
	}
}

func truncateMessage(message string) string {
	if len(message) <= telegramMessageLimit {
		return message
	}
	return message[:telegramMessageLimit-3] + "..."
}
