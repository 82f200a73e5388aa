package usecase

import (
	"fmt"
	"strings"

	"github.com/jcason-sudo/AIEmailSummary/internal/mail/domain"
)

const (
	maxMessageChars = 2500
	maxContextChars = 24000
)

const systemPrompt = `You are a personal email assistant. Answer the user's question using only the email excerpts provided below. Be concise and specific: name senders, subjects and dates when they matter. When a conversation thread is shown, consider the whole exchange, not just one message. If the excerpts do not contain the answer, say so plainly instead of guessing.`

// contextItem is one unit of evidence handed to the model: either a full
// conversation thread or a single standalone message.
type contextItem struct {
	matches  []domain.Match
	thread   bool
	status   domain.ThreadStatus
	citation Citation
}

// buildPrompt assembles the final prompt from the retrieved evidence. Items
// are appended in relevance order until the context budget is spent.
func buildPrompt(query string, items []contextItem) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\n=== EMAIL CONTEXT ===\n")

	used := 0
	for i, item := range items {
		block := formatItem(i+1, item)
		if used+len(block) > maxContextChars {
			break
		}
		b.WriteString(block)
		used += len(block)
	}

	b.WriteString("\n=== QUESTION ===\n")
	b.WriteString(query)
	b.WriteString("\n\nAnswer:")
	return b.String()
}

func formatItem(n int, item contextItem) string {
	var b strings.Builder

	if item.thread {
		fmt.Fprintf(&b, "\n--- Conversation %d (%d messages, %s) ---\n",
			n, len(item.matches), statusLabel(item.status))
		for _, m := range item.matches {
			b.WriteString(formatMessage(m.Meta, m.Document))
		}
		return b.String()
	}

	fmt.Fprintf(&b, "\n--- Email %d (relevance %.1f%%) ---\n", n, item.citation.Relevance)
	b.WriteString(formatMessage(item.matches[0].Meta, item.matches[0].Document))
	return b.String()
}

func formatMessage(meta domain.MessageMeta, doc string) string {
	if len(doc) > maxMessageChars {
		doc = domain.Truncate(doc, maxMessageChars) + "..."
	}

	var b strings.Builder
	marker := "FROM"
	if meta.Direction == domain.DirectionSent {
		marker = "SENT BY ME"
	}
	fmt.Fprintf(&b, "[%s: %s | %s]\n", marker, meta.DisplaySender(), meta.Date)
	b.WriteString(doc)
	b.WriteString("\n")
	return b.String()
}

func statusLabel(status domain.ThreadStatus) string {
	switch status {
	case domain.ThreadNeedsAction:
		return "needs your reply"
	case domain.ThreadAwaitingResponse:
		return "awaiting their reply"
	default:
		return "completed"
	}
}
