package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Direction tells whether a message was sent by the mailbox owner or received.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Source identifies where a message was imported from.
const (
	SourceIMAP    = "imap"
	SourceArchive = "archive"
)

const maxDocumentBodyChars = 5000

// Truncate cuts s to at most max bytes without splitting a UTF-8 rune, so
// truncated text stays valid when stored or embedded.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// Message is the normalized form every importer produces. Once indexed it is
// immutable except for flags, which are refreshed on re-ingestion.
type Message struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Sender         string    `json:"sender"`
	SenderName     string    `json:"sender_name,omitempty"`
	To             []string  `json:"to,omitempty"`
	Cc             []string  `json:"cc,omitempty"`
	Subject        string    `json:"subject"`
	Body           string    `json:"body"`
	Date           time.Time `json:"date"`
	Folder         string    `json:"folder,omitempty"`
	Source         string    `json:"source"`
	Direction      Direction `json:"direction"`
	IsRead         bool      `json:"is_read"`
	IsReplied      bool      `json:"is_replied"`
	IsFlagged      bool      `json:"is_flagged"`
	HasAttachments bool      `json:"has_attachments"`
}

// UniqueID derives a stable index key from the RFC 5322 Message-Id. Messages
// without one fall back to a hash of sender, subject and date so re-ingestion
// still maps to the same entry.
func (m *Message) UniqueID() string {
	key := m.MessageID
	if key == "" {
		key = fmt.Sprintf("%s:%s:%s", m.Sender, m.Subject, m.Date.UTC().Format(time.RFC3339))
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:32]
}

// Document renders the message as the text that gets embedded and searched.
func (m *Message) Document() string {
	var parts []string

	if m.Sender != "" {
		from := m.SenderName
		if from == "" {
			from = m.Sender
		}
		parts = append(parts, "From: "+from)
	}
	if len(m.To) > 0 {
		parts = append(parts, "To: "+strings.Join(m.To, ", "))
	}
	if m.Subject != "" {
		parts = append(parts, "Subject: "+m.Subject)
	}
	if !m.Date.IsZero() {
		parts = append(parts, "Date: "+m.Date.Format("2006-01-02 15:04"))
	}
	if m.Folder != "" {
		parts = append(parts, "Folder: "+m.Folder)
	}

	parts = append(parts, "")

	body := m.Body
	if len(body) > maxDocumentBodyChars {
		body = Truncate(body, maxDocumentBodyChars) + "..."
	}
	if body != "" {
		parts = append(parts, body)
	}

	return strings.Join(parts, "\n")
}

// Metadata converts the message into the flat metadata stored alongside its
// embedding. Dates are ISO 8601 strings so they sort lexicographically.
func (m *Message) Metadata() map[string]interface{} {
	subject := Truncate(m.Subject, 500)

	recipients := m.To
	if len(recipients) > 5 {
		recipients = recipients[:5]
	}

	date := ""
	if !m.Date.IsZero() {
		date = m.Date.UTC().Format(time.RFC3339)
	}

	return map[string]interface{}{
		"message_id":      m.MessageID,
		"conversation_id": m.ConversationID,
		"sender":          m.Sender,
		"sender_name":     m.SenderName,
		"recipients":      strings.Join(recipients, ","),
		"subject":         subject,
		"date":            date,
		"folder":          m.Folder,
		"source":          m.Source,
		"direction":       string(m.Direction),
		"is_read":         m.IsRead,
		"is_replied":      m.IsReplied,
		"is_flagged":      m.IsFlagged,
		"has_attachments": m.HasAttachments,
	}
}

// MessageMeta is the metadata view read back from the vector index.
type MessageMeta struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	Sender         string    `json:"sender"`
	SenderName     string    `json:"sender_name"`
	Recipients     string    `json:"recipients"`
	Subject        string    `json:"subject"`
	Date           string    `json:"date"`
	Folder         string    `json:"folder"`
	Source         string    `json:"source"`
	Direction      Direction `json:"direction"`
	IsRead         bool      `json:"is_read"`
	IsReplied      bool      `json:"is_replied"`
	IsFlagged      bool      `json:"is_flagged"`
}

// DisplaySender prefers the human-readable name over the address.
func (m MessageMeta) DisplaySender() string {
	if m.SenderName != "" {
		return m.SenderName
	}
	return m.Sender
}

// ParsedDate returns the metadata date, or the zero time when absent or
// unparseable.
func (m MessageMeta) ParsedDate() time.Time {
	if m.Date == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, m.Date)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Match is one ranked retrieval result. Relevance is normalized to [0,1].
type Match struct {
	ID        string
	Document  string
	Meta      MessageMeta
	Relevance float64
}

// RelevancePercent is the score shown to users, one decimal in [0,100].
func (m Match) RelevancePercent() float64 {
	r := m.Relevance
	if r < 0 {
		r = 0
	}
	if r > 1 {
		r = 1
	}
	return float64(int(r*1000+0.5)) / 10
}

// QueryFilter restricts a similarity query by stored metadata. Nil fields
// leave the corresponding dimension unfiltered.
type QueryFilter struct {
	Direction *Direction
	IsRead    *bool
	IsReplied *bool
	Since     *time.Time
	Until     *time.Time
}

// IsZero reports whether the filter constrains anything.
func (f QueryFilter) IsZero() bool {
	return f.Direction == nil && f.IsRead == nil && f.IsReplied == nil && f.Since == nil && f.Until == nil
}

// MatchesMeta applies the date-range part of the filter, which is evaluated
// client-side after retrieval.
func (f QueryFilter) MatchesMeta(meta MessageMeta) bool {
	if f.Since == nil && f.Until == nil {
		return true
	}
	d := meta.ParsedDate()
	if d.IsZero() {
		return false
	}
	if f.Since != nil && d.Before(*f.Since) {
		return false
	}
	if f.Until != nil && d.After(*f.Until) {
		return false
	}
	return true
}
