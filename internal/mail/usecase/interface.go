package usecase

import (
	"context"
	"time"

	"github.com/jcason-sudo/AIEmailSummary/internal/mail/domain"
)

// VectorIndex is the vector store contract the orchestrator depends on.
// pkg/chroma implements it; tests use an in-memory fake.
type VectorIndex interface {
	Upsert(ctx context.Context, msgs []*domain.Message) error
	Query(ctx context.Context, text string, k int, filter domain.QueryFilter) ([]domain.Match, error)
	Thread(ctx context.Context, conversationID string) ([]domain.Match, error)
	All(ctx context.Context, limit int) ([]domain.MessageMeta, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// MailSource produces normalized messages from one import origin.
type MailSource interface {
	Name() string
	Fetch(ctx context.Context, since time.Time, fn func(*domain.Message) error) error
}

// StreamEvent is one element of a streamed chat answer.
type StreamEvent struct {
	Type    string      `json:"type"` // "chunk" or "sources"
	Content interface{} `json:"content"`
}

// Citation points a user at where an answer came from. A thread citation
// covers every member message of its conversation.
type Citation struct {
	Sender         string  `json:"sender"`
	Subject        string  `json:"subject"`
	Date           string  `json:"date"`
	Relevance      float64 `json:"relevance"`
	ConversationID string  `json:"conversation_id,omitempty"`
	MessageCount   int     `json:"message_count"`
	Thread         bool    `json:"thread"`
}

// Answer is a complete non-streamed chat response.
type Answer struct {
	Answer          string     `json:"answer"`
	Sources         []Citation `json:"sources"`
	QueryType       string     `json:"query_type"`
	EmailsFound     int        `json:"emails_found"`
	ThreadsIncluded int        `json:"threads_included"`
}

// SearchResult is one non-generative retrieval hit.
type SearchResult struct {
	Sender    string  `json:"sender"`
	Subject   string  `json:"subject"`
	Date      string  `json:"date"`
	Preview   string  `json:"preview"`
	Relevance float64 `json:"relevance"`
}

// SummaryEntry is one message shown on the dashboard.
type SummaryEntry struct {
	Sender    string `json:"sender,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Subject   string `json:"subject"`
	Date      string `json:"date"`
}

// Summary is the dashboard payload.
type Summary struct {
	Stats            domain.Stats   `json:"stats"`
	ActionNeeded     []SummaryEntry `json:"action_needed"`
	AwaitingResponse []SummaryEntry `json:"awaiting_response"`
}

// TaskSummary counts the open items per bucket.
type TaskSummary struct {
	NeedsActionCount      int `json:"needs_action_count"`
	AwaitingResponseCount int `json:"awaiting_response_count"`
	WithDeadlines         int `json:"with_deadlines"`
	WithQuestions         int `json:"with_questions"`
}

// Tasks is the categorized open-item payload.
type Tasks struct {
	NeedsAction      []domain.OpenItem `json:"needs_action"`
	AwaitingResponse []domain.OpenItem `json:"awaiting_response"`
	TotalOpen        int               `json:"total_open"`
	Summary          TaskSummary       `json:"summary"`
}

// IngestResult reports one finished ingestion run.
type IngestResult struct {
	RunID           string   `json:"run_id"`
	IMAPMessages    int      `json:"imap_messages"`
	ArchiveMessages int      `json:"archive_messages"`
	TotalIndexed    int      `json:"total_indexed"`
	SourcesUsed     []string `json:"sources_used"`
}
