package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jcason-sudo/AIEmailSummary/internal/mail/domain"
	"github.com/jcason-sudo/AIEmailSummary/pkg/ai"
	"github.com/jcason-sudo/AIEmailSummary/pkg/settings"
)

const (
	defaultTopK        = 5
	defaultSearchLimit = 20
	summarySampleCap   = 5
	taskSampleSize     = 1000
)

// RagUsecase answers questions about the mailbox by retrieving relevant
// messages from the index and asking the generation backend about them.
type RagUsecase struct {
	index    VectorIndex
	gen      ai.Generator
	settings *settings.Store
	log      *logrus.Logger
	now      func() time.Time
}

// NewRagUsecase wires the retrieval and generation ports together.
func NewRagUsecase(index VectorIndex, gen ai.Generator, store *settings.Store, log *logrus.Logger) *RagUsecase {
	return &RagUsecase{
		index:    index,
		gen:      gen,
		settings: store,
		log:      log,
		now:      time.Now,
	}
}

func (u *RagUsecase) genOptions() ai.Options {
	s := u.settings.Get()
	return ai.Options{Model: s.Model, Temperature: s.Temperature}
}

// retrieve runs intent-filtered similarity search. When the intent filter
// leaves nothing, the search is retried unfiltered so the user still gets an
// answer grounded in something.
func (u *RagUsecase) retrieve(ctx context.Context, query string, topK int) (string, []contextItem, int, error) {
	if topK <= 0 {
		topK = defaultTopK
	}

	intent, filter := classify(query, u.now())

	matches, err := u.index.Query(ctx, query, topK, filter)
	if err != nil {
		return intent, nil, 0, fmt.Errorf("query index: %w", err)
	}
	if len(matches) == 0 && !filter.IsZero() {
		u.log.WithField("intent", intent).Debug("filtered search empty, retrying unfiltered")
		matches, err = u.index.Query(ctx, query, topK, domain.QueryFilter{})
		if err != nil {
			return intent, nil, 0, fmt.Errorf("query index: %w", err)
		}
	}

	items := u.expandThreads(ctx, matches)
	return intent, items, len(matches), nil
}

// expandThreads turns ranked matches into context items, pulling in the full
// conversation for every match that belongs to a thread. Each conversation
// appears once, at the rank of its best match.
func (u *RagUsecase) expandThreads(ctx context.Context, matches []domain.Match) []contextItem {
	seen := make(map[string]bool)
	var items []contextItem

	for _, m := range matches {
		convID := m.Meta.ConversationID
		if convID == "" {
			items = append(items, contextItem{
				matches: []domain.Match{m},
				citation: Citation{
					Sender:       m.Meta.DisplaySender(),
					Subject:      m.Meta.Subject,
					Date:         m.Meta.Date,
					Relevance:    m.RelevancePercent(),
					MessageCount: 1,
				},
			})
			continue
		}
		if seen[convID] {
			continue
		}
		seen[convID] = true

		members, err := u.index.Thread(ctx, convID)
		if err != nil || len(members) == 0 {
			if err != nil {
				u.log.WithError(err).WithField("conversation_id", convID).Warn("thread expansion failed")
			}
			members = []domain.Match{m}
		}

		metas := make([]domain.MessageMeta, len(members))
		for i, mm := range members {
			metas[i] = mm.Meta
		}

		last := members[len(members)-1]
		items = append(items, contextItem{
			matches: members,
			thread:  len(members) > 1,
			status:  domain.ThreadStatusOf(metas),
			citation: Citation{
				Sender:         last.Meta.DisplaySender(),
				Subject:        last.Meta.Subject,
				Date:           last.Meta.Date,
				Relevance:      m.RelevancePercent(),
				ConversationID: convID,
				MessageCount:   len(members),
				Thread:         len(members) > 1,
			},
		})
	}
	return items
}

func collectCitations(items []contextItem) (sources []Citation, threads int) {
	sources = make([]Citation, 0, len(items))
	for _, item := range items {
		sources = append(sources, item.citation)
		if item.thread {
			threads++
		}
	}
	return sources, threads
}

// Answer runs the full retrieve-then-generate pipeline and returns the
// complete response.
func (u *RagUsecase) Answer(ctx context.Context, query string, topK int) (*Answer, error) {
	intent, items, found, err := u.retrieve(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return &Answer{
			Answer:    "I couldn't find any emails matching your question. Try ingesting your mailbox first, or rephrase the question.",
			Sources:   []Citation{},
			QueryType: intent,
		}, nil
	}

	text, err := u.gen.Generate(ctx, buildPrompt(query, items), u.genOptions())
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	sources, threads := collectCitations(items)
	return &Answer{
		Answer:          strings.TrimSpace(text),
		Sources:         sources,
		QueryType:       intent,
		EmailsFound:     found,
		ThreadsIncluded: threads,
	}, nil
}

// AnswerStream is the streaming variant: answer chunks arrive first, then a
// single sources event, then the channel closes. A generation failure is
// surfaced as a chunk carrying the error text.
func (u *RagUsecase) AnswerStream(ctx context.Context, query string, topK int) (<-chan StreamEvent, error) {
	intent, items, found, err := u.retrieve(ctx, query, topK)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamEvent)
	go func() {
		defer close(out)

		emit := func(ev StreamEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if len(items) == 0 {
			if emit(StreamEvent{Type: "chunk", Content: "I couldn't find any emails matching your question. Try ingesting your mailbox first, or rephrase the question."}) {
				emit(StreamEvent{Type: "sources", Content: sourcesPayload(nil, intent, 0)})
			}
			return
		}

		for chunk := range u.gen.GenerateStream(ctx, buildPrompt(query, items), u.genOptions()) {
			if chunk.Err != nil {
				if !emit(StreamEvent{Type: "chunk", Content: "\n[generation failed: " + chunk.Err.Error() + "]"}) {
					return
				}
				break
			}
			if !emit(StreamEvent{Type: "chunk", Content: chunk.Content}) {
				return
			}
		}
		emit(StreamEvent{Type: "sources", Content: sourcesPayload(items, intent, found)})
	}()
	return out, nil
}

// sourcesPayload reports the raw number of search hits, not the (possibly
// larger) number of messages pulled in by thread expansion.
func sourcesPayload(items []contextItem, intent string, found int) map[string]interface{} {
	sources, threads := collectCitations(items)
	return map[string]interface{}{
		"sources":          sources,
		"query_type":       intent,
		"emails_found":     found,
		"threads_included": threads,
	}
}

// Search is retrieval without generation.
func (u *RagUsecase) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	matches, err := u.index.Query(ctx, query, limit, domain.QueryFilter{})
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	results := make([]SearchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, SearchResult{
			Sender:    m.Meta.DisplaySender(),
			Subject:   m.Meta.Subject,
			Date:      m.Meta.Date,
			Preview:   preview(m.Document, 200),
			Relevance: m.RelevancePercent(),
		})
	}
	return results, nil
}

// MailboxStats returns the mailbox counters alone.
func (u *RagUsecase) MailboxStats(ctx context.Context) (domain.Stats, error) {
	total, err := u.index.Count(ctx)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("count index: %w", err)
	}
	metas, err := u.index.All(ctx, taskSampleSize)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("sample index: %w", err)
	}
	return domain.ComputeStats(total, metas), nil
}

// Summarize builds the dashboard: mailbox counters plus samples of the
// conversations waiting on either side.
func (u *RagUsecase) Summarize(ctx context.Context) (*Summary, error) {
	total, err := u.index.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count index: %w", err)
	}
	metas, err := u.index.All(ctx, taskSampleSize)
	if err != nil {
		return nil, fmt.Errorf("sample index: %w", err)
	}

	summary := &Summary{
		Stats:            domain.ComputeStats(total, metas),
		ActionNeeded:     []SummaryEntry{},
		AwaitingResponse: []SummaryEntry{},
	}

	for _, item := range domain.OpenItems(metas) {
		switch item.Status {
		case domain.ThreadNeedsAction:
			if len(summary.ActionNeeded) < summarySampleCap {
				summary.ActionNeeded = append(summary.ActionNeeded, SummaryEntry{
					Sender:  displayName(item),
					Subject: item.Subject,
					Date:    item.Date,
				})
			}
		case domain.ThreadAwaitingResponse:
			if len(summary.AwaitingResponse) < summarySampleCap {
				summary.AwaitingResponse = append(summary.AwaitingResponse, SummaryEntry{
					Recipient: recipientOf(item),
					Subject:   item.Subject,
					Date:      item.Date,
				})
			}
		}
	}
	return summary, nil
}

// OpenTasks lists every open conversation, tagging the ones whose text
// mentions deadlines or contains direct questions.
func (u *RagUsecase) OpenTasks(ctx context.Context) (*Tasks, error) {
	metas, err := u.index.All(ctx, taskSampleSize)
	if err != nil {
		return nil, fmt.Errorf("sample index: %w", err)
	}

	items := domain.OpenItems(metas)
	u.tagItems(ctx, items)

	tasks := &Tasks{
		NeedsAction:      []domain.OpenItem{},
		AwaitingResponse: []domain.OpenItem{},
		TotalOpen:        len(items),
	}
	for _, item := range items {
		if item.Status == domain.ThreadNeedsAction {
			tasks.NeedsAction = append(tasks.NeedsAction, item)
		} else {
			tasks.AwaitingResponse = append(tasks.AwaitingResponse, item)
		}
		for _, tag := range item.Tags {
			switch tag {
			case "deadline":
				tasks.Summary.WithDeadlines++
			case "question":
				tasks.Summary.WithQuestions++
			}
		}
	}
	tasks.Summary.NeedsActionCount = len(tasks.NeedsAction)
	tasks.Summary.AwaitingResponseCount = len(tasks.AwaitingResponse)
	return tasks, nil
}

// tagItems marks open items that semantic searches for deadlines and questions
// also surface. Only received mail still awaiting a reply is considered, since
// those are the conversations that can carry an open obligation. A failed tag
// search only costs the tags, not the task list.
func (u *RagUsecase) tagItems(ctx context.Context, items []domain.OpenItem) {
	received := domain.DirectionReceived
	notReplied := false
	filter := domain.QueryFilter{Direction: &received, IsReplied: &notReplied}

	tagQueries := map[string]string{
		"deadline": "deadline due date urgent by end of",
		"question": "question asking can you could you please",
	}
	for tag, query := range tagQueries {
		matches, err := u.index.Query(ctx, query, 20, filter)
		if err != nil {
			u.log.WithError(err).WithField("tag", tag).Warn("tag search failed")
			continue
		}
		hits := make(map[string]bool)
		for _, m := range matches {
			if m.Meta.ConversationID != "" {
				hits[m.Meta.ConversationID] = true
			}
			hits[m.Meta.Subject] = true
		}
		for i := range items {
			if hits[items[i].ConversationID] || hits[items[i].Subject] {
				items[i].Tags = append(items[i].Tags, tag)
			}
		}
	}
}

func preview(doc string, n int) string {
	// The document's header block is not useful as a preview.
	if i := strings.Index(doc, "\n\n"); i >= 0 {
		doc = doc[i+2:]
	}
	doc = strings.TrimSpace(doc)
	if len(doc) > n {
		doc = domain.Truncate(doc, n) + "..."
	}
	return doc
}

func displayName(item domain.OpenItem) string {
	if item.SenderName != "" {
		return item.SenderName
	}
	return item.Sender
}

func recipientOf(item domain.OpenItem) string {
	for _, p := range item.Participants {
		if p != item.Sender {
			return p
		}
	}
	return item.Sender
}
