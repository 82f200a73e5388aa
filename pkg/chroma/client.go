package chroma

import (
	"context"
	"fmt"
	"time"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/amikos-tech/chroma-go/pkg/embeddings/ollama"
	"github.com/sirupsen/logrus"

	"github.com/jcason-sudo/AIEmailSummary/internal/mail/domain"
)

const upsertBatchSize = 100

// Config for the local Chroma server connection.
type Config struct {
	URL            string
	Collection     string
	OllamaURL      string
	EmbeddingModel string
}

// Client wraps the Chroma HTTP client and one pre-created collection holding
// the email embeddings. Embeddings are computed by a local Ollama model.
type Client struct {
	cfg        Config
	client     chroma.Client
	embedFunc  *ollama.OllamaEmbeddingFunction
	collection chroma.Collection
	log        *logrus.Logger
}

// NewClient connects to Chroma, waits for it to become ready with bounded
// backoff, and creates the collection. A Chroma that never comes up is a
// startup error, not a silently tolerated race.
func NewClient(ctx context.Context, cfg Config, log *logrus.Logger) (*Client, error) {
	embedFunc, err := ollama.NewOllamaEmbeddingFunction(
		ollama.WithBaseURL(cfg.OllamaURL),
		ollama.WithModel(embeddings.EmbeddingModel(cfg.EmbeddingModel)),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding function: %w", err)
	}

	client, err := chroma.NewHTTPClient(chroma.WithBaseURL(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("create chroma client: %w", err)
	}

	if err := waitReady(ctx, client, log); err != nil {
		return nil, err
	}

	collection, err := client.GetOrCreateCollection(
		ctx,
		cfg.Collection,
		chroma.WithEmbeddingFunctionCreate(embedFunc),
	)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	log.WithField("collection", cfg.Collection).Info("Chroma client initialized")

	return &Client{
		cfg:        cfg,
		client:     client,
		embedFunc:  embedFunc,
		collection: collection,
		log:        log,
	}, nil
}

// waitReady probes the server with doubling delays instead of failing on the
// first refused connection during startup.
func waitReady(ctx context.Context, client chroma.Client, log *logrus.Logger) error {
	const attempts = 5
	delay := 500 * time.Millisecond

	var err error
	for i := 0; i < attempts; i++ {
		if err = client.Heartbeat(ctx); err == nil {
			return nil
		}
		log.WithError(err).WithField("attempt", i+1).Warn("Chroma not ready, retrying")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return fmt.Errorf("chroma not reachable after %d attempts: %w", attempts, err)
}

// Upsert writes or replaces embedding entries keyed by message unique id, so
// re-ingesting the same message updates its entry instead of duplicating it.
func (c *Client) Upsert(ctx context.Context, msgs []*domain.Message) error {
	for start := 0; start < len(msgs); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(msgs) {
			end = len(msgs)
		}
		batch := msgs[start:end]

		ids := make([]chroma.DocumentID, 0, len(batch))
		texts := make([]string, 0, len(batch))
		metadatas := make([]chroma.DocumentMetadata, 0, len(batch))

		for _, msg := range batch {
			metadata, err := chroma.NewDocumentMetadataFromMap(msg.Metadata())
			if err != nil {
				return fmt.Errorf("create metadata for %s: %w", msg.UniqueID(), err)
			}
			ids = append(ids, chroma.DocumentID(msg.UniqueID()))
			texts = append(texts, msg.Document())
			metadatas = append(metadatas, metadata)
		}

		err := c.collection.Upsert(
			ctx,
			chroma.WithIDs(ids...),
			chroma.WithTexts(texts...),
			chroma.WithMetadatas(metadatas...),
		)
		if err != nil {
			return fmt.Errorf("upsert batch: %w", err)
		}
	}
	return nil
}

// Query runs a similarity search. An empty index yields an empty result, not
// an error. Direction and flag filters run server-side; the date range is
// applied client-side over the returned metadata.
func (c *Client) Query(ctx context.Context, text string, k int, filter domain.QueryFilter) ([]domain.Match, error) {
	if k <= 0 {
		k = 10
	}

	opts := []chroma.CollectionQueryOption{
		chroma.WithQueryTexts(text),
		chroma.WithNResults(k),
	}
	if where := buildWhere(filter); where != nil {
		opts = append(opts, chroma.WithWhereQuery(where))
	}

	results, err := c.collection.Query(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}
	if results == nil || results.CountGroups() == 0 {
		return []domain.Match{}, nil
	}

	idGroups := results.GetIDGroups()
	docGroups := results.GetDocumentsGroups()
	metaGroups := results.GetMetadatasGroups()
	distGroups := results.GetDistancesGroups()
	if len(idGroups) == 0 || len(idGroups[0]) == 0 {
		return []domain.Match{}, nil
	}

	matches := make([]domain.Match, 0, len(idGroups[0]))
	for i, id := range idGroups[0] {
		match := domain.Match{ID: string(id)}

		if len(docGroups) > 0 && i < len(docGroups[0]) {
			match.Document = docGroups[0][i].ContentString()
		}
		if len(metaGroups) > 0 && i < len(metaGroups[0]) {
			match.Meta = metaFrom(metaGroups[0][i])
		}
		if len(distGroups) > 0 && i < len(distGroups[0]) {
			match.Relevance = 1 - float64(distGroups[0][i])
			if match.Relevance < 0 {
				match.Relevance = 0
			}
		}

		if !filter.MatchesMeta(match.Meta) {
			continue
		}
		matches = append(matches, match)
	}
	return matches, nil
}

// Thread returns every indexed member of a conversation, oldest first.
func (c *Client) Thread(ctx context.Context, conversationID string) ([]domain.Match, error) {
	if conversationID == "" {
		return []domain.Match{}, nil
	}

	result, err := c.collection.Get(
		ctx,
		chroma.WithWhereGet(chroma.EqString("conversation_id", conversationID)),
	)
	if err != nil {
		return nil, fmt.Errorf("thread lookup: %w", err)
	}

	ids := result.GetIDs()
	docs := result.GetDocuments()
	metas := result.GetMetadatas()

	matches := make([]domain.Match, 0, len(ids))
	for i, id := range ids {
		match := domain.Match{ID: string(id)}
		if i < len(docs) {
			match.Document = docs[i].ContentString()
		}
		if i < len(metas) {
			match.Meta = metaFrom(metas[i])
		}
		matches = append(matches, match)
	}

	// Oldest first within the thread.
	for i := 0; i < len(matches); i++ {
		for j := i + 1; j < len(matches); j++ {
			if matches[j].Meta.Date < matches[i].Meta.Date {
				matches[i], matches[j] = matches[j], matches[i]
			}
		}
	}
	return matches, nil
}

// All returns a metadata sample used for stats and open-item analysis.
func (c *Client) All(ctx context.Context, limit int) ([]domain.MessageMeta, error) {
	if limit <= 0 {
		limit = 1000
	}

	result, err := c.collection.Get(ctx, chroma.WithLimitGet(limit))
	if err != nil {
		return nil, fmt.Errorf("metadata sample: %w", err)
	}

	raw := result.GetMetadatas()
	metas := make([]domain.MessageMeta, 0, len(raw))
	for _, md := range raw {
		metas = append(metas, metaFrom(md))
	}
	return metas, nil
}

// Count returns the number of indexed messages.
func (c *Client) Count(ctx context.Context) (int, error) {
	count, err := c.collection.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("collection count: %w", err)
	}
	return count, nil
}

// Clear drops and recreates the collection.
func (c *Client) Clear(ctx context.Context) error {
	if err := c.client.DeleteCollection(ctx, c.cfg.Collection); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}

	collection, err := c.client.GetOrCreateCollection(
		ctx,
		c.cfg.Collection,
		chroma.WithEmbeddingFunctionCreate(c.embedFunc),
	)
	if err != nil {
		return fmt.Errorf("recreate collection: %w", err)
	}
	c.collection = collection

	c.log.WithField("collection", c.cfg.Collection).Info("collection cleared")
	return nil
}

// Close releases the underlying HTTP client.
func (c *Client) Close() error {
	return c.client.Close()
}

func buildWhere(filter domain.QueryFilter) chroma.WhereFilter {
	var clauses []chroma.WhereClause
	if filter.Direction != nil {
		clauses = append(clauses, chroma.EqString("direction", string(*filter.Direction)))
	}
	if filter.IsRead != nil {
		clauses = append(clauses, chroma.EqBool("is_read", *filter.IsRead))
	}
	if filter.IsReplied != nil {
		clauses = append(clauses, chroma.EqBool("is_replied", *filter.IsReplied))
	}

	switch len(clauses) {
	case 0:
		return nil
	case 1:
		return clauses[0]
	default:
		return chroma.And(clauses...)
	}
}

func metaFrom(md chroma.DocumentMetadata) domain.MessageMeta {
	meta := domain.MessageMeta{}
	if md == nil {
		return meta
	}

	str := func(key string) string {
		if v, ok := md.GetString(key); ok {
			return v
		}
		return ""
	}
	boolean := func(key string) bool {
		if v, ok := md.GetBool(key); ok {
			return v
		}
		return false
	}

	meta.MessageID = str("message_id")
	meta.ConversationID = str("conversation_id")
	meta.Sender = str("sender")
	meta.SenderName = str("sender_name")
	meta.Recipients = str("recipients")
	meta.Subject = str("subject")
	meta.Date = str("date")
	meta.Folder = str("folder")
	meta.Source = str("source")
	meta.Direction = domain.Direction(str("direction"))
	meta.IsRead = boolean("is_read")
	meta.IsReplied = boolean("is_replied")
	meta.IsFlagged = boolean("is_flagged")
	return meta
}
