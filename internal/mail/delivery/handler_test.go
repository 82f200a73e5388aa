package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcason-sudo/AIEmailSummary/internal/mail/domain"
	"github.com/jcason-sudo/AIEmailSummary/internal/mail/usecase"
	"github.com/jcason-sudo/AIEmailSummary/pkg/ai"
	"github.com/jcason-sudo/AIEmailSummary/pkg/settings"
)

type stubIndex struct {
	matches []domain.Match
	metas   []domain.MessageMeta
	total   int
	cleared bool
}

func (s *stubIndex) Upsert(_ context.Context, _ []*domain.Message) error { return nil }
func (s *stubIndex) Query(_ context.Context, _ string, _ int, _ domain.QueryFilter) ([]domain.Match, error) {
	return s.matches, nil
}
func (s *stubIndex) Thread(_ context.Context, _ string) ([]domain.Match, error) { return nil, nil }
func (s *stubIndex) All(_ context.Context, _ int) ([]domain.MessageMeta, error) {
	return s.metas, nil
}
func (s *stubIndex) Count(_ context.Context) (int, error) { return s.total, nil }
func (s *stubIndex) Clear(_ context.Context) error {
	s.cleared = true
	return nil
}

type stubGenerator struct {
	text      string
	available bool
}

func (g *stubGenerator) Generate(_ context.Context, _ string, _ ai.Options) (string, error) {
	return g.text, nil
}

func (g *stubGenerator) GenerateStream(_ context.Context, _ string, _ ai.Options) <-chan ai.Chunk {
	out := make(chan ai.Chunk)
	go func() {
		defer close(out)
		for _, word := range strings.SplitAfter(g.text, " ") {
			out <- ai.Chunk{Content: word}
		}
	}()
	return out
}

func (g *stubGenerator) ListModels(_ context.Context) ([]string, error) {
	return []string{"llama3.2:3b", "mistral"}, nil
}
func (g *stubGenerator) Available(_ context.Context) bool { return g.available }
func (g *stubGenerator) Name() string                     { return "ollama" }

type stubSource struct {
	name string
	msgs []*domain.Message
	hold chan struct{}
}

func (s *stubSource) Name() string { return s.name }
func (s *stubSource) Fetch(_ context.Context, _ time.Time, fn func(*domain.Message) error) error {
	if s.hold != nil {
		<-s.hold
	}
	for _, m := range s.msgs {
		if err := fn(m); err != nil {
			return err
		}
	}
	return nil
}

type fixture struct {
	router *gin.Engine
	index  *stubIndex
	store  *settings.Store
	ingest *usecase.IngestUsecase
}

func newFixture(t *testing.T, index *stubIndex, gen ai.Generator, sources ...usecase.MailSource) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	store, err := settings.NewStore(t.TempDir(), settings.Settings{
		Backend: "ollama", Model: "llama3.2:3b", Temperature: 0.3, LookbackDays: 365,
	})
	require.NoError(t, err)

	rag := usecase.NewRagUsecase(index, gen, store, log)
	ingest := usecase.NewIngestUsecase(index, sources, store, nil, log)
	h := NewMailHandler(rag, ingest, store, gen, index, log)

	r := gin.New()
	api := r.Group("/api")
	api.POST("/chat", h.Chat)
	api.POST("/search", h.Search)
	api.POST("/ingest/start", h.StartIngest)
	api.GET("/ingest/status", h.IngestStatus)
	api.GET("/ingest/history", h.IngestHistory)
	api.GET("/stats", h.Stats)
	api.GET("/summary", h.Summary)
	api.GET("/tasks", h.Tasks)
	api.GET("/settings", h.GetSettings)
	api.POST("/settings", h.UpdateSettings)
	api.GET("/models", h.Models)
	api.GET("/health", h.Health)
	api.POST("/clear-database", h.ClearDatabase)
	api.GET("/debug", h.Debug)

	return &fixture{router: r, index: index, store: store, ingest: ingest}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func sampleMatch() domain.Match {
	return domain.Match{
		ID:       "1",
		Document: "From: alice\n\nthe budget is approved",
		Meta: domain.MessageMeta{
			MessageID: "1", Sender: "alice@example.com", Subject: "Budget",
			Date: "2026-02-10T09:00:00Z", Direction: domain.DirectionReceived,
		},
		Relevance: 0.9,
	}
}

func TestChatNonStreamed(t *testing.T) {
	f := newFixture(t, &stubIndex{matches: []domain.Match{sampleMatch()}}, &stubGenerator{text: "Approved on Tuesday."})

	w := f.do(t, http.MethodPost, "/api/chat", gin.H{"message": "budget status?"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Approved on Tuesday.", resp["answer"])
	assert.Equal(t, "general", resp["query_type"])
	assert.NotEmpty(t, resp["sources"])
}

func TestChatRequiresMessage(t *testing.T) {
	f := newFixture(t, &stubIndex{}, &stubGenerator{})

	w := f.do(t, http.MethodPost, "/api/chat", gin.H{"stream": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatStreamedEmitsEventsAndDone(t *testing.T) {
	f := newFixture(t, &stubIndex{matches: []domain.Match{sampleMatch()}}, &stubGenerator{text: "Approved on Tuesday."})

	w := f.do(t, http.MethodPost, "/api/chat", gin.H{"message": "budget status?", "stream": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")

	body := w.Body.String()
	require.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))

	var text strings.Builder
	var sawSources bool
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") || line == "data: [DONE]" {
			continue
		}
		var ev usecase.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		switch ev.Type {
		case "chunk":
			text.WriteString(ev.Content.(string))
		case "sources":
			sawSources = true
		}
	}
	assert.Equal(t, "Approved on Tuesday.", strings.TrimSpace(text.String()))
	assert.True(t, sawSources)
}

func TestSearchEndpoint(t *testing.T) {
	f := newFixture(t, &stubIndex{matches: []domain.Match{sampleMatch()}}, &stubGenerator{})

	w := f.do(t, http.MethodPost, "/api/search", gin.H{"query": "budget"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Results []usecase.SearchResult `json:"results"`
		Count   int                    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "Budget", resp.Results[0].Subject)
}

func TestSettingsRoundTrip(t *testing.T) {
	f := newFixture(t, &stubIndex{}, &stubGenerator{})

	w := f.do(t, http.MethodPost, "/api/settings", gin.H{"model": "mistral", "temperature": 0.7})
	require.Equal(t, http.StatusOK, w.Code)

	var updated struct {
		Model   string   `json:"model"`
		Updated []string `json:"updated"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "mistral", updated.Model)
	assert.ElementsMatch(t, []string{"model", "temperature"}, updated.Updated)

	w = f.do(t, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var current struct {
		Backend     string  `json:"backend"`
		Model       string  `json:"model"`
		Temperature float64 `json:"temperature"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &current))
	assert.Equal(t, "ollama", current.Backend)
	assert.Equal(t, "mistral", current.Model)
	assert.InDelta(t, 0.7, current.Temperature, 0.001)
}

func TestIngestStartAndConflict(t *testing.T) {
	hold := make(chan struct{})
	src := &stubSource{name: domain.SourceArchive, hold: hold}
	f := newFixture(t, &stubIndex{}, &stubGenerator{}, src)

	w := f.do(t, http.MethodPost, "/api/ingest/start", gin.H{"days_back": 30})
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "started", resp["status"])
	assert.NotEmpty(t, resp["run_id"])

	w = f.do(t, http.MethodPost, "/api/ingest/start", gin.H{"days_back": 30})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodGet, "/api/ingest/status", nil)
	assert.Contains(t, w.Body.String(), "true")

	close(hold)
	require.Eventually(t, func() bool { return !f.ingest.Running() }, 2*time.Second, 10*time.Millisecond)
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, &stubIndex{total: 12}, &stubGenerator{available: true})

	w := f.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, true, resp["llm_connected"])
	assert.Equal(t, "ollama", resp["llm_backend"])
	assert.Equal(t, float64(12), resp["email_count"])
}

func TestModelsEndpoint(t *testing.T) {
	f := newFixture(t, &stubIndex{}, &stubGenerator{})

	w := f.do(t, http.MethodGet, "/api/models", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mistral")
}

func TestClearDatabase(t *testing.T) {
	index := &stubIndex{total: 3}
	f := newFixture(t, index, &stubGenerator{})

	w := f.do(t, http.MethodPost, "/api/clear-database", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, index.cleared)
}

func TestStatsEndpoint(t *testing.T) {
	index := &stubIndex{
		total: 2,
		metas: []domain.MessageMeta{
			{MessageID: "1", Direction: domain.DirectionReceived},
			{MessageID: "2", Direction: domain.DirectionSent, IsRead: true},
		},
	}
	f := newFixture(t, index, &stubGenerator{})

	w := f.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats domain.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Sent)
}
