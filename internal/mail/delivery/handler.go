package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jcason-sudo/AIEmailSummary/internal/mail/domain"
	"github.com/jcason-sudo/AIEmailSummary/internal/mail/dto"
	"github.com/jcason-sudo/AIEmailSummary/internal/mail/usecase"
	"github.com/jcason-sudo/AIEmailSummary/pkg/ai"
	"github.com/jcason-sudo/AIEmailSummary/pkg/settings"
)

const healthProbeTimeout = 5 * time.Second

// MailHandler exposes the assistant over HTTP.
type MailHandler struct {
	rag      *usecase.RagUsecase
	ingest   *usecase.IngestUsecase
	settings *settings.Store
	gen      ai.Generator
	index    usecase.VectorIndex
	log      *logrus.Logger
}

// NewMailHandler creates the handler set.
func NewMailHandler(rag *usecase.RagUsecase, ingest *usecase.IngestUsecase, store *settings.Store, gen ai.Generator, index usecase.VectorIndex, log *logrus.Logger) *MailHandler {
	return &MailHandler{
		rag:      rag,
		ingest:   ingest,
		settings: store,
		gen:      gen,
		index:    index,
		log:      log,
	}
}

// POST /api/chat
// Chat answers a question about the mailbox. With stream=true the response is
// sent as server-sent events; otherwise as one JSON body.
func (h *MailHandler) Chat(c *gin.Context) {
	var req dto.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !req.Stream {
		answer, err := h.rag.Answer(c.Request.Context(), req.Message, req.TopK)
		if err != nil {
			h.log.WithError(err).Error("chat failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not answer the question"})
			return
		}
		c.JSON(http.StatusOK, answer)
		return
	}

	events, err := h.rag.AnswerStream(c.Request.Context(), req.Message, req.TopK)
	if err != nil {
		h.log.WithError(err).Error("chat stream failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not answer the question"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			h.log.WithError(err).Warn("could not encode stream event")
			continue
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", data)
		c.Writer.Flush()
	}
	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()
}

// POST /api/search
func (h *MailHandler) Search(c *gin.Context) {
	var req dto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results, err := h.rag.Search(c.Request.Context(), req.Query, req.Limit)
	if err != nil {
		h.log.WithError(err).Error("search failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

// POST /api/ingest/start
// StartIngest launches a background ingestion run. A second request while one
// is running gets 409.
func (h *MailHandler) StartIngest(c *gin.Context) {
	var req dto.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := usecase.RunOptions{
		DaysBack:     req.DaysBack,
		ArchivePaths: req.ArchivePaths,
	}
	if req.IncludeIMAP != nil && !*req.IncludeIMAP {
		opts.Sources = []string{domain.SourceArchive}
	}

	runID, err := h.ingest.Start(opts)
	if err != nil {
		if err == usecase.ErrIngestRunning {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.log.WithError(err).Error("could not start ingestion")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start ingestion"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started", "run_id": runID})
}

// GET /api/ingest/status
func (h *MailHandler) IngestStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"running": h.ingest.Running()})
}

// GET /api/ingest/history
func (h *MailHandler) IngestHistory(c *gin.Context) {
	runs, err := h.ingest.History(20)
	if err != nil {
		h.log.WithError(err).Error("could not list ingestion runs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list ingestion runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// GET /api/stats
func (h *MailHandler) Stats(c *gin.Context) {
	stats, err := h.rag.MailboxStats(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("could not compute stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not compute stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GET /api/summary
func (h *MailHandler) Summary(c *gin.Context) {
	summary, err := h.rag.Summarize(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("could not build summary")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not build summary"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GET /api/tasks
func (h *MailHandler) Tasks(c *gin.Context) {
	tasks, err := h.rag.OpenTasks(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("could not list open items")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list open items"})
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// GET /api/settings
func (h *MailHandler) GetSettings(c *gin.Context) {
	s := h.settings.Get()
	c.JSON(http.StatusOK, dto.SettingsResponse{
		Backend:      s.Backend,
		Model:        s.Model,
		Temperature:  s.Temperature,
		LookbackDays: s.LookbackDays,
	})
}

// POST /api/settings
func (h *MailHandler) UpdateSettings(c *gin.Context) {
	var req dto.SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	next, updated, err := h.settings.Update(settings.Patch{
		Model:        req.Model,
		Temperature:  req.Temperature,
		LookbackDays: req.LookbackDays,
	})
	if err != nil {
		h.log.WithError(err).Error("could not save settings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save settings"})
		return
	}
	c.JSON(http.StatusOK, dto.SettingsResponse{
		Backend:      next.Backend,
		Model:        next.Model,
		Temperature:  next.Temperature,
		LookbackDays: next.LookbackDays,
		Updated:      updated,
	})
}

// GET /api/models
func (h *MailHandler) Models(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
	defer cancel()

	models, err := h.gen.ListModels(ctx)
	if err != nil {
		h.log.WithError(err).Warn("could not list models")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "generation backend unreachable"})
		return
	}
	c.JSON(http.StatusOK, dto.ModelsResponse{Backend: h.gen.Name(), Models: models})
}

// GET /api/health
func (h *MailHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
	defer cancel()

	count, err := h.index.Count(ctx)
	if err != nil {
		h.log.WithError(err).Warn("index count failed during health check")
		count = 0
	}

	s := h.settings.Get()
	c.JSON(http.StatusOK, dto.HealthResponse{
		Status:       "ok",
		LLMConnected: h.gen.Available(ctx),
		LLMBackend:   h.gen.Name(),
		LLMModel:     s.Model,
		EmailCount:   count,
	})
}

// POST /api/clear-database
func (h *MailHandler) ClearDatabase(c *gin.Context) {
	if h.ingest.Running() {
		c.JSON(http.StatusConflict, gin.H{"error": "cannot clear while an ingestion run is in progress"})
		return
	}
	if err := h.index.Clear(c.Request.Context()); err != nil {
		h.log.WithError(err).Error("could not clear index")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not clear index"})
		return
	}
	c.JSON(http.StatusOK, dto.ClearResponse{Cleared: true})
}

// GET /api/debug
// Debug exposes a small index sample for troubleshooting ingestion.
func (h *MailHandler) Debug(c *gin.Context) {
	ctx := c.Request.Context()

	count, err := h.index.Count(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	metas, err := h.index.All(ctx, 5)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s := h.settings.Get()
	c.JSON(http.StatusOK, gin.H{
		"email_count": count,
		"backend":     h.gen.Name(),
		"model":       s.Model,
		"settings":    s,
		"sample":      metas,
	})
}
