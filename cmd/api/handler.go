package api

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jcason-sudo/AIEmailSummary/internal/mail/delivery"
	"github.com/jcason-sudo/AIEmailSummary/internal/mail/usecase"
	"github.com/jcason-sudo/AIEmailSummary/pkg/ai"
	"github.com/jcason-sudo/AIEmailSummary/pkg/archive"
	"github.com/jcason-sudo/AIEmailSummary/pkg/chroma"
	"github.com/jcason-sudo/AIEmailSummary/pkg/config"
	"github.com/jcason-sudo/AIEmailSummary/pkg/history"
	"github.com/jcason-sudo/AIEmailSummary/pkg/imap"
	"github.com/jcason-sudo/AIEmailSummary/pkg/settings"
)

// Server owns the wired application and its HTTP surface.
type Server struct {
	cfg     *config.Config
	log     *logrus.Logger
	handler *delivery.MailHandler
	history *history.Store
	webDir  string
}

// NewServer builds every component from the process configuration: settings
// store, generation backend, vector index, import sources, run history and
// the HTTP handlers on top of them.
func NewServer(ctx context.Context, cfg *config.Config, log *logrus.Logger, webDir string) (*Server, error) {
	store, err := settings.NewStore(cfg.DataDir, settings.Settings{
		Backend:      cfg.LLMBackend,
		Model:        cfg.Model,
		Temperature:  cfg.Temperature,
		LookbackDays: cfg.LookbackDays,
	})
	if err != nil {
		return nil, fmt.Errorf("settings store: %w", err)
	}

	gen, err := ai.New(ai.Config{
		Backend:       ai.BackendType(cfg.LLMBackend),
		OllamaBaseURL: cfg.OllamaBaseURL,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("generation backend: %w", err)
	}
	log.WithField("backend", gen.Name()).Info("generation backend selected")

	index, err := chroma.NewClient(ctx, chroma.Config{
		URL:            cfg.ChromaURL,
		Collection:     cfg.ChromaCollection,
		OllamaURL:      cfg.OllamaBaseURL,
		EmbeddingModel: cfg.EmbeddingModel,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("vector index: %w", err)
	}

	hist, err := history.NewStore(filepath.Join(cfg.DataDir, "history.db"), log)
	if err != nil {
		return nil, fmt.Errorf("run history: %w", err)
	}

	var sources []usecase.MailSource
	if cfg.IMAPConfigured() {
		sources = append(sources, imap.NewClient(imap.Config{
			Host:     cfg.IMAPHost,
			Port:     cfg.IMAPPort,
			Username: cfg.IMAPUsername,
			Password: cfg.IMAPPassword,
			Folders:  cfg.IMAPFolders,
		}, log))
		log.WithField("host", cfg.IMAPHost).Info("IMAP source configured")
	} else {
		log.Info("IMAP not configured, archive import only")
	}
	if len(cfg.ArchivePaths) > 0 {
		sources = append(sources, archive.NewReader(cfg.ArchivePaths, cfg.IMAPUsername, log))
	}

	rag := usecase.NewRagUsecase(index, gen, store, log)
	ingest := usecase.NewIngestUsecase(index, sources, store, hist, log)
	ingest.SetArchiveFactory(func(paths []string) usecase.MailSource {
		return archive.NewReader(paths, cfg.IMAPUsername, log)
	})

	return &Server{
		cfg:     cfg,
		log:     log,
		handler: delivery.NewMailHandler(rag, ingest, store, gen, index, log),
		history: hist,
		webDir:  webDir,
	}, nil
}

// Start runs the HTTP server until it fails.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	// CORS for browser clients on other ports.
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	SetupRoutes(r, s.handler, s.webDir)

	addr := s.cfg.Host + ":" + s.cfg.Port
	s.log.WithField("addr", addr).Info("listening")
	return r.Run(addr)
}

// Close releases server-owned resources.
func (s *Server) Close() error {
	return s.history.Close()
}
