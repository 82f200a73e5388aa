package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/jcason-sudo/AIEmailSummary/internal/mail/delivery"
)

// SetupRoutes registers the API and, when webDir exists, the browser UI.
func SetupRoutes(r *gin.Engine, h *delivery.MailHandler, webDir string) {
	api := r.Group("/api")
	{
		api.POST("/chat", h.Chat)
		api.POST("/search", h.Search)

		ingest := api.Group("/ingest")
		{
			ingest.POST("/start", h.StartIngest)
			ingest.GET("/status", h.IngestStatus)
			ingest.GET("/history", h.IngestHistory)
		}

		api.GET("/stats", h.Stats)
		api.GET("/summary", h.Summary)
		api.GET("/tasks", h.Tasks)

		api.GET("/settings", h.GetSettings)
		api.POST("/settings", h.UpdateSettings)
		api.GET("/models", h.Models)

		api.GET("/health", h.Health)
		api.POST("/clear-database", h.ClearDatabase)
		api.GET("/debug", h.Debug)
	}

	if webDir == "" {
		return
	}
	if _, err := os.Stat(webDir); err != nil {
		return
	}

	r.StaticFile("/", filepath.Join(webDir, "index.html"))
	r.Static("/static", webDir)
	r.NoRoute(func(c *gin.Context) {
		// The UI is a single page; unknown non-API paths fall through to it.
		if len(c.Request.URL.Path) >= 4 && c.Request.URL.Path[:4] == "/api" {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.File(filepath.Join(webDir, "index.html"))
	})
}
