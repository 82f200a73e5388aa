package dto

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string `json:"message" binding:"required"`
	Stream  bool   `json:"stream"`
	TopK    int    `json:"top_k"`
}

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	Query string `json:"query" binding:"required"`
	Limit int    `json:"limit"`
}

// IngestRequest is the body of POST /api/ingest/start. An empty source
// selection means every configured source.
type IngestRequest struct {
	DaysBack     int      `json:"days_back"`
	IncludeIMAP  *bool    `json:"include_imap"`
	ArchivePaths []string `json:"archive_paths"`
}

// SettingsRequest is the body of POST /api/settings. Absent fields are left
// unchanged.
type SettingsRequest struct {
	Model        *string  `json:"model"`
	Temperature  *float64 `json:"temperature"`
	LookbackDays *int     `json:"lookback_days"`
}
