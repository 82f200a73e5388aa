package dto

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SettingsResponse reports the current runtime settings. Backend is fixed at
// startup and shown read-only.
type SettingsResponse struct {
	Backend      string   `json:"backend"`
	Model        string   `json:"model"`
	Temperature  float64  `json:"temperature"`
	LookbackDays int      `json:"lookback_days"`
	Updated      []string `json:"updated,omitempty"`
}

// ModelsResponse lists the models the generation backend offers.
type ModelsResponse struct {
	Backend string   `json:"backend"`
	Models  []string `json:"models"`
}

// HealthResponse is the readiness snapshot.
type HealthResponse struct {
	Status       string `json:"status"`
	LLMConnected bool   `json:"llm_connected"`
	LLMBackend   string `json:"llm_backend"`
	LLMModel     string `json:"llm_model"`
	EmailCount   int    `json:"email_count"`
}

// ClearResponse acknowledges a database wipe.
type ClearResponse struct {
	Cleared bool `json:"cleared"`
}
