package ai

import "fmt"

// Config selects and configures the generation backend at startup.
type Config struct {
	Backend       BackendType
	OllamaBaseURL string
	OpenAIBaseURL string
	OpenAIAPIKey  string
}

// New is the factory: one backend is chosen here, once, so handlers never
// branch on backend names at request time.
func New(cfg Config) (Generator, error) {
	switch cfg.Backend {
	case BackendOllama, "":
		return NewOllamaGenerator(cfg.OllamaBaseURL), nil
	case BackendOpenAI:
		if cfg.OpenAIBaseURL == "" {
			return nil, fmt.Errorf("OPENAI_BASE_URL is required for the openai backend")
		}
		return NewOpenAICompatGenerator(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey), nil
	default:
		return nil, fmt.Errorf("unknown LLM backend %q", cfg.Backend)
	}
}
