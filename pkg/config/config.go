package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the immutable process configuration, built once at startup.
// Runtime-tunable values (model, temperature, lookback) seed the settings
// store and are not read from here afterwards.
type Config struct {
	Host    string
	Port    string
	DataDir string

	LogLevel string

	// Vector store
	ChromaURL        string
	ChromaCollection string
	EmbeddingModel   string

	// Generation backend
	LLMBackend    string // "ollama" or "openai"
	OllamaBaseURL string
	OpenAIBaseURL string
	OpenAIAPIKey  string
	Model         string
	Temperature   float64

	// Import
	LookbackDays int
	ArchivePaths []string
	IMAPHost     string
	IMAPPort     int
	IMAPUsername string
	IMAPPassword string
	IMAPFolders  []string
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dataDir = filepath.Join(home, ".inboxai")
	}

	folders := []string{"INBOX", "Sent"}
	if raw := os.Getenv("IMAP_FOLDERS"); raw != "" {
		folders = splitList(raw)
	}

	return &Config{
		Host:             getEnv("HOST", "127.0.0.1"),
		Port:             getEnv("PORT", "5000"),
		DataDir:          dataDir,
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		ChromaURL:        getEnv("CHROMA_URL", "http://localhost:8000"),
		ChromaCollection: getEnv("CHROMA_COLLECTION", "emails"),
		EmbeddingModel:   getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
		LLMBackend:       getEnv("LLM_BACKEND", "ollama"),
		OllamaBaseURL:    getEnv("OLLAMA_URL", "http://localhost:11434"),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "http://localhost:8080/v1"),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		Model:            getEnv("LLM_MODEL", "llama3.2:3b"),
		Temperature:      getEnvFloat("LLM_TEMPERATURE", 0.3),
		LookbackDays:     getEnvInt("EMAIL_LOOKBACK_DAYS", 365),
		ArchivePaths:     splitList(os.Getenv("ARCHIVE_PATHS")),
		IMAPHost:         getEnv("IMAP_HOST", ""),
		IMAPPort:         getEnvInt("IMAP_PORT", 993),
		IMAPUsername:     getEnv("IMAP_USERNAME", ""),
		IMAPPassword:     getEnv("IMAP_PASSWORD", ""),
		IMAPFolders:      folders,
	}
}

// IMAPConfigured reports whether a live mailbox source can be built.
func (c *Config) IMAPConfigured() bool {
	return c.IMAPHost != "" && c.IMAPUsername != "" && c.IMAPPassword != ""
}

func splitList(raw string) []string {
	var out []string
	for _, f := range strings.Split(raw, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
