package ai

import "context"

// Options are the per-request generation parameters, read from the settings
// store at call time.
type Options struct {
	Model       string
	Temperature float64
}

// Chunk is one element of a streamed generation. A non-nil Err is terminal:
// the channel is closed right after it, so consumer loops always exit.
type Chunk struct {
	Content string
	Err     error
}

// Generator is the capability interface every generation backend implements.
// Implement this interface to add new providers (Ollama, OpenAI-compatible,
// etc.); the factory selects one at startup.
type Generator interface {
	// Generate returns the complete response text.
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
	// GenerateStream returns a channel of ordered chunks. The channel is
	// always closed, after an error chunk if the backend failed. Cancel the
	// context to stop early.
	GenerateStream(ctx context.Context, prompt string, opts Options) <-chan Chunk
	// ListModels returns the model names available on the backend.
	ListModels(ctx context.Context) ([]string, error)
	// Available reports whether the backend answers at all.
	Available(ctx context.Context) bool
	// Name identifies the backend ("ollama", "openai").
	Name() string
}

// BackendType names a generation backend.
type BackendType string

const (
	BackendOllama BackendType = "ollama"
	BackendOpenAI BackendType = "openai"
)
