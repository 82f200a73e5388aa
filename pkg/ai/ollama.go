package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// OllamaGenerator implements Generator against a local Ollama server using
// the /api/generate and /api/tags endpoints.
type OllamaGenerator struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaGenerator creates an Ollama-backed generator. Timeouts are
// handled per request via context so streamed responses can run long.
func NewOllamaGenerator(baseURL string) *OllamaGenerator {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return &OllamaGenerator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

func (o *OllamaGenerator) Name() string { return string(BackendOllama) }

type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

// Generate implements Generator.
func (o *OllamaGenerator) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	resp, err := o.post(ctx, ollamaGenerateRequest{
		Model:   opts.Model,
		Prompt:  prompt,
		Stream:  false,
		Options: map[string]interface{}{"temperature": opts.Temperature},
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama API error (%d): %s", resp.StatusCode, string(body))
	}

	var result ollamaGenerateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("parse ollama response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("ollama: %s", result.Error)
	}
	return result.Response, nil
}

// GenerateStream implements Generator. Malformed NDJSON lines are dropped
// without aborting the stream; backend failures become a terminal error
// chunk so the channel still closes cleanly.
func (o *OllamaGenerator) GenerateStream(ctx context.Context, prompt string, opts Options) <-chan Chunk {
	out := make(chan Chunk)

	go func() {
		defer close(out)

		resp, err := o.post(ctx, ollamaGenerateRequest{
			Model:   opts.Model,
			Prompt:  prompt,
			Stream:  true,
			Options: map[string]interface{}{"temperature": opts.Temperature},
		})
		if err != nil {
			o.emit(ctx, out, Chunk{Err: err})
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			o.emit(ctx, out, Chunk{Err: fmt.Errorf("ollama API error (%d): %s", resp.StatusCode, string(body))})
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var part ollamaGenerateResponse
			if err := json.Unmarshal(line, &part); err != nil {
				// Drop the fragment, keep the stream alive.
				continue
			}
			if part.Error != "" {
				o.emit(ctx, out, Chunk{Err: fmt.Errorf("ollama: %s", part.Error)})
				return
			}
			if part.Response != "" {
				if !o.emit(ctx, out, Chunk{Content: part.Response}) {
					return
				}
			}
			if part.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			o.emit(ctx, out, Chunk{Err: fmt.Errorf("ollama stream: %w", err)})
		}
	}()

	return out
}

func (o *OllamaGenerator) emit(ctx context.Context, out chan<- Chunk, c Chunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

// ListModels implements Generator via /api/tags.
func (o *OllamaGenerator) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama API error (%d)", resp.StatusCode)
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("parse ollama models: %w", err)
	}

	names := make([]string, 0, len(result.Models))
	for _, m := range result.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Available implements Generator with a short /api/tags probe.
func (o *OllamaGenerator) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (o *OllamaGenerator) post(ctx context.Context, payload ollamaGenerateRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	return resp, nil
}
