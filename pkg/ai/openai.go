package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OpenAICompatGenerator implements Generator against any OpenAI-compatible
// /v1/chat/completions endpoint (vLLM, LiteLLM, LocalAI, llama.cpp server).
type OpenAICompatGenerator struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewOpenAICompatGenerator builds an OpenAI-compatible generator. baseURL
// should include the /v1 prefix; apiKey may be empty for local servers.
func NewOpenAICompatGenerator(baseURL, apiKey string) *OpenAICompatGenerator {
	return &OpenAICompatGenerator{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{},
	}
}

func (g *OpenAICompatGenerator) Name() string { return string(BackendOpenAI) }

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiChatRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	Temperature float64      `json:"temperature"`
	Stream      bool         `json:"stream,omitempty"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message oaiMessage `json:"message"`
	} `json:"choices"`
}

type oaiStreamResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type oaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate implements Generator.
func (g *OpenAICompatGenerator) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	resp, err := g.post(ctx, oaiChatRequest{
		Model:       opts.Model,
		Messages:    []oaiMessage{{Role: "user", Content: prompt}},
		Temperature: opts.Temperature,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", g.apiError(resp)
	}

	var chatResp oaiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("empty response from backend")
	}
	return chatResp.Choices[0].Message.Content, nil
}

// GenerateStream implements Generator over the SSE chat-completions stream.
func (g *OpenAICompatGenerator) GenerateStream(ctx context.Context, prompt string, opts Options) <-chan Chunk {
	out := make(chan Chunk)

	go func() {
		defer close(out)

		resp, err := g.post(ctx, oaiChatRequest{
			Model:       opts.Model,
			Messages:    []oaiMessage{{Role: "user", Content: prompt}},
			Temperature: opts.Temperature,
			Stream:      true,
		})
		if err != nil {
			g.emit(ctx, out, Chunk{Err: err})
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			g.emit(ctx, out, Chunk{Err: g.apiError(resp)})
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				return
			}

			var part oaiStreamResponse
			if err := json.Unmarshal([]byte(payload), &part); err != nil {
				continue
			}
			if len(part.Choices) == 0 {
				continue
			}
			if token := part.Choices[0].Delta.Content; token != "" {
				if !g.emit(ctx, out, Chunk{Content: token}) {
					return
				}
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			g.emit(ctx, out, Chunk{Err: fmt.Errorf("stream read: %w", err)})
		}
	}()

	return out
}

func (g *OpenAICompatGenerator) emit(ctx context.Context, out chan<- Chunk, c Chunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

// ListModels implements Generator via GET /models.
func (g *OpenAICompatGenerator) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	g.auth(req)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("models request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, g.apiError(resp)
	}

	var result struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode models: %w", err)
	}

	names := make([]string, 0, len(result.Data))
	for _, m := range result.Data {
		names = append(names, m.ID)
	}
	return names, nil
}

// Available implements Generator with a short /models probe.
func (g *OpenAICompatGenerator) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	models, err := g.ListModels(ctx)
	return err == nil && models != nil
}

func (g *OpenAICompatGenerator) post(ctx context.Context, payload oaiChatRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	g.auth(req)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	return resp, nil
}

func (g *OpenAICompatGenerator) auth(req *http.Request) {
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
}

func (g *OpenAICompatGenerator) apiError(resp *http.Response) error {
	var errResp oaiErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&errResp)
	if errResp.Error.Message != "" {
		return fmt.Errorf("backend API error: %s", errResp.Error.Message)
	}
	return fmt.Errorf("backend API error: %s", resp.Status)
}
