package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// OllamaConfig names the local model and endpoint to use, grounded on the
// original's _create_agent Ollama model configuration (api_base,
// temperature, num_ctx).
type OllamaConfig struct {
	BaseURL     string
	Model       string
	Temperature float64
	NumCtx      int
}

// Ollama drives an agent turn through a local Ollama-compatible /api/chat
// endpoint. Gives the Backend interface a second, independently useful
// implementation beyond the Scripted test double, without pulling in any
// hosted model provider.
type Ollama struct {
	cfg    OllamaConfig
	client *http.Client
}

// NewOllama builds an Ollama backend bound to cfg.
func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	return &Ollama{cfg: cfg, client: &http.Client{Timeout: 2 * time.Minute}}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string           `json:"model"`
	Messages []ollamaMessage  `json:"messages"`
	Stream   bool             `json:"stream"`
	Options  ollamaChatOptions `json:"options"`
}

type ollamaChatOptions struct {
	Temperature float64 `json:"temperature"`
	NumCtx      int     `json:"num_ctx,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
}

func (o *Ollama) Step(ctx context.Context, transcript []Message) (Message, error) {
	msgs := make([]ollamaMessage, len(transcript))
	for i, m := range transcript {
		msgs[i] = ollamaMessage{Role: m.Role, Content: m.Content}
	}

	body, err := json.Marshal(ollamaChatRequest{
		Model:    o.cfg.Model,
		Messages: msgs,
		Stream:   false,
		Options:  ollamaChatOptions{Temperature: o.cfg.Temperature, NumCtx: o.cfg.NumCtx},
	})
	if err != nil {
		return Message{}, fmt.Errorf("encoding ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return Message{}, fmt.Errorf("building ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return Message{}, &retryableError{err: fmt.Errorf("calling ollama: %w", err), retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Message{}, fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Message{}, fmt.Errorf("decoding ollama response: %w", err)
	}

	return Message{Role: "assistant", Content: out.Message.Content}, nil
}
