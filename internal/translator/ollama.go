package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/valpere/mdtran/internal/postprocess"
)

// DefaultOllamaModel is used when no model is configured for the
// local backend.
const DefaultOllamaModel = "llama3.2"

// OllamaTranslator runs translations against a local Ollama server.
// No API key is involved, which makes it the offline fallback.
type OllamaTranslator struct {
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
}

func NewOllamaTranslator(cfg Config) *OllamaTranslator {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOllamaModel
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &OllamaTranslator{
		baseURL:     baseURL,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		client:      &http.Client{Timeout: timeout},
	}
}

func (s *OllamaTranslator) Name() string {
	return "ollama"
}

func (s *OllamaTranslator) Translate(ctx context.Context, req Request) (*Result, error) {
	result := &Result{Model: s.model}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	body := map[string]interface{}{
		"model":  s.model,
		"prompt": BuildPrompt(req),
		"stream": false,
		"options": map[string]interface{}{
			"temperature": s.temperature,
			"num_predict": s.maxTokens,
		},
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return result, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/api/generate", s.baseURL), bytes.NewBuffer(jsonData))
	if err != nil {
		return result, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return result, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return result, newStatusError(resp)
	}

	var generation struct {
		Response string `json:"response"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&generation); err != nil {
		return result, &APIError{Kind: KindResponseShape, Message: fmt.Sprintf("failed to decode response: %v", err)}
	}

	if generation.Response == "" {
		return result, &APIError{Kind: KindResponseShape, Message: "empty response from model"}
	}

	result.Text = postprocess.Clean(generation.Response)

	return result, nil
}

func (s *OllamaTranslator) IsAvailable(ctx context.Context) error {
	req, _ := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/api/tags", s.baseURL), nil)
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("Ollama not available: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Ollama returned status %d", resp.StatusCode)
	}
	return nil
}
