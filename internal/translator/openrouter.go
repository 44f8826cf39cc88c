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

// OpenRouterService talks to any OpenAI-compatible chat completions
// endpoint. OpenRouter is the default, but BaseURL can point at OpenAI
// itself or a local proxy exposing the same API.
type OpenRouterService struct {
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
	client      *http.Client
}

func NewOpenRouterService(cfg Config) *OpenRouterService {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
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
	return &OpenRouterService{
		apiKey:      cfg.APIKey,
		model:       model,
		baseURL:     baseURL,
		temperature: temperature,
		maxTokens:   maxTokens,
		client:      &http.Client{Timeout: timeout},
	}
}

func (s *OpenRouterService) Name() string {
	return "openrouter"
}

func (s *OpenRouterService) Translate(ctx context.Context, req Request) (*Result, error) {
	result := &Result{Model: s.model}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	if s.apiKey == "" {
		return result, &APIError{Kind: KindAuthError, Message: "API key required"}
	}

	body := map[string]interface{}{
		"model": s.model,
		"messages": []map[string]string{
			{"role": "user", "content": BuildPrompt(req)},
		},
		"temperature": s.temperature,
		"max_tokens":  s.maxTokens,
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return result, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/chat/completions", s.baseURL), bytes.NewBuffer(jsonData))
	if err != nil {
		return result, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.apiKey))
	httpReq.Header.Set("HTTP-Referer", "https://mdtran.local")
	httpReq.Header.Set("X-Title", "mdtran")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return result, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return result, newStatusError(resp)
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return result, &APIError{Kind: KindResponseShape, Message: fmt.Sprintf("failed to decode response: %v", err)}
	}

	if len(completion.Choices) == 0 {
		return result, &APIError{Kind: KindResponseShape, Message: "no choices in response"}
	}
	content := completion.Choices[0].Message.Content
	if content == "" {
		return result, &APIError{Kind: KindResponseShape, Message: "empty message content"}
	}

	result.Text = postprocess.Clean(content)
	result.PromptTokens = completion.Usage.PromptTokens
	result.CompletionTokens = completion.Usage.CompletionTokens

	return result, nil
}

func (s *OpenRouterService) IsAvailable(ctx context.Context) error {
	if s.apiKey == "" {
		return fmt.Errorf("API key not configured")
	}
	return nil
}
