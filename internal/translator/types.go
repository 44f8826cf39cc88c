// Package translator sends Markdown chunks to LLM chat backends and
// normalizes their responses. Backends classify transport failures so
// the caller's retry policy can decide what is worth another attempt.
package translator

import (
	"context"
	"time"
)

const (
	// DefaultBaseURL is the OpenAI-compatible endpoint used when none
	// is configured.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultModel is the completion model used when none is configured.
	DefaultModel = "qwen/qwen-2.5-72b-instruct"

	// DefaultTimeout bounds a single completion call. Slow models need
	// the full two minutes on large chunks.
	DefaultTimeout = 120 * time.Second

	// DefaultTemperature is deliberately low: translations should be
	// consistent across chunks, not creative.
	DefaultTemperature = 0.3

	// DefaultMaxTokens leaves room for chunks that grow in the target
	// language.
	DefaultMaxTokens = 8000
)

// Config carries the connection and sampling settings for a backend.
// Zero values fall back to the package defaults.
type Config struct {
	APIKey      string        `mapstructure:"api_key" json:"api_key"`
	Model       string        `mapstructure:"model" json:"model"`
	BaseURL     string        `mapstructure:"base_url" json:"base_url"`
	Temperature float64       `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" json:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout"`
}

// Request is one translation call for a single chunk. Text carries the
// chunk content already wrapped in integrity markers.
type Request struct {
	Text          string            `json:"text"`
	SourceLang    string            `json:"source_lang"`
	TargetLang    string            `json:"target_lang"`
	GlossaryTerms map[string]string `json:"glossary_terms,omitempty"`
	Instructions  string            `json:"instructions,omitempty"`
}

// Result is the raw translated text plus call metadata.
type Result struct {
	Text             string        `json:"text"`
	Model            string        `json:"model"`
	Latency          time.Duration `json:"latency"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
}

// Service is implemented by every chat backend.
type Service interface {
	Name() string
	Translate(ctx context.Context, req Request) (*Result, error)
	IsAvailable(ctx context.Context) error
}
