// Package llm provides LLM-backed summarization via langchaingo.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/mnemolabs/mnemo/internal/config"
	"github.com/mnemolabs/mnemo/internal/models"
)

const summarySystemPrompt = `You summarize conversation transcripts for long-term memory.
Write a dense factual summary of what happened: decisions made, facts learned,
tasks completed or pending, and names of files, people, and resources involved.
Do not editorialize. Keep it under 200 words.`

// Summarizer wraps a langchaingo model for transcript summarization.
type Summarizer struct {
	llm       llms.Model
	modelName string
}

// NewSummarizer creates a summarizer for the configured provider.
// Returns (nil, nil) when the provider is "none"; callers fall back
// to deterministic aggregation.
func NewSummarizer(cfg config.Config) (*Summarizer, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderNone:
		return nil, nil

	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &Summarizer{
		llm:       model,
		modelName: cfg.LLMModel,
	}, nil
}

// Summarize produces a summary of the message window.
func (s *Summarizer) Summarize(ctx context.Context, msgs []models.Message) (string, error) {
	transcript := Transcript(msgs)

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, summarySystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, transcript),
	}

	response, err := s.llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	return strings.TrimSpace(response.Choices[0].Content), nil
}

// Model returns the LLM model name.
func (s *Summarizer) Model() string {
	return s.modelName
}

// Transcript renders messages as a plain-text transcript for
// prompting.
func Transcript(msgs []models.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(string(m.Type))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}
