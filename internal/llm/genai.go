package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GenAIConfig configures the Gemini-backed completion client.
type GenAIConfig struct {
	APIKey      string
	Model       string
	Temperature float32
}

// DefaultGenAIConfig returns sensible defaults. Extraction and validation
// prompts want low temperature so reruns stay close to deterministic.
func DefaultGenAIConfig(apiKey string) GenAIConfig {
	return GenAIConfig{
		APIKey:      apiKey,
		Model:       "gemini-2.5-flash",
		Temperature: 0.2,
	}
}

// GenAIClient implements Client on top of google.golang.org/genai.
type GenAIClient struct {
	client      *genai.Client
	model       string
	temperature float32
	log         *zap.Logger
}

// NewGenAIClient creates a completion client for the Gemini API.
func NewGenAIClient(ctx context.Context, cfg GenAIConfig, log *zap.Logger) (*GenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("genai API key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &GenAIClient{
		client:      client,
		model:       model,
		temperature: cfg.Temperature,
		log:         log.Named("llm"),
	}, nil
}

// Complete sends a single user prompt.
func (c *GenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, nil, prompt)
}

// CompleteWithSystem sends a system instruction plus a user prompt.
func (c *GenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var system *genai.Content
	if strings.TrimSpace(systemPrompt) != "" {
		system = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	return c.generate(ctx, system, userPrompt)
}

func (c *GenAIClient) generate(ctx context.Context, system *genai.Content, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(c.temperature),
		SystemInstruction: system,
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("genai completion failed: %w", err)
	}

	text := resp.Text()
	c.log.Debug("completion received",
		zap.String("model", c.model),
		zap.Int("prompt_chars", len(prompt)),
		zap.Int("response_chars", len(text)))
	return text, nil
}
