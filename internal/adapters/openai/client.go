package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"chimera/internal/adapters/httpapi"
	"chimera/internal/domain"
	"chimera/internal/llmjson"
	"chimera/internal/logger"
	"chimera/internal/ports"
	"chimera/internal/retry"
)

const systemPrompt = "You are a precise assistant. Reply with a single JSON document that matches the requested schema and nothing else."

// Options configures the client for any OpenAI-compatible endpoint
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	EmbedModel string
	Dimensions int // requested embedding size, 0 for the model default
	Timeout    time.Duration
	RateLimit  float64 // requests per second
	Retry      retry.Policy
}

// Client implements ports.LanguageModel over the chat completions and
// embeddings endpoints
type Client struct {
	log        *logger.Logger
	api        *httpapi.Client
	model      string
	embedModel string
	dimensions int
}

var _ ports.LanguageModel = (*Client)(nil)

// New builds a client. An API key is required unless BaseURL points at a
// local server.
func New(opts Options, log *logger.Logger) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com"
	}
	if opts.APIKey == "" && strings.Contains(opts.BaseURL, "api.openai.com") {
		return nil, fmt.Errorf("missing LLM API key")
	}
	if opts.Model == "" || opts.EmbedModel == "" {
		return nil, fmt.Errorf("model and embedding model are required")
	}

	headers := map[string]string{}
	if opts.APIKey != "" {
		headers["Authorization"] = "Bearer " + opts.APIKey
	}

	return &Client{
		log: log.With("service", "OpenAIClient"),
		api: httpapi.New(httpapi.Options{
			Name:      "openai",
			BaseURL:   opts.BaseURL,
			Headers:   headers,
			RateLimit: opts.RateLimit,
			Timeout:   opts.Timeout,
			Retry:     opts.Retry,
		}, log),
		model:      opts.Model,
		embedModel: opts.EmbedModel,
		dimensions: opts.Dimensions,
	}, nil
}

type embeddingsRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed returns the embedding of text
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		text = " "
	}

	req := embeddingsRequest{Model: c.embedModel, Input: []string{text}, Dimensions: c.dimensions}
	var resp embeddingsResponse
	if err := c.api.Do(ctx, http.MethodPost, "/v1/embeddings", req, &resp); err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embed: empty embedding in response")
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, f := range resp.Data[0].Embedding {
		vec[i] = float32(f)
	}
	return vec, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string     `json:"type"`
	JSONSchema jsonSchema `json:"json_schema"`
}

type jsonSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
	Strict bool            `json:"strict"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
	Temperature    float64        `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete asks for a document matching schema and validates the answer.
// A refusal or output that does not satisfy the schema is a
// *domain.SchemaValidationError.
func (c *Client) Complete(ctx context.Context, prompt string, schema ports.Schema) (json.RawMessage, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		ResponseFormat: responseFormat{
			Type:       "json_schema",
			JSONSchema: jsonSchema{Name: schema.Name, Schema: schema.JSON, Strict: true},
		},
		Temperature: 0,
	}

	var resp chatResponse
	if err := c.api.Do(ctx, http.MethodPost, "/v1/chat/completions", req, &resp); err != nil {
		return nil, fmt.Errorf("complete %s: %w", schema.Name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, &domain.SchemaValidationError{Schema: schema.Name, Details: []string{"no choices in response"}}
	}

	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, &domain.SchemaValidationError{Schema: schema.Name, Details: []string{"model refused: " + choice.Message.Refusal}}
	}
	if choice.FinishReason == "length" {
		c.log.Warn("completion truncated", "schema", schema.Name)
	}

	doc, err := llmjson.Decode(choice.Message.Content, schema)
	if err != nil {
		c.log.Debug("model output rejected", "schema", schema.Name, "error", err.Error())
		return nil, err
	}
	return doc, nil
}
