// Package llm provides the completion client used for intent analysis,
// action disambiguation and contextual response generation.
//
// The client talks to Ollama's OpenAI-compatible /v1 endpoint, so any model
// served there (text or vision) is addressable by name.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Completer is the text-completion surface consumed by the intent analyzer
// and the nodes.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// VisionCompleter is the image-understanding surface consumed by the
// classification tool's secondary evaluator.
type VisionCompleter interface {
	CompleteVision(ctx context.Context, prompt, imageB64 string) (string, error)
}

// Client wraps the OpenAI-compatible chat API exposed by Ollama.
// Safe for concurrent use; carries no per-session state.
type Client struct {
	api           *openai.Client
	model         string
	visionModel   string
	timeout       time.Duration
	visionTimeout time.Duration
}

// Options configures a Client.
type Options struct {
	Host          string
	Model         string
	VisionModel   string
	Timeout       time.Duration
	VisionTimeout time.Duration
}

// NewClient creates a completion client for the given Ollama host.
func NewClient(opts Options) *Client {
	cfg := openai.DefaultConfig("ollama") // Ollama ignores the key but the SDK requires one
	cfg.BaseURL = strings.TrimRight(opts.Host, "/") + "/v1"

	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.VisionTimeout <= 0 {
		opts.VisionTimeout = 120 * time.Second
	}

	return &Client{
		api:           openai.NewClientWithConfig(cfg),
		model:         opts.Model,
		visionModel:   opts.VisionModel,
		timeout:       opts.Timeout,
		visionTimeout: opts.VisionTimeout,
	}
}

// Complete sends a single-user-message chat completion and returns the text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("llm completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// CompleteVision sends a prompt plus a base64 image to the vision model.
func (c *Client) CompleteVision(ctx context.Context, prompt, imageB64 string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.visionTimeout)
	defer cancel()

	imageURL := imageB64
	if !strings.HasPrefix(imageURL, "data:") {
		imageURL = "data:image/jpeg;base64," + cleanBase64(imageB64)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.visionModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: imageURL},
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("vision completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("vision model returned no choices")
	}

	slog.Debug("Vision completion succeeded", "model", c.visionModel)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// cleanBase64 strips data-URI prefixes and embedded whitespace from a raw
// base64 payload.
func cleanBase64(b64 string) string {
	s := strings.TrimSpace(b64)
	if strings.HasPrefix(s, "data:") {
		if idx := strings.IndexByte(s, ','); idx >= 0 {
			s = s[idx+1:]
		}
	}
	return strings.Join(strings.Fields(s), "")
}
