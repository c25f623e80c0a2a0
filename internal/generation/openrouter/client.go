// Package openrouter calls an OpenAI-compatible chat completions endpoint
// with a strict JSON schema response format.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"content_refresher/internal/domain"
)

var ErrMissingAPIKey = errors.New("api key is not configured")

// maxErrorBody bounds how much of a failed response ends up in an error.
const maxErrorBody = 512

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	Referer     string
	Title       string
}

type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	referer     string
	title       string
	logger      *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		referer:     cfg.Referer,
		title:       cfg.Title,
		logger:      logger.With("component", "openrouter"),
	}
}

// Generate requests updated section text. Failures are not retried; the
// document is picked up again on its next scheduled refresh.
func (c *Client) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResult, error) {
	if c.apiKey == "" {
		return nil, &domain.GenerationError{Op: "configure", Err: ErrMissingAPIKey}
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		Temperature: c.temperature,
		ResponseFormat: responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchema{
				Name:   req.Schema.Name,
				Strict: true,
				Schema: req.Schema.JSONSchema(),
			},
		},
	})
	if err != nil {
		return nil, &domain.GenerationError{Op: "encode", Err: err}
	}

	content, err := c.doRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	result, err := parseContent(content, req.Schema)
	if err != nil {
		c.logger.Warn("unusable generation response",
			"schema", req.Schema.Name,
			"content_length", len(content),
			"error", err,
		)
		return nil, &domain.GenerationError{Op: "parse", Err: err}
	}

	return result, nil
}

func (c *Client) doRequest(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", &domain.GenerationError{Op: "request", Err: err}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		httpReq.Header.Set("X-Title", c.title)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &domain.GenerationError{Op: "request", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &domain.GenerationError{Op: "read", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &domain.GenerationError{Op: "status", Err: statusError(resp.StatusCode, raw)}
	}

	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		return "", &domain.GenerationError{Op: "decode", Err: err}
	}
	if len(chat.Choices) == 0 {
		return "", &domain.GenerationError{Op: "decode", Err: errors.New("response has no choices")}
	}

	return chat.Choices[0].Message.Content, nil
}

func statusError(status int, raw []byte) error {
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err == nil {
		if msg := env.message(); msg != "" {
			return fmt.Errorf("unexpected status %d: %s", status, msg)
		}
	}

	text := strings.TrimSpace(string(raw))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	if text == "" {
		return fmt.Errorf("unexpected status %d", status)
	}
	return fmt.Errorf("unexpected status %d: %s", status, text)
}

func parseContent(content string, schema domain.SectionSchema) (*domain.GenerationResult, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &fields); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}

	result := &domain.GenerationResult{
		Sections: make(map[string]string, len(schema.Sections)),
	}

	for _, sec := range schema.Sections {
		raw, ok := fields[sec.Name]
		if !ok {
			return nil, fmt.Errorf("missing section %q", sec.Name)
		}
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, fmt.Errorf("section %q is not a string", sec.Name)
		}
		result.Sections[sec.Name] = text
	}

	if raw, ok := fields[domain.FieldUpdateSummary]; ok {
		if err := json.Unmarshal(raw, &result.UpdateSummary); err != nil {
			return nil, fmt.Errorf("%s is not a string", domain.FieldUpdateSummary)
		}
	}
	if raw, ok := fields[domain.FieldHasSignificantUpdates]; ok {
		if err := json.Unmarshal(raw, &result.HasSignificantUpdates); err != nil {
			return nil, fmt.Errorf("%s is not a boolean", domain.FieldHasSignificantUpdates)
		}
	}

	return result, nil
}
