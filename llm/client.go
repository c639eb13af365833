package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/use-agent/ratescout/config"
	"github.com/use-agent/ratescout/metrics"
	"github.com/use-agent/ratescout/models"
)

// Client talks to an OpenAI-compatible chat-completions endpoint and turns
// prepared page documents into structured extraction output. It uses net/http
// directly and a client-side token bucket so extraction calls never burst.
//
// The raw model output is returned as-is: recovering a JSON object from a
// chatty response is the extraction parser's job, not the transport's.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	cfg        config.LLMConfig
	metrics    *metrics.Metrics
}

// New builds a Client from the LLM configuration. Pass nil for httpClient to
// use a default client bounded by cfg.Timeout; a nil metrics handle disables
// token accounting.
func New(cfg config.LLMConfig, httpClient *http.Client, m *metrics.Metrics) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cfg:        cfg,
		metrics:    m,
	}
}

// ExtractRooms asks the model for every distinct room type named in the
// document and returns the raw model output.
func (c *Client) ExtractRooms(ctx context.Context, doc string) (string, error) {
	return c.complete(ctx, discoveryPrompt, doc)
}

// ExtractRates asks the model for the nightly price of every catalog room on
// the given date and returns the raw model output.
func (c *Client) ExtractRates(ctx context.Context, doc string, hotel string, date string, rooms []string) (string, error) {
	return c.complete(ctx, pricingPrompt(hotel, date, rooms), doc)
}

// chatRequest is the OpenAI chat completion request body.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse is the minimal chat completion response we need.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// chatErrorResponse captures an API error from the provider.
type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// complete performs one chat-completions call: system prompt carries the
// extraction instruction, user message carries the prepared document.
func (c *Client) complete(ctx context.Context, instruction string, doc string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", models.NewScrapeError(models.ErrCodeLLMFailure, "rate limit wait aborted", err)
	}

	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: instruction},
			{Role: "user", Content: doc},
		},
		Temperature:    0,
		MaxTokens:      c.cfg.MaxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", models.NewScrapeError(models.ErrCodeLLMFailure, "extraction request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", models.NewScrapeError(models.ErrCodeLLMFailure, "failed to read extraction response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyError(resp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", models.NewScrapeError(models.ErrCodeLLMFailure, "failed to parse extraction response", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", models.NewScrapeError(models.ErrCodeLLMFailure, "model returned no choices", nil)
	}

	c.metrics.AddTokens(chatResp.Usage.PromptTokens, chatResp.Usage.CompletionTokens)
	slog.Debug("llm: completion finished",
		"model", c.cfg.Model,
		"prompt_tokens", chatResp.Usage.PromptTokens,
		"completion_tokens", chatResp.Usage.CompletionTokens,
	)

	return chatResp.Choices[0].Message.Content, nil
}

// classifyError maps provider HTTP status codes to scrape error codes.
func classifyError(statusCode int, body []byte) *models.ScrapeError {
	var errResp chatErrorResponse
	msg := "LLM API error"
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		msg = errResp.Error.Message
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return models.NewScrapeError(models.ErrCodeLLMAuthFailure, msg, nil)
	case statusCode == http.StatusTooManyRequests:
		return models.NewScrapeError(models.ErrCodeLLMRateLimited, msg, nil)
	default:
		return models.NewScrapeError(models.ErrCodeLLMFailure, fmt.Sprintf("LLM API returned %d: %s", statusCode, msg), nil)
	}
}
