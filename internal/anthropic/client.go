// Package anthropic is a small client for the Messages API, used by the
// event parser.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultAPIURL = "https://api.anthropic.com/v1/messages"
	apiVersion    = "2023-06-01"
)

type Client struct {
	apiKey     string
	model      string
	apiURL     string
	maxRetries int
	retryWait  time.Duration
	client     *http.Client
}

type Option func(*Client)

// WithHTTPTimeout bounds a single HTTP attempt.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.Timeout = d }
}

// WithRetries sets how many times an overloaded or rate-limited call is
// retried, and the wait used when the server sends no Retry-After.
func WithRetries(n int, wait time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = n
		c.retryWait = wait
	}
}

func NewClient(apiKey, model string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		model:      model,
		apiURL:     defaultAPIURL,
		maxRetries: 1,
		retryWait:  500 * time.Millisecond,
		client:     &http.Client{Timeout: 20 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetTestTransport points the client at a local server.
func (c *Client) SetTestTransport(url string) {
	c.apiURL = url
}

func (c *Client) Model() string { return c.model }

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type response struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

// APIError is a non-200 answer from the API.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
	retryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error %d: %s: %s", e.StatusCode, e.Type, e.Message)
}

// Retryable reports rate limiting, overload and server errors.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == 529 || e.StatusCode >= 500
}

// Complete sends one conversation and returns the first text block of the
// reply. Parsing wants deterministic answers, so temperature is zero.
func (c *Client) Complete(ctx context.Context, system string, messages []Message, maxTokens int) (string, error) {
	body, err := json.Marshal(request{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  messages,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	for attempt := 0; ; attempt++ {
		text, err := c.do(ctx, body)
		var apiErr *APIError
		if err == nil || !errors.As(err, &apiErr) || !apiErr.Retryable() || attempt >= c.maxRetries {
			return text, err
		}

		wait := c.retryWait
		if apiErr.retryAfter > 0 {
			wait = apiErr.retryAfter
		}
		select {
		case <-ctx.Done():
			return "", err
		case <-time.After(wait):
		}
	}
}

func (c *Client) do(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		var env struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(respBody, &env) == nil && env.Error.Type != "" {
			apiErr.Type, apiErr.Message = env.Error.Type, env.Error.Message
		}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			apiErr.retryAfter = time.Duration(secs) * time.Second
		}
		return "", apiErr
	}

	var apiResp response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	for _, block := range apiResp.Content {
		if block.Type == "text" || block.Type == "" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("empty response content (stop_reason %q)", apiResp.StopReason)
}
