package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client is a Messages API client. Every call first takes a rate-limiter
// permit sized by an estimate of the request cost, then runs under the retry
// policy, so transient upstream failures are invisible to callers until the
// policy is exhausted.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	temp       *float64

	limiter *RateLimiter
	retry   RetryPolicy
	logger  *slog.Logger
}

// ClientOption represents the options for the Client.
type ClientOption func(*Client)

// NewClient creates a Messages API client. The API key is required;
// everything else has defaults.
func NewClient(apiKey string, options ...ClientOption) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}

	c := &Client{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		model:      DefaultModel,
		maxTokens:  DefaultMaxTokens,
		retry:      DefaultRetryPolicy(),
		logger:     slog.Default(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithBaseURL overrides the API endpoint, mainly for tests.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = sanitizeBaseURL(baseURL)
	}
}

// WithModel sets the default model for requests that don't specify one.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// WithMaxTokens sets the default response token budget.
func WithMaxTokens(maxTokens int) ClientOption {
	return func(c *Client) {
		c.maxTokens = maxTokens
	}
}

// WithTemperature sets the sampling temperature for all requests.
func WithTemperature(temp float64) ClientOption {
	return func(c *Client) {
		c.temp = &temp
	}
}

// WithRateLimiter attaches the shared process-wide limiter.
func WithRateLimiter(limiter *RateLimiter) ClientOption {
	return func(c *Client) {
		c.limiter = limiter
	}
}

// WithRetryPolicy overrides the transient-failure retry policy.
func WithRetryPolicy(policy RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retry = policy
	}
}

// WithClientLogger sets the logger for the client.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger.With(slog.String("component", "claude"))
	}
}

// Model returns the client's default model.
func (c *Client) Model() string {
	return c.model
}

// CreateMessage performs one Messages API call, filling in the client's
// defaults for any zero-valued request fields. It suspends on the rate
// limiter before sending and retries transient failures per the policy.
func (c *Client) CreateMessage(ctx context.Context, req MessageRequest) (MessageResponse, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = c.maxTokens
	}
	if req.Temperature == nil {
		req.Temperature = c.temp
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return MessageResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx, EstimateTokens(payload)); err != nil {
			return MessageResponse{}, fmt.Errorf("rate limiter: %w", err)
		}
	}

	var resp MessageResponse
	err = c.retry.retry(ctx, func() error {
		var callErr error
		resp, callErr = c.doCall(ctx, payload)
		if callErr != nil {
			c.logger.Warn("upstream call failed", slog.String("err", callErr.Error()))
		}
		return callErr
	})
	if err != nil {
		return MessageResponse{}, err
	}

	c.logger.Debug("upstream call completed",
		slog.String("model", req.Model),
		slog.String("stopReason", resp.StopReason),
		slog.Int("inputTokens", resp.Usage.InputTokens),
		slog.Int("outputTokens", resp.Usage.OutputTokens))

	return resp, nil
}

func (c *Client) doCall(ctx context.Context, payload []byte) (MessageResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+messagesPath, bytes.NewReader(payload))
	if err != nil {
		return MessageResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("X-API-Key", c.apiKey)
	httpReq.Header.Set("Anthropic-Version", anthropicVersion)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return MessageResponse{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= http.StatusMultipleChoices {
		return MessageResponse{}, readAPIError(httpResp)
	}

	var resp MessageResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return MessageResponse{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp, nil
}

func readAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return APIError{StatusCode: resp.StatusCode, Message: "failed to read error body"}
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return APIError{
		StatusCode: resp.StatusCode,
		Type:       errResp.Error.Type,
		Message:    errResp.Error.Message,
	}
}

func sanitizeBaseURL(base string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(base), "/")
	if trimmed == "" {
		return defaultBaseURL
	}
	return trimmed
}
