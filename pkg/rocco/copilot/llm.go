// Package copilot – llm.go implements the OpenAI-compatible chat completions
// client used to generate Rocco's replies.
package copilot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Completer produces one model reply for a prepared request.
type Completer interface {
	Complete(ctx context.Context, req *CompletionRequest) (*LLMResponse, error)
}

// CompletionRequest is what the orchestrator hands to the model provider.
type CompletionRequest struct {
	SystemPrompt string
	Turns        []ConversationTurn
	Tools        []ToolDefinition

	// ToolChoice is "auto", "none" or "required". Empty means "auto".
	ToolChoice string
}

// ---------- Client ----------

// LLMClient handles communication with the LLM provider API.
type LLMClient struct {
	baseURL    string
	provider   string
	apiKey     string
	model      string
	fallback   FallbackConfig
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// NewLLMClient creates a new LLM client from config.
func NewLLMClient(cfg *Config, logger *slog.Logger) *LLMClient {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := cfg.API.BaseURL
	if baseURL == "" {
		baseURL = DefaultConfig().API.BaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	provider := DetectProvider(baseURL)
	if provider == "openai" && cfg.API.Provider != "" && cfg.API.Provider != "openai" {
		provider = cfg.API.Provider
	}

	timeout := time.Duration(cfg.API.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &LLMClient{
		baseURL:  baseURL,
		provider: provider,
		apiKey:   cfg.API.APIKey,
		model:    cfg.Model,
		fallback: cfg.Fallback.Effective(),
		timeout:  timeout,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:          10,
				MaxIdleConnsPerHost:   5,
				IdleConnTimeout:       120 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 90 * time.Second,
			},
		},
		logger: logger.With("component", "llm", "provider", provider),
	}
}

// DetectProvider infers the provider from an API base URL.
func DetectProvider(baseURL string) string {
	switch {
	case strings.Contains(baseURL, "api.groq.com"):
		return "groq"
	case strings.Contains(baseURL, "openai.com"):
		return "openai"
	case strings.Contains(baseURL, "openrouter.ai"):
		return "openrouter"
	case strings.Contains(baseURL, "api.x.ai"):
		return "xai"
	case strings.Contains(baseURL, "cerebras.ai"):
		return "cerebras"
	case strings.Contains(baseURL, "mistral.ai"):
		return "mistral"
	case strings.Contains(baseURL, "localhost:11434"),
		strings.Contains(baseURL, "127.0.0.1:11434"),
		strings.Contains(baseURL, "ollama"):
		return "ollama"
	default:
		return "openai" // assume OpenAI-compatible
	}
}

func (c *LLMClient) chatEndpoint() string {
	return c.baseURL + "/chat/completions"
}

// ---------- Wire Types ----------

// chatMessage is one OpenAI-compatible message.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the OpenAI-compatible chat completions request.
type chatRequest struct {
	Model      string           `json:"model"`
	Messages   []chatMessage    `json:"messages"`
	Tools      []ToolDefinition `json:"tools,omitempty"`
	ToolChoice string           `json:"tool_choice,omitempty"`
}

// chatResponse is the OpenAI-compatible chat completions response.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string     `json:"content"`
			ToolCalls []ToolCall `json:"tool_calls,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// ToolDefinition describes a tool available to the LLM.
type ToolDefinition struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionDef describes a callable function exposed to the LLM.
type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall represents a tool invocation requested by the LLM.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the function name and serialized arguments from the LLM.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// LLMResponse holds the parsed response from a chat completion.
type LLMResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        LLMUsage
	ModelUsed    string
}

// LLMUsage holds token usage information from the API response.
type LLMUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ---------- Error Classification ----------

// LLMErrorKind classifies API errors for retry/fallback decisions.
type LLMErrorKind int

const (
	LLMErrorRetryable  LLMErrorKind = iota // generic retryable (transient 5xx, network)
	LLMErrorRateLimit                      // 429
	LLMErrorOverloaded                     // 529 or "overloaded" in body
	LLMErrorTimeout                        // request timeout / deadline exceeded
	LLMErrorAuth                           // 401, 403
	LLMErrorBilling                        // 402 or billing-related in body
	LLMErrorContext                        // context_length_exceeded
	LLMErrorBadRequest                     // 400
	LLMErrorFatal                          // everything else
)

// String returns a human-readable label for the error kind.
func (k LLMErrorKind) String() string {
	switch k {
	case LLMErrorRetryable:
		return "retryable"
	case LLMErrorRateLimit:
		return "rate_limit"
	case LLMErrorOverloaded:
		return "overloaded"
	case LLMErrorTimeout:
		return "timeout"
	case LLMErrorAuth:
		return "auth"
	case LLMErrorBilling:
		return "billing"
	case LLMErrorContext:
		return "context"
	case LLMErrorBadRequest:
		return "bad_request"
	case LLMErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// IsRetryableKind returns true if the error kind warrants retrying.
func (k LLMErrorKind) IsRetryableKind() bool {
	return k == LLMErrorRetryable || k == LLMErrorRateLimit || k == LLMErrorOverloaded || k == LLMErrorTimeout
}

// apiError captures HTTP status, body, and optional Retry-After for 429.
type apiError struct {
	statusCode    int
	body          string
	retryAfterSec int
	model         string
}

func (e *apiError) Error() string {
	if e.model != "" {
		return fmt.Sprintf("%s: API returned %d: %s", e.model, e.statusCode, truncate(e.body, 200))
	}
	return fmt.Sprintf("API returned %d: %s", e.statusCode, truncate(e.body, 200))
}

// Kind classifies the error.
func (e *apiError) Kind() LLMErrorKind { return classifyAPIError(e.statusCode, e.body) }

// classifyAPIError determines the error kind from status code and response body.
func classifyAPIError(statusCode int, body string) LLMErrorKind {
	bodyLower := strings.ToLower(body)

	if strings.Contains(bodyLower, "context_length_exceeded") ||
		strings.Contains(bodyLower, "maximum context length") {
		return LLMErrorContext
	}

	if statusCode == 402 ||
		strings.Contains(bodyLower, "billing") ||
		strings.Contains(bodyLower, "insufficient_quota") ||
		strings.Contains(bodyLower, "payment required") {
		return LLMErrorBilling
	}

	if statusCode == 429 ||
		strings.Contains(bodyLower, "rate_limit") ||
		strings.Contains(bodyLower, "rate limit") ||
		strings.Contains(bodyLower, "too many requests") {
		return LLMErrorRateLimit
	}

	if statusCode == 529 ||
		strings.Contains(bodyLower, "overloaded") ||
		strings.Contains(bodyLower, "capacity") {
		return LLMErrorOverloaded
	}

	if strings.Contains(bodyLower, "timeout") ||
		strings.Contains(bodyLower, "deadline") ||
		strings.Contains(bodyLower, "timed out") {
		return LLMErrorTimeout
	}

	switch statusCode {
	case 400:
		return LLMErrorBadRequest
	case 401, 403:
		return LLMErrorAuth
	default:
		if statusCode >= 500 {
			return LLMErrorRetryable
		}
		return LLMErrorFatal
	}
}

// classifyError maps any completion error to a kind. Transport failures
// without an HTTP status are treated as transient.
func classifyError(err error) LLMErrorKind {
	var apierr *apiError
	if errors.As(err, &apierr) {
		return apierr.Kind()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return LLMErrorTimeout
	}
	if errors.Is(err, context.Canceled) {
		return LLMErrorFatal
	}
	return LLMErrorRetryable
}

// ---------- Public Methods ----------

// Complete sends the request to the primary model, retrying transient errors
// with exponential backoff and falling through the configured fallback models.
func (c *LLMClient) Complete(ctx context.Context, req *CompletionRequest) (*LLMResponse, error) {
	if c.apiKey == "" && c.provider != "ollama" {
		return nil, fmt.Errorf("API key not configured. Set %s or run: rocco setup", GetProviderKeyName(c.provider))
	}

	messages := make([]chatMessage, 0, len(req.Turns)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, t := range req.Turns {
		messages = append(messages, chatMessage{Role: string(t.Role), Content: t.Content})
	}

	toolChoice := req.ToolChoice
	if toolChoice == "" && len(req.Tools) > 0 {
		toolChoice = "auto"
	}

	models := append([]string{c.model}, c.fallback.Models...)

	var lastErr error
	for _, model := range models {
		body := chatRequest{
			Model:      model,
			Messages:   messages,
			Tools:      req.Tools,
			ToolChoice: toolChoice,
		}

		resp, err := c.completeWithRetry(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		kind := classifyError(err)
		switch {
		case ctx.Err() != nil:
			return nil, fmt.Errorf("completion cancelled: %w", ctx.Err())
		case kind.IsRetryableKind():
			var apierr *apiError
			retryAfter := 0
			if errors.As(err, &apierr) {
				retryAfter = apierr.retryAfterSec
			}
			c.logger.Warn("model unavailable, trying next fallback",
				"model", model,
				"kind", kind.String(),
				"retry_after_sec", retryAfter,
				"error", err,
			)
			continue
		default:
			c.logger.Warn("non-retryable LLM error, failing immediately", "model", model, "kind", kind.String(), "error", err)
			return nil, err
		}
	}

	return nil, fmt.Errorf("all models and retries exhausted: %w", lastErr)
}

// completeWithRetry retries one model. Rate limits are not retried on the
// same model.
func (c *LLMClient) completeWithRetry(ctx context.Context, body chatRequest) (*LLMResponse, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Duration(c.fallback.InitialBackoffMs) * time.Millisecond
	eb.MaxInterval = time.Duration(c.fallback.MaxBackoffMs) * time.Millisecond
	eb.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.fallback.MaxRetries)), ctx)

	attempt := 0
	op := func() (*LLMResponse, error) {
		attempt++
		resp, err := c.completeOnce(ctx, body)
		if err == nil {
			return resp, nil
		}
		kind := classifyError(err)
		if kind == LLMErrorRateLimit || !kind.IsRetryableKind() {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Info("retrying after retryable error",
			"model", body.Model,
			"attempt", attempt,
			"backoff_ms", wait.Milliseconds(),
			"error", err,
		)
	}

	return backoff.RetryNotifyWithData(op, policy, notify)
}

// completeOnce performs a single chat completion request.
func (c *LLMClient) completeOnce(ctx context.Context, body chatRequest) (*LLMResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatEndpoint(), bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug("sending chat completion",
		"model", body.Model,
		"messages", len(body.Messages),
		"tools", len(body.Tools),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	bodyStr := string(respBody)

	if resp.StatusCode != http.StatusOK {
		apierr := &apiError{statusCode: resp.StatusCode, body: bodyStr, model: body.Model}
		if resp.StatusCode == http.StatusTooManyRequests {
			if sec, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && sec > 0 {
				apierr.retryAfterSec = sec
			}
		}
		c.logger.Error("API error",
			"model", body.Model,
			"status", resp.StatusCode,
			"body", truncate(bodyStr, 500),
		)
		return nil, apierr
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if chatResp.Error != nil {
		return nil, &apiError{statusCode: resp.StatusCode, body: chatResp.Error.Message, model: body.Model}
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no response from model")
	}

	choice := chatResp.Choices[0]

	c.logger.Info("chat completion done",
		"model", body.Model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", chatResp.Usage.PromptTokens,
		"completion_tokens", chatResp.Usage.CompletionTokens,
		"finish_reason", choice.FinishReason,
		"tool_calls", len(choice.Message.ToolCalls),
	)

	return &LLMResponse{
		Content:      strings.TrimSpace(choice.Message.Content),
		ToolCalls:    choice.Message.ToolCalls,
		FinishReason: choice.FinishReason,
		ModelUsed:    body.Model,
		Usage: LLMUsage{
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:      chatResp.Usage.TotalTokens,
		},
	}, nil
}

// truncate shortens s to at most n bytes for logging.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
