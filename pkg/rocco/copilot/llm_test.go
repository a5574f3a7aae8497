package copilot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// scriptedServer answers chat completions from a per-model script of
// status codes. The last entry repeats.
type scriptedServer struct {
	mu       sync.Mutex
	script   map[string][]int
	calls    []string
	requests []map[string]any
}

func (s *scriptedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	model, _ := body["model"].(string)

	s.mu.Lock()
	s.calls = append(s.calls, model)
	s.requests = append(s.requests, body)
	n := 0
	for _, m := range s.calls {
		if m == model {
			n++
		}
	}
	codes := s.script[model]
	s.mu.Unlock()

	status := http.StatusOK
	if len(codes) > 0 {
		status = codes[min(n, len(codes))-1]
	}

	switch status {
	case http.StatusOK:
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{
				"message": {
					"content": " meow ",
					"tool_calls": [{"id":"c1","type":"function","function":{"name":"playMusic","arguments":"{}"}}]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12}
		}`))
	case http.StatusTooManyRequests:
		w.Header().Set("Retry-After", "7")
		http.Error(w, `{"error":{"message":"rate limit reached"}}`, status)
	default:
		http.Error(w, `{"error":{"message":"boom"}}`, status)
	}
}

func (s *scriptedServer) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *scriptedServer) Request(i int) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[i]
}

func newScriptedClient(t *testing.T, script map[string][]int) (*LLMClient, *scriptedServer) {
	t.Helper()
	s := &scriptedServer{script: script}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.Model = "primary"
	cfg.API.BaseURL = srv.URL
	cfg.API.APIKey = "test-key"
	cfg.Fallback = FallbackConfig{
		Models:           []string{"secondary"},
		MaxRetries:       2,
		InitialBackoffMs: 1,
		MaxBackoffMs:     2,
	}
	return NewLLMClient(cfg, discardLogger()), s
}

func testRequest() *CompletionRequest {
	return &CompletionRequest{
		SystemPrompt: "you are a cat",
		Turns:        []ConversationTurn{{Role: RoleUser, Content: `{"content":"hi"}`}},
		Tools: []ToolDefinition{{
			Type:     "function",
			Function: FunctionDef{Name: "playMusic", Description: "Plays music.", Parameters: json.RawMessage(`{"type":"object"}`)},
		}},
	}
}

func TestLLMClient_RequestAndResponse(t *testing.T) {
	t.Parallel()

	c, s := newScriptedClient(t, nil)
	resp, err := c.Complete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if resp.Content != "meow" {
		t.Errorf("content = %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Function.Name != "playMusic" {
		t.Errorf("tool calls = %+v", resp.ToolCalls)
	}
	if resp.ModelUsed != "primary" || resp.Usage.TotalTokens != 12 {
		t.Errorf("model = %q usage = %+v", resp.ModelUsed, resp.Usage)
	}

	body := s.Request(0)
	if body["tool_choice"] != "auto" {
		t.Errorf("tool_choice = %v, want auto", body["tool_choice"])
	}
	if tools, _ := body["tools"].([]any); len(tools) != 1 {
		t.Errorf("tools = %v", body["tools"])
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", msgs)
	}
	if first, _ := msgs[0].(map[string]any); first["role"] != "system" {
		t.Errorf("first message = %v", first)
	}
}

func TestLLMClient_RetriesTransientErrors(t *testing.T) {
	t.Parallel()

	c, s := newScriptedClient(t, map[string][]int{"primary": {500, 200}})
	resp, err := c.Complete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.ModelUsed != "primary" {
		t.Errorf("model = %q, want primary after retry", resp.ModelUsed)
	}
	if len(s.Calls()) != 2 {
		t.Errorf("calls = %v", s.Calls())
	}
}

func TestLLMClient_RateLimitMovesToFallback(t *testing.T) {
	t.Parallel()

	c, s := newScriptedClient(t, map[string][]int{"primary": {429}})
	resp, err := c.Complete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.ModelUsed != "secondary" {
		t.Errorf("model = %q, want secondary", resp.ModelUsed)
	}
	if got := strings.Join(s.Calls(), ","); got != "primary,secondary" {
		t.Errorf("calls = %s", got)
	}
}

func TestLLMClient_AuthErrorFailsImmediately(t *testing.T) {
	t.Parallel()

	c, s := newScriptedClient(t, map[string][]int{"primary": {401}})
	if _, err := c.Complete(context.Background(), testRequest()); err == nil {
		t.Fatal("expected an error")
	}
	if len(s.Calls()) != 1 {
		t.Errorf("calls = %v, want a single attempt", s.Calls())
	}
}

func TestLLMClient_Exhausted(t *testing.T) {
	t.Parallel()

	c, s := newScriptedClient(t, map[string][]int{"primary": {503}, "secondary": {503}})
	_, err := c.Complete(context.Background(), testRequest())
	if err == nil || !strings.Contains(err.Error(), "exhausted") {
		t.Fatalf("err = %v", err)
	}
	// One attempt plus two retries per model.
	if len(s.Calls()) != 6 {
		t.Errorf("calls = %v", s.Calls())
	}
}

func TestLLMClient_MissingKey(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.API.APIKey = ""
	c := NewLLMClient(cfg, discardLogger())
	_, err := c.Complete(context.Background(), testRequest())
	if err == nil || !strings.Contains(err.Error(), "GROQ_API_KEY") {
		t.Errorf("err = %v", err)
	}
}

func TestClassifyAPIError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		body   string
		want   LLMErrorKind
	}{
		{429, "", LLMErrorRateLimit},
		{400, "rate limit reached for model", LLMErrorRateLimit},
		{529, "", LLMErrorOverloaded},
		{503, "server at capacity", LLMErrorOverloaded},
		{500, "", LLMErrorRetryable},
		{504, "gateway timed out", LLMErrorTimeout},
		{401, "", LLMErrorAuth},
		{403, "", LLMErrorAuth},
		{402, "", LLMErrorBilling},
		{400, "insufficient_quota", LLMErrorBilling},
		{400, "context_length_exceeded", LLMErrorContext},
		{400, "bad tool schema", LLMErrorBadRequest},
		{404, "", LLMErrorFatal},
	}

	for _, tt := range tests {
		if got := classifyAPIError(tt.status, tt.body); got != tt.want {
			t.Errorf("classifyAPIError(%d, %q) = %s, want %s", tt.status, tt.body, got, tt.want)
		}
	}
}

func TestDetectProvider(t *testing.T) {
	t.Parallel()

	for url, want := range map[string]string{
		"https://api.groq.com/openai/v1": "groq",
		"https://api.openai.com/v1":      "openai",
		"https://openrouter.ai/api/v1":   "openrouter",
		"http://localhost:11434/v1":      "ollama",
		"https://llm.example.com/v1":     "openai",
	} {
		if got := DetectProvider(url); got != want {
			t.Errorf("DetectProvider(%q) = %q, want %q", url, got, want)
		}
	}
}
