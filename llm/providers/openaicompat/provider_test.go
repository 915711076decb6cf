package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccc1994/Chaos/llm"
	"github.com/ccc1994/Chaos/types"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		ProviderName: "test_compat",
		APIKey:       "sk-test",
		BaseURL:      srv.URL,
	}, nil)
}

func TestProvider_Completion(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req oaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "qwen-max", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		json.NewEncoder(w).Encode(oaResponse{
			ID:    "cmpl-1",
			Model: "qwen-max",
			Choices: []oaChoice{{
				FinishReason: "stop",
				Message:      oaMessage{Role: "assistant", Content: "the plan"},
			}},
			Usage: oaUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		})
	})

	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Model: "qwen-max",
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "you are the architect"},
			{Role: llm.RoleUser, Content: "design it"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "the plan", resp.First().Content)
	assert.Equal(t, "test_compat", resp.Provider)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestProvider_CompletionToolCalls(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var req oaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Tools, 1)
		assert.Equal(t, "function", req.Tools[0].Type)
		assert.Equal(t, "read_file", req.Tools[0].Function.Name)
		assert.Equal(t, "auto", req.ToolChoice)

		json.NewEncoder(w).Encode(oaResponse{
			Choices: []oaChoice{{
				FinishReason: "tool_calls",
				Message: oaMessage{
					Role: "assistant",
					ToolCalls: []oaToolCall{{
						ID:   "call_1",
						Type: "function",
						Function: oaFunction{
							Name:      "read_file",
							Arguments: json.RawMessage(`{"path":"main.go"}`),
						},
					}},
				},
			}},
		})
	})

	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Model:      "qwen-max",
		Messages:   []llm.Message{{Role: llm.RoleUser, Content: "read the file"}},
		Tools:      []llm.ToolSchema{{Name: "read_file", Parameters: json.RawMessage(`{"type":"object"}`)}},
		ToolChoice: "auto",
	})
	require.NoError(t, err)

	calls := resp.First().ToolCalls
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "read_file", calls[0].Name)
	assert.JSONEq(t, `{"path":"main.go"}`, string(calls[0].Arguments))
}

func TestProvider_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status    int
		wantCode  types.ErrorCode
		retryable bool
	}{
		{http.StatusUnauthorized, types.ErrUnauthorized, false},
		{http.StatusForbidden, types.ErrUnauthorized, false},
		{http.StatusNotFound, types.ErrModelNotFound, false},
		{http.StatusTooManyRequests, types.ErrRateLimited, true},
		{http.StatusBadRequest, types.ErrInvalidRequest, false},
		{http.StatusGatewayTimeout, types.ErrUpstreamTimeout, true},
		{http.StatusInternalServerError, types.ErrUpstreamError, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.wantCode), func(t *testing.T) {
			t.Parallel()
			p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":{"message":"upstream says no"}}`))
			})

			_, err := p.Completion(context.Background(), &llm.ChatRequest{
				Model:    "qwen-max",
				Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
			})
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, types.GetErrorCode(err))
			assert.Equal(t, tt.retryable, types.IsRetryable(err))
			assert.Contains(t, err.Error(), "upstream says no")
		})
	}
}

func TestProvider_HealthCheck(t *testing.T) {
	t.Parallel()

	healthy := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		w.Write([]byte(`{"data":[]}`))
	})
	status, err := healthy.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)

	down := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	status, err = down.HealthCheck(context.Background())
	require.Error(t, err)
	assert.False(t, status.Healthy)
}

func TestProvider_DefaultModelFallback(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req oaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "fallback-model", req.Model)
		json.NewEncoder(w).Encode(oaResponse{
			Choices: []oaChoice{{Message: oaMessage{Role: "assistant", Content: "ok"}}},
		})
	}))
	t.Cleanup(srv.Close)

	p := New(Config{APIKey: "sk", BaseURL: srv.URL, DefaultModel: "fallback-model"}, nil)
	_, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
}
