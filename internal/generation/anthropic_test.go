package generation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/require"
)

func TestAnthropicClient_Complete_ParsesTextAndUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-3-5-sonnet-latest",
			"content": [{"type": "text", "text": "stable"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 7}
		}`))
	}))
	defer srv.Close()

	client := &AnthropicClient{
		client:    anthropic.NewClient(option.WithAPIKey("test"), option.WithBaseURL(srv.URL)),
		model:     "claude-3-5-sonnet-latest",
		maxTokens: defaultMaxTokens,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	content, tokens, err := client.Complete(ctx, "system", "user", 0.0)

	require.NoError(t, err)
	require.Equal(t, "stable", content)
	require.Equal(t, 17, tokens)
}
