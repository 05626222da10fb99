package generation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClient_Complete_ParsesChoiceAndUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"stable"}}],"usage":{"total_tokens":17}}`))
	}))
	defer srv.Close()

	client := &OpenAIClient{
		sdk:   openai.NewClient(option.WithAPIKey("test"), option.WithBaseURL(srv.URL)),
		model: "gpt-4o",
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	content, tokens, err := client.Complete(ctx, "system", "user", 0.0)

	require.NoError(t, err)
	require.Equal(t, "stable", content)
	require.Equal(t, 17, tokens)
}
