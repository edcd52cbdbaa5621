package groq

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multimodal-chat-be/pkg/llm"
)

func TestChat(t *testing.T) {
	var gotReq chatRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"pong"}}]}`))
	}))
	defer srv.Close()

	p := NewGroqProvider("secret-key", "")
	p.BaseURL = srv.URL

	answer, err := p.Chat(context.Background(), []llm.Message{
		{Role: "system", Content: "be brief"},
		{Role: "model", Content: "earlier reply"},
		{Role: "user", Content: "ping"},
	}, llm.WithTemperature(0.7), llm.WithMaxTokens(128))
	require.NoError(t, err)

	assert.Equal(t, "pong", answer)
	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, "llama-3.1-8b-instant", gotReq.Model)
	assert.Equal(t, 0.7, gotReq.Temperature)
	assert.Equal(t, 128, gotReq.MaxTokens)

	// "model" role is normalized to the OpenAI-style "assistant".
	require.Len(t, gotReq.Messages, 3)
	assert.Equal(t, "assistant", gotReq.Messages[1].Role)
}

func TestChat_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer srv.Close()

	p := NewGroqProvider("bad-key", "model-x")
	p.BaseURL = srv.URL

	_, err := p.Chat(context.Background(), []llm.Message{{Role: "user", Content: "ping"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestChat_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	p := NewGroqProvider("key", "model-x")
	p.BaseURL = srv.URL

	_, err := p.Chat(context.Background(), []llm.Message{{Role: "user", Content: "ping"}})
	require.Error(t, err)
}
