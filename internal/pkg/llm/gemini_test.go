package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *GeminiClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &GeminiClient{APIKey: "test-key", Model: "gemini-test", BaseURL: srv.URL, HTTPClient: srv.Client()}
}

func TestGenerateReturnsFirstCandidateText(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]interface{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"replies\":[\"hi\"]}"}]}}]}`))
	})

	text, err := c.Generate(context.Background(), Request{Prompt: "p", Variations: 2})
	require.NoError(t, err)
	assert.Equal(t, `{"replies":["hi"]}`, text)
	assert.Equal(t, "/v1beta/models/gemini-test:generateContent", gotPath)
	assert.Equal(t, "test-key", gotKey)

	cfg := gotBody["generationConfig"].(map[string]interface{})
	assert.Equal(t, "application/json", cfg["responseMimeType"])
}

func TestGenerateErrors(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		c := &GeminiClient{}
		_, err := c.Generate(context.Background(), Request{Prompt: "p"})
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("non 2xx", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
		})
		_, err := c.Generate(context.Background(), Request{Prompt: "p"})
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
		assert.Equal(t, "quota exceeded", apiErr.Message)
	})

	t.Run("empty text", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"  "}]}}]}`))
		})
		_, err := c.Generate(context.Background(), Request{Prompt: "p"})
		assert.ErrorIs(t, err, ErrEmptyOutput)
	})

	t.Run("cancelled context", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.Generate(ctx, Request{Prompt: "p"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
