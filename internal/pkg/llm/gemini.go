package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuelReschke/ReplyFox/internal/pkg/env"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	defaultGeminiModel   = "gemini-2.0-flash"
)

var (
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("GEMINI_API_KEY is not configured")
	// ErrEmptyOutput is returned when the model answered without text.
	ErrEmptyOutput = errors.New("model returned no text")
)

// APIError is a non-2xx answer from the model API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini request failed: status=%d message=%s", e.StatusCode, e.Message)
}

// Request is a single prompt asking for a fixed number of replies.
type Request struct {
	Prompt     string
	Variations int
}

type GeminiClient struct {
	APIKey  string
	Model   string
	BaseURL string

	HTTPClient *http.Client
}

func NewGeminiClientFromEnv() *GeminiClient {
	return &GeminiClient{
		APIKey:  strings.TrimSpace(env.GetEnv("GEMINI_API_KEY", "")),
		Model:   strings.TrimSpace(env.GetEnv("GEMINI_MODEL", defaultGeminiModel)),
		BaseURL: strings.TrimRight(strings.TrimSpace(env.GetEnv("GEMINI_BASE_URL", defaultGeminiBaseURL)), "/"),
		HTTPClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

func (c *GeminiClient) Name() string {
	if c.Model == "" {
		return defaultGeminiModel
	}
	return c.Model
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig map[string]interface{} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate sends the prompt and returns the raw text of the first candidate.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	if c.APIKey == "" {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: req.Prompt}}}},
		GenerationConfig: map[string]interface{}{
			"temperature":      0.7,
			"topP":             0.9,
			"responseMimeType": "application/json",
			"responseSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"replies": map[string]interface{}{
						"type":     "array",
						"minItems": req.Variations,
						"maxItems": req.Variations,
						"items":    map[string]string{"type": "string"},
					},
				},
				"required": []string{"replies"},
			},
		},
	})
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.baseURL(), url.PathEscape(c.Name()), url.QueryEscape(c.APIKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var out geminiResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return "", &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode gemini response: %w", decodeErr)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyOutput
	}
	text := out.Candidates[0].Content.Parts[0].Text
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyOutput
	}
	return text, nil
}

func (c *GeminiClient) baseURL() string {
	if c.BaseURL == "" {
		return defaultGeminiBaseURL
	}
	return c.BaseURL
}

func (c *GeminiClient) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}
