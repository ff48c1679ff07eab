// Package llm holds the text-generation backends used for answers and insights.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Client is a client for an OpenAI-compatible chat completions API (llama.cpp, vLLM, OpenAI).
type Client struct {
	BaseURL string
	APIKey  string
	Model   string
	Params  ChatParams
	client  *http.Client
}

// NewClient creates a new LLM client.
func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
		Params:  DefaultChatParams(),
		client:  http.DefaultClient,
	}
}

// ChatRequest represents the request payload for chat completions.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float32   `json:"temperature,omitempty"`
}

// ChatChoice represents a single choice in the chat response.
type ChatChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// ChatResponse represents the response from the chat completions API.
type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Choices []ChatChoice `json:"choices"`
}

// Name identifies the backend in logs and traces.
func (c *Client) Name() string {
	return "openai"
}

// Generate sends prompt as a single user message and returns the reply text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.ChatWithMessages(ctx, []Message{{Role: "user", Content: prompt}}, c.Params)
}

// ChatWithMessages sends a chat completion request with an explicit message list.
// An empty params.Model falls back to the client's model.
func (c *Client) ChatWithMessages(ctx context.Context, messages []Message, params ChatParams) (string, error) {
	url := fmt.Sprintf("%s/v1/chat/completions", c.BaseURL)

	model := params.Model
	if model == "" {
		model = c.Model
	}

	payload := ChatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}

	return chatResp.Choices[0].Message.Content, nil
}
