package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const describeImagePrompt = "Transcribe all readable text in this image exactly as it appears. " +
	"Then add one short paragraph describing what the image shows. Do not add commentary."

// GeminiClient generates text with a Gemini model.
type GeminiClient struct {
	client *genai.Client
	model  string
	params ChatParams
}

// NewGeminiClient creates a Gemini client authenticated with apiKey.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		model:  model,
		params: DefaultChatParams(),
	}, nil
}

// Name identifies the backend in logs and traces.
func (g *GeminiClient) Name() string {
	return "gemini"
}

// Generate returns the model's text reply to prompt.
func (g *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.generativeModel().GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	return responseText(resp)
}

// DescribeImage transcribes the text in an image and briefly describes it.
// The result is used as the extracted text of image notes.
func (g *GeminiClient) DescribeImage(ctx context.Context, data []byte, mimeType string) (string, error) {
	model := g.generativeModel()
	model.SetTemperature(0.1)

	resp, err := model.GenerateContent(ctx,
		genai.Blob{MIMEType: mimeType, Data: data},
		genai.Text(describeImagePrompt),
	)
	if err != nil {
		return "", fmt.Errorf("gemini describe image: %w", err)
	}
	return responseText(resp)
}

// Close releases the underlying connection.
func (g *GeminiClient) Close() error {
	return g.client.Close()
}

func (g *GeminiClient) generativeModel() *genai.GenerativeModel {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(g.params.Temperature)
	if g.params.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(g.params.MaxTokens))
	}
	return model
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("candidate has no content (finish reason %v)", candidate.FinishReason)
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}

var _ ImageDescriber = (*GeminiClient)(nil)
