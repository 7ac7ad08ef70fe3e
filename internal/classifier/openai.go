package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultOpenAIModel is the OpenAI model used for categorization.
	DefaultOpenAIModel = "gpt-4o-mini"

	defaultOpenAIBaseURL = "https://api.openai.com"
)

// OpenAIClient sends classification requests to the OpenAI Responses API.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOpenAIClient creates an OpenAI client. baseURL may be empty.
func NewOpenAIClient(apiKey, model, baseURL string) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("NewOpenAIClient: api key required")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

type responsesInput struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesRequest struct {
	Model        string           `json:"model"`
	Instructions string           `json:"instructions,omitempty"`
	Input        []responsesInput `json:"input"`
	Text         struct {
		Format map[string]any `json:"format,omitempty"`
	} `json:"text"`
	Temperature *float64 `json:"temperature,omitempty"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
}

type openAIHTTPError struct {
	StatusCode int
	Body       string
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

var answerSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"category":    map[string]any{"type": "string"},
		"subcategory": map[string]any{"type": "string"},
	},
	"required":             []string{"category", "subcategory"},
	"additionalProperties": false,
}

// Send implements Client.
func (c *OpenAIClient) Send(ctx context.Context, systemPrompt string, history []Message) (Response, error) {
	temp := 0.0
	req := responsesRequest{
		Model:        c.model,
		Instructions: systemPrompt,
		Temperature:  &temp,
	}
	for _, m := range history {
		req.Input = append(req.Input, responsesInput{Role: string(m.Role), Content: m.Content})
	}
	req.Text.Format = map[string]any{
		"type":   "json_schema",
		"name":   "transaction_category",
		"schema": answerSchema,
		"strict": true,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("OpenAIClient.Send: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/responses", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("OpenAIClient.Send: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("OpenAIClient.Send: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("OpenAIClient.Send: read body: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return Response{}, &openAIHTTPError{StatusCode: httpResp.StatusCode, Body: string(raw)}
	}

	var out responsesResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Response{}, fmt.Errorf("OpenAIClient.Send: decode response: %w", err)
	}
	if out.Refusal != "" {
		return Response{Raw: out.Refusal}, nil
	}

	text := extractOutputText(out)
	if strings.TrimSpace(text) == "" {
		return Response{}, ErrEmptyResponse
	}
	return ParseResponse(text), nil
}

func extractOutputText(resp responsesResponse) string {
	var out strings.Builder
	for _, item := range resp.Output {
		if item.Type == "message" && item.Role == "assistant" {
			for _, c := range item.Content {
				if c.Type == "output_text" && c.Text != "" {
					out.WriteString(c.Text)
				}
			}
		}
	}
	return out.String()
}
