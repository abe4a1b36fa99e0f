package ai

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

// Completer turns a free-text query into a model response.
type Completer interface {
	Complete(ctx context.Context, query string) (string, error)
}

// Client talks to an OpenAI-compatible responses endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func New(baseURL, apiKey, model string, timeout time.Duration) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("empty base url")
	}
	if model == "" {
		return nil, fmt.Errorf("empty model")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Configured reports whether an API key is present. Without one the
// caller should fall back to the echo response instead of dialing out.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

type responsesRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type responsesReply struct {
	OutputText string `json:"output_text,omitempty"`
	Output     []struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) Complete(ctx context.Context, query string) (string, error) {
	if query == "" {
		return "", fmt.Errorf("empty query")
	}

	body, err := json.Marshal(responsesRequest{Model: c.model, Input: query})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/responses", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	var reply responsesReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if reply.Error != nil && reply.Error.Message != "" {
		return "", fmt.Errorf("upstream: %s", reply.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upstream status %d", resp.StatusCode)
	}

	if reply.OutputText != "" {
		return reply.OutputText, nil
	}
	var sb strings.Builder
	for _, out := range reply.Output {
		for _, part := range out.Content {
			if part.Type == "output_text" || part.Type == "text" {
				sb.WriteString(part.Text)
			}
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("empty completion")
	}
	return sb.String(), nil
}
