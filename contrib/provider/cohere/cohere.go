// Package cohere provides a generation client for the Cohere chat API.
package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/docsage/docsage/llm"
	"github.com/docsage/docsage/message"
)

const cohereAPIURL = "https://api.cohere.ai/v1/chat"

// Config holds Cohere provider configuration.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// DefaultConfig returns default Cohere configuration.
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       "command",
		MaxTokens:   2048,
		Temperature: 0.7,
	}
}

var _ llm.Client = (*Provider)(nil)

// Provider implements llm.Client for Cohere.
type Provider struct {
	config *Config
	client *http.Client
}

// New creates a Cohere provider.
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.Model == "" {
		config.Model = "command"
	}

	return &Provider{
		config: config,
		client: &http.Client{},
	}
}

type cohereMessage struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

type cohereRequest struct {
	Model       string          `json:"model"`
	Messages    []cohereMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

type cohereResponse struct {
	Text  string       `json:"text"`
	Error *cohereError `json:"error,omitempty"`
}

type cohereError struct {
	Message string `json:"message"`
}

// Complete implements llm.Client.
func (p *Provider) Complete(ctx context.Context, messages []*message.Message) (*message.Message, error) {
	if p.config.APIKey == "" {
		return nil, fmt.Errorf("Cohere API key not configured")
	}

	cohereMessages := make([]cohereMessage, len(messages))
	for i, msg := range messages {
		cohereMessages[i] = cohereMessage{
			Role:    string(msg.Role),
			Message: msg.Text(),
		}
	}

	payload := cohereRequest{
		Model:       p.config.Model,
		Messages:    cohereMessages,
		MaxTokens:   p.config.MaxTokens,
		Temperature: p.config.Temperature,
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cohereAPIURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, llm.Transient(fmt.Errorf("failed to send request: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		apiErr := fmt.Errorf("Cohere API error (status %d): %s", httpResp.StatusCode, string(respBody))
		if httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= http.StatusInternalServerError {
			return nil, llm.Transient(apiErr)
		}
		return nil, apiErr
	}

	var resp cohereResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("Cohere API error: %s", resp.Error.Message)
	}

	return message.NewMessage(message.RoleAssistant, resp.Text), nil
}

// SetTemperature updates the temperature setting.
func (p *Provider) SetTemperature(temp float64) {
	p.config.Temperature = temp
}

// SetMaxTokens updates the max tokens setting.
func (p *Provider) SetMaxTokens(max int64) {
	p.config.MaxTokens = int(max)
}

// SetModel updates the model.
func (p *Provider) SetModel(model string) {
	p.config.Model = model
}
