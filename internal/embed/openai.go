package embed

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	openaiBaseURL        = "https://api.openai.com"
	openaiEmbeddingsPath = "/v1/embeddings"
	openaiChatPath       = "/v1/chat/completions"
)

// RemoteProvider talks to the OpenAI HTTP API.
type RemoteProvider struct {
	apiKey     string
	baseURL    string
	embedModel string
	llmModel   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// RemoteOption configures the RemoteProvider.
type RemoteOption func(*RemoteProvider)

// WithRemoteHTTPClient sets the HTTP client to use.
func WithRemoteHTTPClient(client *http.Client) RemoteOption {
	return func(p *RemoteProvider) {
		p.httpClient = client
	}
}

// WithRemoteBaseURL overrides the API base URL. Primarily used for testing.
func WithRemoteBaseURL(url string) RemoteOption {
	return func(p *RemoteProvider) {
		p.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithRemoteRateLimit sets the request rate limit in requests per minute.
func WithRemoteRateLimit(rpm int) RemoteOption {
	return func(p *RemoteProvider) {
		p.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm)
	}
}

// NewRemoteProvider creates a provider for the OpenAI API.
func NewRemoteProvider(apiKey, embedModel, llmModel string, opts ...RemoteOption) *RemoteProvider {
	p := &RemoteProvider{
		apiKey:     apiKey,
		baseURL:    openaiBaseURL,
		embedModel: embedModel,
		llmModel:   llmModel,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Minute/60), 60),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Name returns the provider's identifier.
func (p *RemoteProvider) Name() string {
	return "remote"
}

// EmbedModel returns the embedding model name.
func (p *RemoteProvider) EmbedModel() string {
	return p.embedModel
}

// Available reports whether the provider is configured.
func (p *RemoteProvider) Available() bool {
	return p.apiKey != ""
}

// Embed generates an embedding via POST /v1/embeddings.
func (p *RemoteProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if !p.Available() {
		return nil, fmt.Errorf("remote provider not available; API key not set")
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed; %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"model": p.embedModel,
		"input": text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request; %w", err)
	}

	respBody, err := p.post(ctx, openaiEmbeddingsPath, body)
	if err != nil {
		return nil, err
	}

	var apiResp struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response; %w", err)
	}

	if len(apiResp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	embedding := make([]float32, len(apiResp.Data[0].Embedding))
	for i, v := range apiResp.Data[0].Embedding {
		embedding[i] = float32(v)
	}

	return embedding, nil
}

// Chat generates a completion via POST /v1/chat/completions.
func (p *RemoteProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if !p.Available() {
		return "", fmt.Errorf("remote provider not available; API key not set")
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait failed; %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"model":    p.llmModel,
		"messages": messages,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request; %w", err)
	}

	respBody, err := p.post(ctx, openaiChatPath, body)
	if err != nil {
		return "", err
	}

	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("failed to parse response; %w", err)
	}

	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("no completion returned")
	}

	return apiResp.Choices[0].Message.Content, nil
}

// ChatStream streams completion tokens via POST /v1/chat/completions with
// stream=true. The API streams SSE frames terminated by a [DONE] sentinel.
func (p *RemoteProvider) ChatStream(ctx context.Context, messages []Message, fn TokenFunc) error {
	if !p.Available() {
		return fmt.Errorf("remote provider not available; API key not set")
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait failed; %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"model":    p.llmModel,
		"messages": messages,
		"stream":   true,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request; %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+openaiChatPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request; %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed; %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			if err := fn(chunk.Choices[0].Delta.Content); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read stream; %w", err)
	}

	return nil
}

// CheckHealth verifies the API key is usable with a minimal embeddings call.
func (p *RemoteProvider) CheckHealth(ctx context.Context) error {
	if !p.Available() {
		return fmt.Errorf("API key not set")
	}

	_, err := p.Embed(ctx, "ping")
	return err
}

func (p *RemoteProvider) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request; %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed; %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response; %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
