package embed

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// LocalProvider talks to an Ollama server over its native HTTP API.
type LocalProvider struct {
	host       string
	embedModel string
	llmModel   string
	httpClient *http.Client
}

// LocalOption configures the LocalProvider.
type LocalOption func(*LocalProvider)

// WithLocalHTTPClient sets the HTTP client to use.
func WithLocalHTTPClient(client *http.Client) LocalOption {
	return func(p *LocalProvider) {
		p.httpClient = client
	}
}

// NewLocalProvider creates a provider for an Ollama server at host.
func NewLocalProvider(host, embedModel, llmModel string, opts ...LocalOption) *LocalProvider {
	p := &LocalProvider{
		host:       host,
		embedModel: embedModel,
		llmModel:   llmModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Name returns the provider's identifier.
func (p *LocalProvider) Name() string {
	return "local"
}

// EmbedModel returns the embedding model name.
func (p *LocalProvider) EmbedModel() string {
	return p.embedModel
}

// Available reports whether the provider is configured.
func (p *LocalProvider) Available() bool {
	return p.host != "" && p.embedModel != ""
}

// Embed generates an embedding via POST /api/embed.
func (p *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]any{
		"model": p.embedModel,
		"input": text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request; %w", err)
	}

	respBody, err := p.post(ctx, "/api/embed", body)
	if err != nil {
		return nil, err
	}

	var apiResp struct {
		Embeddings [][]float32 `json:"embeddings"`
		Embedding  []float32   `json:"embedding"` // older servers
	}
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response; %w", err)
	}

	if len(apiResp.Embeddings) > 0 {
		return apiResp.Embeddings[0], nil
	}
	if len(apiResp.Embedding) > 0 {
		return apiResp.Embedding, nil
	}
	return nil, fmt.Errorf("no embedding returned")
}

// Chat generates a completion via POST /api/chat.
func (p *LocalProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model":    p.llmModel,
		"messages": messages,
		"stream":   false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request; %w", err)
	}

	respBody, err := p.post(ctx, "/api/chat", body)
	if err != nil {
		return "", err
	}

	var apiResp struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("failed to parse response; %w", err)
	}

	return apiResp.Message.Content, nil
}

// ChatStream streams completion tokens via POST /api/chat with stream=true.
// Ollama streams newline-delimited JSON chunks.
func (p *LocalProvider) ChatStream(ctx context.Context, messages []Message, fn TokenFunc) error {
	body, err := json.Marshal(map[string]any{
		"model":    p.llmModel,
		"messages": messages,
		"stream":   true,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request; %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request; %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

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
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			Done bool `json:"done"`
		}
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}

		if chunk.Message.Content != "" {
			if err := fn(chunk.Message.Content); err != nil {
				return err
			}
		}
		if chunk.Done {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read stream; %w", err)
	}

	return nil
}

// CheckHealth verifies the Ollama server is reachable via GET /api/tags.
func (p *LocalProvider) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", p.host+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create request; %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("server unreachable; %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	return nil
}

// ListModels returns the model names the server has pulled.
func (p *LocalProvider) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.host+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request; %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server unreachable; %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var apiResp struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response; %w", err)
	}

	names := make([]string, 0, len(apiResp.Models))
	for _, m := range apiResp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (p *LocalProvider) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", p.host+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request; %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

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
