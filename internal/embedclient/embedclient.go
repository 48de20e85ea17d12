// Package embedclient is a thin OpenAI-style embeddings HTTP client,
// modeled on the embedctl subcommand's request/response shape.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client calls an OpenAI-compatible /v1/embeddings endpoint.
type Client struct {
	BaseURL string
	APIKey  string
	Model   string
	HTTP    *http.Client
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 120 * time.Second}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// ErrMissingAPIKey is returned when no credential is configured, which
// callers may report non-fatally (spec's embed_error = "missing_api_key").
var ErrMissingAPIKey = fmt.Errorf("embedclient: missing api key")

// Embed requests a single embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	body, err := json.Marshal(embedRequest{Model: c.Model, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("embedclient: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedclient: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedclient: http: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedclient: %s: %s", resp.Status, string(b))
	}
	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("embedclient: decode: %w", err)
	}
	if len(er.Data) == 0 {
		return nil, fmt.Errorf("embedclient: no data returned")
	}
	return er.Data[0].Embedding, nil
}
