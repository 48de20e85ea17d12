package retrieve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
)

// HTTPReranker calls an external rerank provider (jina or cohere) over
// plain HTTP. Rerank returns an error on any failure; Run treats such an
// error as fail-open, keeping the base RRF order and recording a warning
// in Response.FailOpenWarnings.
type HTTPReranker struct {
	Provider string // "jina" or "cohere"
	BaseURL  string
	APIKey   string
	Model    string
	Client   *http.Client
}

func (h HTTPReranker) httpClient() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	return &http.Client{Timeout: 15 * time.Second}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	TopN      int      `json:"top_n"`
	Documents []string `json:"documents"`
}

type rerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankResponse struct {
	Results []rerankResult `json:"results"`
}

// Rerank issues a single rerank HTTP call and reorders ids by the
// provider's returned relevance score, descending. It returns an error on
// any failure (missing API key, unsupported provider, network/HTTP error,
// malformed response); the caller is expected to fail open on error.
func (h HTTPReranker) Rerank(ctx context.Context, query string, ids []int64, texts []string) ([]int64, error) {
	if h.Provider != "jina" && h.Provider != "cohere" {
		return nil, fmt.Errorf("rerank: unsupported provider %q", h.Provider)
	}
	if h.APIKey == "" {
		return nil, fmt.Errorf("rerank: missing API key")
	}
	reqBody := rerankRequest{Model: h.Model, Query: query, TopN: len(texts), Documents: texts}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("rerank: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("rerank: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.APIKey)

	resp, err := h.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rerank: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("rerank: decode response: %w", err)
	}
	if len(parsed.Results) != len(ids) {
		return nil, fmt.Errorf("rerank: result count %d does not match candidate count %d", len(parsed.Results), len(ids))
	}

	scoreByIndex := make(map[int]float64, len(parsed.Results))
	for _, r := range parsed.Results {
		scoreByIndex[r.Index] = r.RelevanceScore
	}
	order := make([]int, len(ids))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scoreByIndex[order[a]] > scoreByIndex[order[b]]
	})
	out := make([]int64, len(ids))
	for i, idx := range order {
		out[i] = ids[idx]
	}
	return out, nil
}
