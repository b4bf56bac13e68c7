// Package embedding provides the embedding-provider gateway (C3). The
// provider is treated as a remote request/response service (spec §1
// Out-of-scope, §6): POST {model, input, dimensions} -> ordered
// data[].embedding.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/grantradar/grantradar/pkg/config"
	"github.com/grantradar/grantradar/pkg/httpx"
)

// Client generates embeddings for one or more input strings.
type Client interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

type httpClient struct {
	http       *httpx.Client
	baseURL    string
	apiKey     string
	model      string
	dimensions int
}

// New builds an embedding.Client per cfg. baseURL is the provider's POST
// endpoint (e.g. "https://api.openai.com/v1/embeddings").
func New(cfg config.EmbeddingConfig, baseURL string) Client {
	return &httpClient{
		http:       httpx.NewClient(cfg.RequestTimeout),
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

type embedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (c *httpClient) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embedRequest{Model: c.model, Input: inputs, Dimensions: c.dimensions})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}

	vectors := make([][]float32, len(inputs))
	for _, d := range out.Data {
		if d.Index >= 0 && d.Index < len(vectors) {
			vectors[d.Index] = d.Embedding
		}
	}
	return vectors, nil
}
