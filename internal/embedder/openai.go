package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// OpenAIConfig configures one HTTP-backed embedding session. Each session
// owns its own http.Client the way the teacher's OpenAIClient did, so the
// pool can run N of them concurrently without shared mutable state.
type OpenAIConfig struct {
	APIKey string
	Model  string
	Dim    int
}

// OpenAI is a remote Embedder session calling the OpenAI embeddings
// endpoint, adapted from the teacher's internal/ai.OpenAIClient with the
// Summarize capability dropped (summarization is not part of the core's
// domain; spec §3 embeds chunk_content directly).
type OpenAI struct {
	cfg  OpenAIConfig
	http *http.Client
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dim == 0 {
		switch cfg.Model {
		case "text-embedding-3-large":
			cfg.Dim = 3072
		default:
			cfg.Dim = 1536
		}
	}
	return &OpenAI{
		cfg:  cfg,
		http: &http.Client{Timeout: 20 * time.Second},
	}
}

func (c *OpenAI) Dimension() int { return c.cfg.Dim }

func (c *OpenAI) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.cfg.APIKey == "" {
		return nil, &Error{Msg: "PROVIDER_API_KEY unset"}
	}

	payload := map[string]any{
		"input": texts,
		"model": c.cfg.Model,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Msg: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://api.openai.com/v1/embeddings", bytes.NewReader(b))
	if err != nil {
		return nil, &Error{Msg: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Msg: "embeddings request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Msg: "openai embedding non-200", Err: errors.New(resp.Status)}
	}

	var out struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &Error{Msg: "decode response", Err: err}
	}
	if len(out.Data) != len(texts) {
		return nil, &Error{Msg: "embedding count mismatch"}
	}
	vecs := make([][]float32, len(texts))
	for _, d := range out.Data {
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

var _ Embedder = (*OpenAI)(nil)
