package embedder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// VertexAIConfig configures a Gemini/Vertex AI embedding session.
type VertexAIConfig struct {
	APIKey    string
	ProjectID string
	Location  string
	Model     string
	Dim       int
}

// VertexAI is a remote Embedder session backed by Google's Gemini API,
// adapted from the teacher's internal/ai.VertexAIClient with Summarize
// dropped (see OpenAI for rationale).
type VertexAI struct {
	cfg    VertexAIConfig
	client *genai.Client
}

func NewVertexAI(ctx context.Context, cfg VertexAIConfig) (*VertexAI, error) {
	if cfg.Model == "" {
		cfg.Model = "text-embedding-005"
	}
	if cfg.Dim == 0 {
		cfg.Dim = 768
	}
	if cfg.Location == "" && strings.TrimSpace(cfg.APIKey) == "" {
		cfg.Location = "us-central1"
	}

	cc := genai.ClientConfig{Backend: genai.BackendVertexAI}
	if strings.TrimSpace(cfg.APIKey) != "" {
		cc.APIKey = cfg.APIKey
	}
	if strings.TrimSpace(cfg.ProjectID) != "" {
		cc.Project = cfg.ProjectID
	}
	if strings.TrimSpace(cfg.Location) != "" {
		cc.Location = cfg.Location
	}

	client, err := genai.NewClient(ctx, &cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &VertexAI{cfg: cfg, client: client}, nil
}

func (c *VertexAI) Dimension() int { return c.cfg.Dim }

func (c *VertexAI) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	cfg := genai.EmbedContentConfig{TaskType: "RETRIEVAL_DOCUMENT"}
	res, err := c.client.Models.EmbedContent(ctx, c.cfg.Model, genai.Text(text), &cfg)
	if err != nil {
		return nil, &Error{Msg: "embedding failed", Err: err}
	}
	if res == nil || len(res.Embeddings) == 0 {
		return nil, &Error{Msg: "no embedding returned", Err: errors.New("empty response")}
	}
	return res.Embeddings[0].Values, nil
}

// Embed embeds each text with its own request; the Gemini embeddings API
// used here does not batch, so the pool's session-level parallelism (not
// an in-request batch) is what gives this back its throughput.
func (c *VertexAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := c.EmbedSingle(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

var _ Embedder = (*VertexAI)(nil)
