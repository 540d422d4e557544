package embedder

import (
	"context"
	"math"
	"strings"
)

// Stub is a deterministic, network-free Embedder used by tests and by
// deployments that haven't wired a real model yet, mirroring the teacher's
// StubClient: it never fails and never calls out.
type Stub struct {
	dim int
}

func NewStub(dim int) *Stub {
	if dim <= 0 {
		dim = 16
	}
	return &Stub{dim: dim}
}

func (s *Stub) Dimension() int { return s.dim }

// EmbedSingle hashes the text into a fixed-length vector so that
// semantically-similar fixtures (sharing tokens) produce similar vectors,
// which keeps ranking-sensitive tests meaningful without a real model.
func (s *Stub) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, s.dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv32(tok)
		v[int(h)%s.dim] += 1
	}
	normalize(v)
	return v, nil
}

func (s *Stub) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.EmbedSingle(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func fnv32(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}

var _ Embedder = (*Stub)(nil)
