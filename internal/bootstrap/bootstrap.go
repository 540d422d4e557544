// Package bootstrap wires the ambient collaborators (embedder, vector
// store, registry) from a loaded config.Specification, shared by both
// cmd/indexer and cmd/api so the two binaries agree on provider selection
// and repository seeding the way the teacher's cmd/api and cmd/indexer
// both built an ai.Client from the same ai.ClientConfig.
package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/karthik-sk/codesearch-core/internal/collection"
	"github.com/karthik-sk/codesearch-core/internal/config"
	"github.com/karthik-sk/codesearch-core/internal/embedder"
	"github.com/karthik-sk/codesearch-core/internal/registry"
	"github.com/karthik-sk/codesearch-core/internal/vectorstore"
	"github.com/karthik-sk/codesearch-core/pkg/models"
)

// NewEmbedder selects and constructs a single Embedder session from the
// configured provider, mirroring the teacher's cmd/*/main.go
// provider-switch (openai / vertexai / stub).
func NewEmbedder(ctx context.Context, cfg config.Specification) (embedder.Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return embedder.NewOpenAI(embedder.OpenAIConfig{APIKey: cfg.APIKey, Model: cfg.EmbedModel, Dim: cfg.Dim}), nil
	case "vertexai", "google":
		return embedder.NewVertexAI(ctx, embedder.VertexAIConfig{
			APIKey: cfg.APIKey, ProjectID: cfg.ProjectID, Location: cfg.Location, Model: cfg.EmbedModel, Dim: cfg.Dim,
		})
	case "stub":
		return embedder.NewStub(cfg.Dim), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// NewPool builds a pool of cfg.SessionCount identical embedder sessions
// (spec §6.1 "session count N").
func NewPool(ctx context.Context, cfg config.Specification) (*embedder.Pool, error) {
	n := cfg.SessionCount
	if n <= 0 {
		n = 1
	}
	sessions := make([]embedder.Embedder, n)
	for i := range sessions {
		s, err := NewEmbedder(ctx, cfg)
		if err != nil {
			return nil, err
		}
		sessions[i] = s
	}
	return embedder.NewPool(ctx, sessions)
}

// NewStore dials the configured Qdrant backend.
func NewStore(ctx context.Context, cfg config.Specification) (*vectorstore.QdrantStore, error) {
	return vectorstore.Dial(ctx, cfg.QdrantAddr)
}

// SeedRepositories converts a config-level repository list into
// registry.Repository records. If a registry file already exists on disk
// it takes precedence over the config seed list for a given repo name,
// preserving prior sync state across restarts (the supplemented
// "Repository registry persistence hook").
func SeedRepositories(cfg config.Specification) ([]models.Repository, error) {
	fromFile, err := registry.LoadFile(cfg.RegistryFile)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]models.Repository, len(fromFile))
	for _, r := range fromFile {
		byName[r.Name] = r
	}

	out := make([]models.Repository, 0, len(cfg.Repositories))
	for _, rc := range cfg.Repositories {
		if existing, ok := byName[rc.Name]; ok {
			out = append(out, existing)
			continue
		}
		out = append(out, models.Repository{
			Name:              rc.Name,
			URL:               rc.URL,
			Path:              rc.Path,
			DefaultBranch:     rc.DefaultBranch,
			TrackedBranches:   append([]string(nil), rc.TrackedBranches...),
			ActiveBranch:      firstNonEmpty(rc.ActiveBranch, rc.DefaultBranch),
			RemoteName:        rc.RemoteName,
			SSHKeyPath:        rc.SSHKeyPath,
			SSHKeyPassphrase:  rc.SSHKeyPassphrase,
			LastSyncedCommits: map[string]string{},
			AddedAsLocalPath:  rc.AddedAsLocalPath,
			TargetRef:         rc.TargetRef,
			TenantID:          rc.TenantID,
		})
	}
	return out, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// NamerFromConfig builds the collection namer all packages must share for
// a deployment (spec §4.1 "choose one discipline per deployment and keep
// it consistent").
func NamerFromConfig(cfg config.Specification) collection.Namer {
	return collection.New(cfg.CollectionPrefix, collection.DisciplinePayload)
}
