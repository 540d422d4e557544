package search_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karthik-sk/codesearch-core/internal/collection"
	"github.com/karthik-sk/codesearch-core/internal/embedder"
	"github.com/karthik-sk/codesearch-core/internal/registry"
	"github.com/karthik-sk/codesearch-core/internal/search"
	"github.com/karthik-sk/codesearch-core/internal/vectorstore"
	"github.com/karthik-sk/codesearch-core/pkg/models"
)

func newTestEngine(t *testing.T, repos []models.Repository) (*search.Engine, *vectorstore.MemoryStore, embedder.Embedder) {
	t.Helper()
	store := vectorstore.NewMemoryStore()
	emb := embedder.NewStub(16)
	namer := collection.New(collection.DefaultPrefix, collection.DisciplinePayload)
	reg := registry.New(repos, namer, store, registry.NopPersister{})
	return &search.Engine{Registry: reg, Store: store, Embedder: emb, Namer: namer}, store, emb
}

func seedPoint(t *testing.T, ctx context.Context, store *vectorstore.MemoryStore, emb embedder.Embedder, collName string, p models.Payload) {
	t.Helper()
	require.NoError(t, store.CreateCollection(ctx, collName, emb.Dimension(), vectorstore.MetricCosine))
	vec, err := emb.EmbedSingle(ctx, p.ChunkContent)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, collName, []models.Point{{ID: "pt-" + p.FilePath, Vector: vec, Payload: p}}))
}

func TestSearchActiveScopeFindsMatch(t *testing.T) {
	ctx := context.Background()
	repos := []models.Repository{{Name: "acme", DefaultBranch: "main", ActiveBranch: "main", TrackedBranches: []string{"main"}}}
	eng, store, emb := newTestEngine(t, repos)

	collName := collection.New(collection.DefaultPrefix, collection.DisciplinePayload).Name("", "acme", "")
	seedPoint(t, ctx, store, emb, collName, models.Payload{
		FilePath: "a.go", StartLine: 1, EndLine: 3, Language: "go",
		ElementType: "function", ChunkContent: "fibonacci function", Branch: "main", CommitHash: "c1",
	})

	hits, err := eng.Search(ctx, search.Query{Text: "fibonacci function", Limit: 5, Scope: search.ScopeActive, Repo: "acme"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a.go", hits[0].Payload.FilePath)
}

func TestSearchFilterCorrectness(t *testing.T) {
	ctx := context.Background()
	repos := []models.Repository{{Name: "acme", DefaultBranch: "main", ActiveBranch: "main", TrackedBranches: []string{"main"}}}
	eng, store, emb := newTestEngine(t, repos)

	collName := collection.New(collection.DefaultPrefix, collection.DisciplinePayload).Name("", "acme", "")
	seedPoint(t, ctx, store, emb, collName, models.Payload{
		FilePath: "a.go", StartLine: 1, EndLine: 3, Language: "go",
		ElementType: "function", ChunkContent: "alpha", Branch: "main", CommitHash: "c1",
	})
	seedPoint(t, ctx, store, emb, collName, models.Payload{
		FilePath: "b.py", StartLine: 1, EndLine: 3, Language: "python",
		ElementType: "function", ChunkContent: "alpha", Branch: "main", CommitHash: "c1",
	})

	hits, err := eng.Search(ctx, search.Query{
		Text: "alpha", Limit: 10, Scope: search.ScopeActive, Repo: "acme", Language: "python",
	})
	require.NoError(t, err)
	for _, h := range hits {
		assert.Equal(t, "python", h.Payload.Language)
	}
}

func TestSearchNoCrossBranchLeakage(t *testing.T) {
	ctx := context.Background()
	repos := []models.Repository{{
		Name: "acme", DefaultBranch: "main", ActiveBranch: "main",
		TrackedBranches: []string{"main", "dev"},
	}}
	eng, store, emb := newTestEngine(t, repos)
	namer := collection.New(collection.DefaultPrefix, collection.DisciplinePayload)

	mainColl := namer.Name("", "acme", "")
	devColl := namer.Name("", "acme", "dev")
	seedPoint(t, ctx, store, emb, mainColl, models.Payload{
		FilePath: "a.go", StartLine: 1, EndLine: 1, Language: "go",
		ElementType: "function", ChunkContent: "shared text", Branch: "main", CommitHash: "c1",
	})
	seedPoint(t, ctx, store, emb, devColl, models.Payload{
		FilePath: "a.go", StartLine: 1, EndLine: 1, Language: "go",
		ElementType: "function", ChunkContent: "shared text", Branch: "dev", CommitHash: "c2",
	})

	hits, err := eng.Search(ctx, search.Query{Text: "shared text", Limit: 10, Scope: search.ScopeActive, Repo: "acme"})
	require.NoError(t, err)
	for _, h := range hits {
		assert.Equal(t, "main", h.Payload.Branch)
	}
}

// TestSearchDeterministicTieBreak covers P7: duplicate scores across two
// synthetic collections must resolve to the same ordering on every run.
func TestSearchDeterministicTieBreak(t *testing.T) {
	ctx := context.Background()
	repos := []models.Repository{
		{Name: "zeta", DefaultBranch: "main", ActiveBranch: "main", TrackedBranches: []string{"main"}},
		{Name: "alpha", DefaultBranch: "main", ActiveBranch: "main", TrackedBranches: []string{"main"}},
	}
	eng, store, emb := newTestEngine(t, repos)
	namer := collection.New(collection.DefaultPrefix, collection.DisciplinePayload)

	zetaColl := namer.Name("", "zeta", "")
	alphaColl := namer.Name("", "alpha", "")
	// Identical chunk content in both collections yields identical cosine
	// scores against the same query, forcing the tie-break path.
	seedPoint(t, ctx, store, emb, zetaColl, models.Payload{
		FilePath: "z.go", StartLine: 1, EndLine: 1, Language: "go",
		ElementType: "function", ChunkContent: "duplicate text", Branch: "main", CommitHash: "c1",
	})
	seedPoint(t, ctx, store, emb, alphaColl, models.Payload{
		FilePath: "z.go", StartLine: 1, EndLine: 1, Language: "go",
		ElementType: "function", ChunkContent: "duplicate text", Branch: "main", CommitHash: "c1",
	})

	var firstOrder []string
	for i := 0; i < 5; i++ {
		hits, err := eng.Search(ctx, search.Query{
			Text: "duplicate text", Limit: 10, Scope: search.ScopeAll,
		})
		require.NoError(t, err)
		require.Len(t, hits, 2)

		order := []string{hits[0].CollectionName, hits[1].CollectionName}
		if i == 0 {
			firstOrder = order
			// alpha's collection name sorts lexicographically before zeta's.
			assert.Equal(t, alphaColl, order[0])
			assert.Equal(t, zetaColl, order[1])
		} else {
			assert.Equal(t, firstOrder, order)
		}
	}
}

func TestSearchEmptyResultIsSuccessful(t *testing.T) {
	ctx := context.Background()
	repos := []models.Repository{{Name: "acme", DefaultBranch: "main", ActiveBranch: "main"}}
	eng, _, _ := newTestEngine(t, repos)

	hits, err := eng.Search(ctx, search.Query{Text: "nothing here", Limit: 5, Scope: search.ScopeActive, Repo: "acme"})
	require.NoError(t, err)
	assert.Empty(t, hits)
}
