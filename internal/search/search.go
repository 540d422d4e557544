// Package search implements the query engine (C8): resolve a scope of
// collections via C5, embed the query text via C1, fan the search out
// concurrently over C4, merge by score, and apply a deterministic
// tie-break (spec §4.8).
package search

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/karthik-sk/codesearch-core/internal/collection"
	"github.com/karthik-sk/codesearch-core/internal/embedder"
	"github.com/karthik-sk/codesearch-core/internal/registry"
	"github.com/karthik-sk/codesearch-core/internal/vectorstore"
	"github.com/karthik-sk/codesearch-core/pkg/models"
)

// Scope selects which repositories' collections a query targets (spec
// §4.8).
type Scope int

const (
	// ScopeActive targets a single named repository's active branch.
	ScopeActive Scope = iota
	// ScopeNamed targets an explicit list of repository names, each at its
	// own active branch.
	ScopeNamed
	// ScopeAll targets every registered repository's active branch.
	ScopeAll
)

// Query is one search request (spec §4.8 "Inputs").
type Query struct {
	Text string
	Limit int

	Language    string
	ElementType string

	Scope Scope
	// Repo names ScopeActive's single target repository.
	Repo string
	// Repos names ScopeNamed's target repository list.
	Repos []string

	// Branch overrides the resolved repository's active branch when set.
	Branch string

	TenantID string
}

// Engine is the query engine (C8).
type Engine struct {
	Registry *registry.Registry
	Store    vectorstore.Store
	Embedder embedder.Embedder
	Namer    collection.Namer
}

type target struct {
	collection string
	branch     string
}

// Search runs q against the resolved collection scope and returns at most
// q.Limit hits ordered by score descending, ties broken by
// (collection_name, file_path, start_line) for determinism (spec §4.8 step
// 6). An empty result set is a valid, successful response (spec §4.8).
func (e *Engine) Search(ctx context.Context, q Query) ([]models.ScoredPoint, error) {
	targets, err := e.resolveTargets(q)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, nil
	}

	vector, err := e.Embedder.EmbedSingle(ctx, strings.TrimSpace(q.Text))
	if err != nil {
		return nil, err
	}

	limit := uint64(q.Limit)
	if limit == 0 {
		limit = 10
	}

	results := make([][]models.ScoredPoint, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			filter := e.buildFilter(t.branch, q)
			hits, err := e.Store.Search(gctx, t.collection, vector, limit, filter)
			if err != nil {
				return err
			}
			results[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []models.ScoredPoint
	for _, hits := range results {
		merged = append(merged, hits...)
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		if merged[i].CollectionName != merged[j].CollectionName {
			return merged[i].CollectionName < merged[j].CollectionName
		}
		if merged[i].Payload.FilePath != merged[j].Payload.FilePath {
			return merged[i].Payload.FilePath < merged[j].Payload.FilePath
		}
		return merged[i].Payload.StartLine < merged[j].Payload.StartLine
	})

	if uint64(len(merged)) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func (e *Engine) buildFilter(branch string, q Query) vectorstore.Filter {
	f := vectorstore.Eq("branch", branch)
	if q.Language != "" {
		f = f.And("language", q.Language)
	}
	if q.ElementType != "" {
		f = f.And("element_type", q.ElementType)
	}
	if q.TenantID != "" {
		f = f.And("tenant_id", q.TenantID)
	}
	return f
}

func (e *Engine) resolveTargets(q Query) ([]target, error) {
	switch q.Scope {
	case ScopeActive:
		repo, err := e.Registry.Get(q.Repo)
		if err != nil {
			return nil, err
		}
		return e.targetsForRepo(repo, q.Branch), nil
	case ScopeNamed:
		var out []target
		for _, name := range q.Repos {
			repo, err := e.Registry.Get(name)
			if err != nil {
				return nil, err
			}
			out = append(out, e.targetsForRepo(repo, q.Branch)...)
		}
		return out, nil
	case ScopeAll:
		var out []target
		for _, repo := range e.Registry.List() {
			out = append(out, e.targetsForRepo(repo, q.Branch)...)
		}
		return out, nil
	default:
		return nil, nil
	}
}

func (e *Engine) targetsForRepo(repo models.Repository, branchOverride string) []target {
	branch := repo.ActiveBranch
	if branchOverride != "" {
		branch = branchOverride
	}
	if branch == "" {
		branch = repo.DefaultBranch
	}
	if branch == "" {
		return nil
	}
	collName := e.Namer.Name(repo.TenantID, repo.Name, branchOrEmpty(repo, branch))
	return []target{{collection: collName, branch: branch}}
}

// branchOrEmpty mirrors internal/sync's legacy-naming rule: the default
// branch maps to the unbranched collection name so single-branch
// repositories keep addressing the collection they were created with
// before multi-branch support existed.
func branchOrEmpty(repo models.Repository, branch string) string {
	if branch == repo.DefaultBranch {
		return ""
	}
	return branch
}
