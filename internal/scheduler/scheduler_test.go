package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karthik-sk/codesearch-core/internal/chunker"
	"github.com/karthik-sk/codesearch-core/internal/collection"
	"github.com/karthik-sk/codesearch-core/internal/embedder"
	"github.com/karthik-sk/codesearch-core/internal/gitdriver"
	"github.com/karthik-sk/codesearch-core/internal/progress"
	"github.com/karthik-sk/codesearch-core/internal/registry"
	syncpkg "github.com/karthik-sk/codesearch-core/internal/sync"
	"github.com/karthik-sk/codesearch-core/internal/vectorstore"
	"github.com/karthik-sk/codesearch-core/pkg/models"
)

func commitFile(t *testing.T, repo *git.Repository, dir, relPath, content, msg string) string {
	t.Helper()
	full := filepath.Join(dir, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(relPath)
	require.NoError(t, err)
	hash, err := wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "t", Email: "t@example.com", When: time.Unix(0, 0)},
	})
	require.NoError(t, err)
	return hash.String()
}

func TestRunSyncsAllBranchesConcurrently(t *testing.T) {
	dir := t.TempDir()
	d, err := gitdriver.Open(context.Background(), dir, "", "", "")
	require.NoError(t, err)

	mainHash := commitFile(t, d.Repo(), dir, "main.go", "package main\n\nfunc Main() {}\n", "init")
	require.NoError(t, d.SetBranch("main", mainHash))
	devHash := commitFile(t, d.Repo(), dir, "dev.go", "package main\n\nfunc Dev() {}\n", "dev commit")
	require.NoError(t, d.SetBranch("dev", devHash))

	namer := collection.New(collection.DefaultPrefix, collection.DisciplinePayload)
	store := vectorstore.NewMemoryStore()
	eng := &syncpkg.Engine{
		Git:      d,
		Store:    store,
		Embedder: embedder.NewStub(16),
		Chunker:  chunker.New(0, 0, 0),
		Namer:    namer,
		Log:      zerolog.Nop(),
	}

	repoModel := models.Repository{
		Name:              "sample",
		DefaultBranch:     "main",
		TrackedBranches:   []string{"main", "dev"},
		LastSyncedCommits: map[string]string{},
	}
	reg := registry.New([]models.Repository{repoModel}, namer, store, registry.NopPersister{})

	s := &Scheduler{Engine: eng, Registry: reg, WorkerCount: 2}
	results, err := s.Run(context.Background(), repoModel, "", progress.NopSink{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.NoError(t, results["main"].Err)
	assert.NoError(t, results["dev"].Err)
	assert.Equal(t, mainHash, results["main"].Result.NewCommit)
	assert.Equal(t, devHash, results["dev"].Result.NewCommit)

	updated, err := reg.Get("sample")
	require.NoError(t, err)
	assert.Equal(t, mainHash, updated.LastSyncedCommits["main"])
	assert.Equal(t, devHash, updated.LastSyncedCommits["dev"])
}

func TestRunOneBranchFailureDoesNotCancelSiblings(t *testing.T) {
	dir := t.TempDir()
	d, err := gitdriver.Open(context.Background(), dir, "", "", "")
	require.NoError(t, err)

	mainHash := commitFile(t, d.Repo(), dir, "main.go", "package main\n\nfunc Main() {}\n", "init")
	require.NoError(t, d.SetBranch("main", mainHash))
	// "ghost" is tracked but never created as a branch ref, so ResolveRef
	// will fail for it without touching "main"'s sync.

	namer := collection.New(collection.DefaultPrefix, collection.DisciplinePayload)
	store := vectorstore.NewMemoryStore()
	eng := &syncpkg.Engine{
		Git:      d,
		Store:    store,
		Embedder: embedder.NewStub(16),
		Chunker:  chunker.New(0, 0, 0),
		Namer:    namer,
		Log:      zerolog.Nop(),
	}

	repoModel := models.Repository{
		Name:              "sample",
		DefaultBranch:     "main",
		TrackedBranches:   []string{"main", "ghost"},
		LastSyncedCommits: map[string]string{},
	}
	reg := registry.New([]models.Repository{repoModel}, namer, store, registry.NopPersister{})

	s := &Scheduler{Engine: eng, Registry: reg, WorkerCount: 2}
	results, err := s.Run(context.Background(), repoModel, "", progress.NopSink{})
	require.Error(t, err)
	var partial *PartialFailureError
	require.ErrorAs(t, err, &partial)

	assert.NoError(t, results["main"].Err)
	assert.Equal(t, mainHash, results["main"].Result.NewCommit)
	assert.Error(t, results["ghost"].Err)
}
