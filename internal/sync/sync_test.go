package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/karthik-sk/codesearch-core/internal/chunker"
	"github.com/karthik-sk/codesearch-core/internal/collection"
	"github.com/karthik-sk/codesearch-core/internal/embedder"
	"github.com/karthik-sk/codesearch-core/internal/errs"
	"github.com/karthik-sk/codesearch-core/internal/gitdriver"
	"github.com/karthik-sk/codesearch-core/internal/progress"
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

func newEngine(t *testing.T, dir string) (*Engine, *gitdriver.Driver) {
	t.Helper()
	d, err := gitdriver.Open(context.Background(), dir, "", "", "")
	require.NoError(t, err)

	emb := embedder.NewStub(16)
	return &Engine{
		Git:      d,
		Store:    vectorstore.NewMemoryStore(),
		Embedder: emb,
		Chunker:  chunker.New(0, 0, 0),
		Namer:    collection.New(collection.DefaultPrefix, collection.DisciplinePayload),
		Log:      zerolog.Nop(),
	}, d
}

func TestSyncIndexesInitialTree(t *testing.T) {
	dir := t.TempDir()
	eng, d := newEngine(t, dir)
	c1 := commitFile(t, d.Repo(), dir, "main.go", "package main\n\nfunc Main() {}\n", "init")
	require.NoError(t, d.SetBranch("main", c1))

	repo := models.Repository{Name: "sample", DefaultBranch: "main"}
	res, err := eng.Sync(context.Background(), repo, "main", "", progress.NopSink{})
	require.NoError(t, err)
	require.Equal(t, 1, res.FilesIndexed)
	require.Greater(t, res.ChunksUpserted, 0)
	require.Equal(t, c1, res.NewCommit)
}

func TestSyncIncrementalDeletesStaleChunks(t *testing.T) {
	dir := t.TempDir()
	eng, d := newEngine(t, dir)
	c1 := commitFile(t, d.Repo(), dir, "a.go", "package main\n\nfunc A() {}\n", "c1")
	require.NoError(t, d.SetBranch("main", c1))

	repo := models.Repository{Name: "sample", DefaultBranch: "main", LastSyncedCommits: map[string]string{}}
	_, err := eng.Sync(context.Background(), repo, "main", "", progress.NopSink{})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "a.go")))
	wt, err := d.Repo().Worktree()
	require.NoError(t, err)
	_, err = wt.Add("a.go")
	require.NoError(t, err)
	c2, err := wt.Commit("delete a.go", &git.CommitOptions{
		Author: &object.Signature{Name: "t", Email: "t@example.com", When: time.Unix(0, 0)},
	})
	require.NoError(t, err)
	require.NoError(t, d.SetBranch("main", c2.String()))

	repo.LastSyncedCommits["main"] = c1
	res, err := eng.Sync(context.Background(), repo, "main", "", progress.NopSink{})
	require.NoError(t, err)
	require.Equal(t, 1, res.FilesDeleted)
}

// TestSyncAbortsOnDivergedBranch covers spec S6: a local branch that has
// diverged from the remote tip must abort the sync with Diverged and leave
// the registry's sync state untouched, never attempting a non-FF merge.
// The divergence is genuine: the local repo's "main" is a root commit with
// its own history while the remote keeps its own unrelated tip, so no
// ancestor relationship holds in either direction.
func TestSyncAbortsOnDivergedBranch(t *testing.T) {
	remoteDir := t.TempDir()
	remoteRepo, err := git.PlainInit(remoteDir, false)
	require.NoError(t, err)
	require.NoError(t, setHead(remoteRepo, "main"))
	remoteC1 := commitFile(t, remoteRepo, remoteDir, "a.go", "package main\n\nfunc A() {}\n", "remote c1")

	dir := t.TempDir()
	d, err := gitdriver.Open(context.Background(), dir, "", "origin", "")
	require.NoError(t, err)
	_, err = d.Repo().CreateRemote(&config.RemoteConfig{
		Name: "origin",
		URLs: []string{remoteDir},
	})
	require.NoError(t, err)

	// The local branch has its own, unrelated history: a root commit that
	// shares no ancestor with the remote's tip.
	require.NoError(t, setHead(d.Repo(), "other"))
	localC1 := commitFile(t, d.Repo(), dir, "b.go", "package main\n\nfunc B() {}\n", "local c1")
	require.NoError(t, d.SetBranch("main", localC1))

	eng := &Engine{
		Git:      d,
		Store:    vectorstore.NewMemoryStore(),
		Embedder: embedder.NewStub(16),
		Chunker:  chunker.New(0, 0, 0),
		Namer:    collection.New(collection.DefaultPrefix, collection.DisciplinePayload),
		Log:      zerolog.Nop(),
	}

	repo := models.Repository{Name: "sample", DefaultBranch: "main", LastSyncedCommits: map[string]string{"main": localC1}}
	_, err = eng.Sync(context.Background(), repo, "main", "", progress.NopSink{})
	require.ErrorIs(t, err, errs.Diverged)
	require.Equal(t, localC1, repo.LastSyncedCommits["main"])
	_ = remoteC1
}

// setHead points HEAD at an (possibly not-yet-existing) local branch so the
// next commit made through the worktree starts a fresh, parentless history.
func setHead(repo *git.Repository, branch string) error {
	return repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(branch)))
}
