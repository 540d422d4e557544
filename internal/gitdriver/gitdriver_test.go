package gitdriver

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
	"github.com/stretchr/testify/require"

	"github.com/karthik-sk/codesearch-core/internal/errs"
)

// commitFile writes content to path inside repo's worktree and commits it,
// returning the new commit hash.
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
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Unix(0, 0)},
	})
	require.NoError(t, err)
	return hash.String()
}

func TestOpenInitsLocalPathRepository(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(context.Background(), dir, "", "", "")
	require.NoError(t, err)
	require.NotNil(t, d.repo)
}

func TestFastForwardCreatesAndAdvancesBranch(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(context.Background(), dir, "", "", "")
	require.NoError(t, err)

	c1 := commitFile(t, d.repo, dir, "a.txt", "one", "first")
	res, err := d.FastForward("main", c1)
	require.NoError(t, err)
	require.Equal(t, FastForwarded, res)

	res, err = d.FastForward("main", c1)
	require.NoError(t, err)
	require.Equal(t, UpToDate, res)

	c2 := commitFile(t, d.repo, dir, "a.txt", "two", "second")
	res, err = d.FastForward("main", c2)
	require.NoError(t, err)
	require.Equal(t, FastForwarded, res)
}

func TestDiffDetectsAddAndModify(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(context.Background(), dir, "", "", "")
	require.NoError(t, err)

	c1 := commitFile(t, d.repo, dir, "keep.txt", "v1", "c1")
	commitFile(t, d.repo, dir, "keep.txt", "v2", "modify keep")

	wt, err := d.repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("n"), 0o644))
	_, err = wt.Add("new.txt")
	require.NoError(t, err)
	c2, err := wt.Commit("add new", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Unix(0, 0)},
	})
	require.NoError(t, err)

	changes, err := d.Diff(c1, c2.String())
	require.NoError(t, err)
	require.NotEmpty(t, changes)

	var sawAdd, sawModify bool
	for _, c := range changes {
		switch c.Kind {
		case ChangeAdded:
			if c.Path == "new.txt" {
				sawAdd = true
			}
		case ChangeModified:
			if c.Path == "keep.txt" {
				sawModify = true
			}
		}
	}
	require.True(t, sawAdd)
	require.True(t, sawModify)
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(context.Background(), dir, "", "", "")
	require.NoError(t, err)
	c1 := commitFile(t, d.repo, dir, "pkg/file.go", "package pkg", "init")

	files, err := d.ListFiles(c1)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "pkg/file.go", files[0].Path)
}

func TestFastForwardReportsDiverged(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(context.Background(), dir, "", "", "")
	require.NoError(t, err)

	c1 := commitFile(t, d.repo, dir, "a.txt", "one", "first")
	require.NoError(t, d.repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), plumbing.NewHash(c1))))

	// Give "main" a commit, then rewind HEAD to an unrelated root history
	// before making a second commit, so the two commits share no ancestry.
	require.NoError(t, d.repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("other"))))
	c2 := commitFile(t, d.repo, dir, "b.txt", "two", "unrelated")

	res, err := d.FastForward("main", c2)
	require.ErrorIs(t, err, errs.Diverged)
	require.Equal(t, Diverged, res)
}

func TestResolveRefUnknownBranch(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(context.Background(), dir, "", "", "")
	require.NoError(t, err)
	_, err = d.repo.CreateRemote(&config.RemoteConfig{
		Name: "origin",
		URLs: []string{"https://example.invalid/repo.git"},
	})
	require.NoError(t, err)

	_, err = d.ResolveRef(context.Background(), "does-not-exist")
	require.Error(t, err)
}

var _ = plumbing.ZeroHash
