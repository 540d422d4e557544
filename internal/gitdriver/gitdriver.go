// Package gitdriver implements the Git driver (C3): open-or-clone,
// fetch/resolve a ref, fast-forward the local working copy, diff two
// trees, and list files/branches, all against go-git/v5 so the core never
// shells out to a system git binary (spec §4.5).
package gitdriver

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"github.com/karthik-sk/codesearch-core/internal/errs"
)

// FastForwardResult describes the outcome of bringing a local branch up to
// date with its remote counterpart (spec §4.5 / I2 convergence).
type FastForwardResult int

const (
	FastForwarded FastForwardResult = iota
	UpToDate
	Diverged
)

// FileEntry is one blob reachable from a resolved commit's tree.
type FileEntry struct {
	Path string
	Hash string
}

// ChangeKind classifies one entry of a Diff result.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeModified
	ChangeDeleted
	ChangeRenamed
)

// Change is one file-level delta between two trees.
type Change struct {
	Kind     ChangeKind
	Path     string
	OldPath  string // set only for ChangeRenamed
	NewHash  string
	NewSize  int64
}

// Driver wraps one on-disk repository clone.
type Driver struct {
	path       string
	repo       *git.Repository
	remoteName string
	sshKeyPath string
}

// Open opens an existing on-disk repository at path, or clones url into it
// if it doesn't exist yet. remoteName defaults to "origin".
func Open(ctx context.Context, path, url, remoteName, sshKeyPath string) (*Driver, error) {
	if remoteName == "" {
		remoteName = "origin"
	}
	d := &Driver{path: path, remoteName: remoteName, sshKeyPath: sshKeyPath}

	repo, err := git.PlainOpen(path)
	if err == nil {
		d.repo = repo
		return d, nil
	}
	if err != git.ErrRepositoryNotExists {
		return nil, errs.New(errs.KindGitIO, "open repository", err)
	}

	if url == "" {
		// Local-path-only repository (spec §9 "added as local path"):
		// initialize an empty repo rather than failing.
		repo, err = git.PlainInit(path, false)
		if err != nil {
			return nil, errs.New(errs.KindGitIO, "init repository", err)
		}
		d.repo = repo
		return d, nil
	}

	auth, authErr := d.authMethod()
	if authErr != nil {
		return nil, authErr
	}
	repo, err = git.PlainCloneContext(ctx, path, false, &git.CloneOptions{
		URL:      url,
		Auth:     auth,
		Progress: io.Discard,
	})
	if err != nil {
		return nil, errs.New(errs.KindGitFetch, "clone repository", err)
	}
	d.repo = repo
	return d, nil
}

// authMethod picks an auth method using spec §9's resolution order:
// an explicit SSH key path, then the system's default SSH agent/known
// credentials, then no auth (public HTTP(S) remotes).
func (d *Driver) authMethod() (transport.AuthMethod, error) {
	if d.sshKeyPath == "" {
		return nil, nil
	}
	if _, err := os.Stat(d.sshKeyPath); err != nil {
		return nil, errs.New(errs.KindGitAuth, "ssh key path unreadable", err)
	}
	auth, err := ssh.NewPublicKeysFromFile("git", d.sshKeyPath, "")
	if err != nil {
		return nil, errs.New(errs.KindGitAuth, "load ssh key", err)
	}
	return auth, nil
}

// ResolveRef resolves branch to its tip commit hash (spec §4.5). For
// remote-backed repos this first fetches remoteName and peels
// refs/remotes/<remote>/<branch>; for local-only repos (no remote
// configured, spec §9 "added as local path") it peels refs/heads/<branch>
// directly, without ever attempting a fetch.
func (d *Driver) ResolveRef(ctx context.Context, branch string) (string, error) {
	remote, err := d.repo.Remote(d.remoteName)
	if err == git.ErrRemoteNotFound {
		return d.resolveLocalRef(branch)
	}
	if err != nil {
		return "", errs.New(errs.KindGitIO, "lookup remote", err)
	}

	auth, err := d.authMethod()
	if err != nil {
		return "", err
	}

	refSpec := config.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/%s/%s", branch, d.remoteName, branch))
	err = remote.FetchContext(ctx, &git.FetchOptions{
		RefSpecs: []config.RefSpec{refSpec},
		Auth:     auth,
		Force:    true,
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return "", errs.New(errs.KindGitFetch, "fetch "+branch, err)
	}

	ref, err := d.repo.Reference(plumbing.NewRemoteReferenceName(d.remoteName, branch), true)
	if err != nil {
		return "", errs.New(errs.KindGitRefNotFound, "branch "+branch+" not found on remote", err)
	}
	return ref.Hash().String(), nil
}

func (d *Driver) resolveLocalRef(branch string) (string, error) {
	ref, err := d.repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		return "", errs.New(errs.KindGitRefNotFound, "local branch "+branch+" not found", err)
	}
	return ref.Hash().String(), nil
}

// Repo returns the underlying go-git repository. Exported so callers that
// need operations this narrow driver contract doesn't expose (such as test
// setup) can still reach it.
func (d *Driver) Repo() *git.Repository { return d.repo }

// SetBranch points branch directly at hash without going through
// FastForward's ancestor check, for local-only repositories (and tests)
// that have no remote history to validate against.
func (d *Driver) SetBranch(branch, hash string) error {
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(branch), plumbing.NewHash(hash))
	if err := d.repo.Storer.SetReference(ref); err != nil {
		return errs.New(errs.KindGitIO, "set branch "+branch, err)
	}
	return nil
}

// FastForward moves the local branch ref to match the remote tip fetched by
// ResolveRef. If the local branch doesn't exist yet it is created pointing
// at remoteHash. If the local branch's history has diverged from the
// remote tip (local has commits the remote tip doesn't), FastForward
// refuses to move the ref and reports Diverged (spec I2, Non-goals:
// conflict-resolving merges are out of scope).
func (d *Driver) FastForward(branch, remoteHash string) (FastForwardResult, error) {
	target := plumbing.NewHash(remoteHash)
	localRefName := plumbing.NewBranchReferenceName(branch)

	localRef, err := d.repo.Reference(localRefName, true)
	if err == plumbing.ErrReferenceNotFound {
		newRef := plumbing.NewHashReference(localRefName, target)
		if err := d.repo.Storer.SetReference(newRef); err != nil {
			return 0, errs.New(errs.KindGitIO, "set local branch ref", err)
		}
		return FastForwarded, nil
	}
	if err != nil {
		return 0, errs.New(errs.KindGitIO, "read local branch ref", err)
	}
	if localRef.Hash() == target {
		return UpToDate, nil
	}

	ancestor, err := d.isAncestor(localRef.Hash(), target)
	if err != nil {
		return 0, err
	}
	if !ancestor {
		return Diverged, errs.Diverged
	}

	newRef := plumbing.NewHashReference(localRefName, target)
	if err := d.repo.Storer.SetReference(newRef); err != nil {
		return 0, errs.New(errs.KindGitIO, "update local branch ref", err)
	}
	return FastForwarded, nil
}

func (d *Driver) isAncestor(ancestor, descendant plumbing.Hash) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	commit, err := d.repo.CommitObject(descendant)
	if err != nil {
		return false, errs.New(errs.KindGitIO, "load commit", err)
	}
	found := false
	iter := object.NewCommitPreorderIter(commit, nil, nil)
	err = iter.ForEach(func(c *object.Commit) error {
		if c.Hash == ancestor {
			found = true
			return storerStop
		}
		return nil
	})
	if err != nil && err != storerStop {
		return false, errs.New(errs.KindGitIO, "walk commit history", err)
	}
	return found, nil
}

// storerStop is a local sentinel to stop the commit-preorder walk early,
// mirroring go-git's storer.ErrStop but without importing the plumbing
// storer package just for one sentinel value.
var storerStop = fmt.Errorf("stop")

// ListFiles lists every regular-file blob in the tree at commitHash.
func (d *Driver) ListFiles(commitHash string) ([]FileEntry, error) {
	commit, err := d.repo.CommitObject(plumbing.NewHash(commitHash))
	if err != nil {
		return nil, errs.New(errs.KindGitIO, "load commit", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, errs.New(errs.KindGitIO, "load tree", err)
	}

	var out []FileEntry
	err = tree.Files().ForEach(func(f *object.File) error {
		out = append(out, FileEntry{Path: f.Name, Hash: f.Hash.String()})
		return nil
	})
	if err != nil {
		return nil, errs.New(errs.KindGitIO, "walk tree", err)
	}
	return out, nil
}

// ReadFile returns one blob's content at commitHash.
func (d *Driver) ReadFile(commitHash, path string) ([]byte, error) {
	commit, err := d.repo.CommitObject(plumbing.NewHash(commitHash))
	if err != nil {
		return nil, errs.New(errs.KindGitIO, "load commit", err)
	}
	file, err := commit.File(path)
	if err != nil {
		return nil, errs.New(errs.KindGitIO, "read file "+path, err)
	}
	r, err := file.Reader()
	if err != nil {
		return nil, errs.New(errs.KindGitIO, "open blob reader", err)
	}
	defer r.Close()
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.New(errs.KindGitIO, "read blob", err)
	}
	return content, nil
}

// Diff computes the file-level delta between two commits, with rename
// detection, so the sync engine can delete a renamed file's points under
// its old path before indexing it under the new one (spec §4.6
// "Normalize changes").
func (d *Driver) Diff(oldHash, newHash string) ([]Change, error) {
	newTree, err := d.treeAt(newHash)
	if err != nil {
		return nil, err
	}

	var oldTree *object.Tree
	if oldHash != "" {
		oldTree, err = d.treeAt(oldHash)
		if err != nil {
			return nil, err
		}
	}

	changes, err := object.DiffTreeWithOptions(context.Background(), oldTree, newTree, &object.DiffTreeOptions{DetectRenames: true})
	if err != nil {
		return nil, errs.New(errs.KindGitIO, "diff trees", err)
	}

	var out []Change
	for _, c := range changes {
		action, err := c.Action()
		if err != nil {
			return nil, errs.New(errs.KindGitIO, "diff change action", err)
		}
		switch action {
		case merkletrie.Insert:
			out = append(out, Change{Kind: ChangeAdded, Path: c.To.Name, NewHash: c.To.TreeEntry.Hash.String()})
		case merkletrie.Delete:
			out = append(out, Change{Kind: ChangeDeleted, Path: c.From.Name})
		case merkletrie.Modify:
			if c.From.Name != c.To.Name {
				out = append(out, Change{Kind: ChangeRenamed, Path: c.To.Name, OldPath: c.From.Name, NewHash: c.To.TreeEntry.Hash.String()})
			} else {
				out = append(out, Change{Kind: ChangeModified, Path: c.To.Name, NewHash: c.To.TreeEntry.Hash.String()})
			}
		}
	}
	return out, nil
}

func (d *Driver) treeAt(hash string) (*object.Tree, error) {
	commit, err := d.repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return nil, errs.New(errs.KindGitIO, "load commit "+hash, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, errs.New(errs.KindGitIO, "load tree for "+hash, err)
	}
	return tree, nil
}

// ListBranches returns the remote-tracking branch names known locally
// (populated by prior ResolveRef calls). The scheduler does not call it;
// it syncs the repository record's TrackedBranches.
func (d *Driver) ListBranches() ([]string, error) {
	refs, err := d.repo.References()
	if err != nil {
		return nil, errs.New(errs.KindGitIO, "list references", err)
	}
	prefix := fmt.Sprintf("refs/remotes/%s/", d.remoteName)
	var out []string
	err = refs.ForEach(func(r *plumbing.Reference) error {
		name := r.Name().String()
		if strings.HasPrefix(name, prefix) {
			out = append(out, strings.TrimPrefix(name, prefix))
		}
		return nil
	})
	if err != nil {
		return nil, errs.New(errs.KindGitIO, "walk references", err)
	}
	return out, nil
}
