// Package registry implements the repository registry (C9): the single
// in-memory authoritative record of every managed repository, persisted
// through an injected collaborator after each successful mutation (spec
// §4.9). The registry never calls into C3/C6 directly and holds no
// back-pointers into a running sync (spec §9 "cyclic references between
// registry and sync engine"): callers read a Repository snapshot, do the
// work, then write results back through an explicit update call.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/karthik-sk/codesearch-core/internal/collection"
	"github.com/karthik-sk/codesearch-core/internal/vectorstore"
	"github.com/karthik-sk/codesearch-core/pkg/models"
)

// Persister is the external collaborator the registry writes through after
// every successful mutation (spec §4.9, §9 "no ambient globals" — the
// registry owns the in-memory truth, Persister owns making it durable).
type Persister interface {
	Save(repos []models.Repository) error
}

// NopPersister discards every save; suitable for tests and for running
// against a registry seeded entirely from ConfigSource at each process
// start.
type NopPersister struct{}

func (NopPersister) Save([]models.Repository) error { return nil }

// Registry is the process-wide repository registry. The zero value is not
// usable; construct with New.
type Registry struct {
	mu        sync.RWMutex
	byName    map[string]models.Repository
	order     []string
	namer     collection.Namer
	store     vectorstore.Store
	persister Persister
}

// New constructs a Registry seeded from initial (e.g. ConfigSource's
// repository list, spec §6.1), using namer to compute the collections
// dropped on Remove and store to perform that deletion, and persister to
// durably record every subsequent mutation.
func New(initial []models.Repository, namer collection.Namer, store vectorstore.Store, persister Persister) *Registry {
	if persister == nil {
		persister = NopPersister{}
	}
	r := &Registry{
		byName:    make(map[string]models.Repository, len(initial)),
		namer:     namer,
		store:     store,
		persister: persister,
	}
	for _, repo := range initial {
		r.byName[repo.Name] = repo.Clone()
		r.order = append(r.order, repo.Name)
	}
	return r
}

// ErrNotFound is returned by any operation referencing an unknown
// repository name.
type ErrNotFound struct{ Name string }

func (e *ErrNotFound) Error() string { return fmt.Sprintf("registry: repository %q not found", e.Name) }

// ErrExists is returned by Add when the name is already registered.
type ErrExists struct{ Name string }

func (e *ErrExists) Error() string { return fmt.Sprintf("registry: repository %q already exists", e.Name) }

// Add registers a new repository record. The name must be unique.
func (r *Registry) Add(repo models.Repository) error {
	r.mu.Lock()
	if _, ok := r.byName[repo.Name]; ok {
		r.mu.Unlock()
		return &ErrExists{Name: repo.Name}
	}
	if repo.LastSyncedCommits == nil {
		repo.LastSyncedCommits = map[string]string{}
	}
	r.byName[repo.Name] = repo.Clone()
	r.order = append(r.order, repo.Name)
	r.mu.Unlock()
	return r.persist()
}

// Remove deletes every collection associated with name (every tracked
// branch, plus the legacy unbranched collection) via the vector store
// before dropping the registry record, per spec §4.9 "remove must first
// delete every collection associated with the repo (all branches) via C4
// before dropping the record."
func (r *Registry) Remove(ctx context.Context, name string) error {
	r.mu.Lock()
	repo, ok := r.byName[name]
	r.mu.Unlock()
	if !ok {
		return &ErrNotFound{Name: name}
	}

	collections := map[string]bool{r.namer.Name(repo.TenantID, repo.Name, ""): true}
	for _, branch := range repo.TrackedBranches {
		collections[r.namer.Name(repo.TenantID, repo.Name, branch)] = true
	}
	for collName := range collections {
		if err := r.store.DeleteCollection(ctx, collName); err != nil {
			return err
		}
	}

	r.mu.Lock()
	delete(r.byName, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
	return r.persist()
}

// SetActive marks branch as repo's active branch. Rejected if repo is not
// present (spec §4.9); does not require branch to already be tracked, so
// operators can pivot to a freshly discovered branch before the next sync
// adds it to TrackedBranches.
func (r *Registry) SetActive(name, branch string) error {
	r.mu.Lock()
	repo, ok := r.byName[name]
	if !ok {
		r.mu.Unlock()
		return &ErrNotFound{Name: name}
	}
	repo.ActiveBranch = branch
	r.byName[name] = repo
	r.mu.Unlock()
	return r.persist()
}

// UseBranch adds branch to repo's tracked-branch set if absent, leaving
// ActiveBranch untouched.
func (r *Registry) UseBranch(name, branch string) error {
	r.mu.Lock()
	repo, ok := r.byName[name]
	if !ok {
		r.mu.Unlock()
		return &ErrNotFound{Name: name}
	}
	for _, b := range repo.TrackedBranches {
		if b == branch {
			r.mu.Unlock()
			return nil
		}
	}
	repo.TrackedBranches = append(append([]string(nil), repo.TrackedBranches...), branch)
	r.byName[name] = repo
	r.mu.Unlock()
	return r.persist()
}

// UpdateSyncState records the outcome of a successful sync (spec §4.6 step
// 7, §4.9 update_sync_state). A nil/empty languages slice leaves the
// previously recorded indexed_languages untouched, matching Sync's
// "already up to date" short-circuit which skips the scroll-based
// recompute entirely.
func (r *Registry) UpdateSyncState(name, branch, commit string, languages []string) error {
	r.mu.Lock()
	repo, ok := r.byName[name]
	if !ok {
		r.mu.Unlock()
		return &ErrNotFound{Name: name}
	}
	commits := make(map[string]string, len(repo.LastSyncedCommits)+1)
	for k, v := range repo.LastSyncedCommits {
		commits[k] = v
	}
	commits[branch] = commit
	repo.LastSyncedCommits = commits
	if len(languages) > 0 {
		sorted := append([]string(nil), languages...)
		sort.Strings(sorted)
		repo.IndexedLanguages = sorted
	}
	r.byName[name] = repo
	r.mu.Unlock()
	return r.persist()
}

// Get returns a deep copy of the named repository's record.
func (r *Registry) Get(name string) (models.Repository, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	repo, ok := r.byName[name]
	if !ok {
		return models.Repository{}, &ErrNotFound{Name: name}
	}
	return repo.Clone(), nil
}

// List returns a deep copy of every registered repository, in the order
// they were added.
func (r *Registry) List() []models.Repository {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Repository, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name].Clone())
	}
	return out
}

func (r *Registry) persist() error {
	r.mu.RLock()
	snapshot := make([]models.Repository, 0, len(r.order))
	for _, name := range r.order {
		snapshot = append(snapshot, r.byName[name].Clone())
	}
	r.mu.RUnlock()
	return r.persister.Save(snapshot)
}
