// Package scheduler implements the multi-branch scheduler (C7): given one
// repository and a set of branches, it runs the sync engine (C6) once per
// branch with a fixed worker-pool concurrency J, aggregating a per-branch
// result map without letting one branch's failure cancel its siblings
// (spec §4.7).
package scheduler

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/karthik-sk/codesearch-core/internal/progress"
	"github.com/karthik-sk/codesearch-core/internal/registry"
	"github.com/karthik-sk/codesearch-core/internal/sync"
	"github.com/karthik-sk/codesearch-core/pkg/models"
)

// DefaultWorkerCount is J in spec §4.7.
const DefaultWorkerCount = 3

// BranchResult pairs one branch's outcome with the engine's result, or a
// non-nil Err if the branch's sync failed.
type BranchResult struct {
	Branch string
	Result sync.Result
	Err    error
}

// Scheduler runs Engine.Sync across the tracked branches of one
// repository, bounded to WorkerCount concurrent branches (spec §5
// "multiple branches may sync concurrently under C7 up to J").
type Scheduler struct {
	Engine      *sync.Engine
	Registry    *registry.Registry
	WorkerCount int
}

func (s *Scheduler) workerCount() int {
	if s.WorkerCount <= 0 {
		return DefaultWorkerCount
	}
	return s.WorkerCount
}

// Run syncs every branch in repo.TrackedBranches concurrently (bounded by
// WorkerCount) and returns a map of branch -> BranchResult plus an overall
// error that is non-nil if any branch failed (a *PartialFailureError), or
// if a registry update failed (the scheduler itself never aborts early on a
// single branch's sync failure, per spec §4.7 "failures of one branch do
// not cancel siblings"). Every branch is still handed to Engine.Sync after
// ctx is cancelled; each sync observes the cancellation at its next
// suspension point (spec §5); already-completed branches keep their
// results.
func (s *Scheduler) Run(ctx context.Context, repo models.Repository, tenantID string, sink progress.Sink) (map[string]BranchResult, error) {
	if sink == nil {
		sink = progress.NopSink{}
	}

	results := make(map[string]BranchResult, len(repo.TrackedBranches))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workerCount())

	for _, branch := range repo.TrackedBranches {
		branch := branch
		g.Go(func() error {
			res, err := s.Engine.Sync(gctx, repo, branch, tenantID, sink)

			mu.Lock()
			results[branch] = BranchResult{Branch: branch, Result: res, Err: err}
			mu.Unlock()

			if err == nil && s.Registry != nil {
				if uerr := s.Registry.UpdateSyncState(repo.Name, branch, res.NewCommit, res.Languages); uerr != nil {
					return uerr
				}
			}
			// Never propagate a per-branch sync error to errgroup: doing so
			// would cancel gctx and abort siblings still in flight, which
			// spec §4.7 explicitly forbids.
			return nil
		})
	}

	// errgroup.Wait only ever returns a non-nil error from a registry
	// update failure above (sync errors are captured in results, not
	// returned), so a non-nil err here is itself a scheduler-level failure
	// distinct from "a branch's sync failed".
	if err := g.Wait(); err != nil {
		return results, err
	}

	allSucceeded := true
	for _, r := range results {
		if r.Err != nil {
			allSucceeded = false
			break
		}
	}
	if !allSucceeded {
		return results, &PartialFailureError{Branches: failedBranches(results)}
	}
	return results, nil
}

// PartialFailureError reports success iff all branches succeed (spec
// §4.7); the aggregated per-branch map in Scheduler.Run's return value
// still carries every branch's individual outcome.
type PartialFailureError struct {
	Branches []string
}

func (e *PartialFailureError) Error() string {
	msg := "scheduler: sync failed for branches: "
	for i, b := range e.Branches {
		if i > 0 {
			msg += ", "
		}
		msg += b
	}
	return msg
}

func failedBranches(results map[string]BranchResult) []string {
	var out []string
	for branch, r := range results {
		if r.Err != nil {
			out = append(out, branch)
		}
	}
	return out
}
