// Package sync implements the sync engine (C6): the state machine that
// brings one (repository, branch) collection in line with its Git tip —
// resolve the remote ref, diff against the last synced commit, normalize
// the changes, delete what's obsolete, chunk and embed what changed, and
// finally commit the new sync state only once every upsert/delete has
// landed (spec §4.6).
package sync

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/karthik-sk/codesearch-core/internal/chunker"
	"github.com/karthik-sk/codesearch-core/internal/collection"
	"github.com/karthik-sk/codesearch-core/internal/embedder"
	"github.com/karthik-sk/codesearch-core/internal/errs"
	"github.com/karthik-sk/codesearch-core/internal/gitdriver"
	"github.com/karthik-sk/codesearch-core/internal/progress"
	"github.com/karthik-sk/codesearch-core/internal/vectorstore"
	"github.com/karthik-sk/codesearch-core/pkg/models"
)

// DefaultBatchSize is B in spec §6.1: the number of points per Upsert call.
const DefaultBatchSize = 128

// SupportedExtensions gates which files get chunked at all; anything else
// is skipped the way the teacher's shouldSkip does for binary/vendor
// content (spec §4.6 step 2 "normalize changes").
var SupportedExtensions = map[string]bool{
	".go": true, ".rs": true, ".rb": true, ".py": true,
	".js": true, ".mjs": true, ".cjs": true, ".jsx": true,
	".ts": true, ".mts": true, ".cts": true, ".tsx": true,
	".yaml": true, ".yml": true, ".md": true, ".markdown": true,
}

var skipDirs = []string{
	"/vendor/", "/.git/", "/node_modules/", "/target/", "/build/",
	"/dist/", "/out/", "/bin/", "/obj/", "/.venv/", "/venv/",
	"/__pycache__/", "/.idea/", "/.cache/",
}

func shouldSkip(path string) bool {
	p := "/" + strings.ToLower(filepath.ToSlash(path)) + "/"
	for _, d := range skipDirs {
		if strings.Contains(p, d) {
			return true
		}
	}
	return !SupportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// Engine syncs one repository/branch pair.
type Engine struct {
	Git       *gitdriver.Driver
	Store     vectorstore.Store
	Embedder  embedder.Embedder
	Chunker   *chunker.Chunker
	Namer     collection.Namer
	BatchSize int
	Log       zerolog.Logger
}

// Result summarizes one completed sync (spec §4.6's final "commit state").
type Result struct {
	NewCommit      string
	FilesIndexed   int
	FilesSkipped   int
	FilesDeleted   int
	ChunksUpserted int
	Languages      []string
}

// languageSamplePageLimit is the page size of the scroll used to recompute
// indexed_languages after a sync (spec §4.6 step 7 "sampled ≤ 1000 per
// page").
const languageSamplePageLimit = 1000

// computeIndexedLanguages recomputes C9's indexed_languages by scrolling
// the collection once and collecting the distinct language payload value,
// matching spec §4.6 step 7.
func (e *Engine) computeIndexedLanguages(ctx context.Context, collName string) ([]string, error) {
	seen := map[string]bool{}
	cursor := ""
	for {
		page, err := e.Store.Scroll(ctx, collName, vectorstore.Filter{}, languageSamplePageLimit, cursor)
		if err != nil {
			return nil, err
		}
		for _, p := range page.Points {
			if p.Payload.Language != "" {
				seen[p.Payload.Language] = true
			}
		}
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}
	out := make([]string, 0, len(seen))
	for lang := range seen {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out, nil
}

// Sync runs the full state machine for one repository's branch, reporting
// progress on sink (sink may be progress.NopSink{}).
func (e *Engine) Sync(ctx context.Context, repo models.Repository, branch, tenantID string, sink progress.Sink) (Result, error) {
	var res Result

	remoteHash, err := e.Git.ResolveRef(ctx, branch)
	if err != nil {
		return res, err
	}

	ffResult, err := e.Git.FastForward(branch, remoteHash)
	if ffResult == gitdriver.Diverged {
		// Spec §4.6 step 5 / §7 / S6: the engine never auto-merges. Abort
		// the whole sync and leave the registry untouched; the operator
		// must resolve the divergence out of band.
		e.Log.Warn().Str("repo", repo.Name).Str("branch", branch).Msg("local branch diverged from remote, aborting sync")
		return res, errs.Diverged
	}
	if err != nil {
		return res, err
	}

	collName := e.Namer.Name(tenantID, repo.Name, branchOrEmpty(repo, branch))
	if err := e.Store.CreateCollection(ctx, collName, e.Embedder.Dimension(), vectorstore.MetricCosine); err != nil {
		return res, err
	}
	if err := e.Store.EnsurePayloadIndex(ctx, collName, "file_path", vectorstore.PayloadIndexKeyword); err != nil {
		return res, err
	}
	if err := e.Store.EnsurePayloadIndex(ctx, collName, "element_type", vectorstore.PayloadIndexKeyword); err != nil {
		return res, err
	}

	lastCommit := repo.LastSyncedCommits[branch]

	var changes []gitdriver.Change
	if lastCommit == "" {
		changes, err = e.fullTreeAsChanges(remoteHash)
	} else if lastCommit == remoteHash {
		sink.Report(progress.Event{Kind: progress.EventCompleted, Repo: repo.Name, Branch: branch, Message: "already up to date"})
		res.NewCommit = remoteHash
		return res, nil
	} else {
		changes, err = e.Git.Diff(lastCommit, remoteHash)
	}
	if err != nil {
		return res, err
	}

	sink.Report(progress.Event{Kind: progress.EventCollectFiles, Repo: repo.Name, Branch: branch, Total: len(changes)})

	var batch []models.Point
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := e.Store.Upsert(ctx, collName, batch); err != nil {
			return err
		}
		res.ChunksUpserted += len(batch)
		batch = batch[:0]
		return nil
	}

	for i, ch := range changes {
		if err := ctx.Err(); err != nil {
			return res, errs.New(errs.KindCancelled, "sync cancelled", err)
		}

		switch ch.Kind {
		case gitdriver.ChangeDeleted:
			if err := e.Store.DeleteByFilter(ctx, collName, vectorstore.Filter{}.Eq("file_path", ch.Path)); err != nil {
				return res, err
			}
			res.FilesDeleted++
			continue
		case gitdriver.ChangeRenamed:
			if err := e.Store.DeleteByFilter(ctx, collName, vectorstore.Filter{}.Eq("file_path", ch.OldPath)); err != nil {
				return res, err
			}
			res.FilesDeleted++
		}

		if shouldSkip(ch.Path) {
			res.FilesSkipped++
			continue
		}

		// Modified, added or renamed: delete any
		// existing points for this path before re-indexing, since the
		// chunk boundaries for the new content may not line up with the
		// old ones (spec I3 "no stale chunk for a path may outlive a
		// sync that touched that path").
		if err := e.Store.DeleteByFilter(ctx, collName, vectorstore.Filter{}.Eq("file_path", ch.Path)); err != nil {
			return res, err
		}

		content, err := e.Git.ReadFile(remoteHash, ch.Path)
		if err != nil {
			e.Log.Warn().Err(err).Str("path", ch.Path).Msg("read blob failed, skipping file")
			res.FilesSkipped++
			continue
		}

		chunks, err := e.Chunker.Chunk(ctx, ch.Path, content)
		if err != nil {
			e.Log.Warn().Err(err).Str("path", ch.Path).Msg("chunk failed, skipping file")
			res.FilesSkipped++
			continue
		}
		if len(chunks) == 0 {
			continue
		}

		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content
		}
		vecs, err := e.Embedder.Embed(ctx, texts)
		if err != nil {
			e.Log.Warn().Err(err).Str("path", ch.Path).Msg("embed failed, skipping file")
			res.FilesSkipped++
			continue
		}

		lang := chunker.DetectLanguage(ch.Path)
		for j, c := range chunks {
			batch = append(batch, models.Point{
				ID:     uuid.NewString(),
				Vector: vecs[j],
				Payload: models.Payload{
					FilePath:      ch.Path,
					StartLine:     c.StartLine,
					EndLine:       c.EndLine,
					Language:      lang,
					ElementType:   string(c.ElementType),
					FileExtension: strings.TrimPrefix(filepath.Ext(ch.Path), "."),
					ChunkContent:  c.Content,
					Branch:        branch,
					CommitHash:    remoteHash,
					TenantID:      tenantID,
				},
			})
			if len(batch) >= e.batchSize() {
				if err := flush(); err != nil {
					return res, err
				}
			}
		}
		res.FilesIndexed++
		sink.Report(progress.Event{Kind: progress.EventIndexFile, Repo: repo.Name, Branch: branch, Total: len(changes), Current: i + 1, Path: ch.Path})
	}

	if err := flush(); err != nil {
		return res, err
	}

	langs, err := e.computeIndexedLanguages(ctx, collName)
	if err != nil {
		return res, err
	}
	res.Languages = langs

	res.NewCommit = remoteHash
	sink.Report(progress.Event{Kind: progress.EventCompleted, Repo: repo.Name, Branch: branch, Total: len(changes), Current: len(changes)})
	return res, nil
}

func (e *Engine) batchSize() int {
	if e.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return e.BatchSize
}

func branchOrEmpty(repo models.Repository, branch string) string {
	if branch == repo.DefaultBranch {
		return ""
	}
	return branch
}

// fullTreeAsChanges is used on the first sync for a branch, when there is
// no prior commit to diff against: every file in the tree is an add.
func (e *Engine) fullTreeAsChanges(commitHash string) ([]gitdriver.Change, error) {
	files, err := e.Git.ListFiles(commitHash)
	if err != nil {
		return nil, err
	}
	out := make([]gitdriver.Change, 0, len(files))
	for _, f := range files {
		out = append(out, gitdriver.Change{Kind: gitdriver.ChangeAdded, Path: f.Path, NewHash: f.Hash})
	}
	return out, nil
}

// SyncLocalPath indexes a repository that was added by local filesystem
// path rather than cloned from a remote (repo.AddedAsLocalPath): there is
// no commit history to diff against, so every sync walks the full working
// tree and re-embeds it (spec §9 "repositories without a Git remote").
func (e *Engine) SyncLocalPath(ctx context.Context, repo models.Repository, tenantID string, sink progress.Sink) (Result, error) {
	var res Result

	files, err := WalkLocalTree(repo.Path)
	if err != nil {
		return res, err
	}

	collName := e.Namer.Name(tenantID, repo.Name, "")
	if err := e.Store.CreateCollection(ctx, collName, e.Embedder.Dimension(), vectorstore.MetricCosine); err != nil {
		return res, err
	}
	if err := e.Store.EnsurePayloadIndex(ctx, collName, "file_path", vectorstore.PayloadIndexKeyword); err != nil {
		return res, err
	}

	sink.Report(progress.Event{Kind: progress.EventCollectFiles, Repo: repo.Name, Total: len(files)})

	var batch []models.Point
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := e.Store.Upsert(ctx, collName, batch); err != nil {
			return err
		}
		res.ChunksUpserted += len(batch)
		batch = batch[:0]
		return nil
	}

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return res, errs.New(errs.KindCancelled, "sync cancelled", err)
		}
		if err := e.Store.DeleteByFilter(ctx, collName, vectorstore.Filter{}.Eq("file_path", f.Path)); err != nil {
			return res, err
		}

		chunks, err := e.Chunker.Chunk(ctx, f.Path, f.Content)
		if err != nil {
			e.Log.Warn().Err(err).Str("path", f.Path).Msg("chunk failed, skipping file")
			res.FilesSkipped++
			continue
		}
		if len(chunks) == 0 {
			continue
		}

		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content
		}
		vecs, err := e.Embedder.Embed(ctx, texts)
		if err != nil {
			e.Log.Warn().Err(err).Str("path", f.Path).Msg("embed failed, skipping file")
			res.FilesSkipped++
			continue
		}

		lang := chunker.DetectLanguage(f.Path)
		for j, c := range chunks {
			batch = append(batch, models.Point{
				ID:     uuid.NewString(),
				Vector: vecs[j],
				Payload: models.Payload{
					FilePath:      f.Path,
					StartLine:     c.StartLine,
					EndLine:       c.EndLine,
					Language:      lang,
					ElementType:   string(c.ElementType),
					FileExtension: strings.TrimPrefix(filepath.Ext(f.Path), "."),
					ChunkContent:  c.Content,
					TenantID:      tenantID,
				},
			})
			if len(batch) >= e.batchSize() {
				if err := flush(); err != nil {
					return res, err
				}
			}
		}
		res.FilesIndexed++
		sink.Report(progress.Event{Kind: progress.EventIndexFile, Repo: repo.Name, Total: len(files), Current: i + 1, Path: f.Path})
	}

	if err := flush(); err != nil {
		return res, err
	}

	langs, err := e.computeIndexedLanguages(ctx, collName)
	if err != nil {
		return res, err
	}
	res.Languages = langs

	sink.Report(progress.Event{Kind: progress.EventCompleted, Repo: repo.Name, Total: len(files), Current: len(files)})
	return res, nil
}
