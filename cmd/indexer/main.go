// Command indexer drives the sync engine (C6) and multi-branch scheduler
// (C7) for every configured repository: open or clone each working tree,
// sync its tracked branches to their remote tips, and persist the updated
// registry state, the way the teacher's cmd/indexer drove a single
// repository's indexer.Run to completion.
package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/karthik-sk/codesearch-core/internal/bootstrap"
	"github.com/karthik-sk/codesearch-core/internal/chunker"
	"github.com/karthik-sk/codesearch-core/internal/config"
	"github.com/karthik-sk/codesearch-core/internal/gitdriver"
	"github.com/karthik-sk/codesearch-core/internal/progress"
	"github.com/karthik-sk/codesearch-core/internal/registry"
	"github.com/karthik-sk/codesearch-core/internal/scheduler"
	"github.com/karthik-sk/codesearch-core/internal/sync"
)

func main() {
	fs := pflag.NewFlagSet("codesearch-indexer", pflag.ExitOnError)
	cfg, err := config.Load("", fs)
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("failed to load configuration")
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Str("log_level", cfg.LogLevel).Msg("invalid log level")
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	logger.Info().Str("provider", cfg.Provider).Int("repos", len(cfg.Repositories)).Msg("starting codesearch indexer")

	ctx := context.Background()

	store, err := bootstrap.NewStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to dial qdrant")
	}
	defer store.Close()

	pool, err := bootstrap.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize embedder pool")
	}
	logger.Info().Int("sessions", pool.Size()).Int("dim", pool.Dimension()).Msg("embedder pool warmed up")

	namer := bootstrap.NamerFromConfig(cfg)
	seeded, err := bootstrap.SeedRepositories(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to seed repositories")
	}
	reg := registry.New(seeded, namer, store, registry.FilePersister{Path: cfg.RegistryFile})

	chk := chunker.New(cfg.FileSizeCeilingKiB*1024, cfg.ChunkWindowLines, cfg.ChunkOverlapLines)
	sink := progress.NewLogSink(logger)

	failed := 0
	for _, repo := range reg.List() {
		repoLog := logger.With().Str("repo", repo.Name).Logger()

		if repo.AddedAsLocalPath {
			eng := &sync.Engine{Store: store, Embedder: pool, Chunker: chk, Namer: namer, BatchSize: cfg.BatchSize, Log: repoLog}
			res, err := eng.SyncLocalPath(ctx, repo, repo.TenantID, sink)
			if err != nil {
				repoLog.Error().Err(err).Msg("local sync failed")
				failed++
				continue
			}
			if err := reg.UpdateSyncState(repo.Name, repo.DefaultBranch, "local", res.Languages); err != nil {
				repoLog.Error().Err(err).Msg("failed to persist sync state")
				failed++
			}
			continue
		}

		driver, err := gitdriver.Open(ctx, repo.Path, repo.URL, repo.RemoteName, repo.SSHKeyPath)
		if err != nil {
			repoLog.Error().Err(err).Msg("failed to open repository")
			failed++
			continue
		}

		eng := &sync.Engine{Git: driver, Store: store, Embedder: pool, Chunker: chk, Namer: namer, BatchSize: cfg.BatchSize, Log: repoLog}
		sched := &scheduler.Scheduler{Engine: eng, Registry: reg, WorkerCount: cfg.WorkerCount}

		results, err := sched.Run(ctx, repo, repo.TenantID, sink)
		for branch, r := range results {
			if r.Err != nil {
				repoLog.Error().Err(r.Err).Str("branch", branch).Msg("branch sync failed")
				continue
			}
			repoLog.Info().Str("branch", branch).Int("files_indexed", r.Result.FilesIndexed).Int("chunks_upserted", r.Result.ChunksUpserted).Msg("branch synced")
		}
		if err != nil {
			failed++
		}
	}

	if failed > 0 {
		logger.Fatal().Int("failed_repositories", failed).Msg("indexer run completed with failures")
	}
	logger.Info().Msg("indexer run complete")
}
