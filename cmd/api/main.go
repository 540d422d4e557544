// Command api serves the query engine (C8) over HTTP: a single /search
// endpoint taking the parameters of spec §4.8, wired the way the
// teacher's cmd/api wired its own /search handler (zerolog + hlog access
// logging, flag/env/YAML config), with the OAuth/JWT user-authentication
// surface dropped per spec's Non-goals (a request may still carry an
// opaque tenant_id, per §3's tenant tagging).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/spf13/pflag"

	"github.com/karthik-sk/codesearch-core/internal/bootstrap"
	"github.com/karthik-sk/codesearch-core/internal/config"
	"github.com/karthik-sk/codesearch-core/internal/registry"
	"github.com/karthik-sk/codesearch-core/internal/search"
	"github.com/karthik-sk/codesearch-core/pkg/models"
)

// hitView is the wire shape of one search hit: the payload plus its score,
// flattened the way the teacher's cmd/api flattened models.SearchResult
// into its Simple response type.
type hitView struct {
	FilePath      string  `json:"file_path"`
	StartLine     int     `json:"start_line"`
	EndLine       int     `json:"end_line"`
	Language      string  `json:"language"`
	ElementType   string  `json:"element_type"`
	FileExtension string  `json:"file_extension"`
	Content       string  `json:"content"`
	Branch        string  `json:"branch"`
	CommitHash    string  `json:"commit_hash"`
	Score         float64 `json:"score"`
}

func toView(hits []models.ScoredPoint) []hitView {
	out := make([]hitView, 0, len(hits))
	for _, h := range hits {
		out = append(out, hitView{
			FilePath:      h.Payload.FilePath,
			StartLine:     h.Payload.StartLine,
			EndLine:       h.Payload.EndLine,
			Language:      h.Payload.Language,
			ElementType:   h.Payload.ElementType,
			FileExtension: h.Payload.FileExtension,
			Content:       h.Payload.ChunkContent,
			Branch:        h.Payload.Branch,
			CommitHash:    h.Payload.CommitHash,
			Score:         float64(h.Score),
		})
	}
	return out
}

func main() {
	fs := pflag.NewFlagSet("codesearch-api", pflag.ExitOnError)
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
	logger.Info().Str("provider", cfg.Provider).Str("log_level", cfg.LogLevel).Msg("starting codesearch api")

	ctx := context.Background()

	store, err := bootstrap.NewStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to dial qdrant")
	}
	defer store.Close()

	emb, err := bootstrap.NewEmbedder(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize embedder")
	}

	namer := bootstrap.NamerFromConfig(cfg)
	seeded, err := bootstrap.SeedRepositories(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to seed repositories")
	}
	reg := registry.New(seeded, namer, store, registry.FilePersister{Path: cfg.RegistryFile})

	engine := &search.Engine{Registry: reg, Store: store, Embedder: emb, Namer: namer}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.HealthCheck(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/repositories", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(reg.List()); err != nil {
			http.Error(w, "failed to encode repositories", http.StatusInternalServerError)
		}
	})

	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		q := r.URL.Query().Get("q")
		if q == "" {
			http.Error(w, "missing query parameter q", http.StatusBadRequest)
			return
		}
		limit := 10
		if v := r.URL.Query().Get("k"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}

		scope := search.ScopeActive
		query := search.Query{
			Text:        q,
			Limit:       limit,
			Language:    r.URL.Query().Get("language"),
			ElementType: r.URL.Query().Get("element_type"),
			Branch:      r.URL.Query().Get("branch"),
			TenantID:    r.URL.Query().Get("tenant_id"),
		}
		switch r.URL.Query().Get("scope") {
		case "all":
			scope = search.ScopeAll
		case "named":
			query.Repos = r.URL.Query()["repository"]
			scope = search.ScopeNamed
		default:
			query.Repo = r.URL.Query().Get("repository")
		}
		query.Scope = scope

		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		hits, err := engine.Search(ctx, query)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(toView(hits)); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("failed to encode search response")
		}

		hlog.FromRequest(r).Info().Str("q", q).Int("k", limit).Int("hits", len(hits)).Dur("dur", time.Since(start)).Msg("served search")
	})

	handler := hlog.NewHandler(logger)(
		hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			logger.Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
		})(mux),
	)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: handler}
	logger.Info().Str("addr", srv.Addr).Msg("api server listening")
	logger.Fatal().Err(srv.ListenAndServe()).Msg("api server stopped")
}
