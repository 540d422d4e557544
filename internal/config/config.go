// Package config is the ConfigSource collaborator (spec §6.1): a read-only
// provider of repository records and tuning constants, loaded the way the
// teacher loads its single-repo config — defaults, then an optional YAML
// file, then environment variables, then flags, each layer overriding the
// last — generalized to a list of repositories and the core's tuning knobs
// (vector dim, collection prefix, batch size, worker count, session count,
// file-size ceiling, supported extensions, chunk-window size).
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// RepositoryConfig seeds one registry.Repository record (spec §3 Data
// model) from the YAML document's `repositories:` list.
type RepositoryConfig struct {
	Name              string            `yaml:"name"`
	URL               string            `yaml:"url"`
	Path              string            `yaml:"path"`
	DefaultBranch     string            `yaml:"defaultBranch"`
	TrackedBranches   []string          `yaml:"trackedBranches"`
	ActiveBranch      string            `yaml:"activeBranch,omitempty"`
	RemoteName        string            `yaml:"remoteName,omitempty"`
	SSHKeyPath        string            `yaml:"sshKeyPath,omitempty"`
	SSHKeyPassphrase  string            `yaml:"sshKeyPassphrase,omitempty"`
	LastSyncedCommits map[string]string `yaml:"lastSyncedCommits,omitempty"`
	AddedAsLocalPath  bool              `yaml:"addedAsLocalPath"`
	TargetRef         string            `yaml:"targetRef,omitempty"`
	TenantID          string            `yaml:"tenantID,omitempty"`
}

// Specification is the full set of tuning constants and seed repositories
// the core reads at startup (spec §6.1 ConfigSource).
type Specification struct {
	Provider     string `yaml:"provider"`
	APIKey       string `yaml:"providerApiKey" envconfig:"PROVIDER_API_KEY"`
	EmbedModel   string `yaml:"providerEmbedModel" envconfig:"PROVIDER_EMBEDDING_MODEL"`
	ProjectID    string `yaml:"providerProjectID" envconfig:"PROVIDER_PROJECT_ID"`
	Location     string `yaml:"providerLocation" envconfig:"PROVIDER_LOCATION"`
	Dim          int    `yaml:"providerDim" envconfig:"EMBED_DIM"`
	SessionCount int    `yaml:"sessionCount" split_words:"true"`

	QdrantAddr          string   `yaml:"qdrantAddr" split_words:"true"`
	CollectionPrefix    string   `yaml:"collectionPrefix" split_words:"true"`
	BatchSize           int      `yaml:"batchSize" split_words:"true"`
	WorkerCount         int      `yaml:"workerCount" split_words:"true"`
	FileSizeCeilingKiB  int      `yaml:"fileSizeCeilingKib" split_words:"true"`
	ChunkWindowLines    int      `yaml:"chunkWindowLines" split_words:"true"`
	ChunkOverlapLines   int      `yaml:"chunkOverlapLines" split_words:"true"`
	SupportedExtensions []string `yaml:"supportedExtensions" split_words:"true"`

	RegistryFile string              `yaml:"registryFile" split_words:"true"`
	Repositories []RepositoryConfig  `yaml:"repositories"`

	LogLevel string `yaml:"logLevel" split_words:"true"`
	Port     int    `yaml:"port" split_words:"true"`

	flags *pflag.FlagSet `ignored:"true"`
}

const envPrefix = "CODESEARCH"

func (s *Specification) Usage() {
	fmt.Fprint(os.Stderr, s.flags.FlagUsages())
}

// Load => defaults < YAML < env < flags.
// configPath may be ""; if so we auto-discover.
func Load(configPath string, fs *pflag.FlagSet) (Specification, error) {
	var cfg Specification

	setDefaults(&cfg)
	bindFlags(fs, &cfg)

	path := configPath
	if path == "" {
		if v := os.Getenv(envPrefix + "_CONFIG"); v != "" {
			path = v
		} else {
			for _, cand := range []string{
				"config/codesearch.yaml",
				"config/config.yaml",
				"./codesearch.yaml",
				"./config.yaml",
			} {
				if fileExists(cand) {
					path = cand
					break
				}
			}
		}
	}

	if path != "" {
		if !fileExists(path) {
			return Specification{}, fmt.Errorf("config file not found: %s", path)
		}
		if err := loadYAML(path, &cfg); err != nil {
			return Specification{}, fmt.Errorf("load yaml %s: %w", path, err)
		}
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Specification{}, fmt.Errorf("env override: %w", err)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		return Specification{}, err
	}
	applyChangedFlags(fs, &cfg)

	if strings.TrimSpace(cfg.QdrantAddr) == "" {
		return Specification{}, fmt.Errorf("%s_QDRANT_ADDR is required (env/file/flag)", envPrefix)
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

// ---------- helpers ----------

func loadYAML(path string, into any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, into)
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

func bindFlags(fs *pflag.FlagSet, c *Specification) {
	fs.String("config", "", "Path to config file")

	// If --config is provided on the command line, capture it now so
	// config discovery (which runs before flags.Parse) can use it.
	for i, a := range os.Args {
		if a == "--config" {
			if i+1 < len(os.Args) && !strings.HasPrefix(os.Args[i+1], "-") {
				_ = os.Setenv(envPrefix+"_CONFIG", os.Args[i+1])
			}
		} else if strings.HasPrefix(a, "--config=") {
			parts := strings.SplitN(a, "=", 2)
			if len(parts) == 2 {
				_ = os.Setenv(envPrefix+"_CONFIG", parts[1])
			}
		}
	}

	fs.String("provider", c.Provider, "Embedding provider (stub, openai, vertexai)")
	fs.String("provider-api-key", c.APIKey, "Provider API key")
	fs.String("provider-embedding-model", c.EmbedModel, "Provider embedding model")
	fs.String("provider-project-id", c.ProjectID, "Provider project ID")
	fs.String("provider-location", c.Location, "Provider location/region")
	fs.Int("embed-dim", c.Dim, "Embedding dimensionality")
	fs.Int("session-count", c.SessionCount, "Embedder pool session count (C1 concurrency, N)")

	fs.String("qdrant-addr", c.QdrantAddr, "Qdrant gRPC address (host:port)")
	fs.String("collection-prefix", c.CollectionPrefix, "Collection name prefix")
	fs.Int("batch-size", c.BatchSize, "Upsert batch size (B)")
	fs.Int("worker-count", c.WorkerCount, "Multi-branch scheduler worker count (J)")
	fs.Int("file-size-ceiling-kib", c.FileSizeCeilingKiB, "Chunker file size ceiling, KiB")
	fs.Int("chunk-window-lines", c.ChunkWindowLines, "Fallback chunker window size, lines")
	fs.Int("chunk-overlap-lines", c.ChunkOverlapLines, "Fallback chunker overlap, lines")

	fs.String("registry-file", c.RegistryFile, "Path to the registry persistence YAML file")

	fs.String("log-level", c.LogLevel, "Log level (debug|info|warn|error)")
	fs.Int("port", c.Port, "Query API server port")

	copied := pflag.NewFlagSet("temp", pflag.ContinueOnError)
	*copied = *fs
	c.flags = copied
}

func applyChangedFlags(fs *pflag.FlagSet, c *Specification) {
	setStr := func(name string, dst *string) {
		if fs.Changed(name) {
			v, _ := fs.GetString(name)
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if fs.Changed(name) {
			v, _ := fs.GetInt(name)
			*dst = v
		}
	}

	setStr("provider", &c.Provider)
	setStr("provider-api-key", &c.APIKey)
	setStr("provider-embedding-model", &c.EmbedModel)
	setStr("provider-project-id", &c.ProjectID)
	setStr("provider-location", &c.Location)
	setInt("embed-dim", &c.Dim)
	setInt("session-count", &c.SessionCount)

	setStr("qdrant-addr", &c.QdrantAddr)
	setStr("collection-prefix", &c.CollectionPrefix)
	setInt("batch-size", &c.BatchSize)
	setInt("worker-count", &c.WorkerCount)
	setInt("file-size-ceiling-kib", &c.FileSizeCeilingKiB)
	setInt("chunk-window-lines", &c.ChunkWindowLines)
	setInt("chunk-overlap-lines", &c.ChunkOverlapLines)

	setStr("registry-file", &c.RegistryFile)

	setStr("log-level", &c.LogLevel)
	setInt("port", &c.Port)
}

func setDefaults(c *Specification) {
	c.Provider = "stub"
	c.Dim = 0
	c.SessionCount = 4
	c.Location = "us-central1"

	c.QdrantAddr = "localhost:6334"
	c.CollectionPrefix = "repo_"
	c.BatchSize = 128
	c.WorkerCount = 3
	c.FileSizeCeilingKiB = 256
	c.ChunkWindowLines = 60
	c.ChunkOverlapLines = 10
	c.SupportedExtensions = []string{
		".go", ".rs", ".rb", ".py",
		".js", ".mjs", ".cjs", ".jsx",
		".ts", ".mts", ".cts", ".tsx",
		".yaml", ".yml", ".md", ".markdown",
	}

	c.RegistryFile = "registry.yaml"
	c.LogLevel = "info"
	c.Port = 8080
}
