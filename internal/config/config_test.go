package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func clearTestEnv(t *testing.T) {
	t.Helper()
	for _, envVar := range []string{
		"CODESEARCH_CONFIG", "CODESEARCH_PROVIDER", "CODESEARCH_PROVIDER_API_KEY",
		"CODESEARCH_EMBED_DIM", "CODESEARCH_QDRANT_ADDR", "CODESEARCH_COLLECTION_PREFIX",
		"CODESEARCH_BATCH_SIZE", "CODESEARCH_WORKER_COUNT", "CODESEARCH_LOG_LEVEL",
	} {
		_ = os.Unsetenv(envVar)
	}
	// Load parses os.Args; drop the test binary's own -test.* flags, which
	// the codesearch flag set does not know.
	origArgs := os.Args
	os.Args = []string{"test"}
	t.Cleanup(func() { os.Args = origArgs })
}

func TestSpecificationDefaults(t *testing.T) {
	clearTestEnv(t)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)

	cfg, err := Load("", fs)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Provider != "stub" {
		t.Errorf("expected default provider stub, got %q", cfg.Provider)
	}
	if cfg.QdrantAddr != "localhost:6334" {
		t.Errorf("expected default qdrant addr, got %q", cfg.QdrantAddr)
	}
	if cfg.BatchSize != 128 {
		t.Errorf("expected default batch size 128, got %d", cfg.BatchSize)
	}
	if cfg.WorkerCount != 3 {
		t.Errorf("expected default worker count 3, got %d", cfg.WorkerCount)
	}
	if len(cfg.SupportedExtensions) == 0 {
		t.Error("expected a non-empty default extension list")
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "test-config.yaml")

	yamlContent := `
provider: "openai"
providerApiKey: "test-api-key"
providerDim: 1536
qdrantAddr: "qdrant.internal:6334"
collectionPrefix: "acme_"
repositories:
  - name: sample
    url: https://example.com/sample.git
    defaultBranch: main
    trackedBranches: [main, dev]
`
	if err := os.WriteFile(configFile, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	clearTestEnv(t)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg, err := Load(configFile, fs)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Provider != "openai" {
		t.Errorf("expected provider openai, got %q", cfg.Provider)
	}
	if cfg.Dim != 1536 {
		t.Errorf("expected dim 1536, got %d", cfg.Dim)
	}
	if cfg.QdrantAddr != "qdrant.internal:6334" {
		t.Errorf("expected qdrant addr override, got %q", cfg.QdrantAddr)
	}
	if len(cfg.Repositories) != 1 || cfg.Repositories[0].Name != "sample" {
		t.Fatalf("expected one repository named sample, got %+v", cfg.Repositories)
	}
	if len(cfg.Repositories[0].TrackedBranches) != 2 {
		t.Errorf("expected 2 tracked branches, got %v", cfg.Repositories[0].TrackedBranches)
	}
}

func TestLoadFromEnvironmentVariables(t *testing.T) {
	clearTestEnv(t)
	t.Setenv("CODESEARCH_PROVIDER", "vertexai")
	t.Setenv("CODESEARCH_EMBED_DIM", "768")
	t.Setenv("CODESEARCH_QDRANT_ADDR", "env-qdrant:6334")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg, err := Load("", fs)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Provider != "vertexai" {
		t.Errorf("expected provider vertexai, got %q", cfg.Provider)
	}
	if cfg.Dim != 768 {
		t.Errorf("expected dim 768, got %d", cfg.Dim)
	}
	if cfg.QdrantAddr != "env-qdrant:6334" {
		t.Errorf("expected env qdrant addr, got %q", cfg.QdrantAddr)
	}
}

func TestLoadFromFlags(t *testing.T) {
	clearTestEnv(t)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)

	origArgs := os.Args
	defer func() { os.Args = origArgs }()
	os.Args = []string{"test", "--provider", "openai", "--embed-dim", "2048", "--worker-count", "5"}

	cfg, err := Load("", fs)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Provider != "openai" {
		t.Errorf("expected provider openai, got %q", cfg.Provider)
	}
	if cfg.Dim != 2048 {
		t.Errorf("expected dim 2048, got %d", cfg.Dim)
	}
	if cfg.WorkerCount != 5 {
		t.Errorf("expected worker count 5, got %d", cfg.WorkerCount)
	}
}

func TestConfigPrecedence(t *testing.T) {
	clearTestEnv(t)
	t.Setenv("CODESEARCH_PROVIDER", "env-provider")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	origArgs := os.Args
	defer func() { os.Args = origArgs }()
	os.Args = []string{"test", "--provider", "flag-provider"}

	cfg, err := Load("", fs)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Provider != "flag-provider" {
		t.Errorf("expected flag to override env, got %q", cfg.Provider)
	}
}

func TestValidationRequiresQdrantAddr(t *testing.T) {
	clearTestEnv(t)
	t.Setenv("CODESEARCH_QDRANT_ADDR", "   ")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	_, err := Load("", fs)
	if err == nil {
		t.Fatal("expected validation error for blank qdrant address")
	}
	if !strings.Contains(err.Error(), "QDRANT_ADDR is required") {
		t.Errorf("expected qdrant addr validation error, got: %v", err)
	}
}

func TestNonExistentConfigFile(t *testing.T) {
	clearTestEnv(t)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)

	_, err := Load("/non/existent/config.yaml", fs)
	if err == nil {
		t.Fatal("expected error for non-existent config file")
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("expected 'config file not found', got: %v", err)
	}
}

func TestInvalidYAMLFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "invalid.yaml")
	if err := os.WriteFile(configFile, []byte("provider: [unterminated"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	clearTestEnv(t)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	_, err := Load(configFile, fs)
	if err == nil {
		t.Fatal("expected error for invalid YAML file")
	}
	if !strings.Contains(err.Error(), "load yaml") {
		t.Errorf("expected YAML load error, got: %v", err)
	}
}

func TestFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	existing := filepath.Join(tmpDir, "existing.txt")
	if err := os.WriteFile(existing, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if !fileExists(existing) {
		t.Error("expected fileExists to return true for an existing file")
	}
	if fileExists(filepath.Join(tmpDir, "missing.txt")) {
		t.Error("expected fileExists to return false for a missing file")
	}
	if fileExists(tmpDir) {
		t.Error("expected fileExists to return false for a directory")
	}
}
