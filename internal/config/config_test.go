package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// clearEnv unsets every variable Load reads so neither the host environment
// nor a stray .env file can leak in
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LOG_LEVEL", "MCP_HOST", "PORT", "STORE_BACKEND", "IMPORT_BUCKET", "IMPORT_BATCH_SIZE",
		"GOOGLE_CLOUD_PROJECT", "FIRESTORE_DATABASE", "FIRESTORE_JOBS_COLLECTION",
		"FIRESTORE_APPLICATIONS_COLLECTION", "FIRESTORE_IMPORTS_COLLECTION",
		"NEO4J_URI", "NEO4J_USERNAME", "NEO4J_PASSWORD", "NEO4J_DATABASE",
		"GOOGLE_SHEETS_CREDENTIALS_PATH", "PIPELINE_CONFIG_FILE",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Chdir(t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOOGLE_CLOUD_PROJECT", "placement-prod")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend != BackendFirestore || cfg.BatchSize != 400 || cfg.Port != "8080" {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.Firestore.JobsCollection != "jobs" || cfg.Firestore.ImportsCollection != "stageImports" {
		t.Errorf("collections = %+v", cfg.Firestore)
	}
}

func TestLoadReportsAllMissingNeo4jVars(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_BACKEND", "neo4j")
	t.Setenv("IMPORT_BATCH_SIZE", "0")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() succeeded without Neo4j settings")
	}
	for _, want := range []string{"NEO4J_URI", "NEO4J_USERNAME", "NEO4J_PASSWORD", "IMPORT_BATCH_SIZE"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	yamlDoc := "store_backend: memory\nimport_batch_size: 50\nlog_level: debug\nfirestore:\n  jobs_collection: postings\n"
	if err := os.WriteFile(path, []byte(yamlDoc), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PIPELINE_CONFIG_FILE", path)
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend != BackendMemory || cfg.BatchSize != 50 || cfg.Firestore.JobsCollection != "postings" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, env should override file", cfg.LogLevel)
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	if err := os.WriteFile(".env", []byte("STORE_BACKEND=memory\nPORT=9090\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend != BackendMemory || cfg.Port != "9090" {
		t.Errorf("Load() = %+v, want values from .env", cfg)
	}
}

func TestValidateUnknownBackend(t *testing.T) {
	cfg := defaults()
	cfg.Backend = "postgres"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "postgres") {
		t.Errorf("Validate() error = %v", err)
	}
}
