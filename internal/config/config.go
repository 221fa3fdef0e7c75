package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store backends
const (
	BackendFirestore = "firestore"
	BackendNeo4j     = "neo4j"
	BackendMemory    = "memory"
)

// Config contains runtime settings for the MCP server and the import function
type Config struct {
	LogLevel  string `yaml:"log_level"`
	Host      string `yaml:"host"` // default 0.0.0.0
	Port      string `yaml:"port"` // default PORT env or 8080
	Backend   string `yaml:"store_backend"`
	BatchSize int    `yaml:"import_batch_size"`

	Firestore struct {
		ProjectID              string `yaml:"project_id"`
		DatabaseID             string `yaml:"database_id"`
		JobsCollection         string `yaml:"jobs_collection"`
		ApplicationsCollection string `yaml:"applications_collection"`
		ImportsCollection      string `yaml:"imports_collection"`
	} `yaml:"firestore"`
	Neo4j struct {
		URI      string `yaml:"uri"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Database string `yaml:"database"`
	} `yaml:"neo4j"`
	Sheets struct {
		CredentialsPath string `yaml:"credentials_path"`
	} `yaml:"sheets"`

	// ImportBucket restricts the upload trigger to one bucket when set
	ImportBucket string `yaml:"import_bucket"`
}

func defaults() Config {
	cfg := Config{
		LogLevel:  "info",
		Host:      "0.0.0.0",
		Port:      "8080",
		Backend:   BackendFirestore,
		BatchSize: 400,
	}
	cfg.Firestore.JobsCollection = "jobs"
	cfg.Firestore.ApplicationsCollection = "applications"
	cfg.Firestore.ImportsCollection = "stageImports"
	return cfg
}

// Load reads .env if present, then the YAML file named by
// PIPELINE_CONFIG_FILE, then environment variables. Later sources win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := defaults()
	if path := os.Getenv("PIPELINE_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.Host, "MCP_HOST")
	setString(&cfg.Port, "PORT")
	setString(&cfg.Backend, "STORE_BACKEND")
	setString(&cfg.ImportBucket, "IMPORT_BUCKET")

	setString(&cfg.Firestore.ProjectID, "GOOGLE_CLOUD_PROJECT")
	setString(&cfg.Firestore.DatabaseID, "FIRESTORE_DATABASE")
	setString(&cfg.Firestore.JobsCollection, "FIRESTORE_JOBS_COLLECTION")
	setString(&cfg.Firestore.ApplicationsCollection, "FIRESTORE_APPLICATIONS_COLLECTION")
	setString(&cfg.Firestore.ImportsCollection, "FIRESTORE_IMPORTS_COLLECTION")

	setString(&cfg.Neo4j.URI, "NEO4J_URI")
	setString(&cfg.Neo4j.Username, "NEO4J_USERNAME")
	setString(&cfg.Neo4j.Password, "NEO4J_PASSWORD")
	setString(&cfg.Neo4j.Database, "NEO4J_DATABASE")

	setString(&cfg.Sheets.CredentialsPath, "GOOGLE_SHEETS_CREDENTIALS_PATH")

	if v := os.Getenv("IMPORT_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid IMPORT_BATCH_SIZE %q: %w", v, err)
		}
		cfg.BatchSize = n
	}

	return cfg, cfg.Validate()
}

// Validate reports every missing or malformed setting at once
func (c Config) Validate() error {
	var problems []string

	if c.BatchSize <= 0 {
		problems = append(problems, fmt.Sprintf("IMPORT_BATCH_SIZE must be positive, got %d", c.BatchSize))
	}

	var missingVars []string
	switch c.Backend {
	case BackendFirestore:
		if c.Firestore.ProjectID == "" {
			missingVars = append(missingVars, "GOOGLE_CLOUD_PROJECT")
		}
	case BackendNeo4j:
		if c.Neo4j.URI == "" {
			missingVars = append(missingVars, "NEO4J_URI")
		}
		if c.Neo4j.Username == "" {
			missingVars = append(missingVars, "NEO4J_USERNAME")
		}
		if c.Neo4j.Password == "" {
			missingVars = append(missingVars, "NEO4J_PASSWORD")
		}
	case BackendMemory:
	default:
		problems = append(problems, fmt.Sprintf("unknown STORE_BACKEND %q", c.Backend))
	}

	if len(missingVars) > 0 {
		problems = append(problems, "missing required environment variables: "+strings.Join(missingVars, ", "))
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
