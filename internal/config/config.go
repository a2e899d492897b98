package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config is the full runtime configuration, read from the environment
type Config struct {
	DataDir     string `env:"CHIMERA_DATA_DIR" envDefault:"~/.chimera"`
	MetricsAddr string `env:"CHIMERA_METRICS_ADDR" envDefault:":9464"`

	Log        LogConfig        `envPrefix:"CHIMERA_LOG_"`
	Source     SourceConfig     `envPrefix:"CHIMERA_SOURCE_"`
	LLM        LLMConfig        `envPrefix:"CHIMERA_LLM_"`
	Graph      GraphConfig      `envPrefix:"CHIMERA_GRAPH_"`
	Cursor     CursorConfig     `envPrefix:"CHIMERA_CURSOR_"`
	Sync       SyncConfig       `envPrefix:"CHIMERA_SYNC_"`
	Recall     RecallConfig     `envPrefix:"CHIMERA_RECALL_"`
	Confidence ConfidenceConfig `envPrefix:"CHIMERA_CONFIDENCE_"`
	Assemble   AssembleConfig   `envPrefix:"CHIMERA_ASSEMBLE_"`
	Query      QueryConfig      `envPrefix:"CHIMERA_QUERY_"`
	MCP        MCPConfig        `envPrefix:"CHIMERA_MCP_"`
}

type LogConfig struct {
	Mode       string `env:"MODE" envDefault:"dev"`
	Level      string `env:"LEVEL" envDefault:"info"`
	File       string `env:"FILE"`
	MaxSizeMB  int    `env:"MAX_SIZE_MB" envDefault:"50"`
	MaxBackups int    `env:"MAX_BACKUPS" envDefault:"3"`
}

type SourceConfig struct {
	Kind            string  `env:"KIND" envDefault:"filesystem"` // notion | filesystem
	Root            string  `env:"ROOT" envDefault:"~/Documents/notes"`
	NotionToken     string  `env:"NOTION_TOKEN"`
	NotionBaseURL   string  `env:"NOTION_BASE_URL" envDefault:"https://api.notion.com"`
	NotionVersion   string  `env:"NOTION_VERSION" envDefault:"2022-06-28"`
	RateLimit       float64 `env:"RATE_LIMIT" envDefault:"3"` // requests per second
	MaxContentChars int     `env:"MAX_CONTENT_CHARS" envDefault:"10000"`
}

type LLMConfig struct {
	APIKey     string        `env:"API_KEY"`
	BaseURL    string        `env:"BASE_URL" envDefault:"https://api.openai.com"`
	Model      string        `env:"MODEL" envDefault:"gpt-4o-mini"`
	EmbedModel string        `env:"EMBED_MODEL" envDefault:"text-embedding-3-small"`
	Timeout    time.Duration `env:"TIMEOUT" envDefault:"60s"`
	RateLimit  float64       `env:"RATE_LIMIT" envDefault:"5"`
	MaxRetries uint          `env:"MAX_RETRIES" envDefault:"4"`
}

type GraphConfig struct {
	Backend       string `env:"BACKEND" envDefault:"sqlite"` // sqlite | neo4j | memory
	SQLitePath    string `env:"SQLITE_PATH"`                 // defaults to <DataDir>/index.db
	Neo4jURI      string `env:"NEO4J_URI" envDefault:"bolt://localhost:7687"`
	Neo4jUser     string `env:"NEO4J_USER" envDefault:"neo4j"`
	Neo4jPassword string `env:"NEO4J_PASSWORD"`
	Neo4jDatabase string `env:"NEO4J_DATABASE" envDefault:"neo4j"`
	VectorDims    int    `env:"VECTOR_DIMS" envDefault:"1536"`
}

type CursorConfig struct {
	Backend       string `env:"BACKEND" envDefault:"sqlite"` // sqlite | redis
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisKey      string `env:"REDIS_KEY" envDefault:"chimera:sync_cursor"`
}

type SyncConfig struct {
	Interval        time.Duration `env:"INTERVAL" envDefault:"30m"`
	FullMaxAge      time.Duration `env:"FULL_MAX_AGE" envDefault:"24h"`
	FullCron        string        `env:"FULL_CRON" envDefault:"0 3 * * *"`
	Workers         int           `env:"WORKERS" envDefault:"4"`
	MaxFailureRatio float64       `env:"MAX_FAILURE_RATIO" envDefault:"0.2"`
}

type RecallConfig struct {
	Pool          int     `env:"POOL" envDefault:"50"`
	Seeds         int     `env:"SEEDS" envDefault:"5"`
	Depth         int     `env:"DEPTH" envDefault:"2"`
	Decay         float64 `env:"DECAY" envDefault:"0.5"`
	MinSimilarity float64 `env:"MIN_SIMILARITY" envDefault:"0.3"`
}

type ConfidenceConfig struct {
	BatchSize int     `env:"BATCH_SIZE" envDefault:"10"`
	Floor     float64 `env:"FLOOR" envDefault:"0.5"`
}

type AssembleConfig struct {
	Workers      int `env:"WORKERS" envDefault:"4"`
	PreviewChars int `env:"PREVIEW_CHARS" envDefault:"500"`
}

type QueryConfig struct {
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"30s"`
	DefaultLimit int           `env:"DEFAULT_LIMIT" envDefault:"10"`
	MaxLimit     int           `env:"MAX_LIMIT" envDefault:"50"`
}

type MCPConfig struct {
	Addr   string `env:"ADDR" envDefault:":8765"`
	APIKey string `env:"API_KEY"`
}

// Load reads envFile (if it exists) into the process environment and then
// parses the configuration
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Overload(envFile); err != nil {
				return nil, fmt.Errorf("load %s: %w", envFile, err)
			}
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.DataDir = ExpandPath(cfg.DataDir)
	cfg.Source.Root = ExpandPath(cfg.Source.Root)
	if cfg.Graph.SQLitePath == "" {
		cfg.Graph.SQLitePath = filepath.Join(cfg.DataDir, "index.db")
	}
	cfg.Graph.SQLitePath = ExpandPath(cfg.Graph.SQLitePath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the pipelines cannot run with
func (c *Config) Validate() error {
	switch {
	case c.Sync.Workers < 1:
		return fmt.Errorf("CHIMERA_SYNC_WORKERS must be >= 1")
	case c.Sync.MaxFailureRatio < 0 || c.Sync.MaxFailureRatio > 1:
		return fmt.Errorf("CHIMERA_SYNC_MAX_FAILURE_RATIO must be within [0,1]")
	case c.Recall.Pool < 1 || c.Recall.Seeds < 1:
		return fmt.Errorf("CHIMERA_RECALL_POOL and CHIMERA_RECALL_SEEDS must be >= 1")
	case c.Recall.Decay <= 0 || c.Recall.Decay >= 1:
		return fmt.Errorf("CHIMERA_RECALL_DECAY must be within (0,1)")
	case c.Confidence.BatchSize < 1:
		return fmt.Errorf("CHIMERA_CONFIDENCE_BATCH_SIZE must be >= 1")
	case c.Assemble.Workers < 1:
		return fmt.Errorf("CHIMERA_ASSEMBLE_WORKERS must be >= 1")
	case c.Query.DefaultLimit < 1 || c.Query.DefaultLimit > c.Query.MaxLimit:
		return fmt.Errorf("CHIMERA_QUERY_DEFAULT_LIMIT must be within [1, CHIMERA_QUERY_MAX_LIMIT]")
	}
	return nil
}

// ExpandPath expands a leading ~ to the home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
