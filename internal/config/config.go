package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port            int              `json:"port"`
	LogConfig       logger.LogConfig `json:"log_config"`
	CORSAllowlist   []string         `json:"cors_allowlist"`
	IngestRateLimit int              `json:"ingest_rate_limit"`
	Remote          RemoteConfig     `json:"remote"`
	Cache           CacheConfig      `json:"cache"`
	Chunker         ChunkerConfig    `json:"chunker"`
	Retrieval       RetrievalConfig  `json:"retrieval"`
	AI              AIConfig         `json:"ai"`
	EmbedCache      EmbedCacheConfig `json:"embed_cache"`
	Resync          ResyncConfig     `json:"resync"`
	Watch           WatchConfig      `json:"watch"`
	Extract         ExtractConfig    `json:"extract"`
}

type RemoteConfig struct {
	Type                string      `json:"type"`
	Timeout             int         `json:"timeout"`
	DownloadConcurrency int         `json:"download_concurrency"`
	Data                interface{} `json:"data"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type CacheConfig struct {
	Key   string          `json:"key"`
	Store FileStoreConfig `json:"store"`
}

type ChunkerConfig struct {
	MaxChunkChars int `json:"max_chunk_chars"`
	OverlapChars  int `json:"overlap_chars"`
}

type RetrievalConfig struct {
	TopK int `json:"top_k"`
}

type AIModelConfig struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type AIConfig struct {
	Timeout          int             `json:"timeout"`
	EmbedConcurrency int             `json:"embed_concurrency"`
	Generators       []AIModelConfig `json:"generators"`
	Embedders        []AIModelConfig `json:"embedders"`
}

type DatabaseConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

type EmbedCacheConfig struct {
	LRUSize     int            `json:"lru_size"`
	LRUTTL      int            `json:"lru_ttl"`
	DB          DatabaseConfig `json:"db"`
	CleanupCron string         `json:"cleanup_cron"`
	KeepDays    int            `json:"keep_days"`
}

type ResyncConfig struct {
	Cron string `json:"cron"`
}

type WatchConfig struct {
	Enabled    bool `json:"enabled"`
	DebounceMs int  `json:"debounce_ms"`
}

type ExtractConfig struct {
	MarkdownAsText bool `json:"markdown_as_text"`
}

// LoadEnvFile populates the process environment from a dotenv file so that
// ${VAR} references in the config can pick up credentials.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(raw))
	var cfg Config
	if err := json.NewDecoder(strings.NewReader(expanded)).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Chunker.MaxChunkChars <= 0 {
		return fmt.Errorf("chunker.max_chunk_chars is required")
	}
	if cfg.Chunker.OverlapChars < 0 || cfg.Chunker.OverlapChars >= cfg.Chunker.MaxChunkChars {
		return fmt.Errorf("chunker.overlap_chars must be in [0, max_chunk_chars)")
	}
	if cfg.Retrieval.TopK <= 0 {
		cfg.Retrieval.TopK = 4
	}

	cfg.Remote.Type = strings.ToLower(strings.TrimSpace(cfg.Remote.Type))
	switch cfg.Remote.Type {
	case "":
		cfg.Remote.Type = "gdrive"
	case "gdrive", "local":
	default:
		return fmt.Errorf("remote.type must be gdrive or local")
	}
	if cfg.Remote.Timeout <= 0 {
		cfg.Remote.Timeout = 60
	}
	if cfg.Remote.DownloadConcurrency <= 0 {
		cfg.Remote.DownloadConcurrency = 4
	}

	if cfg.Cache.Key == "" {
		cfg.Cache.Key = "document_cache.json"
	}
	if cfg.Cache.Store.Type == "" {
		cfg.Cache.Store.Type = "local"
	}
	switch cfg.Cache.Store.Type {
	case "local", "s3":
	default:
		return fmt.Errorf("cache.store.type must be local or s3")
	}

	if len(cfg.AI.Embedders) == 0 {
		return fmt.Errorf("ai.embedders requires at least one entry")
	}
	if len(cfg.AI.Generators) == 0 {
		return fmt.Errorf("ai.generators requires at least one entry")
	}
	for _, item := range append(append([]AIModelConfig{}, cfg.AI.Embedders...), cfg.AI.Generators...) {
		if item.Provider == "" || item.Model == "" {
			return fmt.Errorf("ai provider and model are required")
		}
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 60
	}
	if cfg.AI.EmbedConcurrency <= 0 {
		cfg.AI.EmbedConcurrency = 4
	}

	switch cfg.EmbedCache.DB.Driver {
	case "":
	case "sqlite", "postgres":
		if cfg.EmbedCache.DB.DSN == "" {
			return fmt.Errorf("embed_cache.db.dsn is required for %s", cfg.EmbedCache.DB.Driver)
		}
	default:
		return fmt.Errorf("embed_cache.db.driver must be sqlite or postgres")
	}
	if cfg.EmbedCache.LRUSize == 0 {
		cfg.EmbedCache.LRUSize = 4096
	}
	if cfg.EmbedCache.KeepDays <= 0 {
		cfg.EmbedCache.KeepDays = 30
	}
	if cfg.Watch.DebounceMs <= 0 {
		cfg.Watch.DebounceMs = 2000
	}
	return nil
}
