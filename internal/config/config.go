// Package config loads the orchestrator's environment-variable
// configuration, following the teacher's core/config.go convention of
// plain os.Getenv reads with typed defaults rather than a struct-tag
// binding library.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// fileOverrides mirrors config/example.yaml's shape. Any field left zero
// after decoding is simply not applied, so a partial file only overrides
// what it sets.
type fileOverrides struct {
	Port    string `yaml:"port"`
	Sources struct {
		ExaBaseURL       string `yaml:"exa_base_url"`
		TavilyBaseURL    string `yaml:"tavily_base_url"`
		FirecrawlBaseURL string `yaml:"firecrawl_base_url"`
	} `yaml:"sources"`
	Cache struct {
		RedisURL          string `yaml:"redis_url"`
		RedisDB           int    `yaml:"redis_db"`
		DefaultTTLSeconds int    `yaml:"default_ttl_seconds"`
	} `yaml:"cache"`
	Knowledge struct {
		RedisURL string `yaml:"redis_url"`
		RedisDB  int    `yaml:"redis_db"`
	} `yaml:"knowledge"`
	LogLevel    string `yaml:"log_level"`
	Environment string `yaml:"environment"`
}

// Config holds every environment-supplied setting the server needs to wire
// source clients, the cache, the knowledge store, and the completion
// client.
type Config struct {
	Port string

	ExaAPIKey       string
	ExaBaseURL      string
	TavilyAPIKey    string
	TavilyBaseURL   string
	FirecrawlAPIKey string
	FirecrawlBaseURL string

	JinaAPIKey       string
	OpenRouterAPIKey string

	CacheRedisURL   string
	CacheRedisDB    int
	KnowledgeRedisURL string
	KnowledgeRedisDB  int

	DefaultCacheTTL time.Duration
	LogLevel        string
	Environment     string
}

// Load reads Config from the process environment, applying the defaults
// described in spec §4.6/§6.
func Load() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("INTELCORE_PORT", "8080"),
		ExaAPIKey:        os.Getenv("EXA_API_KEY"),
		ExaBaseURL:       getEnv("EXA_BASE_URL", ""),
		TavilyAPIKey:     os.Getenv("TAVILY_API_KEY"),
		TavilyBaseURL:    getEnv("TAVILY_BASE_URL", ""),
		FirecrawlAPIKey:  os.Getenv("FIRECRAWL_API_KEY"),
		FirecrawlBaseURL: getEnv("FIRECRAWL_BASE_URL", ""),
		JinaAPIKey:       os.Getenv("JINA_API_KEY"),
		OpenRouterAPIKey: os.Getenv("OPENROUTER_API_KEY"),

		CacheRedisURL:     getEnv("INTELCORE_CACHE_REDIS_URL", "redis://localhost:6379/2"),
		KnowledgeRedisURL: getEnv("INTELCORE_KNOWLEDGE_REDIS_URL", "redis://localhost:6379/1"),

		LogLevel:    getEnv("INTELCORE_LOG_LEVEL", "info"),
		Environment: getEnv("INTELCORE_ENV", "development"),
	}

	cacheDB, err := strconv.Atoi(getEnv("INTELCORE_CACHE_REDIS_DB", "2"))
	if err != nil {
		return nil, fmt.Errorf("invalid INTELCORE_CACHE_REDIS_DB: %w", err)
	}
	cfg.CacheRedisDB = cacheDB

	knowledgeDB, err := strconv.Atoi(getEnv("INTELCORE_KNOWLEDGE_REDIS_DB", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid INTELCORE_KNOWLEDGE_REDIS_DB: %w", err)
	}
	cfg.KnowledgeRedisDB = knowledgeDB

	ttlSeconds, err := strconv.Atoi(getEnv("INTELCORE_CACHE_TTL_SECONDS", "3600"))
	if err != nil {
		return nil, fmt.Errorf("invalid INTELCORE_CACHE_TTL_SECONDS: %w", err)
	}
	cfg.DefaultCacheTTL = time.Duration(ttlSeconds) * time.Second

	return cfg, nil
}

// ApplyYAMLFile loads path (e.g. config/example.yaml) and overlays any
// non-zero fields onto cfg, letting a deployment commit baseline settings
// without exporting a shell var for every one of them. Call before relying
// on any environment override the file also sets — it replaces whatever
// Load produced for that field. Missing file is not an error.
func (cfg *Config) ApplyYAMLFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}

	var overrides fileOverrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if overrides.Port != "" {
		cfg.Port = overrides.Port
	}
	if overrides.Sources.ExaBaseURL != "" {
		cfg.ExaBaseURL = overrides.Sources.ExaBaseURL
	}
	if overrides.Sources.TavilyBaseURL != "" {
		cfg.TavilyBaseURL = overrides.Sources.TavilyBaseURL
	}
	if overrides.Sources.FirecrawlBaseURL != "" {
		cfg.FirecrawlBaseURL = overrides.Sources.FirecrawlBaseURL
	}
	if overrides.Cache.RedisURL != "" {
		cfg.CacheRedisURL = overrides.Cache.RedisURL
	}
	if overrides.Cache.RedisDB != 0 {
		cfg.CacheRedisDB = overrides.Cache.RedisDB
	}
	if overrides.Cache.DefaultTTLSeconds != 0 {
		cfg.DefaultCacheTTL = time.Duration(overrides.Cache.DefaultTTLSeconds) * time.Second
	}
	if overrides.Knowledge.RedisURL != "" {
		cfg.KnowledgeRedisURL = overrides.Knowledge.RedisURL
	}
	if overrides.Knowledge.RedisDB != 0 {
		cfg.KnowledgeRedisDB = overrides.Knowledge.RedisDB
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.Environment != "" {
		cfg.Environment = overrides.Environment
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
