// Package config loads service configuration from YAML with environment
// overrides. Validation fails fast, before any network or disk I/O happens.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"agentcag/pkg/store"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// Config represents the service configuration.
type Config struct {
	Port              string `yaml:"port"`
	LogLevel          string `yaml:"logLevel"`
	DeploymentProfile string `yaml:"deploymentProfile"`

	SQLitePath    string `yaml:"sqlitePath"`
	Neo4jURI      string `yaml:"neo4jURI"`
	Neo4jUser     string `yaml:"neo4jUser"`
	Neo4jPassword string `yaml:"neo4jPassword"`
	ChromaURL     string `yaml:"chromaURL"`

	LLMServiceURL       string `yaml:"llmServiceURL"`
	TTSServiceURL       string `yaml:"ttsServiceURL"`
	ASRServiceURL       string `yaml:"asrServiceURL"`
	SardaukarServiceURL string `yaml:"sardaukarServiceURL"`
	MaxTokens           int    `yaml:"maxTokens"`

	RedisAddr               string `yaml:"redisAddr"`
	RedisPassword           string `yaml:"redisPassword"`
	QueryRateLimitPerMinute int    `yaml:"queryRateLimitPerMinute"`
	TrustProxyHeaders       bool   `yaml:"trustProxyHeaders"`
}

// Load reads config from path (defaults to config.yaml). A missing file is
// not an error; the service can run on environment variables alone.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err):
		// env-only operation
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Port, "PORT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.DeploymentProfile, "DEPLOYMENT_PROFILE")
	setString(&cfg.SQLitePath, "SQLITE_PATH")
	setString(&cfg.Neo4jURI, "NEO4J_URI")
	setString(&cfg.Neo4jUser, "NEO4J_USER")
	setString(&cfg.Neo4jPassword, "NEO4J_PASSWORD")
	setString(&cfg.ChromaURL, "CHROMA_URL")
	setString(&cfg.LLMServiceURL, "LLM_SERVICE_URL")
	setString(&cfg.TTSServiceURL, "TTS_SERVICE_URL")
	setString(&cfg.ASRServiceURL, "ASR_SERVICE_URL")
	setString(&cfg.SardaukarServiceURL, "SARDAUKAR_TRANSLATOR_URL")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	if v := os.Getenv("MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxTokens = n
		}
	}
	if v := os.Getenv("QUERY_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QueryRateLimitPerMinute = n
		}
	}
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Port == "" {
		cfg.Port = "8000"
	}
	if cfg.DeploymentProfile == "" {
		cfg.DeploymentProfile = store.ProfileEmbedded
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = "data/agent.db"
	}
	if cfg.Neo4jURI == "" {
		cfg.Neo4jURI = "bolt://neo4j:7687"
	}
	if cfg.Neo4jUser == "" {
		cfg.Neo4jUser = "neo4j"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
}

func validate(cfg Config) error {
	if cfg.DeploymentProfile != store.ProfileEmbedded && cfg.DeploymentProfile != store.ProfileDistributed {
		return fmt.Errorf("config: unknown deployment profile %q (use %q or %q)",
			cfg.DeploymentProfile, store.ProfileEmbedded, store.ProfileDistributed)
	}
	if cfg.LLMServiceURL == "" {
		return errors.New("config: llmServiceURL is required (set in config.yaml or LLM_SERVICE_URL)")
	}
	if cfg.QueryRateLimitPerMinute > 0 && cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required when queryRateLimitPerMinute is set")
	}
	return nil
}
