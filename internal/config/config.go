package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Search backend drivers.
const (
	DriverOpenSearch = "opensearch"
	DriverRedis      = "redis"
)

// Config holds the contramate API configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Search     SearchConfig     `yaml:"search"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Answer     AnswerConfig     `yaml:"answer"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	// RequestTimeoutSec bounds one chat request end to end (search + all attempts).
	RequestTimeoutSec int `yaml:"request_timeout_sec"`
}

// SearchConfig holds search backend settings.
type SearchConfig struct {
	Driver             string   `yaml:"driver"` // opensearch, redis (default: opensearch)
	URL                string   `yaml:"url"`    // opensearch
	Addrs              []string `yaml:"addrs"`  // redis
	Username           string   `yaml:"username"`
	Password           string   `yaml:"password"`
	Index              string   `yaml:"index"`
	InsecureSkipVerify bool     `yaml:"insecure_skip_verify"`
	ReadinessTimeout   int      `yaml:"readiness_timeout_sec"`
	TimeoutSec         int      `yaml:"timeout_sec"`
	RetryCount         int      `yaml:"retry_count"`
	SemanticWeight     float64  `yaml:"semantic_weight"`
	TextWeight         float64  `yaml:"text_weight"`
	RRFK               int      `yaml:"rrf_k"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider         string `yaml:"provider"`
	APIKey           string `yaml:"api_key"`
	BaseURL          string `yaml:"base_url"`
	Model            string `yaml:"model"`
	Dimensions       int    `yaml:"dimensions"`
	QueryInstruction string `yaml:"query_instruction"`
	TimeoutSec       int    `yaml:"timeout_sec"`
	CacheTTLSec      int    `yaml:"cache_ttl_sec"` // 0 disables the cache
}

// GenerationConfig holds chat completion settings.
type GenerationConfig struct {
	APIKey        string  `yaml:"api_key"`
	BaseURL       string  `yaml:"base_url"`
	Model         string  `yaml:"model"`
	Temperature   float32 `yaml:"temperature"`
	MaxTokens     int     `yaml:"max_tokens"`
	TimeoutSec    int     `yaml:"timeout_sec"`
	RetryAttempts uint    `yaml:"retry_attempts"`
	RetryDelayMs  int     `yaml:"retry_delay_ms"`
	RetryMaxDelay int     `yaml:"retry_max_delay_ms"`
}

// AnswerConfig holds answer cycle settings.
type AnswerConfig struct {
	MaxAttempts      int     `yaml:"max_attempts"`
	TopK             int     `yaml:"top_k"`
	MinScore         float64 `yaml:"min_score"`
	SearchMode       string  `yaml:"search_mode"`
	PerDocument      int     `yaml:"per_document"`
	RetryBackoffMs   int     `yaml:"retry_backoff_ms"`
	MaxContextTokens int     `yaml:"max_context_tokens"` // 0 = unlimited
	TokenEncoding    string  `yaml:"token_encoding"`
	MinDescriptorLen int     `yaml:"min_descriptor_len"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
// A .env file in the working directory is loaded first when present.
func Load(env string) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands ${VAR} references, decodes YAML, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// loadDotEnv loads variables from path without overriding the real environment.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.RequestTimeoutSec <= 0 {
		c.HTTP.RequestTimeoutSec = 90
	}
	if c.Search.Driver == "" {
		c.Search.Driver = DriverOpenSearch
	}
	if c.Search.Index == "" {
		c.Search.Index = "contracts"
	}
	if c.Search.ReadinessTimeout <= 0 {
		c.Search.ReadinessTimeout = 10
	}
	if c.Search.TimeoutSec <= 0 {
		c.Search.TimeoutSec = 10
	}
	if c.Search.SemanticWeight <= 0 && c.Search.TextWeight <= 0 {
		c.Search.SemanticWeight = 0.7
		c.Search.TextWeight = 0.3
	}
	if c.Search.RRFK <= 0 {
		c.Search.RRFK = 60
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 15
	}
	if c.Generation.TimeoutSec <= 0 {
		c.Generation.TimeoutSec = 60
	}
	if c.Generation.RetryAttempts == 0 {
		c.Generation.RetryAttempts = 3
	}
	if c.Generation.RetryDelayMs <= 0 {
		c.Generation.RetryDelayMs = 500
	}
	if c.Generation.RetryMaxDelay <= 0 {
		c.Generation.RetryMaxDelay = 5000
	}
	if c.Answer.MaxAttempts <= 0 {
		c.Answer.MaxAttempts = 3
	}
	if c.Answer.TopK <= 0 {
		c.Answer.TopK = 10
	}
	if c.Answer.SearchMode == "" {
		c.Answer.SearchMode = "hybrid"
	}
	if c.Answer.TokenEncoding == "" {
		c.Answer.TokenEncoding = "cl100k_base"
	}
	if c.Answer.MinDescriptorLen <= 0 {
		c.Answer.MinDescriptorLen = 4
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Search.Driver {
	case DriverOpenSearch:
		if c.Search.URL == "" {
			return fmt.Errorf("search.url is required for driver %q", c.Search.Driver)
		}
	case DriverRedis:
		if len(c.Search.Addrs) == 0 {
			return fmt.Errorf("search.addrs is required for driver %q", c.Search.Driver)
		}
	default:
		return fmt.Errorf("search.driver must be %q or %q, got %q", DriverOpenSearch, DriverRedis, c.Search.Driver)
	}
	if c.Search.SemanticWeight < 0 || c.Search.TextWeight < 0 {
		return fmt.Errorf("search weights must not be negative")
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if c.Generation.Model == "" {
		return fmt.Errorf("generation.model is required")
	}
	if c.Answer.TopK > 50 {
		return fmt.Errorf("answer.top_k must be at most 50, got %d", c.Answer.TopK)
	}
	if c.Answer.MinScore < 0 {
		return fmt.Errorf("answer.min_score must not be negative")
	}
	switch c.Answer.SearchMode {
	case "hybrid", "semantic", "keyword":
	default:
		return fmt.Errorf("answer.search_mode must be hybrid, semantic or keyword, got %q", c.Answer.SearchMode)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
