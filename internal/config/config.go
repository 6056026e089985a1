package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"persona_engine/internal/logger"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned by Validate for out-of-range settings
var ErrInvalid = errors.New("invalid configuration")

// Config represents the structure of config.yaml
type Config struct {
	Log        logger.LogConfig `yaml:"log"`
	Engine     EngineConfig     `yaml:"engine"`
	Emotion    EmotionConfig    `yaml:"emotion"`
	Memory     MemoryConfig     `yaml:"memory"`
	Knowledge  KnowledgeConfig  `yaml:"knowledge"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Storage    StorageConfig    `yaml:"storage"`
	Server     ServerConfig     `yaml:"server"`
	Formatter  FormatterConfig  `yaml:"formatter"`
	Buffer     BufferConfig     `yaml:"buffer"`
	Audio      AudioConfig      `yaml:"audio"`
}

type EngineConfig struct {
	MaxMessages         int `yaml:"max_messages" envconfig:"ENGINE_MAX_MESSAGES"`
	MaxSentimentHistory int `yaml:"max_sentiment_history" envconfig:"ENGINE_MAX_SENTIMENT_HISTORY"`
	CloseAfterMessages  int `yaml:"close_after_messages" envconfig:"ENGINE_CLOSE_AFTER_MESSAGES"`
	PromptHistory       int `yaml:"prompt_history" envconfig:"ENGINE_PROMPT_HISTORY"`
}

type EmotionConfig struct {
	HistorySize int `yaml:"history_size" envconfig:"EMOTION_HISTORY_SIZE"`
}

type MemoryConfig struct {
	MaxPerOwner            int           `yaml:"max_per_owner" envconfig:"MEMORY_MAX_PER_OWNER"`
	ConsolidationThreshold float64       `yaml:"consolidation_threshold" envconfig:"MEMORY_CONSOLIDATION_THRESHOLD"`
	DecayRate              float64       `yaml:"decay_rate" envconfig:"MEMORY_DECAY_RATE"`
	RecallLimit            int           `yaml:"recall_limit" envconfig:"MEMORY_RECALL_LIMIT"`
	FlushInterval          time.Duration `yaml:"flush_interval" envconfig:"MEMORY_FLUSH_INTERVAL"`
}

type KnowledgeConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"KNOWLEDGE_ENABLED"`
	TopK    int  `yaml:"top_k" envconfig:"KNOWLEDGE_TOP_K"`
}

type EmbeddingConfig struct {
	Provider   string        `yaml:"provider" envconfig:"EMBEDDING_PROVIDER"`
	Model      string        `yaml:"model" envconfig:"EMBEDDING_MODEL"`
	BaseURL    string        `yaml:"base_url" envconfig:"EMBEDDING_BASE_URL"`
	APIKey     string        `yaml:"-" envconfig:"EMBEDDING_API_KEY"`
	Dimensions int           `yaml:"dimensions" envconfig:"EMBEDDING_DIMENSIONS"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"EMBEDDING_TIMEOUT"`
	RateLimit  float64       `yaml:"rate_limit" envconfig:"EMBEDDING_RATE_LIMIT"`
	Burst      int           `yaml:"burst" envconfig:"EMBEDDING_BURST"`
	CacheSize  int           `yaml:"cache_size" envconfig:"EMBEDDING_CACHE_SIZE"`
}

type GenerationConfig struct {
	Provider    string        `yaml:"provider" envconfig:"GENERATION_PROVIDER"`
	Model       string        `yaml:"model" envconfig:"GENERATION_MODEL"`
	BaseURL     string        `yaml:"base_url" envconfig:"GENERATION_BASE_URL"`
	APIKey      string        `yaml:"-" envconfig:"GENERATION_API_KEY"`
	MaxTokens   int           `yaml:"max_tokens" envconfig:"GENERATION_MAX_TOKENS"`
	Temperature float32       `yaml:"temperature" envconfig:"GENERATION_TEMPERATURE"`
	Timeout     time.Duration `yaml:"timeout" envconfig:"GENERATION_TIMEOUT"`
}

type StorageConfig struct {
	Backend     string        `yaml:"backend" envconfig:"STORAGE_BACKEND"`
	RedisURL    string        `yaml:"redis_url" envconfig:"REDIS_URL"`
	StateTTL    time.Duration `yaml:"state_ttl" envconfig:"STORAGE_STATE_TTL"`
	SnapshotDir string        `yaml:"snapshot_dir" envconfig:"STORAGE_SNAPSHOT_DIR"`
	SQLitePath  string        `yaml:"sqlite_path" envconfig:"STORAGE_SQLITE_PATH"`
}

type ServerConfig struct {
	Mode            string        `yaml:"mode" envconfig:"SERVER_MODE"`
	Addr            string        `yaml:"addr" envconfig:"SERVER_ADDR"`
	APIKey          string        `yaml:"-" envconfig:"SERVER_API_KEY"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SERVER_SHUTDOWN_TIMEOUT"`
}

type FormatterConfig struct {
	MaxFragments     int    `yaml:"max_fragments" envconfig:"FORMATTER_MAX_FRAGMENTS"`
	MaxFragmentChars int    `yaml:"max_fragment_chars" envconfig:"FORMATTER_MAX_FRAGMENT_CHARS"`
	TypingPace       string `yaml:"typing_pace" envconfig:"FORMATTER_TYPING_PACE"`
}

type BufferConfig struct {
	Window time.Duration `yaml:"window" envconfig:"BUFFER_WINDOW"`
}

type AudioConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"AUDIO_ENABLED"`
}

// Default returns the configuration used when config.yaml omits a value
func Default() Config {
	return Config{
		Log: logger.LogConfig{Level: "info", Format: "json", Output: "stderr", TimeFormat: "rfc3339"},
		Engine: EngineConfig{
			MaxMessages:         50,
			MaxSentimentHistory: 20,
			CloseAfterMessages:  30,
			PromptHistory:       10,
		},
		Emotion: EmotionConfig{HistorySize: 10},
		Memory: MemoryConfig{
			MaxPerOwner:            100,
			ConsolidationThreshold: 0.9,
			DecayRate:              0.001,
			RecallLimit:            5,
			FlushInterval:          2 * time.Second,
		},
		Knowledge: KnowledgeConfig{Enabled: true, TopK: 2},
		Embedding: EmbeddingConfig{
			Provider:   "hash",
			Dimensions: 256,
			Timeout:    10 * time.Second,
			CacheSize:  1024,
		},
		Generation: GenerationConfig{
			Provider:    "mock",
			Model:       "gpt-4o-mini",
			MaxTokens:   500,
			Temperature: 0.8,
			Timeout:     60 * time.Second,
		},
		Storage: StorageConfig{
			Backend:     "memory",
			StateTTL:    24 * time.Hour,
			SnapshotDir: "data/memories",
			SQLitePath:  "data/persona.db",
		},
		Server:    ServerConfig{Mode: "http", Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Formatter: FormatterConfig{MaxFragments: 4, MaxFragmentChars: 200, TypingPace: "normal"},
		Buffer:    BufferConfig{Window: 3500 * time.Millisecond},
	}
}

// LoadConfig loads configuration from a YAML file and applies environment overrides.
// A missing file is not an error; defaults are used instead.
func LoadConfig(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &config); err != nil {
				return nil, fmt.Errorf("error parsing YAML: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("error processing environment configuration: %w", err)
	}

	if config.Generation.APIKey == "" {
		config.Generation.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if config.Embedding.APIKey == "" {
		config.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	unit := func(name string, v float64) error {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s must be within [0,1], got %v", ErrInvalid, name, v)
		}
		return nil
	}
	positive := func(name string, v int) error {
		if v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalid, name, v)
		}
		return nil
	}
	oneOf := func(name, v string, allowed ...string) error {
		for _, a := range allowed {
			if v == a {
				return nil
			}
		}
		return fmt.Errorf("%w: unknown %s %q", ErrInvalid, name, v)
	}

	return errors.Join(
		unit("memory.consolidation_threshold", c.Memory.ConsolidationThreshold),
		positive("memory.max_per_owner", c.Memory.MaxPerOwner),
		positive("memory.recall_limit", c.Memory.RecallLimit),
		positive("knowledge.top_k", c.Knowledge.TopK),
		positive("engine.max_messages", c.Engine.MaxMessages),
		positive("engine.max_sentiment_history", c.Engine.MaxSentimentHistory),
		positive("engine.close_after_messages", c.Engine.CloseAfterMessages),
		positive("emotion.history_size", c.Emotion.HistorySize),
		positive("embedding.dimensions", c.Embedding.Dimensions),
		positive("formatter.max_fragments", c.Formatter.MaxFragments),
		oneOf("embedding provider", c.Embedding.Provider, "hash", "ollama", "openai"),
		oneOf("generation provider", c.Generation.Provider, "mock", "openai", "ollama", "ark", "deepseek"),
		oneOf("storage backend", c.Storage.Backend, "memory", "redis", "file", "sqlite"),
		oneOf("typing pace", c.Formatter.TypingPace, "fast", "normal", "slow"),
		oneOf("server mode", c.Server.Mode, "http", "repl"),
		func() error {
			if c.Memory.DecayRate < 0 {
				return fmt.Errorf("%w: memory.decay_rate must not be negative", ErrInvalid)
			}
			return nil
		}(),
	)
}
