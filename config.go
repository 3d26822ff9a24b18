package creditgate

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the top-level gateway configuration.
type Config struct {
	Pricing      TariffConfig    `yaml:"tariff"`
	Provider     ProviderConfig  `yaml:"provider"`
	Retrieval    RetrievalConfig `yaml:"retrieval"`
	Embedder     EmbedderConfig  `yaml:"embedder"`
	Ledger       LedgerConfig    `yaml:"ledger"`
	Instructions string          `yaml:"instructions"`
}

// TariffConfig sets the fixed per-request prices in credits.
type TariffConfig struct {
	Chat float64 `yaml:"chat"`
	RAG  float64 `yaml:"rag"`
}

// ProviderConfig bounds outbound provider calls.
type ProviderConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	Temperature  float64       `yaml:"temperature"`
}

// RetrievalConfig tunes ingest and prompt assembly.
type RetrievalConfig struct {
	ChunkSize       int     `yaml:"chunk_size"`
	TopK            int     `yaml:"top_k"`
	PromptBudget    int64   `yaml:"prompt_budget"`
	Concurrency     int     `yaml:"concurrency"`
	EmbedsPerSecond float64 `yaml:"embeds_per_second"`
}

// EmbedderConfig selects the embedding backend.
type EmbedderConfig struct {
	Kind      string `yaml:"kind"` // "openai" or "ollama"
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Dimension int    `yaml:"dimension"`
}

// LedgerConfig selects the ledger backend.
type LedgerConfig struct {
	Backend string `yaml:"backend"` // "memory", "sqlite", "postgres" or "redis"
	DSN     string `yaml:"dsn"`
	Addr    string `yaml:"addr"`
}

const (
	DefaultChatTariff   = 1.0
	DefaultRAGTariff    = 2.0
	DefaultTopK         = 3
	DefaultPromptBudget = 3000
	DefaultConcurrency  = 4
	DefaultTemperature  = 0.7
	DefaultChunkSize    = 1000
)

// LoadConfig reads and parses a YAML config file.
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("creditgate: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config bytes, applies defaults and validates.
func ParseConfig(data []byte) (Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("creditgate: parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Pricing.Chat == 0 {
		c.Pricing.Chat = DefaultChatTariff
	}
	if c.Pricing.RAG == 0 {
		c.Pricing.RAG = DefaultRAGTariff
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = DefaultProviderTimeout
	}
	if c.Provider.ProbeTimeout == 0 {
		c.Provider.ProbeTimeout = DefaultProbeTimeout
	}
	if c.Provider.Temperature == 0 {
		c.Provider.Temperature = DefaultTemperature
	}
	if c.Retrieval.ChunkSize == 0 {
		c.Retrieval.ChunkSize = DefaultChunkSize
	}
	if c.Retrieval.TopK == 0 {
		c.Retrieval.TopK = DefaultTopK
	}
	if c.Retrieval.PromptBudget == 0 {
		c.Retrieval.PromptBudget = DefaultPromptBudget
	}
	if c.Retrieval.Concurrency == 0 {
		c.Retrieval.Concurrency = DefaultConcurrency
	}
	if c.Embedder.Kind == "" {
		c.Embedder.Kind = "openai"
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = "memory"
	}
}

// Validate checks the config for required fields and consistency.
func (c Config) Validate() error {
	if c.Pricing.Chat <= 0 {
		return fmt.Errorf("creditgate: config: tariff.chat must be positive, got %v", c.Pricing.Chat)
	}
	if c.Pricing.RAG <= 0 {
		return fmt.Errorf("creditgate: config: tariff.rag must be positive, got %v", c.Pricing.RAG)
	}
	if c.Provider.Timeout < 0 || c.Provider.ProbeTimeout < 0 {
		return fmt.Errorf("creditgate: config: provider timeouts must not be negative")
	}
	if c.Provider.Temperature < 0 || c.Provider.Temperature > 2 {
		return fmt.Errorf("creditgate: config: provider.temperature %v out of range [0, 2]", c.Provider.Temperature)
	}
	if c.Retrieval.ChunkSize < 0 {
		return fmt.Errorf("creditgate: config: retrieval.chunk_size must be positive, got %d", c.Retrieval.ChunkSize)
	}
	if c.Retrieval.TopK < 0 {
		return fmt.Errorf("creditgate: config: retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.PromptBudget < 0 {
		return fmt.Errorf("creditgate: config: retrieval.prompt_budget must be positive, got %d", c.Retrieval.PromptBudget)
	}
	if c.Retrieval.Concurrency < 0 {
		return fmt.Errorf("creditgate: config: retrieval.concurrency must be positive, got %d", c.Retrieval.Concurrency)
	}
	if c.Retrieval.EmbedsPerSecond < 0 {
		return fmt.Errorf("creditgate: config: retrieval.embeds_per_second must not be negative")
	}

	switch c.Embedder.Kind {
	case "openai":
	case "ollama":
		if c.Embedder.BaseURL == "" {
			return fmt.Errorf("creditgate: config: embedder.base_url is required for ollama")
		}
		if c.Embedder.Model == "" {
			return fmt.Errorf("creditgate: config: embedder.model is required for ollama")
		}
	default:
		return fmt.Errorf("creditgate: config: invalid embedder.kind %q", c.Embedder.Kind)
	}

	switch c.Ledger.Backend {
	case "memory":
	case "sqlite", "postgres":
		if c.Ledger.DSN == "" {
			return fmt.Errorf("creditgate: config: ledger.dsn is required for %s", c.Ledger.Backend)
		}
	case "redis":
		if c.Ledger.Addr == "" {
			return fmt.Errorf("creditgate: config: ledger.addr is required for redis")
		}
	default:
		return fmt.Errorf("creditgate: config: invalid ledger.backend %q", c.Ledger.Backend)
	}
	return nil
}

// Tariff returns the configured prices as exact decimals.
func (c Config) Tariff() Tariff {
	return Tariff{
		Chat: decimal.NewFromFloat(c.Pricing.Chat),
		RAG:  decimal.NewFromFloat(c.Pricing.RAG),
	}
}
