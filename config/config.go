package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the assistant and its agent services.
type Config struct {
	General      GeneralConfig      `mapstructure:"general"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Sources      SourcesConfig      `mapstructure:"sources"`
	Marketplaces MarketplacesConfig `mapstructure:"marketplaces"`
	Agents       AgentsConfig       `mapstructure:"agents"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Memory       MemoryConfig       `mapstructure:"memory"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	Listen         string        `mapstructure:"listen"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// LLMConfig configures the chat-completions provider (OpenRouter-compatible).
type LLMConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Model          string        `mapstructure:"model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	Temperature    float64       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Referer        string        `mapstructure:"referer"`
	AppTitle       string        `mapstructure:"app_title"`
}

func (l LLMConfig) Validate() error {
	if strings.TrimSpace(l.APIKey) == "" {
		return fmt.Errorf("llm.api_key required")
	}
	if strings.TrimSpace(l.Model) == "" {
		return fmt.Errorf("llm.model required")
	}
	return nil
}

// SourcesConfig contains evidence source configurations.
type SourcesConfig struct {
	WebSearch WebSearchConfig `mapstructure:"web_search"`
}

// WebSearchConfig contains web search settings used by the research agent.
type WebSearchConfig struct {
	Provider     string        `mapstructure:"provider"` // serper or brave
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	BraveAPIKey  string        `mapstructure:"brave_api_key"`
	MaxResults   int           `mapstructure:"max_results"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// MarketplacesConfig groups the external marketplace API credentials.
type MarketplacesConfig struct {
	EBay       EBayConfig       `mapstructure:"ebay"`
	Rainforest RainforestConfig `mapstructure:"rainforest"`
}

// EBayConfig contains eBay Browse API settings.
type EBayConfig struct {
	ClientID      string        `mapstructure:"client_id"`
	ClientSecret  string        `mapstructure:"client_secret"`
	BaseURL       string        `mapstructure:"base_url"`
	TokenURL      string        `mapstructure:"token_url"`
	MarketplaceID string        `mapstructure:"marketplace_id"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// RainforestConfig contains Rainforest (Amazon) API settings.
type RainforestConfig struct {
	APIKey   string        `mapstructure:"api_key"`
	Endpoint string        `mapstructure:"endpoint"`
	Domain   string        `mapstructure:"domain"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AgentsConfig wires the coordinator to the agent services and sets their
// listen addresses when run as standalone processes.
type AgentsConfig struct {
	ResearchURL    string        `mapstructure:"research_url"`
	EBayURL        string        `mapstructure:"ebay_url"`
	AmazonURL      string        `mapstructure:"amazon_url"`
	ResearchListen string        `mapstructure:"research_listen"`
	EBayListen     string        `mapstructure:"ebay_listen"`
	AmazonListen   string        `mapstructure:"amazon_listen"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Retries        int           `mapstructure:"retries"`
	Backoff        time.Duration `mapstructure:"backoff"`
	ResultLimit    int           `mapstructure:"result_limit"`
}

// StorageConfig contains storage and persistence settings.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings.
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a Postgres DSN from the configured parts.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

// MemoryConfig controls personalization recall behaviour.
type MemoryConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	EmbeddingDimensions int           `mapstructure:"embedding_dimensions"`
	TopK                int           `mapstructure:"top_k"`
	ContextLimit        int           `mapstructure:"context_limit"`
	SessionTTL          time.Duration `mapstructure:"session_ttl"`
}

// TelemetryConfig contains metrics settings.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig loads config from file, with SHOPSCOUT_* env overrides.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.listen", ":10001")
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", "30s")
	viper.SetDefault("llm.base_url", "https://openrouter.ai/api/v1")
	viper.SetDefault("llm.model", "google/gemini-2.5-flash-lite")
	viper.SetDefault("llm.embedding_model", "text-embedding-3-small")
	viper.SetDefault("llm.temperature", 0.3)
	viper.SetDefault("llm.timeout", "30s")
	viper.SetDefault("llm.referer", "http://localhost")
	viper.SetDefault("llm.app_title", "shopscout")
	viper.SetDefault("sources.web_search.provider", "serper")
	viper.SetDefault("sources.web_search.max_results", 5)
	viper.SetDefault("sources.web_search.timeout", "10s")
	viper.SetDefault("marketplaces.ebay.base_url", "https://api.ebay.com")
	viper.SetDefault("marketplaces.ebay.token_url", "https://api.ebay.com/identity/v1/oauth2/token")
	viper.SetDefault("marketplaces.ebay.marketplace_id", "EBAY_US")
	viper.SetDefault("marketplaces.ebay.timeout", "10s")
	viper.SetDefault("marketplaces.rainforest.endpoint", "https://api.rainforestapi.com/request")
	viper.SetDefault("marketplaces.rainforest.domain", "amazon.com")
	viper.SetDefault("marketplaces.rainforest.timeout", "15s")
	viper.SetDefault("agents.research_url", "http://127.0.0.1:8001")
	viper.SetDefault("agents.ebay_url", "http://127.0.0.1:8002")
	viper.SetDefault("agents.amazon_url", "http://127.0.0.1:8003")
	viper.SetDefault("agents.research_listen", ":8001")
	viper.SetDefault("agents.ebay_listen", ":8002")
	viper.SetDefault("agents.amazon_listen", ":8003")
	viper.SetDefault("agents.timeout", "8s")
	viper.SetDefault("agents.retries", 1)
	viper.SetDefault("agents.backoff", "300ms")
	viper.SetDefault("agents.result_limit", 4)
	viper.SetDefault("memory.enabled", true)
	viper.SetDefault("memory.embedding_dimensions", 1536)
	viper.SetDefault("memory.top_k", 10)
	viper.SetDefault("memory.context_limit", 5)
	viper.SetDefault("memory.session_ttl", "30m")
	viper.SetDefault("telemetry.enabled", true)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("SHOPSCOUT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.LLM.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Postgres.Validate(); err != nil {
		panic(err)
	}
	return &config
}
