package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Catalog    CatalogConfig    `yaml:"catalog" mapstructure:"catalog"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Relevance  RelevanceConfig  `yaml:"relevance" mapstructure:"relevance"`
	Analysis   AnalysisConfig   `yaml:"analysis" mapstructure:"analysis"`
	Guest      GuestConfig      `yaml:"guest" mapstructure:"guest"`
	Prefs      PrefsConfig      `yaml:"prefs" mapstructure:"prefs"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the relevance cache backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// CatalogConfig configures the public service metadata source.
type CatalogConfig struct {
	BaseURL       string        `yaml:"base_url" mapstructure:"base_url"`
	InventoryPath string        `yaml:"inventory_path" mapstructure:"inventory_path"`
	CacheTTL      time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	TimeoutSecs   int           `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit     float64       `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	HaikuModel string `yaml:"haiku_model" mapstructure:"haiku_model"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Model       string `yaml:"model" mapstructure:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// RelevanceConfig configures classification and batch filling.
type RelevanceConfig struct {
	Model      string        `yaml:"model" mapstructure:"model"`
	BatchSize  int           `yaml:"batch_size" mapstructure:"batch_size"`
	BatchDelay time.Duration `yaml:"batch_delay" mapstructure:"batch_delay"`
}

// AnalysisConfig configures the research pass.
type AnalysisConfig struct {
	PromptsFile string `yaml:"prompts_file" mapstructure:"prompts_file"`
}

// GuestConfig configures the unauthenticated usage cap.
type GuestConfig struct {
	Limit int    `yaml:"limit" mapstructure:"limit"`
	Key   string `yaml:"key" mapstructure:"key"`
}

// PrefsConfig selects where client-local state lives.
type PrefsConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port             int      `yaml:"port" mapstructure:"port"`
	APITokens        []string `yaml:"api_tokens" mapstructure:"api_tokens"`
	AllowedOrigins   []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	ReadTimeoutSecs  int      `yaml:"read_timeout_secs" mapstructure:"read_timeout_secs"`
	WriteTimeoutSecs int      `yaml:"write_timeout_secs" mapstructure:"write_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from ./config.yaml (if present) and environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. Unlike the default
// config.yaml, an explicit file must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("BTP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "btp-research.db")
	v.SetDefault("catalog.base_url", "https://raw.githubusercontent.com/SAP-samples/btp-service-metadata/main/v0")
	v.SetDefault("catalog.inventory_path", "inventory.json")
	v.SetDefault("catalog.cache_ttl", time.Hour)
	v.SetDefault("catalog.timeout_secs", 30)
	v.SetDefault("catalog.rate_limit", 10.0)
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("perplexity.timeout_secs", 60)
	v.SetDefault("relevance.model", "claude-haiku-4-5-20251001")
	v.SetDefault("relevance.batch_size", 5)
	v.SetDefault("relevance.batch_delay", 200*time.Millisecond)
	v.SetDefault("guest.limit", 5)
	v.SetDefault("guest.key", "btp_guest_usage")
	v.SetDefault("prefs.backend", "file")
	v.SetDefault("prefs.path", defaultStatePath())
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.read_timeout_secs", 15)
	v.SetDefault("server.write_timeout_secs", 120)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".btp-research", "state.json")
	}
	return filepath.Join(home, ".btp-research", "state.json")
}

// Validate checks that the keys the given command needs are present. All
// problems are reported at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve", "classify", "analyze", "catalog", "export", "prefs", "guest":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store.sqlite_path is required for the sqlite driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown store.driver %q", c.Store.Driver))
	}

	switch c.Prefs.Backend {
	case "file", "memory":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, "redis.addr is required for the redis prefs backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown prefs.backend %q", c.Prefs.Backend))
	}

	if (mode == "serve" || mode == "classify") && c.Anthropic.Key == "" {
		errs = append(errs, "anthropic.key is required (BTP_ANTHROPIC_KEY)")
	}
	if (mode == "serve" || mode == "analyze") && c.Perplexity.Key == "" {
		errs = append(errs, "perplexity.key is required (BTP_PERPLEXITY_KEY)")
	}
	if mode == "serve" && c.Server.Port <= 0 {
		errs = append(errs, "server.port must be > 0")
	}
	if c.Relevance.BatchSize < 1 || c.Relevance.BatchSize > 50 {
		errs = append(errs, "relevance.batch_size must be between 1 and 50")
	}
	if c.Relevance.BatchDelay < 0 {
		errs = append(errs, "relevance.batch_delay must be >= 0")
	}
	if c.Guest.Limit < 0 {
		errs = append(errs, "guest.limit must be >= 0")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
