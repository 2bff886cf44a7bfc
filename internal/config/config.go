// Package config handles configuration loading for StockPilot.
// It supports YAML config files with environment variable overrides and
// resolves the deprecated key names older deployments still use.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. STOCKPILOT_LLM_MODEL.
const EnvPrefix = "STOCKPILOT"

// Config represents the complete application configuration.
type Config struct {
	Symbols      []string          `mapstructure:"symbols"       yaml:"symbols"       validate:"required,min=1,dive,required"`
	CompanyNames map[string]string `mapstructure:"company_names" yaml:"company_names"`
	Data         DataConfig        `mapstructure:"data"          yaml:"data"`
	News         NewsConfig        `mapstructure:"news"          yaml:"news"`
	Forecast     ForecastConfig    `mapstructure:"forecast"      yaml:"forecast"`
	LLM          LLMConfig         `mapstructure:"llm"           yaml:"llm"`
	Analysts     AnalystsConfig    `mapstructure:"analysts"      yaml:"analysts"`
	Synthesis    SynthesisConfig   `mapstructure:"synthesis"     yaml:"synthesis"`
	Pipeline     PipelineConfig    `mapstructure:"pipeline"      yaml:"pipeline"`
	Store        StoreConfig       `mapstructure:"store"         yaml:"store"`
	Report       ReportConfig      `mapstructure:"report"        yaml:"report"`
	Schedule     ScheduleConfig    `mapstructure:"schedule"      yaml:"schedule"`
	API          APIConfig         `mapstructure:"api"           yaml:"api"`
	Logging      LoggingConfig     `mapstructure:"logging"       yaml:"logging"`
}

// DataConfig holds price and profile fetch settings.
type DataConfig struct {
	LookbackDays      int           `mapstructure:"lookback_days"       yaml:"lookback_days"       validate:"gte=30"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"       yaml:"fetch_timeout"       validate:"gt=0"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"           yaml:"cache_ttl"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute" validate:"gte=0"`
}

// NewsConfig holds news feed settings.
type NewsConfig struct {
	Enabled      bool   `mapstructure:"enabled"       yaml:"enabled"`
	MaxArticles  int    `mapstructure:"max_articles"  yaml:"max_articles"  validate:"gte=1,lte=100"`
	LookbackDays int    `mapstructure:"lookback_days" yaml:"lookback_days" validate:"gte=1"`
	FeedURL      string `mapstructure:"feed_url"      yaml:"feed_url"      validate:"required,url"`
	UserAgent    string `mapstructure:"user_agent"    yaml:"user_agent"`
}

// ForecastConfig holds forecast ensemble settings.
type ForecastConfig struct {
	Horizon              int                 `mapstructure:"horizon"                yaml:"horizon"                validate:"gte=1,lte=365"`
	ConfidenceLevel      float64             `mapstructure:"confidence_level"       yaml:"confidence_level"       validate:"gt=0,lt=1"`
	NewsVolatilityWeight float64             `mapstructure:"news_volatility_weight" yaml:"news_volatility_weight" validate:"gte=0"`
	Decomposition        DecompositionConfig `mapstructure:"decomposition"          yaml:"decomposition"`
}

// DecompositionConfig toggles the optional seasonal decomposition model.
type DecompositionConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Period  int  `mapstructure:"period"  yaml:"period"  validate:"gte=2"`
}

// LLMConfig holds text-generation provider configuration.
type LLMConfig struct {
	Primary           string        `mapstructure:"primary"             yaml:"primary"             validate:"oneof=ollama openai"`
	Fallbacks         []string      `mapstructure:"fallbacks"           yaml:"fallbacks"           validate:"dive,oneof=ollama openai"`
	OllamaURL         string        `mapstructure:"ollama_url"          yaml:"ollama_url"          validate:"required,url"`
	OpenAIURL         string        `mapstructure:"openai_url"          yaml:"openai_url"          validate:"omitempty,url"`
	OpenAIKey         string        `mapstructure:"openai_key"          yaml:"openai_key"`
	Model             string        `mapstructure:"model"               yaml:"model"               validate:"required"`
	FallbackModel     string        `mapstructure:"fallback_model"      yaml:"fallback_model"`
	Temperature       float64       `mapstructure:"temperature"         yaml:"temperature"         validate:"gte=0,lte=2"`
	MaxTokens         int           `mapstructure:"max_tokens"          yaml:"max_tokens"          validate:"gte=1"`
	Timeout           time.Duration `mapstructure:"timeout"             yaml:"timeout"             validate:"gt=0"`
	MaxRetries        int           `mapstructure:"max_retries"         yaml:"max_retries"         validate:"gte=0,lte=10"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"         yaml:"retry_delay"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute" validate:"gte=0"`
}

// RoleConfig bounds one analyst role.
type RoleConfig struct {
	Enabled   bool          `mapstructure:"enabled"    yaml:"enabled"`
	Timeout   time.Duration `mapstructure:"timeout"    yaml:"timeout"    validate:"gt=0"`
	MaxTokens int           `mapstructure:"max_tokens" yaml:"max_tokens" validate:"gte=1"`
}

// AnalystsConfig holds per-role settings.
type AnalystsConfig struct {
	News         RoleConfig `mapstructure:"news"         yaml:"news"`
	Statistical  RoleConfig `mapstructure:"statistical"  yaml:"statistical"`
	Fundamentals RoleConfig `mapstructure:"fundamentals" yaml:"fundamentals"`
}

// SynthesisConfig holds settings for the final recommendation call.
type SynthesisConfig struct {
	Temperature float64       `mapstructure:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int           `mapstructure:"max_tokens"  yaml:"max_tokens"  validate:"gte=1"`
	Timeout     time.Duration `mapstructure:"timeout"     yaml:"timeout"     validate:"gt=0"`
}

// PipelineConfig bounds batch execution.
type PipelineConfig struct {
	Concurrency   int           `mapstructure:"concurrency"    yaml:"concurrency"    validate:"gte=1"`
	SymbolTimeout time.Duration `mapstructure:"symbol_timeout" yaml:"symbol_timeout" validate:"gt=0"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend    string `mapstructure:"backend"     yaml:"backend"     validate:"oneof=json sqlite none"`
	Dir        string `mapstructure:"dir"         yaml:"dir"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

// ReportConfig holds HTML report settings.
type ReportConfig struct {
	Enabled   bool   `mapstructure:"enabled"    yaml:"enabled"`
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir" validate:"required"`
	Title     string `mapstructure:"title"      yaml:"title"`
}

// ScheduleConfig holds the recurring batch trigger.
type ScheduleConfig struct {
	Cron       string `mapstructure:"cron"         yaml:"cron"         validate:"required"`
	Timezone   string `mapstructure:"timezone"     yaml:"timezone"`
	RunOnStart bool   `mapstructure:"run_on_start" yaml:"run_on_start"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"         validate:"gte=1,lte=65535"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  validate:"oneof=trace debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=console json"`
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.stockpilot/config.yaml (home directory)
//  3. /etc/stockpilot/config.yaml (system)
//
// Environment variables override config file values.
// Format: STOCKPILOT_<SECTION>_<KEY>, e.g., STOCKPILOT_LLM_MODEL
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".stockpilot"))
	v.AddConfigPath("/etc/stockpilot")

	// Config file not found is fine: defaults + env vars.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return finish(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	applyAliases(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	overrideFromEnv(&cfg)
	cfg.Normalize()
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("symbols", []string{"GOOGL", "MSFT", "AAPL"})
	v.SetDefault("company_names", map[string]string{
		"GOOGL": "Alphabet Inc.",
		"AAPL":  "Apple Inc.",
		"MSFT":  "Microsoft Corporation",
		"AMZN":  "Amazon.com Inc.",
		"NVDA":  "NVIDIA Corporation",
		"META":  "Meta Platforms Inc.",
		"TSLA":  "Tesla Inc.",
	})

	v.SetDefault("data.lookback_days", 365)
	v.SetDefault("data.fetch_timeout", 30*time.Second)
	v.SetDefault("data.cache_ttl", 15*time.Minute)
	v.SetDefault("data.requests_per_minute", 60)

	v.SetDefault("news.enabled", true)
	v.SetDefault("news.max_articles", 10)
	v.SetDefault("news.lookback_days", 7)
	v.SetDefault("news.feed_url", "https://news.google.com/rss/search")
	v.SetDefault("news.user_agent", "Mozilla/5.0 (compatible; stockpilot/1.0)")

	v.SetDefault("forecast.horizon", 10)
	v.SetDefault("forecast.confidence_level", 0.95)
	v.SetDefault("forecast.news_volatility_weight", 0.5)
	v.SetDefault("forecast.decomposition.enabled", false)
	v.SetDefault("forecast.decomposition.period", 5)

	v.SetDefault("llm.primary", "ollama")
	v.SetDefault("llm.fallbacks", []string{})
	v.SetDefault("llm.ollama_url", "http://localhost:11434")
	v.SetDefault("llm.openai_url", "http://localhost:1234/v1")
	v.SetDefault("llm.model", "deepseek-r1:8b")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 4000)
	v.SetDefault("llm.timeout", 5*time.Minute)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.retry_delay", 2*time.Second)
	v.SetDefault("llm.requests_per_minute", 0)

	for _, role := range []string{"news", "statistical", "fundamentals"} {
		v.SetDefault("analysts."+role+".enabled", true)
		v.SetDefault("analysts."+role+".timeout", 3*time.Minute)
		v.SetDefault("analysts."+role+".max_tokens", 4000)
	}

	v.SetDefault("synthesis.temperature", 0.5)
	v.SetDefault("synthesis.max_tokens", 4000)
	v.SetDefault("synthesis.timeout", 4*time.Minute)

	v.SetDefault("pipeline.concurrency", 2)
	v.SetDefault("pipeline.symbol_timeout", 15*time.Minute)

	v.SetDefault("store.backend", "json")
	v.SetDefault("store.dir", "reports/data")
	v.SetDefault("store.sqlite_path", "reports/stockpilot.db")

	v.SetDefault("report.enabled", true)
	v.SetDefault("report.output_dir", "reports")
	v.SetDefault("report.title", "StockPilot Daily Analysis")

	v.SetDefault("schedule.cron", "0 9 * * 1-5")
	v.SetDefault("schedule.timezone", "America/Los_Angeles")
	v.SetDefault("schedule.run_on_start", false)

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv(EnvPrefix + "_LLM_OPENAI_KEY"); key != "" {
		cfg.LLM.OpenAIKey = key
	} else if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.LLM.OpenAIKey == "" {
		cfg.LLM.OpenAIKey = key
	}
}

// Normalize upper-cases and de-duplicates symbols, keeping first-seen order.
func (c *Config) Normalize() {
	seen := make(map[string]bool, len(c.Symbols))
	out := c.Symbols[:0]
	for _, s := range c.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	c.Symbols = out

	if len(c.CompanyNames) > 0 {
		names := make(map[string]string, len(c.CompanyNames))
		for k, v := range c.CompanyNames {
			names[strings.ToUpper(k)] = v
		}
		c.CompanyNames = names
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Format = strings.ToLower(c.Logging.Format)
	if c.Logging.Format == "text" {
		c.Logging.Format = "console"
	}
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// CompanyName returns the configured display name for a symbol.
func (c *Config) CompanyName(symbol string) (string, bool) {
	name, ok := c.CompanyNames[strings.ToUpper(symbol)]
	return name, ok
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
