package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Auth     AuthConfig     `yaml:"auth" mapstructure:"auth"`
	Whois    ProviderConfig `yaml:"whois" mapstructure:"whois"`
	Verifier ProviderConfig `yaml:"verifier" mapstructure:"verifier"`
	Enrich   EnrichConfig   `yaml:"enrich" mapstructure:"enrich"`
	Schedule ScheduleConfig `yaml:"schedule" mapstructure:"schedule"`
	Redis    RedisConfig    `yaml:"redis" mapstructure:"redis"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects and tunes the lead store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// AuthConfig holds the shared secrets for both caller classes.
type AuthConfig struct {
	ScraperSecret     string `yaml:"scraper_secret" mapstructure:"scraper_secret"`
	OperatorJWTSecret string `yaml:"operator_jwt_secret" mapstructure:"operator_jwt_secret"`
	OperatorTokenTTL  int    `yaml:"operator_token_ttl_hours" mapstructure:"operator_token_ttl_hours"`
}

// ProviderConfig configures an external enrichment provider. An empty Key
// disables the provider.
type ProviderConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// EnrichConfig tunes the enrichment pass.
type EnrichConfig struct {
	Concurrency      int `yaml:"concurrency" mapstructure:"concurrency"`
	BreakerThreshold int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// ScheduleConfig holds background job schedules (UTC cron expressions).
type ScheduleConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Dedupe  string `yaml:"dedupe" mapstructure:"dedupe"`
}

// RedisConfig configures the optional stats cache. An empty URL disables it.
type RedisConfig struct {
	URL          string `yaml:"url" mapstructure:"url"`
	StatsTTLSecs int    `yaml:"stats_ttl_secs" mapstructure:"stats_ttl_secs"`
}

// StatsTTL returns the stats cache lifetime.
func (r RedisConfig) StatsTTL() time.Duration {
	return time.Duration(r.StatsTTLSecs) * time.Second
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml, environment variables, and defaults.
// Environment variables use the LEADS_ prefix with underscores replacing dots
// (e.g. LEADS_AUTH_SCRAPER_SECRET).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LEADS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "leads.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("auth.scraper_secret", "")
	v.SetDefault("auth.operator_jwt_secret", "")
	v.SetDefault("auth.operator_token_ttl_hours", 24)
	v.SetDefault("whois.key", "")
	v.SetDefault("whois.base_url", "https://www.whoisxmlapi.com/whoisserver/WhoisService")
	v.SetDefault("whois.rate_per_sec", 5)
	v.SetDefault("whois.timeout_secs", 15)
	v.SetDefault("verifier.key", "")
	v.SetDefault("verifier.base_url", "https://verifier.meetchopra.com")
	v.SetDefault("verifier.rate_per_sec", 5)
	v.SetDefault("verifier.timeout_secs", 15)
	v.SetDefault("enrich.concurrency", 4)
	v.SetDefault("enrich.breaker_threshold", 5)
	v.SetDefault("enrich.breaker_reset_secs", 60)
	v.SetDefault("schedule.enabled", true)
	v.SetDefault("schedule.dedupe", "0 8 * * *")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.stats_ttl_secs", 300)
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

// Validate checks the requirements of the given command mode. "serve" needs
// both auth secrets and a listen port; every mode needs a usable store.
func (c *Config) Validate(mode string) error {
	var errs []string

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
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported (postgres|sqlite)", c.Store.Driver))
	}

	if mode == "serve" {
		if c.Auth.ScraperSecret == "" {
			errs = append(errs, "auth.scraper_secret is required")
		}
		if c.Auth.OperatorJWTSecret == "" {
			errs = append(errs, "auth.operator_jwt_secret is required")
		}
		if c.Server.Port < 1 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
		}
	}

	if c.Enrich.Concurrency < 1 {
		errs = append(errs, "enrich.concurrency must be at least 1")
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
