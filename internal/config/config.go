package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	DDAGIS     DDAGISConfig     `yaml:"dda_gis" mapstructure:"dda_gis"`
	LandStatus LandStatusConfig `yaml:"land_status" mapstructure:"land_status"`
	Engine     EngineConfig     `yaml:"engine" mapstructure:"engine"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Warmer     WarmerConfig     `yaml:"warmer" mapstructure:"warmer"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the durable cache backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// DDAGISConfig holds the polygon GIS provider settings.
type DDAGISConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
}

// LandStatusConfig holds the status provider settings.
type LandStatusConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
}

// EngineConfig bounds the per-source query timeouts.
type EngineConfig struct {
	AuthoritativeTimeoutSecs int `yaml:"authoritative_timeout_secs" mapstructure:"authoritative_timeout_secs"`
	FallbackTimeoutSecs      int `yaml:"fallback_timeout_secs" mapstructure:"fallback_timeout_secs"`
}

// CacheConfig configures the in-memory tier and the TTL policy.
type CacheConfig struct {
	Capacity          int `yaml:"capacity" mapstructure:"capacity"`
	AttributeTTLDays  int `yaml:"attribute_ttl_days" mapstructure:"attribute_ttl_days"`
	StatusTTLDays     int `yaml:"status_ttl_days" mapstructure:"status_ttl_days"`
	CoordinateTTLDays int `yaml:"coordinate_ttl_days" mapstructure:"coordinate_ttl_days"`
	StaleGraceHours   int `yaml:"stale_grace_hours" mapstructure:"stale_grace_hours"`
}

// WarmerConfig configures proactive cache warming.
type WarmerConfig struct {
	CooldownHours int `yaml:"cooldown_hours" mapstructure:"cooldown_hours"`
	BatchSize     int `yaml:"batch_size" mapstructure:"batch_size"`
	PauseMillis   int `yaml:"pause_millis" mapstructure:"pause_millis"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateBurst      int      `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LANDMATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit_rps", 0)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("engine.authoritative_timeout_secs", 10)
	v.SetDefault("engine.fallback_timeout_secs", 8)
	v.SetDefault("cache.capacity", 500)
	v.SetDefault("cache.attribute_ttl_days", 7)
	v.SetDefault("cache.status_ttl_days", 30)
	v.SetDefault("cache.coordinate_ttl_days", 90)
	v.SetDefault("cache.stale_grace_hours", 48)
	v.SetDefault("warmer.cooldown_hours", 24)
	v.SetDefault("warmer.batch_size", 10)
	v.SetDefault("warmer.pause_millis", 1000)
	v.SetDefault("dda_gis.base_url", "https://gis.dda.gov.ae/server/rest/services")
	v.SetDefault("land_status.base_url", "https://api.landstatus.ae/v1")

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
