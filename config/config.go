package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/spf13/viper"
)

// Config holds all configuration for the buddy service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Index     IndexConfig     `mapstructure:"index"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Links     LinksConfig     `mapstructure:"links"`
	Safety    SafetyConfig    `mapstructure:"safety"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address     string `mapstructure:"address"`
	RefreshCron string `mapstructure:"refresh_cron"`
}

func (s ServerConfig) Validate() error {
	if s.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if s.RefreshCron != "" {
		if _, err := cronexpr.Parse(s.RefreshCron); err != nil {
			return fmt.Errorf("server.refresh_cron is not a valid cron expression: %w", err)
		}
	}
	return nil
}

// CacheConfig selects the shared cache backend. The in-memory store is the
// default; redis is used when an address is configured and backend is "redis".
type CacheConfig struct {
	Backend string      `mapstructure:"backend"`
	Redis   RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (c CacheConfig) Validate() error {
	switch c.Backend {
	case "", "memory":
		return nil
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr must be set when cache.backend is redis")
		}
		return nil
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", c.Backend)
	}
}

// RegistryConfig points at the generated site registry files
type RegistryConfig struct {
	Dir string `mapstructure:"dir"`
}

// IndexConfig tunes the internal knowledge index
type IndexConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// SourcesConfig contains the three external content services
type SourcesConfig struct {
	NHS         NHSConfig         `mapstructure:"nhs"`
	MedlinePlus MedlinePlusConfig `mapstructure:"medlineplus"`
	PubMed      PubMedConfig      `mapstructure:"pubmed"`
}

// NHSConfig configures the national health content manifest resolver
type NHSConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	ManifestTTL time.Duration `mapstructure:"manifest_ttl"`
	PageTTL     time.Duration `mapstructure:"page_ttl"`
}

// MedlinePlusConfig configures the consumer health summary client
type MedlinePlusConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// PubMedConfig configures the biomedical literature client
type PubMedConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// LinksConfig tunes external link validation
type LinksConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	UserAgent string        `mapstructure:"user_agent"`
}

// SafetyConfig contains safety classifier defaults
type SafetyConfig struct {
	DefaultJurisdiction string `mapstructure:"default_jurisdiction"`
}

// TelemetryConfig configures trace export. Empty endpoint disables it.
type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// LoadConfig reads configuration from file and environment. A missing or
// unreadable config file is fatal, the same as an invalid one.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", "10s")
	viper.SetDefault("server.address", ":10020")
	viper.SetDefault("cache.backend", "memory")
	viper.SetDefault("registry.dir", "./registry")
	viper.SetDefault("index.ttl", "6h")
	viper.SetDefault("sources.nhs.base_url", "https://api.nhs.uk/conditions")
	viper.SetDefault("sources.nhs.timeout", "10s")
	viper.SetDefault("sources.nhs.manifest_ttl", "24h")
	viper.SetDefault("sources.nhs.page_ttl", "24h")
	viper.SetDefault("sources.medlineplus.base_url", "https://wsearch.nlm.nih.gov/ws/query")
	viper.SetDefault("sources.medlineplus.timeout", "8s")
	viper.SetDefault("sources.medlineplus.cache_ttl", "12h")
	viper.SetDefault("sources.pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	viper.SetDefault("sources.pubmed.timeout", "12s")
	viper.SetDefault("sources.pubmed.cache_ttl", "24h")
	viper.SetDefault("links.timeout", "8s")
	viper.SetDefault("links.cache_ttl", "6h")
	viper.SetDefault("links.user_agent", "buddy-link-check/1.0")
	viper.SetDefault("safety.default_jurisdiction", "uk")
	viper.SetDefault("telemetry.otlp_endpoint", "")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("BUDDY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.Server.Validate(); err != nil {
		panic(err)
	}
	if err := config.Cache.Validate(); err != nil {
		panic(err)
	}

	return &config
}
