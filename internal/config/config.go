package config

import (
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Upstream   UpstreamConfig   `mapstructure:"upstream"`
	Polling    PollingConfig    `mapstructure:"polling"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Refresh    RefreshConfig    `mapstructure:"refresh"`
	Mimir      MimirConfig      `mapstructure:"mimir"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// UpstreamConfig points at the platform API that owns tenant records and
// serves the health probes.
type UpstreamConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Token          string        `mapstructure:"token"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type PollingConfig struct {
	HealthInterval time.Duration `mapstructure:"health_interval"`
	TenantInterval time.Duration `mapstructure:"tenant_interval"`
}

type ThresholdRule struct {
	Metric string  `mapstructure:"metric"`
	Label  string  `mapstructure:"label"`
	Unit   string  `mapstructure:"unit"`
	Warn   float64 `mapstructure:"warn"`
	Down   float64 `mapstructure:"down"`
	Below  bool    `mapstructure:"below"`
	Hard   bool    `mapstructure:"hard"`
}

type ThresholdsConfig struct {
	Backend  []ThresholdRule `mapstructure:"backend"`
	Database []ThresholdRule `mapstructure:"database"`
	System   []ThresholdRule `mapstructure:"system"`
	Tenant   []ThresholdRule `mapstructure:"tenant"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type RefreshConfig struct {
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}

type MimirConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	TenantHeader  string        `mapstructure:"tenant_header"`
	OrgID         string        `mapstructure:"org_id"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	AuthToken     string        `mapstructure:"auth_token"`
}

type Loader struct {
	v *viper.Viper
}

// NewLoader reads path when given, otherwise config.yaml from . or ./config.
func NewLoader(path string) *Loader {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix("CONTROLPLANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("upstream.base_url", "http://localhost:3000/api")
	v.SetDefault("upstream.token", "")
	v.SetDefault("upstream.probe_timeout", "3s")
	v.SetDefault("upstream.request_timeout", "10s")
	v.SetDefault("polling.health_interval", "5s")
	v.SetDefault("polling.tenant_interval", "15s")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("refresh.per_second", 1.0)
	v.SetDefault("refresh.burst", 3)
	v.SetDefault("mimir.enabled", false)
	v.SetDefault("mimir.url", "")
	v.SetDefault("mimir.auth_token", "")
	v.SetDefault("mimir.tenant_header", "X-Scope-OrgID")
	v.SetDefault("mimir.org_id", "controlplane")
	v.SetDefault("mimir.batch_size", 1000)
	v.SetDefault("mimir.flush_interval", "15s")

	return &Loader{v: v}
}

func (l *Loader) Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch calls fn with the re-read configuration whenever the config file
// changes on disk. It is a no-op when no file was loaded.
func (l *Loader) Watch(fn func(*Config, error)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		fn(l.decode())
	})
	l.v.WatchConfig()
}

func (l *Loader) File() string {
	return l.v.ConfigFileUsed()
}
