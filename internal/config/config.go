package config

import (
	"bytes"
	_ "embed"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Postgres DatabaseConfig `mapstructure:"postgres"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Router   RouterConfig   `mapstructure:"router"`
	Poller   PollerConfig   `mapstructure:"poller"`
}

// ---- Leaf structs ----

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	Addr     string `mapstructure:"addr"`
	APIToken string `mapstructure:"api_token"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type GatewayConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	AuthToken string        `mapstructure:"auth_token"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type RouterConfig struct {
	// JSON object mapping source bucket names to gateway application IDs,
	// e.g. '{"bucket-a": "app_123"}'.
	BucketApplicationMap string `mapstructure:"bucket_application_map"`
}

type PollerConfig struct {
	BatchLimit  int           `mapstructure:"batch_limit"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffCap  time.Duration `mapstructure:"backoff_cap"`
	IdleSleep   time.Duration `mapstructure:"idle_sleep"`
	FaultSleep  time.Duration `mapstructure:"fault_sleep"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (WHPOLLER_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (WHPOLLER_*)
	v.SetEnvPrefix("WHPOLLER")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
