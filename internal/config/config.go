package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ProviderConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type TurnConfig struct {
	Secret     string        `mapstructure:"secret"`
	URL        string        `mapstructure:"url"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	UserPrefix string        `mapstructure:"user_prefix"`
}

type SessionConfig struct {
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type RTMPConfig struct {
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type Config struct {
	Mode     string         `mapstructure:"mode"`
	Port     int            `mapstructure:"port"`
	ICEURLs  []string       `mapstructure:"ice_urls"`
	Provider ProviderConfig `mapstructure:"provider"`
	Turn     TurnConfig     `mapstructure:"turn"`
	Session  SessionConfig  `mapstructure:"session"`
	RTMP     RTMPConfig     `mapstructure:"rtmp"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("ice_urls", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("provider.base_url", "https://api.example-live.com")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.timeout", "10s")
	v.SetDefault("turn.secret", "")
	v.SetDefault("turn.url", "")
	v.SetDefault("turn.default_ttl", "1h")
	v.SetDefault("turn.user_prefix", "user")
	v.SetDefault("session.idle_timeout", "90s")
	v.SetDefault("session.sweep_interval", "15s")
	v.SetDefault("rtmp.dial_timeout", "10s")

	// Secrets normally arrive via PROVIDER_API_KEY / TURN_SECRET etc.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Provider: %s\n", cfg.Mode, cfg.Port, cfg.Provider.BaseURL)
	return &cfg, nil
}
