package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the weeklistd server configuration, loaded from an optional
// YAML file with WEEKLIST_* environment overrides.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `mapstructure:"addr"`
	// StoreDSN selects the backing store: "memory://" or a postgres:// DSN.
	StoreDSN string `mapstructure:"store_dsn"`

	// VAPID keypair for Web Push. Push dispatch is disabled when either
	// key is empty.
	VAPIDPublicKey  string `mapstructure:"vapid_public_key"`
	VAPIDPrivateKey string `mapstructure:"vapid_private_key"`
	// VAPIDContact identifies the push sender to the push service,
	// typically a mailto: address.
	VAPIDContact string `mapstructure:"vapid_contact"`
}

// Load reads configuration from path (optional, "" skips the file) and the
// environment. Environment variables use the WEEKLIST_ prefix with
// underscores, e.g. WEEKLIST_STORE_DSN.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("addr", ":8080")
	v.SetDefault("store_dsn", "memory://")
	// Unmarshal only sees keys viper knows about, so every key needs a
	// default for the env override to register.
	v.SetDefault("vapid_public_key", "")
	v.SetDefault("vapid_private_key", "")
	v.SetDefault("vapid_contact", "")

	v.SetEnvPrefix("WEEKLIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	return cfg, nil
}
