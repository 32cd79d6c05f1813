package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from defaults, an optional config file, and
// JITEN_* environment variables, in increasing precedence. An empty
// path searches the usual locations.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("JITEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.config/jiten")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// A missing file is fine unless one was named explicitly.
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("remote.base_url", "https://data.seiken.dev/jiten/reader")
	v.SetDefault("remote.user_agent", "jiten")
	v.SetDefault("remote.timeout", "60s")

	v.SetDefault("update.default_lang", "en")
	v.SetDefault("update.max_retries", 12)
	v.SetDefault("update.retry_delay", "3s")
	v.SetDefault("update.max_delay", "5m")

	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.data_dir", defaultDataDir())

	v.SetDefault("server.addr", "127.0.0.1:7820")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}
