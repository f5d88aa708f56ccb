// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package config loads server settings from defaults, an optional
// config.yaml, a .env file and EFCHAT_* environment variables, in increasing
// order of precedence.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Messaging MessagingConfig `mapstructure:"messaging"`
	Presence  PresenceConfig  `mapstructure:"presence"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	URL    string `mapstructure:"url"`
	Driver string `mapstructure:"driver"`
}

type RedisConfig struct {
	Addr    string `mapstructure:"addr"`
	Enabled bool   `mapstructure:"enabled"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type MessagingConfig struct {
	EditWindow  time.Duration `mapstructure:"edit_window"`
	SearchLimit int           `mapstructure:"search_limit"`
}

type PresenceConfig struct {
	TypingTTL time.Duration `mapstructure:"typing_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("database.url", "postgres://localhost/efchat?sslmode=disable")
	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "efchat")
	v.SetDefault("messaging.edit_window", 15*time.Minute)
	v.SetDefault("messaging.search_limit", 50)
	v.SetDefault("presence.typing_ttl", 3*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// legacyEnv keeps the unprefixed variables older deployments set
var legacyEnv = map[string]string{
	"server.port":  "PORT",
	"database.url": "DATABASE_URL",
	"redis.addr":   "REDIS_URL",
	"jwt.secret":   "JWT_SECRET",
	"jwt.issuer":   "JWT_ISSUER",
}

// Load reads configuration. configPaths are searched for config.yaml; the
// working directory and ./config are used when none are given.
func Load(configPaths ...string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to read .env", "err", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(configPaths) == 0 {
		configPaths = []string{".", "config"}
	}
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("EFCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		prefixed := "EFCHAT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, errors.Wrapf(err, "bind %s", key)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "read config")
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required (set EFCHAT_JWT_SECRET or JWT_SECRET)")
	}
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("database.url is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return errors.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if c.Messaging.EditWindow <= 0 {
		return errors.New("messaging.edit_window must be positive")
	}
	if c.Messaging.SearchLimit <= 0 {
		return errors.New("messaging.search_limit must be positive")
	}
	if c.Presence.TypingTTL <= 0 {
		return errors.New("presence.typing_ttl must be positive")
	}
	return nil
}
