// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads canopy settings from canopy.yaml, CANOPY_* environment
// variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. CANOPY_HTTP_ADDR
const EnvPrefix = "CANOPY"

type Config struct {
	Serial    SerialConfig    `mapstructure:"serial"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Link      LinkConfig      `mapstructure:"link"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Influx    InfluxConfig    `mapstructure:"influx"`
	Log       LogConfig       `mapstructure:"log"`
}

type SerialConfig struct {
	Port string `mapstructure:"port"`
	Baud int    `mapstructure:"baud"`
}

type WebSocketConfig struct {
	URL         string `mapstructure:"url"`
	Username    string `mapstructure:"username"`
	NoSSLVerify bool   `mapstructure:"no_ssl_verify"`
}

type HTTPConfig struct {
	Addr   string `mapstructure:"addr"`
	WebDir string `mapstructure:"web_dir"`
}

// LinkConfig controls the peer transport lifecycle
type LinkConfig struct {
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"` // first retry delay
	ReconnectMax      time.Duration `mapstructure:"reconnect_max"`      // retry delay cap
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`    // deadline for a single connect attempt
	StatusInterval    time.Duration `mapstructure:"status_interval"`    // how often connectivity is re-checked
}

type BreakerConfig struct {
	Failures uint32        `mapstructure:"failures"`
	OpenFor  time.Duration `mapstructure:"open_for"`
}

type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type InfluxConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Token   string `mapstructure:"token"`
	Org     string `mapstructure:"org"`
	Bucket  string `mapstructure:"bucket"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// New returns a viper instance with defaults and environment overrides set up
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud", 115200)

	v.SetDefault("websocket.url", "")
	v.SetDefault("websocket.username", "")
	v.SetDefault("websocket.no_ssl_verify", false)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.web_dir", "./web")

	v.SetDefault("link.reconnect_interval", time.Second)
	v.SetDefault("link.reconnect_max", 30*time.Second)
	v.SetDefault("link.connect_timeout", 15*time.Second)
	v.SetDefault("link.status_interval", 5*time.Second)

	v.SetDefault("breaker.failures", 5)
	v.SetDefault("breaker.open_for", 10*time.Second)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "canopy/messages")
	v.SetDefault("mqtt.client_id", "canopy")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")

	v.SetDefault("influx.enabled", false)
	v.SetDefault("influx.url", "http://localhost:8086")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "")
	v.SetDefault("influx.bucket", "canopy")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads canopy.yaml from dir (if present) and decodes the result.
// A missing config file is not an error.
func Load(v *viper.Viper, dir string) (*Config, error) {
	if dir != "" {
		v.SetConfigName("canopy")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail much later
func (c *Config) Validate() error {
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be positive (got %d)", c.Serial.Baud)
	}
	if c.Link.ReconnectInterval <= 0 || c.Link.ReconnectMax < c.Link.ReconnectInterval {
		return fmt.Errorf("link.reconnect_interval must be positive and not above link.reconnect_max")
	}
	if c.Link.StatusInterval <= 0 {
		return fmt.Errorf("link.status_interval must be positive")
	}
	if c.MQTT.Enabled && (c.MQTT.Broker == "" || c.MQTT.Topic == "") {
		return fmt.Errorf("mqtt.broker and mqtt.topic are required when mqtt is enabled")
	}
	if c.Influx.Enabled && (c.Influx.URL == "" || c.Influx.Bucket == "") {
		return fmt.Errorf("influx.url and influx.bucket are required when influx is enabled")
	}
	return nil
}

// ConfigFile returns the path of the file that was read, or ""
func ConfigFile(v *viper.Viper) string {
	return v.ConfigFileUsed()
}
