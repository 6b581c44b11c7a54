package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"zigbee-go-catalog/internal/coordinator"
)

// envPrefix prefixes every environment override, e.g. ZBCAT_SERIAL_PORT.
const envPrefix = "ZBCAT_"

type Config struct {
	Serial struct {
		Port string `yaml:"port" env:"PORT"`
		Baud int    `yaml:"baud" env:"BAUD"`
	} `yaml:"serial" envPrefix:"SERIAL_"`
	Network struct {
		Channel    uint8  `yaml:"channel" env:"CHANNEL"`
		PanID      string `yaml:"pan_id" env:"PAN_ID"`
		ExtPanID   string `yaml:"ext_pan_id" env:"EXT_PAN_ID"`
		NetworkKey string `yaml:"network_key" env:"NETWORK_KEY"`
	} `yaml:"network" envPrefix:"NETWORK_"`
	Store struct {
		Path string `yaml:"path" env:"PATH"`
	} `yaml:"store" envPrefix:"STORE_"`
	MQTT struct {
		Enabled         bool   `yaml:"enabled" env:"ENABLED"`
		Broker          string `yaml:"broker" env:"BROKER"`
		Username        string `yaml:"username" env:"USERNAME"`
		Password        string `yaml:"password" env:"PASSWORD"`
		ClientID        string `yaml:"client_id" env:"CLIENT_ID"`
		TopicPrefix     string `yaml:"topic_prefix" env:"TOPIC_PREFIX"`
		DiscoveryPrefix string `yaml:"discovery_prefix" env:"DISCOVERY_PREFIX"`
	} `yaml:"mqtt" envPrefix:"MQTT_"`
	Web struct {
		Listen         string   `yaml:"listen" env:"LISTEN"`
		APIKey         string   `yaml:"api_key" env:"API_KEY"`
		AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
	} `yaml:"web" envPrefix:"WEB_"`
	Log struct {
		Level  string `yaml:"level" env:"LEVEL"`
		Format string `yaml:"format" env:"FORMAT"`
	} `yaml:"log" envPrefix:"LOG_"`
	Automation struct {
		Budget time.Duration `yaml:"budget" env:"BUDGET"`
	} `yaml:"automation" envPrefix:"AUTOMATION_"`
	Exec struct {
		Allowlist []string      `yaml:"allowlist" env:"ALLOWLIST"`
		Timeout   time.Duration `yaml:"timeout" env:"TIMEOUT"`
	} `yaml:"exec" envPrefix:"EXEC_"`
	DevicesDir string `yaml:"devices_dir" env:"DEVICES_DIR"`
	ScriptsDir string `yaml:"scripts_dir" env:"SCRIPTS_DIR"`
	// Poll is a cron spec for refreshing device state; empty disables it.
	Poll string `yaml:"poll" env:"POLL"`
}

// loadConfig reads the YAML file at path, applies ZBCAT_ environment
// overrides and fills defaults. A missing file is allowed so the catalog
// can run from the environment alone.
func loadConfig(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.setDefaults()
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Serial.Baud == 0 {
		c.Serial.Baud = 115200
	}
	if c.Network.Channel == 0 {
		c.Network.Channel = 11
	}
	if c.Network.PanID == "" {
		c.Network.PanID = "0x1A62"
	}
	if c.Network.ExtPanID == "" {
		c.Network.ExtPanID = "0xDDDDDDDDDDDDDDDD"
	}
	if c.Store.Path == "" {
		c.Store.Path = "zigbee-catalog.db"
	}
	if c.Web.Listen == "" {
		c.Web.Listen = "127.0.0.1:8080"
	}
	if c.DevicesDir == "" {
		c.DevicesDir = "devices"
	}
	if c.ScriptsDir == "" {
		c.ScriptsDir = "scripts"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "zigbee2mqtt"
	}
	if c.MQTT.DiscoveryPrefix == "" {
		c.MQTT.DiscoveryPrefix = "homeassistant"
	}
	if c.Exec.Timeout == 0 {
		c.Exec.Timeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	if c.Serial.Port == "" {
		return fmt.Errorf("serial.port is required")
	}
	if c.Network.Channel < 11 || c.Network.Channel > 26 {
		return fmt.Errorf("network.channel must be 11-26, got %d", c.Network.Channel)
	}
	panID, err := coordinator.ParsePanID(c.Network.PanID)
	if err != nil {
		return fmt.Errorf("network.pan_id: %w", err)
	}
	if panID == 0 || panID == 0xFFFF {
		return fmt.Errorf("network.pan_id must not be 0x0000 or 0xFFFF")
	}
	if _, err := coordinator.ParseExtPanID(c.Network.ExtPanID); err != nil {
		return fmt.Errorf("network.ext_pan_id: %w", err)
	}
	if c.Network.NetworkKey != "" {
		if _, err := coordinator.ParseNetworkKey(c.Network.NetworkKey); err != nil {
			return fmt.Errorf("network.network_key: %w", err)
		}
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}
