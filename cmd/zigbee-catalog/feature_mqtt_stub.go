//go:build no_mqtt

package main

import (
	"log/slog"

	"zigbee-go-catalog/internal/coordinator"
)

type mqttStopper struct{}

func (m *mqttStopper) Stop() {}

func initMQTT(_ *coordinator.Coordinator, cfg *Config, logger *slog.Logger) *mqttStopper {
	if cfg.MQTT.Enabled {
		logger.Warn("mqtt enabled in config but not compiled in")
	}
	return &mqttStopper{}
}
