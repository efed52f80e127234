// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(New(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 115200, cfg.Serial.Baud)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, time.Second, cfg.Link.ReconnectInterval)
	assert.Equal(t, 30*time.Second, cfg.Link.ReconnectMax)
	assert.Equal(t, 5*time.Second, cfg.Link.StatusInterval)
	assert.Equal(t, uint32(5), cfg.Breaker.Failures)
	assert.False(t, cfg.MQTT.Enabled)
	assert.False(t, cfg.Influx.Enabled)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	yaml := `
serial:
  port: /dev/ttyUSB1
  baud: 9600
http:
  addr: 127.0.0.1:9090
link:
  status_interval: 2s
mqtt:
  enabled: true
  broker: tcp://broker:1883
  topic: garden/log
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "canopy.yaml"), []byte(yaml), 0o644))

	v := New()
	cfg, err := Load(v, dir)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB1", cfg.Serial.Port)
	assert.Equal(t, 9600, cfg.Serial.Baud)
	assert.Equal(t, "127.0.0.1:9090", cfg.HTTP.Addr)
	assert.Equal(t, 2*time.Second, cfg.Link.StatusInterval)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "garden/log", cfg.MQTT.Topic)
	assert.Equal(t, filepath.Join(dir, "canopy.yaml"), ConfigFile(v))
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CANOPY_HTTP_ADDR", ":7070")
	t.Setenv("CANOPY_SERIAL_BAUD", "57600")

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	assert.Equal(t, 57600, cfg.Serial.Baud)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  interface{}
	}{
		{"zero baud", "serial.baud", 0},
		{"zero status interval", "link.status_interval", time.Duration(0)},
		{"reconnect above max", "link.reconnect_interval", time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.Set(tt.key, tt.val)
			_, err := Load(v, "")
			assert.Error(t, err)
		})
	}
}

func TestLoad_MQTTRequiresTopic(t *testing.T) {
	v := New()
	v.Set("mqtt.enabled", true)
	v.Set("mqtt.topic", "")

	_, err := Load(v, "")
	assert.Error(t, err)
}

func TestLoad_BadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "canopy.yaml"), []byte("serial: [unclosed"), 0o644))

	_, err := Load(New(), dir)
	assert.Error(t, err)
}
