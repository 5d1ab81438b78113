// internal/config/config_test.go
package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8086", cfg.Server.Port)
	assert.Equal(t, uint8(1), cfg.Gateway.SystemID)
	assert.Equal(t, uint8(240), cfg.Gateway.ComponentID)
	assert.Empty(t, cfg.Gateway.Endpoints)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "mavgate", cfg.App.Name)
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("MAVGATE_GATEWAY_SYSTEM_ID", "7")
	t.Setenv("MAVGATE_LOGGING_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, uint8(7), cfg.Gateway.SystemID)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestInvalidLogLevelRejected(t *testing.T) {
	t.Setenv("MAVGATE_LOGGING_LEVEL", "verbose")

	_, err := Load()
	assert.Error(t, err)
}

func TestServerAddr(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Host: "127.0.0.1", Port: "9000"}}
	assert.Equal(t, "127.0.0.1:9000", cfg.GetServerAddr())
}
