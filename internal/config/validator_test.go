package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateDefaults(t *testing.T) {
	result := Validate(DefaultConfig())
	assert.True(t, result.IsValid(), "default config must validate: %v", result.Errors)
}

func TestValidatePortRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gamespy.LoginPort = 0

	result := Validate(cfg)
	assert.False(t, result.IsValid())
}

func TestValidateTCPPortConflict(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gamespy.SearchPort = cfg.Gamespy.LoginPort

	result := Validate(cfg)
	assert.False(t, result.IsValid())
}

func TestValidateUDPMayShareTCPPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gamespy.MasterPort = cfg.Gamespy.LoginPort

	result := Validate(cfg)
	assert.True(t, result.IsValid())
}

func TestValidateGameNameRequired(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gamespy.GameName = "  "

	result := Validate(cfg)
	assert.False(t, result.IsValid())
}

func TestValidateMQTTRequiresBroker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplicationData.MQTT.Enabled = true
	cfg.ApplicationData.MQTT.BrokerURL = ""

	result := Validate(cfg)
	assert.False(t, result.IsValid())
}

func TestValidateShortTTLWarns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gamespy.ServerTTLSec = 1

	result := Validate(cfg)
	assert.True(t, result.IsValid())
	assert.NotEmpty(t, result.Warnings)
}
