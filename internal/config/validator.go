package config

import (
	"fmt"
	"net"
	"os"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateGamespy(&cfg.Gamespy, result)
	validateApplicationData(&cfg.ApplicationData, result)

	return result
}

func validateGamespy(data *GamespyData, result *ValidationResult) {
	if data.BindIP != "" && net.ParseIP(data.BindIP) == nil {
		result.AddError("gamespy.svr_bind_ip", fmt.Sprintf("invalid bind address: %s", data.BindIP))
	}

	if strings.TrimSpace(data.GameName) == "" {
		result.AddError("gamespy.svr_gamename", "game name is required")
	}

	// Port validation
	ports := map[string]int{
		"gamespy.gpcm_port":        data.LoginPort,
		"gamespy.gpsp_port":        data.SearchPort,
		"gamespy.master_port":      data.MasterPort,
		"gamespy.server_list_port": data.ListPort,
		"gamespy.cdkey_port":       data.CDKeyPort,
		"gamespy.api_port":         data.APIPort,
	}
	for field, port := range ports {
		if port < 1 || port > 65535 {
			result.AddError(field, fmt.Sprintf("port %d is out of range", port))
		}
	}

	// Port conflict detection among TCP listeners (master and CD-key are UDP
	// and may legitimately share numbers with TCP services)
	tcpPorts := map[int]string{}
	for _, p := range []struct {
		name string
		port int
	}{
		{"gpcm", data.LoginPort},
		{"gpsp", data.SearchPort},
		{"server list", data.ListPort},
		{"api", data.APIPort},
	} {
		if other, taken := tcpPorts[p.port]; taken {
			result.AddError("gamespy.ports",
				fmt.Sprintf("port conflict: %s and %s both use %d", other, p.name, p.port))
		}
		tcpPorts[p.port] = p.name
	}

	if data.MaxLoginClients < 1 {
		result.AddError("gamespy.gpcm_max_clients", "must allow at least 1 login client")
	}

	if data.LoginTimeoutSec < 1 {
		result.AddError("gamespy.gpcm_login_timeout_sec", "login timeout must be at least 1 second")
	}

	if data.KeepAliveIntervalSec < 1 {
		result.AddError("gamespy.gpcm_keepalive_interval_sec", "keep-alive interval must be at least 1 second")
	}

	if data.StatusFlushIntervalSec < 1 {
		result.AddError("gamespy.gpcm_status_flush_interval_sec", "status flush interval must be at least 1 second")
	}

	if data.ServerTTLSec < data.MasterSweepIntervalSec {
		result.AddWarning("gamespy.master_server_ttl_sec",
			"server TTL shorter than the sweep interval will drop servers between heartbeats")
	}

	if data.MasterWorkers < 1 {
		result.AddError("gamespy.master_workers", "must have at least 1 master worker")
	}

	if strings.TrimSpace(data.DatabasePath) == "" {
		result.AddError("gamespy.database_path", "database path is required")
	}

	if data.GeoDatabasePath != "" {
		if _, err := os.Stat(data.GeoDatabasePath); os.IsNotExist(err) {
			result.AddWarning("gamespy.geoip_database_path",
				fmt.Sprintf("ip2nation database not found: %s (country lookups disabled)", data.GeoDatabasePath))
		}
	}
}

func validateApplicationData(data *ApplicationData, result *ValidationResult) {
	if data.MQTT.Enabled {
		if strings.TrimSpace(data.MQTT.BrokerURL) == "" {
			result.AddError("application_data.mqtt.broker_url", "MQTT broker URL is required when enabled")
		}
		if data.MQTT.Port < 1 || data.MQTT.Port > 65535 {
			result.AddError("application_data.mqtt.port", fmt.Sprintf("port %d is out of range", data.MQTT.Port))
		}
	}

	if data.Security.RateLimitRPS < 0 {
		result.AddError("application_data.security.rate_limit_rps", "rate limit cannot be negative")
	}

	switch data.Logging.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		result.AddWarning("application_data.logging.level",
			fmt.Sprintf("unknown log level %q, falling back to info", data.Logging.Level))
	}
}
