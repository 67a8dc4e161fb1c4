// Package config handles configuration loading, validation, and persistence
// for the BattleSpy service suite.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"

	DefaultLoginPort  = 29900
	DefaultSearchPort = 29901
	DefaultMasterPort = 27900
	DefaultListPort   = 28910
	DefaultCDKeyPort  = 29910
	DefaultAPIPort    = 5000
)

// Config is the root configuration structure for BattleSpy.
type Config struct {
	mu   sync.RWMutex
	path string

	Gamespy         GamespyData     `json:"gamespy"`
	ApplicationData ApplicationData `json:"application_data"`
}

// GamespyData contains the protocol service configuration.
type GamespyData struct {
	// Network
	BindIP     string `json:"svr_bind_ip"`
	LoginPort  int    `json:"gpcm_port"`
	SearchPort int    `json:"gpsp_port"`
	MasterPort int    `json:"master_port"`
	ListPort   int    `json:"server_list_port"`
	CDKeyPort  int    `json:"cdkey_port"`
	APIPort    int    `json:"api_port"`

	// Game identity expected in heartbeats
	GameName string `json:"svr_gamename"`

	// Login service
	MaxLoginClients        int    `json:"gpcm_max_clients"`
	ServerFullMessage      string `json:"gpcm_full_message"`
	LoginTimeoutSec        int    `json:"gpcm_login_timeout_sec"`
	KeepAliveIntervalSec   int    `json:"gpcm_keepalive_interval_sec"`
	StatusFlushIntervalSec int    `json:"gpcm_status_flush_interval_sec"`

	// Master directory
	ServerTTLSec           int `json:"master_server_ttl_sec"`
	MasterSweepIntervalSec int `json:"master_sweep_interval_sec"`
	MasterWorkers          int `json:"master_workers"`

	// Storage
	DatabasePath    string `json:"database_path"`
	GeoDatabasePath string `json:"geoip_database_path"`
}

// ApplicationData contains application-level configuration.
type ApplicationData struct {
	MQTT     MQTTConfig     `json:"mqtt"`
	Security SecurityConfig `json:"security"`
	Logging  LoggingConfig  `json:"logging"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	BrokerURL   string `json:"broker_url"`
	Port        int    `json:"port"`
	UseTLS      bool   `json:"use_tls"`
	CertFile    string `json:"cert_file"`
	KeyFile     string `json:"key_file"`
	ClientID    string `json:"client_id"`
	IntervalSec int    `json:"publish_interval_sec"`
}

// SecurityConfig holds API security settings.
type SecurityConfig struct {
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Gamespy: GamespyData{
			BindIP:     "0.0.0.0",
			LoginPort:  DefaultLoginPort,
			SearchPort: DefaultSearchPort,
			MasterPort: DefaultMasterPort,
			ListPort:   DefaultListPort,
			CDKeyPort:  DefaultCDKeyPort,
			APIPort:    DefaultAPIPort,

			GameName: "battlefield2",

			MaxLoginClients:        512,
			ServerFullMessage:      "The login server is currently full, please try again later.",
			LoginTimeoutSec:        20,
			KeepAliveIntervalSec:   15,
			StatusFlushIntervalSec: 5,

			ServerTTLSec:           30,
			MasterSweepIntervalSec: 5,
			MasterWorkers:          8,

			DatabasePath:    "data/battlespy.db",
			GeoDatabasePath: "data/ip2nation.db",
		},
		ApplicationData: ApplicationData{
			MQTT: MQTTConfig{
				Enabled:     false,
				Port:        8883,
				UseTLS:      true,
				IntervalSec: 60,
			},
			Security: SecurityConfig{
				RateLimitRPS: 100,
			},
			Logging: LoggingConfig{
				Level:      "info",
				Directory:  "logs",
				MaxSizeMB:  10,
				MaxBackups: 5,
			},
		},
	}
}

// Load reads configuration from a JSON file.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save config to persist any new default fields added in code updates.
	// This ensures config.json always reflects the complete set of options.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Ensure config directory exists
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetGamespy returns a copy of the protocol service configuration.
func (c *Config) GetGamespy() GamespyData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Gamespy
}

// SetGamespy updates the protocol service configuration.
func (c *Config) SetGamespy(data GamespyData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Gamespy = data
}

// GetApplicationData returns a copy of the application data configuration.
func (c *Config) GetApplicationData() ApplicationData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ApplicationData
}

// Addr joins the bind IP with the given port.
func (c *Config) Addr(port int) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("%s:%d", c.Gamespy.BindIP, port)
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}
