// Package telemetry publishes periodic service status snapshots over MQTT
// for operators who aggregate several shards into one dashboard.
package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/battlespy-project/battlespy/internal/config"
	"github.com/battlespy-project/battlespy/internal/util"
)

// MQTT topics
const (
	TopicStatus = "battlespy/status"
	TopicAdmin  = "battlespy/admin"
)

// Snapshot is the status payload published on each interval.
type Snapshot struct {
	SessionsOnline int `json:"sessions_online"`
	LoginsPending  int `json:"logins_pending"`
	ServersOnline  int `json:"servers_online"`
	Accounts       int `json:"accounts"`
}

// SnapshotFunc produces the current status counters.
type SnapshotFunc func() Snapshot

// MQTTPublisher manages the MQTT connection and publishes status snapshots
// on a timer.
type MQTTPublisher struct {
	cfg      *config.Config
	snapshot SnapshotFunc
	client   mqtt.Client
	interval time.Duration

	// Metadata included in every message
	metadata map[string]interface{}
}

// NewMQTTPublisher creates the telemetry publisher.
func NewMQTTPublisher(cfg *config.Config, snapshot SnapshotFunc) (*MQTTPublisher, error) {
	mqttCfg := cfg.ApplicationData.MQTT

	if !mqttCfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}

	// Build system metadata
	sysInfo := util.GetSystemInfo()
	metadata := map[string]interface{}{
		"hostname":    sysInfo.Hostname,
		"platform":    sysInfo.OS,
		"cpu_model":   sysInfo.CPUModel,
		"cpu_cores":   sysInfo.CPUCores,
		"memory_mb":   sysInfo.TotalMemory,
		"app_version": "1.0.0",
	}

	interval := time.Duration(mqttCfg.IntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}

	publisher := &MQTTPublisher{
		cfg:      cfg,
		snapshot: snapshot,
		interval: interval,
		metadata: metadata,
	}

	// Configure MQTT client
	opts := mqtt.NewClientOptions()
	scheme := "tcp"
	if mqttCfg.UseTLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, mqttCfg.BrokerURL, mqttCfg.Port))

	if mqttCfg.ClientID != "" {
		opts.SetClientID(mqttCfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("battlespy-%s", sysInfo.Hostname))
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(false)

	// TLS configuration
	if mqttCfg.UseTLS {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS12,
		}

		// mTLS: load client certificate
		if mqttCfg.CertFile != "" && mqttCfg.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(mqttCfg.CertFile, mqttCfg.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}

		opts.SetTLSConfig(tlsConfig)
	}

	// Connection callbacks
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Msg("MQTT connected")
	})

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	publisher.client = mqtt.NewClient(opts)

	return publisher, nil
}

// Start connects to the MQTT broker and publishes snapshots until the
// context is cancelled, then announces the shutdown.
func (p *MQTTPublisher) Start(ctx context.Context) error {
	log.Info().
		Str("broker", p.cfg.ApplicationData.MQTT.BrokerURL).
		Int("port", p.cfg.ApplicationData.MQTT.Port).
		Msg("connecting to MQTT broker")

	token := p.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.PublishShutdown()
			p.client.Disconnect(5000)
			log.Info().Msg("MQTT disconnected")
			return nil
		case <-ticker.C:
			p.publish(TopicStatus, p.snapshot())
		}
	}
}

// publish sends a JSON message to an MQTT topic.
func (p *MQTTPublisher) publish(topic string, payload interface{}) {
	if !p.client.IsConnected() {
		return
	}

	// Merge metadata with payload
	msg := p.buildMessage(payload)

	data, err := json.Marshal(msg)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}

	token := p.client.Publish(topic, 1, false, data) // QoS 1
	go func() {
		token.Wait()
		if token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

// buildMessage combines metadata with the snapshot payload.
func (p *MQTTPublisher) buildMessage(payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{})

	// Add metadata
	for k, v := range p.metadata {
		msg[k] = v
	}

	// Add payload
	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	return msg
}

// PublishShutdown sends a shutdown message to the MQTT broker.
func (p *MQTTPublisher) PublishShutdown() {
	p.publish(TopicAdmin, map[string]interface{}{
		"event":     "shutdown",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
