// Package config loads relay and peer settings from optional YAML files,
// applies environment overrides, and clamps the result to usable values.
// Missing files are not an error so demos can run on defaults alone.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"skirmish/internal/identity"
	"skirmish/internal/relay"
	"skirmish/internal/telemetry"
	"skirmish/logging"
)

const (
	// DefaultListen is the relay's HTTP listen address.
	DefaultListen = ":8080"
	// DefaultRelayURL is where peers look for a local relay.
	DefaultRelayURL = "ws://localhost:8080/ws"
	// DefaultKeysDir holds per-identity key directories.
	DefaultKeysDir = "keys"
	// DefaultRelayKeyName is the identity directory name relays key under.
	DefaultRelayKeyName = "relay"
)

// LoggingConfig is the shared logging section of both config files.
type LoggingConfig struct {
	Sinks    []string `yaml:"sinks"`
	Buffer   int      `yaml:"buffer"`
	Severity string   `yaml:"severity"`
	JSONPath string   `yaml:"json_path"`
}

// Router translates the section into a logging router config.
func (l LoggingConfig) Router() logging.Config {
	cfg := logging.DefaultConfig()
	if len(l.Sinks) > 0 {
		cfg.EnabledSinks = l.Sinks
	}
	if l.Buffer > 0 {
		cfg.BufferSize = l.Buffer
	}
	switch strings.ToLower(l.Severity) {
	case "debug":
		cfg.MinimumSeverity = logging.SeverityDebug
	case "info":
		cfg.MinimumSeverity = logging.SeverityInfo
	case "warn":
		cfg.MinimumSeverity = logging.SeverityWarn
	case "error":
		cfg.MinimumSeverity = logging.SeverityError
	}
	if l.JSONPath != "" {
		cfg.JSON.FilePath = l.JSONPath
		if !cfg.HasSink("json") {
			cfg.EnabledSinks = append(cfg.EnabledSinks, "json")
		}
	}
	return cfg.Normalized()
}

// RelayConfig configures the relay process.
type RelayConfig struct {
	Listen         string        `yaml:"listen"`
	TickRate       int           `yaml:"tick_rate"`
	BufferCapacity int           `yaml:"buffer_capacity"`
	EventRate      float64       `yaml:"event_rate"`
	EventBurst     int           `yaml:"event_burst"`
	KeysDir        string        `yaml:"keys_dir"`
	KeyName        string        `yaml:"key_name"`
	Logging        LoggingConfig `yaml:"logging"`
}

// DefaultRelay returns the relay configuration used when no file exists.
func DefaultRelay() RelayConfig {
	return RelayConfig{}.Normalized()
}

func (c RelayConfig) Normalized() RelayConfig {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.TickRate <= 0 {
		c.TickRate = relay.DefaultTickRate
	}
	if c.BufferCapacity < 1 {
		c.BufferCapacity = relay.DefaultBufferCapacity
	}
	if c.EventRate <= 0 {
		c.EventRate = relay.DefaultEventRate
	}
	if c.EventBurst < 1 {
		c.EventBurst = relay.DefaultEventBurst
	}
	if c.KeysDir == "" {
		c.KeysDir = DefaultKeysDir
	}
	if c.KeyName == "" {
		c.KeyName = DefaultRelayKeyName
	}
	return c
}

// PeerConfig configures a peer process.
type PeerConfig struct {
	RelayURL     string        `yaml:"relay_url"`
	Name         string        `yaml:"name"`
	KeysDir      string        `yaml:"keys_dir"`
	KeyName      string        `yaml:"key_name"`
	RelayKeyPath string        `yaml:"relay_key"`
	AuditPath    string        `yaml:"audit_path"`
	Logging      LoggingConfig `yaml:"logging"`
}

// DefaultPeer returns the peer configuration used when no file exists.
func DefaultPeer() PeerConfig {
	return PeerConfig{}.Normalized()
}

func (c PeerConfig) Normalized() PeerConfig {
	if c.RelayURL == "" {
		c.RelayURL = DefaultRelayURL
	}
	if c.Name == "" {
		c.Name = "peer"
	}
	if c.KeysDir == "" {
		c.KeysDir = DefaultKeysDir
	}
	if c.KeyName == "" {
		c.KeyName = c.Name
	}
	if c.RelayKeyPath == "" {
		c.RelayKeyPath = filepath.Join(c.KeysDir, DefaultRelayKeyName, identity.PublicKeyFile)
	}
	return c
}

// LoadRelay reads the relay config from path, layers on environment
// overrides, and normalizes. An empty path or a missing file yields defaults.
func LoadRelay(path string, logger telemetry.Logger) (RelayConfig, error) {
	logger = ensureLogger(logger)
	var cfg RelayConfig
	if err := readYAML(path, &cfg); err != nil {
		return RelayConfig{}, err
	}
	envString("RELAY_LISTEN", &cfg.Listen)
	envInt("RELAY_TICK_RATE", &cfg.TickRate, logger)
	envInt("RELAY_BUFFER_CAPACITY", &cfg.BufferCapacity, logger)
	envString("RELAY_KEYS_DIR", &cfg.KeysDir)
	envString("RELAY_KEY_NAME", &cfg.KeyName)
	return cfg.Normalized(), nil
}

// LoadPeer reads the peer config from path, layers on environment overrides,
// and normalizes. An empty path or a missing file yields defaults. The
// logger is unused today; peer overrides are all strings.
func LoadPeer(path string, _ telemetry.Logger) (PeerConfig, error) {
	var cfg PeerConfig
	if err := readYAML(path, &cfg); err != nil {
		return PeerConfig{}, err
	}
	envString("PEER_RELAY_URL", &cfg.RelayURL)
	envString("PEER_NAME", &cfg.Name)
	envString("PEER_KEYS_DIR", &cfg.KeysDir)
	envString("PEER_KEY_NAME", &cfg.KeyName)
	envString("PEER_RELAY_KEY", &cfg.RelayKeyPath)
	envString("PEER_AUDIT_PATH", &cfg.AuditPath)
	return cfg.Normalized(), nil
}

func readYAML(path string, out any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func ensureLogger(logger telemetry.Logger) telemetry.Logger {
	if logger == nil {
		return telemetry.WrapLogger(log.Default())
	}
	return logger
}

func envString(key string, target *string) {
	if raw := os.Getenv(key); raw != "" {
		*target = raw
	}
}

func envInt(key string, target *int, logger telemetry.Logger) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		logger.Printf("invalid %s=%q: %v", key, raw, err)
		return
	}
	*target = parsed
}
