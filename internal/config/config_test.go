package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"skirmish/internal/telemetry"
	"skirmish/logging"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestDefaultRelayValues(t *testing.T) {
	cfg := DefaultRelay()
	if cfg.Listen != DefaultListen {
		t.Fatalf("expected listen %q, got %q", DefaultListen, cfg.Listen)
	}
	if cfg.TickRate != 60 {
		t.Fatalf("expected tick rate 60, got %d", cfg.TickRate)
	}
	if cfg.BufferCapacity != 256 {
		t.Fatalf("expected buffer capacity 256, got %d", cfg.BufferCapacity)
	}
	if cfg.KeysDir != DefaultKeysDir || cfg.KeyName != DefaultRelayKeyName {
		t.Fatalf("expected default key location, got %s/%s", cfg.KeysDir, cfg.KeyName)
	}
}

func TestLoadRelayMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadRelay(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	if err != nil {
		t.Fatalf("expected missing file to be tolerated, got %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultRelay()) {
		t.Fatalf("expected defaults for missing file, got %+v", cfg)
	}
}

func TestLoadRelayFromYAML(t *testing.T) {
	path := writeConfigFile(t, strings.Join([]string{
		"listen: \":9000\"",
		"tick_rate: 30",
		"keys_dir: /var/lib/skirmish/keys",
		"logging:",
		"  sinks: [console, json]",
		"  severity: debug",
	}, "\n"))

	cfg, err := LoadRelay(path, nil)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Listen != ":9000" {
		t.Fatalf("expected listen :9000, got %q", cfg.Listen)
	}
	if cfg.TickRate != 30 {
		t.Fatalf("expected tick rate 30, got %d", cfg.TickRate)
	}
	if cfg.KeysDir != "/var/lib/skirmish/keys" {
		t.Fatalf("expected keys dir from file, got %q", cfg.KeysDir)
	}
	if cfg.BufferCapacity != 256 {
		t.Fatalf("expected unset buffer capacity to normalize to 256, got %d", cfg.BufferCapacity)
	}

	router := cfg.Logging.Router()
	if router.MinimumSeverity != logging.SeverityDebug {
		t.Fatalf("expected debug severity, got %v", router.MinimumSeverity)
	}
	if !router.HasSink("json") {
		t.Fatalf("expected json sink enabled, got %v", router.EnabledSinks)
	}
}

func TestLoadRelayEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, "listen: \":9000\"\ntick_rate: 30\n")
	t.Setenv("RELAY_LISTEN", ":7777")
	t.Setenv("RELAY_TICK_RATE", "90")

	cfg, err := LoadRelay(path, nil)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Listen != ":7777" {
		t.Fatalf("expected env override listen :7777, got %q", cfg.Listen)
	}
	if cfg.TickRate != 90 {
		t.Fatalf("expected env override tick rate 90, got %d", cfg.TickRate)
	}
}

func TestLoadRelayWarnsOnGarbageEnvInt(t *testing.T) {
	path := writeConfigFile(t, "tick_rate: 30\n")
	t.Setenv("RELAY_TICK_RATE", "sixty")

	var warnings []string
	logger := telemetry.LoggerFunc(func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	})

	cfg, err := LoadRelay(path, logger)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.TickRate != 30 {
		t.Fatalf("expected garbage override ignored, got tick rate %d", cfg.TickRate)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "RELAY_TICK_RATE") {
		t.Fatalf("expected one warning naming the variable, got %v", warnings)
	}
}

func TestLoadRelayMalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "listen: [:::\n")
	if _, err := LoadRelay(path, nil); err == nil {
		t.Fatalf("expected parse error for malformed config")
	}
}

func TestPeerRelayKeyPathDerivedFromKeysDir(t *testing.T) {
	cfg := DefaultPeer()
	want := filepath.Join(DefaultKeysDir, DefaultRelayKeyName, "client_public_key.pem")
	if cfg.RelayKeyPath != want {
		t.Fatalf("expected derived relay key path %q, got %q", want, cfg.RelayKeyPath)
	}

	path := writeConfigFile(t, "name: alice\nkeys_dir: /srv/keys\n")
	loaded, err := LoadPeer(path, nil)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if loaded.KeyName != "alice" {
		t.Fatalf("expected key name to follow peer name, got %q", loaded.KeyName)
	}
	if loaded.RelayKeyPath != filepath.Join("/srv/keys", "relay", "client_public_key.pem") {
		t.Fatalf("expected relay key under configured keys dir, got %q", loaded.RelayKeyPath)
	}
}

func TestPeerEnvOverrides(t *testing.T) {
	t.Setenv("PEER_RELAY_URL", "ws://relay.example:9000/ws")
	t.Setenv("PEER_NAME", "bob")

	cfg, err := LoadPeer("", nil)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.RelayURL != "ws://relay.example:9000/ws" {
		t.Fatalf("expected env relay url, got %q", cfg.RelayURL)
	}
	if cfg.Name != "bob" || cfg.KeyName != "bob" {
		t.Fatalf("expected env name to flow into key name, got %q/%q", cfg.Name, cfg.KeyName)
	}
}
