package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeConfig writes a config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

const validConfig = `
platform:
  keystone_url: "https://idm.example.com:5001"
  context_broker_url: "https://orion.example.com:1026"
  iot_agent_url: "https://iota.example.com:4041"
  service: "wastemgmt"
  subservice: "/containers"
  default_protocol: "IoTA-JSON"
auth:
  username: "prov_admin"
  password: "prov_secret"
`

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Platform.Service != "wastemgmt" {
		t.Errorf("Platform.Service = %q, want %q", cfg.Platform.Service, "wastemgmt")
	}
	if cfg.Platform.Subservice != "/containers" {
		t.Errorf("Platform.Subservice = %q, want %q", cfg.Platform.Subservice, "/containers")
	}
	if cfg.Platform.DefaultProtocol != "IoTA-JSON" {
		t.Errorf("Platform.DefaultProtocol = %q, want %q", cfg.Platform.DefaultProtocol, "IoTA-JSON")
	}

	// Defaults survive a partial file.
	if cfg.HTTP.TimeoutSeconds != 30 {
		t.Errorf("HTTP.TimeoutSeconds = %d, want 30", cfg.HTTP.TimeoutSeconds)
	}
	if !cfg.Journal.Enabled {
		t.Error("Journal.Enabled = false, want true by default")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
platform:
  keystone_url: ""
  context_broker_url: "https://orion.example.com:1026"
  iot_agent_url: "https://iota.example.com:4041"
  service: "wastemgmt"
auth:
  username: "prov_admin"
  password: "prov_secret"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "keystone_url") {
		t.Errorf("Load() error = %v, want mention of keystone_url", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TWINPROV_AUTH_PASSWORD", "from-env")
	t.Setenv("TWINPROV_PLATFORM_SERVICE", "env-service")

	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.Password != "from-env" {
		t.Errorf("Auth.Password = %q, want %q", cfg.Auth.Password, "from-env")
	}
	if cfg.Platform.Service != "env-service" {
		t.Errorf("Platform.Service = %q, want %q", cfg.Platform.Service, "env-service")
	}
}

func TestValidate_SubservicePrefix(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cfg.Platform.Subservice = "containers"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for subservice without leading '/', got nil")
	}
}

func TestValidate_QoSRange(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cfg.MQTT.QoS = 3
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for QoS 3, got nil")
	}
}
