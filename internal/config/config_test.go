package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "araci.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
bus:
  queue_capacity: 10
  extra_unknown_field: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
personas:
  - id: p1
    name: P1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.Logging.Level)
	}
	if cfg.Bus.QueueCapacity != 1024 {
		t.Fatalf("expected default queue capacity 1024, got %d", cfg.Bus.QueueCapacity)
	}
	if cfg.Coordinator.Provider.Name != "anthropic" {
		t.Fatalf("expected default provider anthropic, got %q", cfg.Coordinator.Provider.Name)
	}
	if cfg.Personas[0].MaxConcurrentTasks != 4 {
		t.Fatalf("expected default max_concurrent_tasks 4, got %d", cfg.Personas[0].MaxConcurrentTasks)
	}
}

func TestLoadValidatesProviderName(t *testing.T) {
	path := writeConfig(t, `
coordinator:
  provider:
    name: not-a-real-provider
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "provider.name") {
		t.Fatalf("expected provider.name validation error, got %v", err)
	}
}

func TestLoadValidatesToolDescriptorKind(t *testing.T) {
	path := writeConfig(t, `
tools:
  descriptors:
    - name: broken
      kind: not-a-real-kind
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "kind") {
		t.Fatalf("expected descriptor kind validation error, got %v", err)
	}
}

func TestLoadRejectsDuplicatePersonaIDs(t *testing.T) {
	path := writeConfig(t, `
personas:
  - id: dup
    name: One
  - id: dup
    name: Two
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "duplicated") {
		t.Fatalf("expected duplicate persona id error, got %v", err)
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("ARACI_TEST_API_KEY", "secret-value")
	path := writeConfig(t, `
coordinator:
  provider:
    name: anthropic
    api_key: ${ARACI_TEST_API_KEY}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Coordinator.Provider.APIKey != "secret-value" {
		t.Fatalf("expected expanded api key, got %q", cfg.Coordinator.Provider.APIKey)
	}
}
