package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.QueueSize != 256 {
		t.Errorf("queue_size = %d, want 256", cfg.Server.QueueSize)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if cfg.Requests.SweepInterval.Duration != 5*time.Second {
		t.Errorf("sweep_interval = %s, want 5s", cfg.Requests.SweepInterval)
	}
	if cfg.Server.Addr != "" {
		t.Errorf("addr should default to empty (port scan), got %q", cfg.Server.Addr)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"addr": ":9000", "queue_size": 32},
		"storage": {"driver": "postgres", "dsn": "postgres://localhost/hud", "retention_days": 7},
		"requests": {"sweep_interval": "10s"},
		"logging": {"level": "debug", "format": "json"}
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr != ":9000" || cfg.Server.QueueSize != 32 {
		t.Errorf("server config not applied: %+v", cfg.Server)
	}
	if cfg.Storage.RetentionDays != 7 {
		t.Errorf("retention_days = %d", cfg.Storage.RetentionDays)
	}
	if cfg.Requests.SweepInterval.Duration != 10*time.Second {
		t.Errorf("sweep_interval = %s", cfg.Requests.SweepInterval)
	}
}

func TestDurationAcceptsSecondsNumber(t *testing.T) {
	path := writeConfig(t, `{"requests": {"sweep_interval": 30}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Requests.SweepInterval.Duration != 30*time.Second {
		t.Errorf("sweep_interval = %s, want 30s", cfg.Requests.SweepInterval)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"bad driver", `{"storage": {"driver": "mongodb"}}`},
		{"postgres without dsn", `{"storage": {"driver": "postgres"}}`},
		{"bad log level", `{"logging": {"level": "verbose"}}`},
		{"bad log format", `{"logging": {"format": "xml"}}`},
		{"negative queue", `{"server": {"queue_size": -1}}`},
		{"sub-second sweep", `{"requests": {"sweep_interval": "100ms"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			if _, err := Load(path); err == nil {
				t.Errorf("expected error for %s", tc.name)
			}
		})
	}
}

func TestLoadDSNDefaultIsSQLiteOnly(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.DSN != "agent-hud.db" {
		t.Errorf("sqlite dsn default = %q, want agent-hud.db", cfg.Storage.DSN)
	}

	// A postgres config must never inherit the sqlite filename.
	_, err = Load(writeConfig(t, `{"storage": {"driver": "postgres"}}`))
	if err == nil {
		t.Fatal("postgres without dsn should fail validation")
	}
	if !strings.Contains(err.Error(), "storage.dsn is required") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Server.Addr = ":8123"
	path := filepath.Join(t.TempDir(), "out.json")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Server.Addr != ":8123" {
		t.Errorf("addr = %q, want :8123", loaded.Server.Addr)
	}
}
