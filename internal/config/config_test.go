package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "netsync.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
host_mode = true

[network]
tick_rate = "100ms"

[replication]
id_namespace = 4
sequential_ids = true
retention_ticks = 300
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Server.HostMode {
		t.Fatalf("expected host mode enabled")
	}
	if cfg.Network.TickRate != 100*time.Millisecond {
		t.Fatalf("expected tick rate 100ms, got %s", cfg.Network.TickRate)
	}
	if cfg.Replication.IDNamespace != 4 || !cfg.Replication.SequentialIDs {
		t.Fatalf("unexpected replication config: %+v", cfg.Replication)
	}
	if cfg.Replication.RetentionTicks != 300 {
		t.Fatalf("expected retention 300, got %d", cfg.Replication.RetentionTicks)
	}
	if cfg.Replication.PredictedQueueSize != 15 {
		t.Fatalf("expected default predicted queue size to survive, got %d", cfg.Replication.PredictedQueueSize)
	}
	if cfg.Server.StartTime == 0 {
		t.Fatalf("expected start time to be stamped")
	}
}

func TestLoadRejectsOversizedNamespace(t *testing.T) {
	path := writeConfig(t, "[replication]\nid_namespace = 70000\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected namespace validation error")
	}
}

func TestDefaultRetentionIsThirtySeconds(t *testing.T) {
	cfg := Defaults()
	want := uint32(30 * time.Second / cfg.Network.TickRate)
	if cfg.Replication.RetentionTicks != want {
		t.Fatalf("expected %d retention ticks, got %d", want, cfg.Replication.RetentionTicks)
	}
}
