// config_test.go tests loading, defaults, validation and saving.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
server_url: https://recurd.example.com
api_key: secret
node_id: node-1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("expected log_level info, got %s", cfg.LogLevel)
	}
	if cfg.DataDir != DefaultDataDir {
		t.Errorf("expected data_dir %s, got %s", DefaultDataDir, cfg.DataDir)
	}
	if cfg.StoreBackend != "bolt" {
		t.Errorf("expected bolt backend, got %s", cfg.StoreBackend)
	}
	if cfg.TickIntervalSeconds != 1 || cfg.DispatchIntervalSeconds != 5 {
		t.Errorf("unexpected intervals tick=%d dispatch=%d", cfg.TickIntervalSeconds, cfg.DispatchIntervalSeconds)
	}
	if cfg.NATSEnabled() {
		t.Error("expected NATS disabled")
	}
	if got := cfg.StoreOptions().BoltPath; got != filepath.Join(DefaultDataDir, "schedules.db") {
		t.Errorf("unexpected bolt path %s", got)
	}
}

func TestLoad_NATS(t *testing.T) {
	path := writeConfig(t, `
nats_servers: nats://localhost:4222
nats_nkey_seed: SUAEXAMPLE
tenant_id: acme
node_id: node-1
store_backend: redis
redis_addr: localhost:6379
redis_db: 3
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.NATSEnabled() {
		t.Error("expected NATS enabled")
	}
	opts := cfg.StoreOptions()
	if opts.Backend != "redis" || opts.RedisAddr != "localhost:6379" || opts.RedisDB != 3 {
		t.Errorf("unexpected store options %+v", opts)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{
			name: "no transport",
			body: "node_id: n1\n",
			want: ErrNoTransport,
		},
		{
			name: "unknown backend",
			body: "server_url: http://x\napi_key: k\nnode_id: n1\nstore_backend: sqlite\n",
			want: ErrUnknownStoreBackend,
		},
		{
			name: "redis without address",
			body: "server_url: http://x\napi_key: k\nnode_id: n1\nstore_backend: redis\n",
			want: ErrRedisAddrRequired,
		},
		{
			name: "negative tick",
			body: "server_url: http://x\napi_key: k\nnode_id: n1\ntick_interval_seconds: -1\n",
			want: ErrInvalidTickInterval,
		},
		{
			name: "negative dispatch",
			body: "server_url: http://x\napi_key: k\nnode_id: n1\ndispatch_interval_seconds: -5\n",
			want: ErrInvalidDispatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := &Config{
		ServerURL: "https://recurd.example.com",
		APIKey:    "secret",
		NodeID:    "node-1",
		DataDir:   "/tmp/recurd",
	}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected 0600, got %o", perm)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load after Save failed: %v", err)
	}
	if loaded.APIKey != "secret" || loaded.DataDir != "/tmp/recurd" {
		t.Errorf("unexpected round trip %+v", loaded)
	}
}
