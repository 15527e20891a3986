package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadServerDefaults(t *testing.T) {
	t.Setenv("CORPSIM_CONFIG", "")
	t.Setenv("CORPSIM_TICK_RATE", "")
	t.Setenv("CORPSIM_REDRIVE", "")
	t.Setenv("CORPSIM_METADATA_BACKEND", "")

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TickRate != 128 || cfg.Redrive != RedriveEvent || cfg.OrgCount != 7 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if got := cfg.TickEvery(); got != time.Second/128 {
		t.Fatalf("tick every=%s", got)
	}
}

func TestLoadServerFileOverridesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	body := "tick_rate: 32\nredrive: command\nhandshake_timeout: 2s\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CORPSIM_CONFIG", path)
	t.Setenv("CORPSIM_TICK_RATE", "64")
	t.Setenv("CORPSIM_ORG_COUNT", "3")
	t.Setenv("CORPSIM_METADATA_BACKEND", "")

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TickRate != 32 {
		t.Fatalf("tick rate=%d want 32", cfg.TickRate)
	}
	if cfg.OrgCount != 3 {
		t.Fatalf("org count=%d want 3 from env", cfg.OrgCount)
	}
	if cfg.Redrive != RedriveCommand || cfg.HandshakeTimeout != 2*time.Second {
		t.Fatalf("file values not applied: %+v", cfg)
	}
}

func TestServerValidate(t *testing.T) {
	base := ServerConfig{TickRate: 128, Redrive: RedriveEvent, ClientQueue: 1, CommandQueue: 1, MetadataBackend: "file"}
	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr bool
	}{
		{name: "ok", mutate: func(*ServerConfig) {}},
		{name: "bad redrive", mutate: func(c *ServerConfig) { c.Redrive = "sideways" }, wantErr: true},
		{name: "zero tick", mutate: func(c *ServerConfig) { c.TickRate = 0 }, wantErr: true},
		{name: "week overflow", mutate: func(c *ServerConfig) { c.StartWeek = 70_000 }, wantErr: true},
		{name: "postgres without url", mutate: func(c *ServerConfig) { c.MetadataBackend = "postgres" }, wantErr: true},
		{name: "unknown backend", mutate: func(c *ServerConfig) { c.MetadataBackend = "redis" }, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tc.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tc.wantErr)
			}
		})
	}
}

func TestParseRedriveMode(t *testing.T) {
	tests := []struct {
		in   string
		want RedriveMode
		err  bool
	}{
		{in: "", want: RedriveEvent},
		{in: "EVENT", want: RedriveEvent},
		{in: "command", want: RedriveCommand},
		{in: " none ", want: RedriveNone},
		{in: "both", err: true},
	}
	for _, tc := range tests {
		got, err := ParseRedriveMode(tc.in)
		if (err != nil) != tc.err || got != tc.want {
			t.Fatalf("ParseRedriveMode(%q)=%q,%v", tc.in, got, err)
		}
	}
}

func TestLoadMetaUsesPort(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CORPSIM_META_BACKEND", "")
	t.Setenv("CORPSIM_META_CONFIG", "")
	cfg, err := LoadMeta()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("addr=%q", cfg.Addr)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != slog.LevelDebug || ParseLevel("nonsense") != slog.LevelInfo {
		t.Fatalf("unexpected level mapping")
	}
}
