package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadConfig(t *testing.T) {
	p := writeFile(t, "config.yaml", `
server:
  host: ftp.example.com
  port: 2121
  user: alice
  tls: true
  timeout: 10s
  ca_file: /etc/ftp/ca.pem
connections: 8
rotate_interval: "45"
workers: 3
checksum: MD5
output_dir: /data
keep_alive: 20s
socket_buffer: 131072
disable_epsv: true
`)
	cfg, err := LoadConfig(p, false)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.Host != "ftp.example.com" || cfg.Server.Port != 2121 || !cfg.Server.UseTLS {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.Username != "alice" || cfg.Server.Password != "" {
		t.Errorf("named user must not inherit the anonymous password: %+v", cfg.Server)
	}
	if cfg.Server.Timeout != 10*time.Second || cfg.RotateInterval != 45*time.Second {
		t.Errorf("durations = %v, %v", cfg.Server.Timeout, cfg.RotateInterval)
	}
	if cfg.Connections != 8 || cfg.Workers != 3 || cfg.Checksum != "MD5" || cfg.OutputDir != "/data" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.CAFile != "/etc/ftp/ca.pem" || cfg.KeepAlive != 20*time.Second || cfg.SocketBuffer != 131072 || !cfg.DisableEPSV {
		t.Errorf("transport settings = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoadConfigMissing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")
	cfg, err := LoadConfig(missing, true)
	if err != nil {
		t.Fatalf("missing default config should be ignored: %v", err)
	}
	if cfg.Connections != DefaultConnections || cfg.Server.Username != "anonymous" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if _, err := LoadConfig(missing, false); err == nil {
		t.Error("expected error for explicit missing config")
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := map[string]string{
		"yaml":      "server: [",
		"timeout":   "server:\n  timeout: soon\n",
		"rotation":  "rotate_interval: often\n",
		"keepalive": "keep_alive: forever\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfig(writeFile(t, "c.yaml", content), false); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv(PasswordEnv, "s3cret")
	cfg := DefaultConfig()
	cfg.LoadFromEnv()
	if cfg.Server.Password != "s3cret" {
		t.Errorf("password = %q", cfg.Server.Password)
	}
}

func TestValidate(t *testing.T) {
	base := DefaultConfig()
	base.Server.Host = "localhost"
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no host", func(c *Config) { c.Server.Host = "" }, "host"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "port"},
		{"no connections", func(c *Config) { c.Connections = 0 }, "connections"},
		{"no rotation", func(c *Config) { c.RotateInterval = 0 }, "rotate"},
		{"no workers", func(c *Config) { c.Workers = 0 }, "workers"},
		{"negative buffer", func(c *Config) { c.SocketBuffer = -1 }, "socket buffer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestParseSeconds(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		err  bool
	}{
		{"30", 30 * time.Second, false},
		{"1m30s", 90 * time.Second, false},
		{"250ms", 250 * time.Millisecond, false},
		{"x", 0, true},
	}
	for _, tt := range tests {
		got, err := parseSeconds(tt.in)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("parseSeconds(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestReadBatchFile(t *testing.T) {
	p := writeFile(t, "batch.yaml", `
- remote: /pub/a.iso
  op: out/a.iso
  checksum: SHA-1
  digest: abcdef
- remote: /pub/photos
`)
	entries, err := ReadBatchFile(p)
	if err != nil {
		t.Fatalf("ReadBatchFile failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	want := BatchEntry{OutputPath: "out/a.iso", Remote: "/pub/a.iso", Checksum: "SHA-1", Digest: "abcdef"}
	if entries[0] != want || entries[1].Remote != "/pub/photos" {
		t.Errorf("entries = %+v", entries)
	}

	if _, err := ReadBatchFile(writeFile(t, "bad.yaml", "- op: somewhere\n")); err == nil {
		t.Error("expected error for entry without remote")
	}
}
