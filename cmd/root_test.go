package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSetupLoadsConfigAndEngineOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "server:\n  host: ftp.example.com\nconnections: 6\nkeep_alive: 15s\nsocket_buffer: 65536\ndisable_epsv: true\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	configPath = path
	t.Cleanup(func() { configPath = "" })

	ls, _, err := rootCmd.Find([]string{"ls"})
	if err != nil {
		t.Fatalf("ls command not found: %v", err)
	}
	if err := setup(ls, nil); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if cfg.Server.Host != "ftp.example.com" || cfg.Connections != 6 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.KeepAlive != 15*time.Second || cfg.SocketBuffer != 65536 || !cfg.DisableEPSV {
		t.Errorf("transport settings = %v, %d, %v", cfg.KeepAlive, cfg.SocketBuffer, cfg.DisableEPSV)
	}
	if len(engineOpts) != 1 {
		t.Errorf("engine options = %d, want 1", len(engineOpts))
	}
}

func TestSetupOfflineSkipsValidation(t *testing.T) {
	configPath = filepath.Join(t.TempDir(), "absent.yaml")
	t.Cleanup(func() { configPath = "" })
	clean, _, err := rootCmd.Find([]string{"clean"})
	if err != nil {
		t.Fatalf("clean command not found: %v", err)
	}
	if err := setup(clean, nil); err == nil {
		t.Fatal("explicit missing config should fail")
	}
	configPath = ""
	if err := setup(clean, nil); err != nil {
		t.Errorf("offline command without host failed: %v", err)
	}
}
