package cmd

import (
	"context"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tanq16/octoftp/internal/downloader"
	"github.com/tanq16/octoftp/internal/ftptest"
	"github.com/tanq16/octoftp/internal/utils"
)

func TestConnOptions(t *testing.T) {
	c := utils.DefaultConfig()
	opts, err := connOptions(c)
	if err != nil || len(opts) != 1 {
		t.Fatalf("default options = %d, %v", len(opts), err)
	}
	c.SocketBuffer = 1 << 20
	c.DisableEPSV = true
	if opts, err = connOptions(c); err != nil || len(opts) != 3 {
		t.Errorf("tuned options = %d, %v", len(opts), err)
	}

	c.CAFile = filepath.Join(t.TempDir(), "missing.pem")
	if _, err := connOptions(c); err == nil {
		t.Error("expected error for missing CA file")
	}
	c.CAFile = filepath.Join(t.TempDir(), "empty.pem")
	if err := os.WriteFile(c.CAFile, []byte("not a certificate"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := connOptions(c); err == nil || !strings.Contains(err.Error(), "no certificates") {
		t.Errorf("expected no certificates error, got %v", err)
	}
}

func TestEngineOptionsReachServer(t *testing.T) {
	serverTLS, err := ftptest.SelfSignedTLS()
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	srv := ftptest.NewServer()
	srv.TLS = serverTLS
	srv.DisableEPSV = true
	srv.AddFile("/pub/a.txt", []byte("hello"))
	if err := srv.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(srv.Close)

	caFile := filepath.Join(t.TempDir(), "ca.pem")
	block := &pem.Block{Type: "CERTIFICATE", Bytes: serverTLS.Certificates[0].Certificate[0]}
	if err := os.WriteFile(caFile, pem.EncodeToMemory(block), 0644); err != nil {
		t.Fatal(err)
	}

	c := utils.DefaultConfig()
	c.Server = utils.ServerTarget{
		Host: srv.Host(), Port: srv.Port(), Username: srv.User, Password: srv.Password,
		UseTLS: true, Timeout: 5 * time.Second,
	}
	if ok, msg := downloader.NewEngine(c.Server).TestConnection(context.Background()); ok {
		t.Fatalf("untrusted certificate accepted: %s", msg)
	}

	c.CAFile = caFile
	c.SocketBuffer = 256 * 1024
	c.DisableEPSV = true
	opts, err := engineOptions(c)
	if err != nil {
		t.Fatalf("engineOptions failed: %v", err)
	}
	engine := downloader.NewEngine(c.Server, opts...)
	if ok, msg := engine.TestConnection(context.Background()); !ok {
		t.Fatalf("TestConnection with CA file failed: %s", msg)
	}
	entries, err := engine.ListDirectory(context.Background(), "/pub")
	if err != nil {
		t.Fatalf("ListDirectory failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "a.txt" {
		t.Errorf("entries = %+v", entries)
	}
}
