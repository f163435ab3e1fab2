package ftpconn

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/tanq16/octoftp/internal/ftptest"
	"github.com/tanq16/octoftp/internal/utils"
)

func startServer(t *testing.T, secure bool, configure func(*ftptest.Server)) (*ftptest.Server, utils.ServerTarget) {
	t.Helper()
	srv := ftptest.NewServer()
	if secure {
		cfg, err := ftptest.SelfSignedTLS()
		if err != nil {
			t.Fatalf("failed to create certificate: %v", err)
		}
		srv.TLS = cfg
	}
	if configure != nil {
		configure(srv)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(srv.Close)
	return srv, utils.ServerTarget{
		Host:     srv.Host(),
		Port:     srv.Port(),
		Username: srv.User,
		Password: srv.Password,
		UseTLS:   secure,
		Insecure: true,
		Timeout:  5 * time.Second,
	}
}

func dial(t *testing.T, target utils.ServerTarget, opts ...Option) *Conn {
	t.Helper()
	c, err := Dial(context.Background(), target, opts...)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDialPlain(t *testing.T) {
	srv, target := startServer(t, false, func(s *ftptest.Server) {
		s.AddFile("/pub/readme.txt", []byte("hello"))
	})
	c := dial(t, target)

	if !strings.Contains(c.Welcome(), "octoftp test server") {
		t.Errorf("welcome = %q", c.Welcome())
	}
	if c.DataProtected() {
		t.Error("plain connection reports protected data channel")
	}
	if err := c.ChangeDir("/pub"); err != nil {
		t.Fatalf("ChangeDir failed: %v", err)
	}
	dir, err := c.CurrentDir()
	if err != nil || dir != "/pub" {
		t.Errorf("CurrentDir = %q, %v", dir, err)
	}
	size, err := c.Size("readme.txt")
	if err != nil || size != 5 {
		t.Errorf("Size = %d, %v", size, err)
	}
	if srv.Logins.Load() != 1 {
		t.Errorf("logins = %d, want 1", srv.Logins.Load())
	}
	if err := c.Quit(); err != nil {
		t.Errorf("Quit failed: %v", err)
	}
}

func TestDialBadLogin(t *testing.T) {
	_, target := startServer(t, false, nil)
	target.Password = "wrong"
	_, err := Dial(context.Background(), target)
	var connErr *utils.ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectError, got %v", err)
	}
	if connErr.Stage != "login" {
		t.Errorf("stage = %q, want login", connErr.Stage)
	}
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) || protoErr.Code != 530 {
		t.Errorf("expected 530 ProtocolError in chain, got %v", err)
	}
}

func TestDialRefused(t *testing.T) {
	_, target := startServer(t, false, nil)
	target.Port = 1
	_, err := Dial(context.Background(), target)
	var connErr *utils.ConnectError
	if !errors.As(err, &connErr) || connErr.Stage != "connect" {
		t.Fatalf("expected connect stage ConnectError, got %v", err)
	}
}

func TestRetrieveFromOffset(t *testing.T) {
	content := bytes.Repeat([]byte("0123456789"), 5000)
	srv, target := startServer(t, false, func(s *ftptest.Server) {
		s.AddFile("/data.bin", content)
	})
	c := dial(t, target, WithSocketBuffers(1024*1024))
	r, err := c.RetrieveFrom("/data.bin", 1234)
	if err != nil {
		t.Fatalf("RetrieveFrom failed: %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !bytes.Equal(got, content[1234:]) {
		t.Errorf("got %d bytes, want %d", len(got), len(content)-1234)
	}
	if offsets := srv.RestOffsets(); len(offsets) != 1 || offsets[0] != 1234 {
		t.Errorf("REST offsets = %v", offsets)
	}
}

func TestRetrieveMissingFile(t *testing.T) {
	_, target := startServer(t, false, nil)
	c := dial(t, target)
	_, err := c.RetrieveFrom("/missing", 0)
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) || protoErr.Code != 550 {
		t.Fatalf("expected 550, got %v", err)
	}
}

func TestPASVFallback(t *testing.T) {
	_, target := startServer(t, false, func(s *ftptest.Server) {
		s.DisableEPSV = true
		s.AddFile("/a.txt", []byte("abc"))
	})
	c := dial(t, target)
	lines, err := c.List("/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(lines) != 1 || !strings.HasSuffix(lines[0], "a.txt") {
		t.Errorf("lines = %v", lines)
	}
	if !c.disableEPSV {
		t.Error("EPSV should be disabled after fallback")
	}
}

func TestTLSSessionReuse(t *testing.T) {
	content := bytes.Repeat([]byte{0xAB}, 100000)
	srv, target := startServer(t, true, func(s *ftptest.Server) {
		s.RequireSessionReuse = true
		s.AddFile("/secure.bin", content)
	})
	c := dial(t, target)
	if !c.DataProtected() {
		t.Fatal("expected protected data channel")
	}
	for i := 0; i < 2; i++ {
		if _, err := c.MLSD("/"); err != nil {
			t.Fatalf("MLSD %d failed: %v", i, err)
		}
	}
	r, err := c.RetrieveFrom("/secure.bin", 0)
	if err != nil {
		t.Fatalf("RetrieveFrom failed: %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("content mismatch over protected channel")
	}
	if srv.ResumedData.Load() != 3 || srv.RejectedData.Load() != 0 {
		t.Errorf("resumed = %d rejected = %d", srv.ResumedData.Load(), srv.RejectedData.Load())
	}
}

func TestProtPRejectedFallsBackToClear(t *testing.T) {
	_, target := startServer(t, true, func(s *ftptest.Server) {
		s.RejectProtP = true
		s.AddFile("/f.txt", []byte("clear"))
	})
	c := dial(t, target)
	if c.DataProtected() {
		t.Fatal("expected clear data channel after PROT P rejection")
	}
	r, err := c.RetrieveFrom("/f.txt", 0)
	if err != nil {
		t.Fatalf("RetrieveFrom failed: %v", err)
	}
	got, _ := io.ReadAll(r)
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if string(got) != "clear" {
		t.Errorf("got %q", got)
	}
}

func TestProtRejectedEntirely(t *testing.T) {
	_, target := startServer(t, true, func(s *ftptest.Server) {
		s.RejectProtP = true
		s.RejectProtC = true
	})
	c := dial(t, target)
	if c.DataProtected() {
		t.Error("expected unprotected data channel")
	}
}

func TestDialerIsCopied(t *testing.T) {
	_, target := startServer(t, false, nil)
	shared := &net.Dialer{KeepAlive: 30 * time.Second}
	c := dial(t, target, WithDialer(shared), WithSocketBuffers(64*1024))
	if shared.Timeout != 0 || shared.Control != nil {
		t.Error("Dial modified the caller's dialer")
	}
	if c.dialer == shared || c.dialer.KeepAlive != 30*time.Second {
		t.Errorf("dialer settings not carried over: %+v", c.dialer)
	}
}

func TestDisableEPSVUsesPASV(t *testing.T) {
	_, target := startServer(t, false, func(s *ftptest.Server) {
		s.AddFile("/a.txt", []byte("a"))
	})
	c := dial(t, target, WithDisableEPSV())
	lines, err := c.List("/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(lines) != 1 || !c.disableEPSV {
		t.Errorf("lines = %v, disableEPSV = %v", lines, c.disableEPSV)
	}
}
