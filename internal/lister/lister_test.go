package lister

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tanq16/octoftp/internal/ftpconn"
	"github.com/tanq16/octoftp/internal/ftptest"
	"github.com/tanq16/octoftp/internal/utils"
)

type fakeConn struct {
	cwdErr  error
	mlsd    []string
	mlsdErr error
	list    []string
	listErr error
	listed  bool
}

func (f *fakeConn) ChangeDir(string) error { return f.cwdErr }

func (f *fakeConn) MLSD(string) ([]string, error) { return f.mlsd, f.mlsdErr }

func (f *fakeConn) List(string) ([]string, error) {
	f.listed = true
	return f.list, f.listErr
}

func TestParseListLineClassification(t *testing.T) {
	lines := []string{
		"drwxr-xr-x 2 ftp ftp 4096 Jan 01 12:00 alpha",
		"drwxr-xr-x 2 ftp ftp 4096 Jan 01 12:00 beta",
		"drwxr-xr-x 2 ftp ftp 4096 Feb 02 2023 gamma",
		"drwxrwxrwx 5 root root 4096 Mar 03 09:15 delta",
		"dr-xr-xr-x 3 ftp ftp 0 Apr 04 10:00 epsilon",
		"drwx------ 2 ftp ftp 4096 May 05 11:11 zeta",
		"drwxr-x--- 2 ftp ftp 4096 Jun 06 2022 eta",
		"-rw-r--r-- 1 ftp ftp 1024 Jan 01 12:00 file1.txt",
		"-rw-r--r-- 1 ftp ftp 2048 Jan 01 12:00 file2.bin",
		"lrwxrwxrwx 1 ftp ftp 7 Jan 01 12:00 link -> target",
		"total 42",
		"-rw-r--r-- 1 ftp ftp 12 Jan 01",
	}
	var dirs, parsed int
	for _, line := range lines {
		entry, ok := ParseListLine(line, "/pub")
		if !ok {
			continue
		}
		parsed++
		if entry.IsDir {
			dirs++
		}
	}
	if dirs != 7 {
		t.Errorf("directories = %d, want 7", dirs)
	}
	if parsed != 10 {
		t.Errorf("parsed = %d, want 10", parsed)
	}
}

func TestParseListLineFields(t *testing.T) {
	tests := []struct {
		line string
		want utils.FileEntry
		ok   bool
	}{
		{
			line: "-rw-r--r--   1 owner  group   123456 Nov 12 08:30 my file  name.iso",
			want: utils.FileEntry{Name: "my file  name.iso", Path: "/dl/my file  name.iso", Size: 123456, Modified: "Nov 12 08:30"},
			ok:   true,
		},
		{
			line: "-rw-r--r-- 1 owner group n/a Nov 12 2020 odd.bin",
			want: utils.FileEntry{Name: "odd.bin", Path: "/dl/odd.bin", Size: 0, Modified: "Nov 12 2020"},
			ok:   true,
		},
		{line: "drwxr-xr-x 2 ftp ftp 4096 Jan 01 12:00 .", ok: false},
		{line: "too few fields here", ok: false},
	}
	for _, tt := range tests {
		got, ok := ParseListLine(tt.line, "/dl")
		if ok != tt.ok {
			t.Errorf("ParseListLine(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("ParseListLine(%q) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

func TestParseMLSDLine(t *testing.T) {
	tests := []struct {
		line string
		want utils.FileEntry
		ok   bool
	}{
		{
			line: "type=file;size=2048;modify=20240115103000; report.pdf",
			want: utils.FileEntry{Name: "report.pdf", Path: "/docs/report.pdf", Size: 2048, Modified: "20240115103000"},
			ok:   true,
		},
		{
			line: "Type=dir;Modify=20230101000000; archive",
			want: utils.FileEntry{Name: "archive", Path: "/docs/archive", IsDir: true, Modified: "20230101000000"},
			ok:   true,
		},
		{line: "type=cdir;modify=20240115103000; .", ok: false},
		{line: "type=pdir;modify=20240115103000; ..", ok: false},
		{line: "type=cdir; /docs", ok: false},
		{line: "garbage", ok: false},
	}
	for _, tt := range tests {
		got, ok := ParseMLSDLine(tt.line, "/docs")
		if ok != tt.ok {
			t.Errorf("ParseMLSDLine(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("ParseMLSDLine(%q) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

func TestListFallsBackToLIST(t *testing.T) {
	conn := &fakeConn{
		mlsdErr: errors.New("502 MLSD not implemented"),
		list:    []string{"-rw-r--r-- 1 ftp ftp 10 Jan 01 12:00 a.txt"},
	}
	entries, err := List(conn, "/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !conn.listed || len(entries) != 1 || entries[0].Path != "/a.txt" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestListBothFail(t *testing.T) {
	mlsdErr := errors.New("mlsd broke")
	listErr := errors.New("list broke")
	_, err := List(&fakeConn{mlsdErr: mlsdErr, listErr: listErr}, "/x")
	var listError *utils.ListError
	if !errors.As(err, &listError) {
		t.Fatalf("expected ListError, got %v", err)
	}
	if !errors.Is(err, mlsdErr) || !errors.Is(err, listErr) {
		t.Errorf("both causes should be in the chain: %v", err)
	}
}

func TestListCwdFailure(t *testing.T) {
	cwdErr := errors.New("550 no such directory")
	conn := &fakeConn{cwdErr: cwdErr}
	_, err := List(conn, "/missing")
	var listError *utils.ListError
	if !errors.As(err, &listError) || listError.CwdErr != cwdErr {
		t.Fatalf("expected cwd ListError, got %v", err)
	}
	if conn.listed {
		t.Error("LIST should not run when CWD fails")
	}
}

func TestRecursive(t *testing.T) {
	tree := map[string][]utils.FileEntry{
		"/root": {
			{Name: "a", Path: "/root/a", IsDir: true},
			{Name: "f1", Path: "/root/f1"},
			{Name: "b", Path: "/root/b", IsDir: true},
		},
		"/root/a":      {{Name: "f2", Path: "/root/a/f2"}, {Name: "deep", Path: "/root/a/deep", IsDir: true}},
		"/root/a/deep": {{Name: "f3", Path: "/root/a/deep/f3"}},
		"/root/b":      {{Name: "f4", Path: "/root/b/f4"}},
	}
	files, err := Recursive(func(p string) ([]utils.FileEntry, error) { return tree[p], nil }, "/root")
	if err != nil {
		t.Fatalf("Recursive failed: %v", err)
	}
	want := []string{"/root/a/f2", "/root/a/deep/f3", "/root/f1", "/root/b/f4"}
	if len(files) != len(want) {
		t.Fatalf("files = %+v", files)
	}
	for i, f := range files {
		if f.Path != want[i] || f.IsDir {
			t.Errorf("files[%d] = %+v, want %s", i, f, want[i])
		}
	}
}

func TestListAgainstServer(t *testing.T) {
	for _, disableMLSD := range []bool{false, true} {
		srv := ftptest.NewServer()
		srv.DisableMLSD = disableMLSD
		srv.AddFile("/pub/one.bin", make([]byte, 100))
		srv.AddFile("/pub/sub/two.bin", make([]byte, 5))
		if err := srv.Start(); err != nil {
			t.Fatalf("failed to start server: %v", err)
		}
		conn, err := ftpconn.Dial(context.Background(), utils.ServerTarget{
			Host: srv.Host(), Port: srv.Port(), Username: srv.User, Password: srv.Password, Timeout: 5 * time.Second,
		})
		if err != nil {
			srv.Close()
			t.Fatalf("Dial failed: %v", err)
		}
		entries, err := List(conn, "/pub")
		conn.Quit()
		srv.Close()
		if err != nil {
			t.Fatalf("List (mlsd disabled=%v) failed: %v", disableMLSD, err)
		}
		if len(entries) != 2 {
			t.Fatalf("entries = %+v", entries)
		}
		if entries[0].Name != "one.bin" || entries[0].Size != 100 || entries[0].IsDir {
			t.Errorf("entries[0] = %+v", entries[0])
		}
		if entries[1].Name != "sub" || !entries[1].IsDir || entries[1].Path != "/pub/sub" {
			t.Errorf("entries[1] = %+v", entries[1])
		}
	}
}
