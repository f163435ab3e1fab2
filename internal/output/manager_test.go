package output

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestManagerChunkProgress(t *testing.T) {
	m := NewManager()
	id := m.Register("big.iso")
	m.SetChunks(id, []int64{100, 100, 150})
	m.UpdateChunk(id, 0, 50, 10)
	m.UpdateChunk(id, 2, 150, 20)
	m.UpdateChunk(id, 7, 999, 1) // out of range is ignored
	done, total := m.Progress(id)
	if done != 200 || total != 350 {
		t.Errorf("Progress = %d/%d, want 200/350", done, total)
	}
	if m.GetStatus(id) != "active" {
		t.Errorf("status = %s, want active", m.GetStatus(id))
	}
	m.SetMessage(id, "Downloading big.iso")
	lines := m.render(100)
	// job line, total bar, three chunk bars
	if len(lines) != 5 {
		t.Fatalf("rendered %d lines: %q", len(lines), lines)
	}
	if !strings.Contains(lines[0], "Downloading big.iso") {
		t.Errorf("job line = %q", lines[0])
	}
	if !strings.Contains(lines[4], "#2") || !strings.Contains(lines[4], "100.0%") {
		t.Errorf("chunk line = %q", lines[4])
	}
	if got := m.render(2); len(got) != 2 {
		t.Errorf("render limit ignored: %d lines", len(got))
	}
}

func TestManagerSummary(t *testing.T) {
	m := NewManager()
	var buf bytes.Buffer
	m.SetOutput(&buf)
	ok := m.Register("a.bin")
	bad := m.Register("b.bin")
	m.Register("c.bin")
	m.Complete(ok, "")
	m.ReportError(bad, errors.New("thread 1 failed: 550"))

	success, failures := m.Counts()
	if success != 1 || failures != 1 {
		t.Errorf("Counts = %d, %d", success, failures)
	}
	m.ShowSummary()
	out := buf.String()
	for _, want := range []string{"Completed 1 of 3", "Failed 1 of 3", "File: b.bin", "thread 1 failed: 550"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestFormatting(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{FormatBytes(512), "512 B"},
		{FormatBytes(1536), "1.50 KB"},
		{FormatBytes(10 * 1024 * 1024), "10.00 MB"},
		{FormatSpeed(0), "0 B/s"},
		{FormatSpeed(2048), "2.00 KB/s"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
	if AverageSpeed(100, 0) != 0 || AverageSpeed(100, 4) != 25 {
		t.Error("AverageSpeed incorrect")
	}
}

func TestListingFormatters(t *testing.T) {
	if got := FDir("pub"); !strings.Contains(got, "pub/") {
		t.Errorf("FDir = %q", got)
	}
	if got := FSize(2048); !strings.Contains(got, "2.00 KB") {
		t.Errorf("FSize = %q", got)
	}
	if got := FSize(-5); !strings.Contains(got, "0 B") {
		t.Errorf("FSize of negative = %q", got)
	}
}
