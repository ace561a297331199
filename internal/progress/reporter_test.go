package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{1024 * 1024, "1.00 MB"},
		{256 * 1024 * 1024, "256.00 MB"},
		{1024 * 1024 * 1024, "1.00 GB"},
		{1024 * 1024 * 1024 * 1024, "1.00 TB"},
	}

	for _, tt := range tests {
		result := FormatBytes(tt.input)
		if result != tt.expected {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected string
	}{
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m 30s"},
		{3725 * time.Second, "1h 2m 5s"},
	}

	for _, tt := range tests {
		result := FormatDuration(tt.input)
		if result != tt.expected {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestParseMB(t *testing.T) {
	got, err := ParseMB("0.2")
	if err != nil {
		t.Fatalf("ParseMB: %v", err)
	}
	if got != 0.2 {
		t.Errorf("ParseMB(0.2) = %v", got)
	}

	if _, err := ParseMB("nope"); err == nil {
		t.Error("expected error for non-numeric value")
	}
	if _, err := ParseMB("-1"); err == nil {
		t.Error("expected error for negative value")
	}
}

func TestReporterOutput(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(Options{
		Dataset:        "castleton",
		TotalChunks:    4,
		TotalBytes:     4096,
		Output:         &buf,
		UpdateInterval: 5 * time.Millisecond,
	})

	r.Start()
	r.ChunkBytes("c0.ply", 1024, 1024)
	r.ChunkLoaded(1, 4)
	r.ChunkBytes("c1.ply", 512, 1024)
	time.Sleep(20 * time.Millisecond)
	r.Stop()
	time.Sleep(10 * time.Millisecond)

	out := buf.String()
	if !strings.Contains(out, "Streaming: castleton") {
		t.Errorf("missing header in output: %q", out)
	}
	if !strings.Contains(out, "Chunks: 4") {
		t.Errorf("missing chunk count in output: %q", out)
	}
	if !strings.Contains(out, "1/4 chunks") {
		t.Errorf("missing progress line in output: %q", out)
	}
	if !strings.Contains(out, "Loaded 1/4 chunks") {
		t.Errorf("missing final status in output: %q", out)
	}
}

func TestReporterStopIdempotent(t *testing.T) {
	r := NewReporter(Options{Output: &bytes.Buffer{}})
	r.Start()
	r.Stop()
	r.Stop()
}

func TestReporterFailedChunks(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(Options{
		Dataset:        "holey",
		TotalChunks:    2,
		Output:         &buf,
		UpdateInterval: time.Hour, // only the final status prints
	})

	r.Start()
	r.ChunkBytes("bad.ply", 100, 200)
	r.ChunkFailed("bad.ply")
	r.ChunkLoaded(2, 2)
	r.Stop()
	time.Sleep(10 * time.Millisecond)

	out := buf.String()
	if !strings.Contains(out, "1 chunks failed") {
		t.Errorf("missing failed count in output: %q", out)
	}
	// Failed chunk bytes no longer count toward the received total.
	if !strings.Contains(out, "0 B") {
		t.Errorf("expected zero received bytes in output: %q", out)
	}
}
