package metrics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGetSysHealth_DataDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "shopping.db"), make([]byte, 2048), 0o644); err != nil {
		t.Fatal(err)
	}

	h := GetSysHealth(dir)
	if h.DataDiskSize != "2.0 KB" {
		t.Errorf("Expected 2.0 KB, got %s", h.DataDiskSize)
	}
	if h.Goroutines == 0 {
		t.Error("Expected at least one goroutine")
	}

	if GetSysHealth("").DataDiskSize != "" {
		t.Error("Expected no disk size without a data path")
	}
}

func TestCollect(t *testing.T) {
	ok := Collect(context.Background(), "memory", func(context.Context) error { return nil }, "")
	if !ok.Healthy() || ok.Backend != "memory" || ok.Store != "reachable" {
		t.Errorf("Unexpected healthy report: %+v", ok)
	}

	bad := Collect(context.Background(), "back4app", func(context.Context) error {
		return errors.New("storage unavailable: timeout")
	}, "")
	if bad.Healthy() {
		t.Error("Expected degraded report")
	}
	if bad.Store != "storage unavailable: timeout" {
		t.Errorf("Expected probe error in report, got %q", bad.Store)
	}
}
