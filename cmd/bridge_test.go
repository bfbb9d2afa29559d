package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/ebogdum/flystream/config"
)

func newTestConfig(t *testing.T) (config.AppConfig, string) {
	t.Helper()
	dir := t.TempDir()

	local := config.DefaultSchemeConfig()
	local.LocalFSRootPath = filepath.Join(dir, "files")
	local.LockStore = "memory://"

	db := config.DefaultSchemeConfig()
	db.Backend = "sqlfs"
	db.SQLDSN = filepath.Join(dir, "nodes.db")
	db.LockStore = "memory://"

	missing := config.DefaultSchemeConfig()
	missing.Backend = "noop"

	cfg := config.DefaultAppConfig()
	cfg.Schemes = map[string]config.SchemeConfig{
		"local": local,
		"db":    db,
		"off":   missing,
	}
	return cfg, dir
}

func TestNewBridgeAcrossBackends(t *testing.T) {
	ctx := context.Background()
	cfg, dir := newTestConfig(t)

	b, err := newBridge(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("newBridge failed: %v", err)
	}
	defer b.Close()

	if got := b.Registry().Schemes(); len(got) != 3 {
		t.Fatalf("expected 3 schemes, got %v", got)
	}

	stream, err := b.Open(ctx, "db://reports/q1.csv", "w", 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(stream, "a,b\n1,2\n"); err != nil {
		t.Fatal(err)
	}
	if err := stream.Close(); err != nil {
		t.Fatal(err)
	}

	if err := b.Rename(ctx, "db://reports/q1.csv", "local://archive/q1.csv"); err != nil {
		t.Fatalf("cross-scheme rename failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "files", "archive", "q1.csv"))
	if err != nil || string(data) != "a,b\n1,2\n" {
		t.Fatalf("expected moved content on disk, got %q err=%v", data, err)
	}
	if _, err := b.URLStat(ctx, "db://reports/q1.csv", 0); err == nil {
		t.Error("expected source to be gone after rename")
	}

	if _, err := b.Open(ctx, "off://anything", "r", 0); err == nil {
		t.Error("expected noop scheme to fail")
	}
}

func TestNewBridgeRejectsBadBackend(t *testing.T) {
	cfg, _ := newTestConfig(t)
	bad := config.DefaultSchemeConfig()
	bad.Backend = "ftp"
	cfg.Schemes["bad"] = bad

	if _, err := newBridge(cfg, zap.NewNop()); err == nil {
		t.Fatal("expected unsupported backend to fail")
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    os.FileMode
		wantErr bool
	}{
		{"0755", 0o755, false},
		{"644", 0o644, false},
		{"0", 0, false},
		{"1777", 0, true},
		{"8", 0, true},
		{"rwx", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseMode(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("parseMode(%q) = %o, %v", tt.in, got, err)
			}
		})
	}
}
