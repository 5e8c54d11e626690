package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	content := `
[analysis]
workers = 3

[paths]
roots = ["./src"]
exclude_dirs = [".git", "build*"]
exclude_files = ["*_pb2.py"]

[visibility]
dunder_public = false
mangled_private = true

[resolver]
external_sentinel = false
check_arity = true

[store]
enabled = true
path = "out/graph.db"

[watch]
debounce = "1s"
max_rebuilds_per_second = 4.5
`
	path := filepath.Join(t.TempDir(), "callmap.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Version != 1 {
		t.Errorf("expected default version 1, got %d", cfg.Version)
	}
	if cfg.Analysis.Workers != 3 {
		t.Errorf("expected 3 workers, got %d", cfg.Analysis.Workers)
	}
	if len(cfg.Paths.Roots) != 1 || cfg.Paths.Roots[0] != "./src" {
		t.Errorf("unexpected roots %v", cfg.Paths.Roots)
	}
	if cfg.Visibility.DunderIsPublic() {
		t.Error("expected dunder_public=false to be honored")
	}
	if !cfg.Visibility.MangledPrivate {
		t.Error("expected mangled_private=true")
	}
	if cfg.Resolver.UseExternalSentinel() {
		t.Error("expected external_sentinel=false to be honored")
	}
	if !cfg.Resolver.CheckArity {
		t.Error("expected check_arity=true")
	}
	if !cfg.Resolver.ShouldReportExternalImports() {
		t.Error("expected report_external_imports to default to true")
	}
	if !cfg.Store.Enabled || cfg.Store.Path != "out/graph.db" {
		t.Errorf("unexpected store config %+v", cfg.Store)
	}
	if cfg.Watch.Debounce != time.Second {
		t.Errorf("expected 1s debounce, got %v", cfg.Watch.Debounce)
	}
	if cfg.Watch.MaxRebuildsPerSecond != 4.5 {
		t.Errorf("expected 4.5 rebuilds/s, got %v", cfg.Watch.MaxRebuildsPerSecond)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.Analysis.Workers < 1 {
		t.Errorf("expected at least one worker, got %d", cfg.Analysis.Workers)
	}
	if !cfg.Visibility.DunderIsPublic() {
		t.Error("dunder names should be public by default")
	}
	if cfg.Visibility.MangledPrivate {
		t.Error("mangled names should follow the single-underscore rule by default")
	}
	if !cfg.Resolver.UseExternalSentinel() {
		t.Error("external sentinel should be on by default")
	}
	if cfg.Observability.ServiceName != "callmap" {
		t.Errorf("unexpected service name %q", cfg.Observability.ServiceName)
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unsupported version",
			content: "version = 7\n",
			wantErr: "unsupported config version",
		},
		{
			name:    "empty root",
			content: "[paths]\nroots = [\" \"]\n",
			wantErr: "paths.roots[0]",
		},
		{
			name:    "malformed toml",
			content: "[analysis\n",
			wantErr: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.content)
			if err == nil {
				t.Fatal("expected error")
			}
			if tc.wantErr != "" && !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}
