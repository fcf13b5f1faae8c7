package cli

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/haivivi/autoppa/pkg/artifact"
)

func TestLoadConfig_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Contexts == nil || cfg.Path() != path {
		t.Errorf("cfg = %+v", cfg)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("LoadConfig created the file")
	}
}

func TestConfig_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	err = cfg.AddContext("lab", &Context{
		Model:         "openai/gpt-5-mini",
		Root:          "/srv/autoppa",
		MaxIterations: 8,
		Artifacts: &ArtifactStore{
			Kind: ArtifactsS3,
			S3:   &artifact.S3Config{Bucket: "runs", Endpoint: "http://minio:9000", PathStyle: true},
		},
	})
	if err != nil {
		t.Fatalf("AddContext: %v", err)
	}
	if cfg.CurrentContext != "lab" {
		t.Errorf("first context not current: %q", cfg.CurrentContext)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx, err := loaded.ResolveContext("")
	if err != nil {
		t.Fatal(err)
	}
	if ctx.Name != "lab" || ctx.Model != "openai/gpt-5-mini" || ctx.MaxIterations != 8 {
		t.Errorf("context = %+v", ctx)
	}
	if ctx.Artifacts == nil || ctx.Artifacts.S3 == nil || ctx.Artifacts.S3.Bucket != "runs" || !ctx.Artifacts.S3.PathStyle {
		t.Errorf("artifacts = %+v", ctx.Artifacts)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestConfig_Contexts(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"remote", "local"} {
		if err := cfg.AddContext(name, &Context{}); err != nil {
			t.Fatal(err)
		}
	}
	if got := cfg.ListContexts(); !slices.Equal(got, []string{"local", "remote"}) {
		t.Errorf("ListContexts() = %v", got)
	}
	if err := cfg.UseContext("local"); err != nil {
		t.Fatal(err)
	}
	if ctx, _ := cfg.ResolveContext(""); ctx.Name != "local" {
		t.Errorf("current = %q", ctx.Name)
	}
	if ctx, _ := cfg.ResolveContext("remote"); ctx.Name != "remote" {
		t.Errorf("ResolveContext(remote) = %q", ctx.Name)
	}
	if err := cfg.UseContext("missing"); err == nil {
		t.Error("UseContext(missing) succeeded")
	}
	if _, err := cfg.ResolveContext("missing"); err == nil {
		t.Error("ResolveContext(missing) succeeded")
	}
	if err := cfg.DeleteContext("local"); err != nil {
		t.Fatal(err)
	}
	if cfg.CurrentContext != "" {
		t.Errorf("deleted context still current")
	}
	if err := cfg.DeleteContext("local"); err == nil {
		t.Error("second DeleteContext succeeded")
	}
	if ctx, err := cfg.ResolveContext(""); err != nil || ctx.Name != "" {
		t.Errorf("ResolveContext without current = %+v, %v", ctx, err)
	}
}

func TestContext_Validate(t *testing.T) {
	tests := []struct {
		name string
		ctx  Context
		ok   bool
	}{
		{"empty", Context{}, true},
		{"local store", Context{Artifacts: &ArtifactStore{Kind: ArtifactsLocal}}, true},
		{"s3 without bucket", Context{Artifacts: &ArtifactStore{Kind: ArtifactsS3}}, false},
		{"unknown store", Context{Artifacts: &ArtifactStore{Kind: "gcs"}}, false},
		{"negative budget", Context{MaxTokens: -1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.ctx.Validate(); (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%t", err, tt.ok)
			}
		})
	}
}

func TestContext_WithDefaults(t *testing.T) {
	p := &Paths{HomeDir: "/home/dev"}
	got := Context{Root: "~/autoppa", Artifacts: &ArtifactStore{Kind: ArtifactsLocal}}.WithDefaults(p)

	checks := map[string][2]string{
		"root":      {got.Root, "/home/dev/autoppa"},
		"benchmark": {got.BenchmarkDir, "/home/dev/autoppa/benchmark"},
		"baseline":  {got.BaselineDir, "/home/dev/autoppa/baseline"},
		"build":     {got.BuildDir, "/home/dev/autoppa/build"},
		"journal":   {got.JournalDir, "/home/dev/.autoppa/journal"},
		"models":    {got.ModelsDir, "/home/dev/.autoppa/models"},
		"artifacts": {got.Artifacts.Dir, "/home/dev/.autoppa/artifacts"},
		"tokenizer": {got.Tokenizer, "o200k_base"},
	}
	for name, c := range checks {
		if c[0] != c[1] {
			t.Errorf("%s = %q, want %q", name, c[0], c[1])
		}
	}
	if got.MaxTokens != DefaultMaxTokens || got.MaxIterations != DefaultMaxIterations {
		t.Errorf("limits = %d/%d", got.MaxTokens, got.MaxIterations)
	}

	kept := Context{BuildDir: "/tmp/build", MaxTokens: 2000}.WithDefaults(p)
	if kept.BuildDir != "/tmp/build" || kept.MaxTokens != 2000 || !strings.HasSuffix(kept.BenchmarkDir, "benchmark") {
		t.Errorf("explicit settings overridden: %+v", kept)
	}
}
