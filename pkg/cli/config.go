package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/goccy/go-yaml"

	"github.com/haivivi/autoppa/pkg/artifact"
	"github.com/haivivi/autoppa/pkg/tokenizer"
)

const (
	// DefaultBaseDir is the per-user directory name.
	DefaultBaseDir = ".autoppa"
	// DefaultConfigFile is the config file name inside DefaultBaseDir.
	DefaultConfigFile = "config.yaml"

	// DefaultMaxTokens is the default conversation budget.
	DefaultMaxTokens = 100000
	// DefaultMaxIterations is the default iteration limit.
	DefaultMaxIterations = 5
)

// Artifact store kinds.
const (
	ArtifactsLocal = "local"
	ArtifactsS3    = "s3"
)

// Config is the set of named contexts.
type Config struct {
	CurrentContext string              `yaml:"current_context,omitempty"`
	Contexts       map[string]*Context `yaml:"contexts,omitempty"`

	path string
}

// Context is one named set of settings.
type Context struct {
	Name string `yaml:"name"`

	// Model is the endpoint name registered by the model configs.
	Model     string `yaml:"model,omitempty"`
	ModelsDir string `yaml:"models_dir,omitempty"`

	// Root is the workspace holding benchmark/, baseline/ and build/. It is
	// mounted into the power analysis container.
	Root         string `yaml:"root,omitempty"`
	BenchmarkDir string `yaml:"benchmark_dir,omitempty"`
	BaselineDir  string `yaml:"baseline_dir,omitempty"`
	BuildDir     string `yaml:"build_dir,omitempty"`
	JournalDir   string `yaml:"journal_dir,omitempty"`

	MaxTokens     int    `yaml:"max_tokens,omitempty"`
	MaxIterations int    `yaml:"max_iterations,omitempty"`
	Tokenizer     string `yaml:"tokenizer,omitempty"`

	Artifacts *ArtifactStore `yaml:"artifacts,omitempty"`
}

// ArtifactStore selects where iteration artifacts are archived.
type ArtifactStore struct {
	Kind string             `yaml:"kind"`
	Dir  string             `yaml:"dir,omitempty"`
	S3   *artifact.S3Config `yaml:"s3,omitempty"`
}

// LoadConfig reads the config at path, or at the default location when path
// is empty. A missing file yields an empty Config that Save will create.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		p, err := NewPaths()
		if err != nil {
			return nil, fmt.Errorf("cli: locate home directory: %w", err)
		}
		path = p.ConfigFile()
	}
	cfg := &Config{Contexts: make(map[string]*Context), path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cli: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cli: parse config %s: %w", path, err)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = make(map[string]*Context)
	}
	for name, c := range cfg.Contexts {
		c.Name = name
	}
	cfg.path = path
	return cfg, nil
}

// Save writes the config, creating its directory.
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("cli: marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("cli: create config directory: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("cli: write config: %w", err)
	}
	return nil
}

// Path returns the config file path.
func (c *Config) Path() string { return c.path }

// AddContext stores ctx under name, replacing any previous one. The first
// context added becomes current.
func (c *Config) AddContext(name string, ctx *Context) error {
	if name == "" {
		return errors.New("cli: context name is required")
	}
	if err := ctx.Validate(); err != nil {
		return err
	}
	ctx.Name = name
	c.Contexts[name] = ctx
	if c.CurrentContext == "" {
		c.CurrentContext = name
	}
	return c.Save()
}

// DeleteContext removes a context.
func (c *Config) DeleteContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("cli: context %q not found", name)
	}
	delete(c.Contexts, name)
	if c.CurrentContext == name {
		c.CurrentContext = ""
	}
	return c.Save()
}

// UseContext makes name the current context.
func (c *Config) UseContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("cli: context %q not found", name)
	}
	c.CurrentContext = name
	return c.Save()
}

// GetContext returns the context called name.
func (c *Config) GetContext(name string) (*Context, error) {
	ctx, ok := c.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("cli: context %q not found", name)
	}
	return ctx, nil
}

// ResolveContext returns the named context, the current one when name is
// empty, or an unnamed default context when neither exists.
func (c *Config) ResolveContext(name string) (*Context, error) {
	if name != "" {
		return c.GetContext(name)
	}
	if c.CurrentContext == "" {
		return &Context{}, nil
	}
	return c.GetContext(c.CurrentContext)
}

// ListContexts returns the context names in sorted order.
func (c *Config) ListContexts() []string {
	names := make([]string, 0, len(c.Contexts))
	for name := range c.Contexts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Validate checks the enumerated fields.
func (ctx *Context) Validate() error {
	if ctx.MaxTokens < 0 || ctx.MaxIterations < 0 {
		return errors.New("cli: max_tokens and max_iterations must not be negative")
	}
	if a := ctx.Artifacts; a != nil {
		switch a.Kind {
		case ArtifactsLocal:
		case ArtifactsS3:
			if a.S3 == nil || a.S3.Bucket == "" {
				return errors.New("cli: s3 artifact store needs a bucket")
			}
		default:
			return fmt.Errorf("cli: unknown artifact store kind %q", a.Kind)
		}
	}
	return nil
}

// WithDefaults returns a copy of ctx with every empty setting filled in and
// "~/" expanded.
func (ctx Context) WithDefaults(p *Paths) Context {
	or := func(v, def string) string {
		if v == "" {
			return def
		}
		return p.Expand(v)
	}
	ctx.Root = or(ctx.Root, ".")
	ctx.BenchmarkDir = or(ctx.BenchmarkDir, filepath.Join(ctx.Root, "benchmark"))
	ctx.BaselineDir = or(ctx.BaselineDir, filepath.Join(ctx.Root, "baseline"))
	ctx.BuildDir = or(ctx.BuildDir, filepath.Join(ctx.Root, "build"))
	ctx.JournalDir = or(ctx.JournalDir, p.JournalDir())
	ctx.ModelsDir = or(ctx.ModelsDir, p.ModelsDir())
	ctx.Tokenizer = or(ctx.Tokenizer, tokenizer.DefaultEncoding)
	if ctx.MaxTokens == 0 {
		ctx.MaxTokens = DefaultMaxTokens
	}
	if ctx.MaxIterations == 0 {
		ctx.MaxIterations = DefaultMaxIterations
	}
	if ctx.Artifacts != nil {
		a := *ctx.Artifacts
		if a.Kind == ArtifactsLocal {
			a.Dir = or(a.Dir, p.ArtifactDir())
		}
		ctx.Artifacts = &a
	}
	return ctx
}
