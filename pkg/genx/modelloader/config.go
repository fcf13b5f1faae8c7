// Package modelloader registers inference endpoints from model config files.
//
// A config file (YAML or JSON) describes one provider account and the models
// served through it:
//
//	kind: openai
//	api_key: $OPENAI_API_KEY
//	models:
//	  - name: openai/gpt-5-mini
//	    model: gpt-5-mini
//	    service_tier: flex
//
// Configs whose credentials are empty after environment expansion are
// skipped, so a models directory can list providers the user has no key for.
package modelloader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"google.golang.org/genai"

	"github.com/haivivi/autoppa/pkg/genx"
)

// Verbose logs request bodies sent to OpenAI-compatible endpoints at debug
// level.
var Verbose bool

var errMissingCredentials = errors.New("modelloader: api_key is required")

type verboseTransport struct {
	base http.RoundTripper
}

func (t *verboseTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body = io.NopCloser(bytes.NewReader(body))

		var pretty bytes.Buffer
		if err := json.Indent(&pretty, body, "", "  "); err == nil {
			body = pretty.Bytes()
		}
		slog.Debug("modelloader: request", "url", req.URL.String(), "body", string(body))
	}
	return t.base.RoundTrip(req)
}

// ConfigFile is one provider config.
type ConfigFile struct {
	Kind    string  `json:"kind" yaml:"kind"`                         // "openai", "gemini"
	APIKey  string  `json:"api_key,omitzero" yaml:"api_key,omitzero"` // Can be env var name like "$OPENAI_API_KEY"
	BaseURL string  `json:"base_url,omitzero" yaml:"base_url,omitzero"`
	Models  []Entry `json:"models,omitzero" yaml:"models,omitzero"`
}

// Entry is one model served by a provider.
type Entry struct {
	Name            string         `json:"name" yaml:"name"`
	Model           string         `json:"model" yaml:"model"`
	MaxOutputTokens int64          `json:"max_output_tokens,omitzero" yaml:"max_output_tokens,omitzero"`
	ServiceTier     string         `json:"service_tier,omitzero" yaml:"service_tier,omitzero"`
	ReasoningEffort string         `json:"reasoning_effort,omitzero" yaml:"reasoning_effort,omitzero"`
	UseSystemRole   bool           `json:"use_system_role,omitzero" yaml:"use_system_role,omitzero"`
	ExtraFields     map[string]any `json:"extra_fields,omitzero" yaml:"extra_fields,omitzero"`
}

// LoadFromDir loads configs from dir into genx.DefaultMux.
func LoadFromDir(dir string) ([]string, error) {
	return Load(genx.DefaultMux, dir)
}

// Load walks dir recursively, registers an endpoint per model entry in mux
// and returns the registered names.
func Load(mux *genx.Mux, dir string) ([]string, error) {
	var names []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			return nil
		}
		cfg, err := parseConfig(path)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		fileNames, err := registerConfig(mux, *cfg)
		if err != nil {
			if errors.Is(err, errMissingCredentials) {
				slog.Debug("modelloader: skipping config", "path", path, "error", err)
				return nil
			}
			return fmt.Errorf("register %s: %w", path, err)
		}
		names = append(names, fileNames...)
		return nil
	})

	return names, err
}

func parseConfig(path string) (*ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg ConfigFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported extension: %s", ext)
	}
	return &cfg, nil
}

func registerConfig(mux *genx.Mux, cfg ConfigFile) ([]string, error) {
	cfg.APIKey = expandEnv(cfg.APIKey)
	cfg.BaseURL = expandEnv(cfg.BaseURL)

	for _, m := range cfg.Models {
		if m.Name == "" || m.Model == "" {
			return nil, fmt.Errorf("model entry missing name or model")
		}
	}

	var (
		eps []genx.Endpoint
		err error
	)
	switch strings.ToLower(cfg.Kind) {
	case "openai":
		eps, err = openAIEndpoints(cfg)
	case "gemini":
		eps, err = geminiEndpoints(cfg)
	default:
		return nil, fmt.Errorf("unknown kind: %s", cfg.Kind)
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for i, m := range cfg.Models {
		if err := mux.Handle(m.Name, eps[i]); err != nil {
			return nil, fmt.Errorf("register endpoint %q: %w", m.Name, err)
		}
		names = append(names, m.Name)
	}
	return names, nil
}

// expandEnv expands environment variables in a string.
// Supports formats: $VAR, ${VAR}, and plain values.
// If the value starts with $ but the env var is not set, returns empty string.
func expandEnv(s string) string {
	if strings.HasPrefix(s, "$") {
		return os.ExpandEnv(s)
	}
	return s
}

func openAIEndpoints(cfg ConfigFile) ([]genx.Endpoint, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w for openai kind", errMissingCredentials)
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if Verbose {
		opts = append(opts, option.WithHTTPClient(&http.Client{
			Transport: &verboseTransport{base: http.DefaultTransport},
		}))
	}
	client := openai.NewClient(opts...)

	eps := make([]genx.Endpoint, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		eps = append(eps, &genx.OpenAIEndpoint{
			Client:          &client,
			Model:           m.Model,
			MaxOutputTokens: m.MaxOutputTokens,
			ServiceTier:     m.ServiceTier,
			ReasoningEffort: m.ReasoningEffort,
			UseSystemRole:   m.UseSystemRole,
			ExtraFields:     m.ExtraFields,
		})
	}
	return eps, nil
}

func geminiEndpoints(cfg ConfigFile) ([]genx.Endpoint, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w for gemini kind", errMissingCredentials)
	}
	cc := &genai.ClientConfig{APIKey: cfg.APIKey}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, err
	}

	eps := make([]genx.Endpoint, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		eps = append(eps, &genx.GeminiEndpoint{
			Client:          client,
			Model:           m.Model,
			MaxOutputTokens: int32(m.MaxOutputTokens),
		})
	}
	return eps, nil
}
