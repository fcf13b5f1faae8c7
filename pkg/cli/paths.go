package cli

import (
	"os"
	"path/filepath"
)

// Paths locates the per-user autoppa directories.
type Paths struct {
	HomeDir string
}

// NewPaths returns the Paths of the current user.
func NewPaths() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Paths{HomeDir: home}, nil
}

// BaseDir returns ~/.autoppa.
func (p *Paths) BaseDir() string {
	return filepath.Join(p.HomeDir, DefaultBaseDir)
}

// ConfigFile returns ~/.autoppa/config.yaml.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.BaseDir(), DefaultConfigFile)
}

// ModelsDir returns ~/.autoppa/models, the default model config directory.
func (p *Paths) ModelsDir() string {
	return filepath.Join(p.BaseDir(), "models")
}

// JournalDir returns ~/.autoppa/journal.
func (p *Paths) JournalDir() string {
	return filepath.Join(p.BaseDir(), "journal")
}

// ArtifactDir returns ~/.autoppa/artifacts.
func (p *Paths) ArtifactDir() string {
	return filepath.Join(p.BaseDir(), "artifacts")
}

// Expand replaces a leading "~/" in path with the home directory.
func (p *Paths) Expand(path string) string {
	if path == "~" {
		return p.HomeDir
	}
	if len(path) >= 2 && path[0] == '~' && (path[1] == '/' || path[1] == filepath.Separator) {
		return filepath.Join(p.HomeDir, path[2:])
	}
	return path
}
