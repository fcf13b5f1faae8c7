// Package artifact archives the build outputs of agent iterations.
//
// Objects are named {run}/{iteration}/{file}, where iteration is zero-padded
// to four digits.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Store holds named objects. Names are forward-slash separated.
type Store interface {
	Put(ctx context.Context, name string, data []byte) error

	// Get returns an error wrapping fs.ErrNotExist for a missing object.
	Get(ctx context.Context, name string) ([]byte, error)

	Exists(ctx context.Context, name string) (bool, error)
}

var _ Store = (*Local)(nil)

// Local is a Store rooted at a directory.
type Local struct {
	root string
}

// NewLocal creates the directory if needed.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Local{root: abs}, nil
}

// Root returns the absolute directory.
func (l *Local) Root() string { return l.root }

func (l *Local) resolve(name string) (string, error) {
	clean := path.Clean("/" + name)
	if clean == "/" {
		return "", fmt.Errorf("artifact: invalid name %q", name)
	}
	return filepath.Join(l.root, filepath.FromSlash(clean[1:])), nil
}

func (l *Local) Put(_ context.Context, name string, data []byte) error {
	full, err := l.resolve(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, data, 0o644)
}

func (l *Local) Get(_ context.Context, name string) ([]byte, error) {
	full, err := l.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

func (l *Local) Exists(_ context.Context, name string) (bool, error) {
	full, err := l.resolve(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Name returns the object name of file for one iteration of a run.
func Name(runID string, iteration int, file string) string {
	return fmt.Sprintf("%s/%04d/%s", runID, iteration, filepath.Base(file))
}

// Archiver copies iteration artifacts into a Store.
type Archiver struct {
	store  Store
	logger *slog.Logger
}

// NewArchiver returns an Archiver writing into store. A nil logger uses
// slog.Default().
func NewArchiver(store Store, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{store: store, logger: logger}
}

// Archive uploads each existing file in files and returns the object names
// written. Missing files are skipped. The first upload error stops the
// archive and is returned together with the names written so far.
func (a *Archiver) Archive(ctx context.Context, runID string, iteration int, files []string) ([]string, error) {
	if runID == "" || strings.Contains(runID, "/") {
		return nil, fmt.Errorf("artifact: invalid run id %q", runID)
	}
	var names []string
	for _, f := range files {
		data, err := os.ReadFile(f)
		if errors.Is(err, fs.ErrNotExist) {
			a.logger.Debug("artifact: skip missing file", "file", f)
			continue
		}
		if err != nil {
			return names, fmt.Errorf("artifact: read %s: %w", f, err)
		}
		name := Name(runID, iteration, f)
		if err := a.store.Put(ctx, name, data); err != nil {
			return names, fmt.Errorf("artifact: put %s: %w", name, err)
		}
		names = append(names, name)
	}
	a.logger.Debug("artifact: archived", "run", runID, "iteration", iteration, "count", len(names))
	return names, nil
}
