// Package manifest handles lox.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents a lox.toml project configuration.
type Manifest struct {
	Project Project     `toml:"project"`
	Run     RunConfig   `toml:"run"`
	Build   BuildConfig `toml:"build"`

	// Dir is the directory containing the lox.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// RunConfig configures execution.
type RunConfig struct {
	Entry     string `toml:"entry"`
	Trace     bool   `toml:"trace"`
	StackSize int    `toml:"stack-size"`
}

// BuildConfig configures compiled output.
type BuildConfig struct {
	Output string `toml:"output"`
	Cache  string `toml:"cache"`
}

// Load parses a lox.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "lox.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	applyDefaults(&m)
	return &m, nil
}

// FindAndLoad walks up from startDir to find a lox.toml file, then loads and
// returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "lox.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Default returns the configuration used when no manifest exists.
func Default() *Manifest {
	m := &Manifest{}
	applyDefaults(m)
	return m
}

func applyDefaults(m *Manifest) {
	if m.Run.Entry == "" {
		m.Run.Entry = "main.lox"
	}
	if m.Run.StackSize == 0 {
		m.Run.StackSize = 256
	}
	if m.Build.Cache == "" {
		m.Build.Cache = filepath.Join(".lox", "cache.db")
	}
}

// EntryPath returns the configured entry file joined to the manifest
// directory. Without a loaded manifest (empty Dir) the configured path is
// returned unchanged.
func (m *Manifest) EntryPath() string {
	if m.Dir == "" {
		return m.Run.Entry
	}
	return filepath.Join(m.Dir, m.Run.Entry)
}

// CachePath returns the compile cache database path joined to the manifest
// directory. Without a loaded manifest (empty Dir) the configured path is
// returned unchanged.
func (m *Manifest) CachePath() string {
	if m.Dir == "" {
		return m.Build.Cache
	}
	return filepath.Join(m.Dir, m.Build.Cache)
}
