// Package manifest handles tern.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/xyproto/env/v2"
)

// FileName is the name of the project configuration file.
const FileName = "tern.toml"

// Environment variables that override manifest settings.
const (
	EnvEntry      = "TERN_ENTRY"
	EnvHostErrors = "TERN_HOST_ERRORS"
	EnvVerbosity  = "TERN_VERBOSITY"
	EnvRoot       = "TERN_RESOURCE_ROOT"
)

// Manifest represents a tern.toml project configuration.
type Manifest struct {
	Project      Project               `toml:"project"`
	Source       Source                `toml:"source"`
	Classpath    Classpath             `toml:"classpath"`
	Run          Run                   `toml:"run"`
	Dependencies map[string]Dependency `toml:"dependencies"`

	// Dir is the directory containing the tern.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Package string `toml:"package"`
	Version string `toml:"version"`
}

// Source configures source file locations.
type Source struct {
	Dirs []string `toml:"dirs"`
	// Root is the resource root file sources are resolved against.
	Root string `toml:"root"`
}

// Classpath lists library artifacts visible to compilations.
type Classpath struct {
	Entries []string `toml:"entries"`
	// Runtime pins the runtime artifact instead of the cached build.
	Runtime string `toml:"runtime"`
}

// Run configures verification defaults.
type Run struct {
	Entry      string `toml:"entry"`
	HostErrors string `toml:"host-errors"`
	Verbosity  int    `toml:"verbosity"`
	Output     string `toml:"output"`
}

// Dependency is another tern project or a prebuilt artifact.
type Dependency struct {
	Path    string `toml:"path"`
	Package string `toml:"package"`
}

// Load parses a tern.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
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

	// Defaults
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"src"}
	}
	if m.Source.Root == "" {
		m.Source.Root = "."
	}
	if m.Run.Entry == "" {
		m.Run.Entry = "main"
	}
	if m.Run.Output == "" {
		m.Run.Output = filepath.Join("build", m.artifactName())
	}
	if m.Project.Package != "" && IsReservedPackage(m.Project.Package) {
		return nil, fmt.Errorf("%s: package %s is reserved", path, m.Project.Package)
	}

	return &m, nil
}

func (m *Manifest) artifactName() string {
	name := m.Project.Name
	if name == "" {
		name = filepath.Base(m.Dir)
	}
	return name + ".tlib"
}

// FindAndLoad walks up from startDir to find a tern.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
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

// ApplyEnv overrides settings from TERN_* environment variables.
func (m *Manifest) ApplyEnv() error {
	// env caches the environment; pick up variables set since the last call.
	env.Load()
	if v := env.Str(EnvEntry); v != "" {
		m.Run.Entry = v
	}
	if v := env.Str(EnvHostErrors); v != "" {
		m.Run.HostErrors = v
	}
	if v := env.Str(EnvRoot); v != "" {
		m.Source.Root = v
	}
	if v := env.Str(EnvVerbosity); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvVerbosity, err)
		}
		m.Run.Verbosity = n
	}
	return nil
}

func (m *Manifest) abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, m.abs(d))
	}
	return paths
}

// RootPath returns the absolute resource root.
func (m *Manifest) RootPath() string { return m.abs(m.Source.Root) }

// ClasspathEntries returns the configured classpath entries as absolute paths.
func (m *Manifest) ClasspathEntries() []string {
	var paths []string
	for _, e := range m.Classpath.Entries {
		paths = append(paths, m.abs(e))
	}
	return paths
}

// RuntimePath returns the pinned runtime artifact, or "".
func (m *Manifest) RuntimePath() string {
	if m.Classpath.Runtime == "" {
		return ""
	}
	return m.abs(m.Classpath.Runtime)
}

// OutputPath returns where the project artifact is written.
func (m *Manifest) OutputPath() string { return m.abs(m.Run.Output) }

// DepsDir returns the path to the .tern/deps directory.
func (m *Manifest) DepsDir() string {
	return filepath.Join(m.Dir, ".tern", "deps")
}
