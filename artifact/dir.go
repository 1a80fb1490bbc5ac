package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

type dirArtifact struct {
	root string
}

func openDir(root string) *dirArtifact {
	return &dirArtifact{root: root}
}

// classPath maps demo.Helper to <root>/demo/Helper.tclass.
func classPath(root, name string) string {
	return filepath.Join(root, filepath.FromSlash(strings.ReplaceAll(name, ".", "/"))+ClassExt)
}

func (d *dirArtifact) Load(name string) ([]byte, error) {
	if name == "" || strings.Contains(name, "/") || strings.Contains(name, "..") {
		return nil, fmt.Errorf("%q in %s: %w", name, d.root, ErrNotFound)
	}
	data, err := os.ReadFile(classPath(d.root, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s in %s: %w", name, d.root, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("artifact %s: load %s: %w", d.root, name, err)
	}
	return data, nil
}

func (d *dirArtifact) Names() ([]string, error) {
	var names []string
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || filepath.Ext(path) != ClassExt {
			return nil
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		rel = strings.TrimSuffix(filepath.ToSlash(rel), ClassExt)
		names = append(names, strings.ReplaceAll(rel, "/", "."))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", d.root, err)
	}
	slices.Sort(names)
	return names, nil
}

func (d *dirArtifact) Location() string { return d.root }

func (d *dirArtifact) Close() error { return nil }

func writeDir(root string, classes map[string][]byte) error {
	for name, data := range classes {
		path := classPath(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("artifact %s: %w", root, err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("artifact %s: write %s: %w", root, name, err)
		}
	}
	return nil
}
