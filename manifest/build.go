package manifest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/chazu/tern/artifact"
	"github.com/chazu/tern/compiler"
	"github.com/chazu/tern/unit"
)

// SourceExt is the extension of source files.
const SourceExt = ".tn"

// Sources reads every source file under the project's source directories,
// sorted by path. Names are relative to the project directory.
func (m *Manifest) Sources() ([]compiler.SourceFile, error) {
	var files []compiler.SourceFile
	for _, dir := range m.SourceDirPaths() {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || filepath.Ext(path) != SourceExt {
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			name, err := filepath.Rel(m.Dir, path)
			if err != nil {
				name = path
			}
			files = append(files, compiler.SourceFile{Name: filepath.ToSlash(name), Text: string(data)})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("reading sources of %s: %w", m.Dir, err)
		}
	}
	slices.SortFunc(files, func(a, b compiler.SourceFile) int { return strings.Compare(a.Name, b.Name) })
	return files, nil
}

// Build compiles the project against classpath into a sealed unit. When the
// project declares a package every class must belong to it.
func (m *Manifest) Build(classpath []string) (*unit.Store, error) {
	files, err := m.Sources()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("project %s has no %s files", m.Dir, SourceExt)
	}
	store := unit.NewStore()
	if err := compiler.Compile(files, classpath, store); err != nil {
		return nil, err
	}
	store.Seal()
	if pkg := m.Project.Package; pkg != "" {
		if err := checkPackage(store, pkg); err != nil {
			return nil, fmt.Errorf("project %s: %w", m.Dir, err)
		}
	}
	return store, nil
}

// BuildTo compiles the project and writes the artifact to out.
func (m *Manifest) BuildTo(classpath []string, out string) error {
	store, err := m.Build(classpath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return err
	}
	if err := artifact.Write(out, store); err != nil {
		return err
	}
	log.Infof("built %s: %d classes", out, store.Len())
	return nil
}

// checkPackage reports the first class of names outside pkg.
func checkPackage(src artifact.Source, pkg string) error {
	for name := range src.Names() {
		if !inPackage(name, pkg) {
			return fmt.Errorf("class %s is outside package %s", name, pkg)
		}
	}
	return nil
}
