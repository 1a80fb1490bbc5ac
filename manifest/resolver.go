package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/tern/artifact"
	"github.com/chazu/tern/classfile"
)

var log = commonlog.GetLogger("tern.manifest")

// DepKind says how a dependency is supplied.
type DepKind int

const (
	// DepArtifact is a prebuilt library artifact used as is.
	DepArtifact DepKind = iota
	// DepProject is another tern project, compiled into the deps directory.
	DepProject
)

func (k DepKind) String() string {
	if k == DepProject {
		return "project"
	}
	return "artifact"
}

// ResolvedDep represents a dependency that has been resolved to an artifact.
type ResolvedDep struct {
	Name      string    // dependency name
	Kind      DepKind   // artifact or project
	LocalPath string    // local filesystem path of the dependency
	Package   string    // package the dependency's classes live in
	Artifact  string    // artifact to put on the classpath
	Manifest  *Manifest // the dependency's own manifest (nil for artifacts)
}

// Resolver manages dependency resolution.
type Resolver struct {
	manifest *Manifest
	// base is prepended to the classpath of every project build, normally
	// the runtime artifact.
	base []string

	visiting  map[string]bool
	artifacts []string
}

// NewResolver creates a new dependency resolver. Project dependencies are
// compiled against base plus their own dependencies.
func NewResolver(m *Manifest, base ...string) *Resolver {
	return &Resolver{manifest: m, base: base}
}

// Resolve resolves all dependencies and returns them in load order
// (topologically sorted: dependencies before dependents).
func (r *Resolver) Resolve() ([]ResolvedDep, error) {
	r.visiting = map[string]bool{r.manifest.Dir: true}
	r.artifacts = nil
	resolved := make(map[string]*ResolvedDep)
	return r.resolveAll(r.manifest, resolved)
}

// DepClasspath returns the artifacts of deps in order.
func DepClasspath(deps []ResolvedDep) []string {
	out := make([]string, len(deps))
	for i, d := range deps {
		out[i] = d.Artifact
	}
	return out
}

// resolveAll resolves the dependencies of owner recursively.
// Returns dependencies in topological order (deps before dependents).
func (r *Resolver) resolveAll(owner *Manifest, resolved map[string]*ResolvedDep) ([]ResolvedDep, error) {
	var order []ResolvedDep

	names := make([]string, 0, len(owner.Dependencies))
	for name := range owner.Dependencies {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		dep := owner.Dependencies[name]
		if prev, ok := resolved[name]; ok {
			path, err := r.localPath(owner, name, dep)
			if err != nil {
				return nil, err
			}
			if path != prev.LocalPath {
				return nil, fmt.Errorf("dependency %q refers to both %s and %s", name, prev.LocalPath, path)
			}
			continue // already resolved
		}

		rd, err := r.resolveOne(owner, name, dep)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", name, err)
		}

		// Transitive dependencies come first.
		if rd.Manifest != nil && len(rd.Manifest.Dependencies) > 0 {
			if r.visiting[rd.LocalPath] {
				return nil, fmt.Errorf("dependency cycle through %s", name)
			}
			r.visiting[rd.LocalPath] = true
			transitive, err := r.resolveAll(rd.Manifest, resolved)
			delete(r.visiting, rd.LocalPath)
			if err != nil {
				return nil, err
			}
			order = append(order, transitive...)
		}

		if rd.Kind == DepProject {
			if err := r.build(rd); err != nil {
				return nil, fmt.Errorf("building %s: %w", name, err)
			}
		}
		resolved[name] = rd
		r.artifacts = append(r.artifacts, rd.Artifact)
		order = append(order, *rd)
	}

	return order, nil
}

// resolvePackage determines the package of a dependency:
//  1. Consumer override (dep.Package from TOML)
//  2. Producer manifest (depManifest.Project.Package)
//  3. Fallback ToPackageName(name)
func resolvePackage(name string, dep Dependency, depManifest *Manifest) (string, error) {
	var pkg string
	switch {
	case dep.Package != "":
		pkg = dep.Package
	case depManifest != nil && depManifest.Project.Package != "":
		pkg = depManifest.Project.Package
	default:
		pkg = ToPackageName(name)
	}

	if err := ValidatePackageName(pkg); err != nil {
		return "", fmt.Errorf("dependency %q: %w", name, err)
	}
	if IsReservedPackage(pkg) {
		return "", fmt.Errorf("dependency %q resolves to reserved package %q; add package = \"...\" override in [dependencies]", name, pkg)
	}
	return pkg, nil
}

func (r *Resolver) localPath(owner *Manifest, name string, dep Dependency) (string, error) {
	if dep.Path == "" {
		return "", fmt.Errorf("dependency %q has no path specified", name)
	}
	localPath := dep.Path
	if !filepath.IsAbs(localPath) {
		localPath = filepath.Join(owner.Dir, localPath)
	}
	return filepath.Abs(localPath)
}

// resolveOne resolves a single dependency declared by owner.
func (r *Resolver) resolveOne(owner *Manifest, name string, dep Dependency) (*ResolvedDep, error) {
	localPath, err := r.localPath(owner, name, dep)
	if err != nil {
		return nil, err
	}

	// Verify it exists
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("dependency %q not found at %s: %w", name, localPath, err)
	}

	rd := &ResolvedDep{Name: name, LocalPath: localPath}
	if info.IsDir() {
		if _, err := os.Stat(filepath.Join(localPath, FileName)); err == nil {
			rd.Kind = DepProject
			if rd.Manifest, err = Load(localPath); err != nil {
				return nil, err
			}
		}
	}

	rd.Package, err = resolvePackage(name, dep, rd.Manifest)
	if err != nil {
		return nil, err
	}

	if rd.Kind == DepArtifact {
		rd.Artifact = localPath
		if err := checkArtifact(localPath, rd.Package); err != nil {
			return nil, err
		}
		log.Debugf("dependency %s: artifact %s", name, localPath)
	}
	return rd, nil
}

// build compiles a project dependency into the deps directory, against
// every dependency resolved before it.
func (r *Resolver) build(rd *ResolvedDep) error {
	rd.Artifact = filepath.Join(r.manifest.DepsDir(), rd.Name+artifact.ArchiveExt)
	cp := append(slices.Clone(r.base), r.artifacts...)
	m := *rd.Manifest
	m.Project.Package = rd.Package
	return m.BuildTo(cp, rd.Artifact)
}

// checkArtifact opens the artifact at path and checks its classes lie in pkg.
func checkArtifact(path, pkg string) error {
	a, err := artifact.Open(path)
	if err != nil {
		return err
	}
	defer a.Close()
	names, err := a.Names()
	if err != nil {
		return err
	}
	for _, name := range names {
		if !inPackage(name, pkg) {
			return fmt.Errorf("artifact %s: class %s is outside package %s", path, name, pkg)
		}
	}
	return nil
}

func inPackage(class, pkg string) bool {
	p := classfile.PackageOf(class)
	return p == pkg || strings.HasPrefix(p, pkg+".")
}
