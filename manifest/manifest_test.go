package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), `
[project]
name = "demo"
package = "demo"
version = "0.1.0"

[source]
dirs = ["src", "lib"]
root = "resources"

[classpath]
entries = ["vendor/json.tlib", "/opt/tern/extra.tdb"]
runtime = "std.tlib"

[run]
entry = "start"
host-errors = "fatal"
verbosity = 2

[dependencies]
util = { path = "../util" }
json = { path = "../json.tlib", package = "org.json" }
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if m.Project.Name != "demo" || m.Project.Package != "demo" || m.Project.Version != "0.1.0" {
		t.Errorf("Project = %+v", m.Project)
	}
	if len(m.Source.Dirs) != 2 || m.Source.Dirs[1] != "lib" {
		t.Errorf("Source.Dirs = %v", m.Source.Dirs)
	}
	if got, want := m.RootPath(), filepath.Join(m.Dir, "resources"); got != want {
		t.Errorf("RootPath = %q, want %q", got, want)
	}
	entries := m.ClasspathEntries()
	if len(entries) != 2 || entries[0] != filepath.Join(m.Dir, "vendor/json.tlib") || entries[1] != "/opt/tern/extra.tdb" {
		t.Errorf("ClasspathEntries = %v", entries)
	}
	if got, want := m.RuntimePath(), filepath.Join(m.Dir, "std.tlib"); got != want {
		t.Errorf("RuntimePath = %q, want %q", got, want)
	}
	if m.Run.Entry != "start" || m.Run.HostErrors != "fatal" || m.Run.Verbosity != 2 {
		t.Errorf("Run = %+v", m.Run)
	}
	if got, want := m.OutputPath(), filepath.Join(m.Dir, "build", "demo.tlib"); got != want {
		t.Errorf("OutputPath = %q, want %q", got, want)
	}
	if len(m.Dependencies) != 2 {
		t.Fatalf("Dependencies = %v", m.Dependencies)
	}
	if d := m.Dependencies["json"]; d.Path != "../json.tlib" || d.Package != "org.json" {
		t.Errorf("json dependency = %+v", d)
	}
	if got, want := m.DepsDir(), filepath.Join(m.Dir, ".tern", "deps"); got != want {
		t.Errorf("DepsDir = %q, want %q", got, want)
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), "[project]\nname = \"mini\"\n")

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.Source.Dirs) != 1 || m.Source.Dirs[0] != "src" {
		t.Errorf("default Source.Dirs = %v", m.Source.Dirs)
	}
	if m.RootPath() != m.Dir {
		t.Errorf("default RootPath = %q, want %q", m.RootPath(), m.Dir)
	}
	if m.Run.Entry != "main" {
		t.Errorf("default entry = %q", m.Run.Entry)
	}
	if m.RuntimePath() != "" {
		t.Errorf("RuntimePath = %q, want empty", m.RuntimePath())
	}
	if got, want := m.OutputPath(), filepath.Join(m.Dir, "build", "mini.tlib"); got != want {
		t.Errorf("OutputPath = %q, want %q", got, want)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "[project\nname = 1"},
		{"reserved package", "[project]\npackage = \"std\"\n"},
		{"host package", "[project]\npackage = \"tern.lang\"\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, FileName), tc.content)
			if _, err := Load(dir); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error for missing tern.toml")
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), "[project]\nname = \"outer\"\n")
	nested := filepath.Join(dir, "src", "deep", "er")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if m == nil || m.Project.Name != "outer" {
		t.Fatalf("FindAndLoad = %+v", m)
	}
	abs, _ := filepath.Abs(dir)
	if m.Dir != abs {
		t.Errorf("Dir = %q, want %q", m.Dir, abs)
	}
}

func TestFindAndLoadNone(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if m != nil {
		t.Errorf("expected no manifest, got %+v", m)
	}
}

func TestApplyEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), "[run]\nentry = \"start\"\n")
	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvEntry, "other")
	t.Setenv(EnvHostErrors, "fatal")
	t.Setenv(EnvVerbosity, "3")
	t.Setenv(EnvRoot, "fixtures")
	if err := m.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if m.Run.Entry != "other" || m.Run.HostErrors != "fatal" || m.Run.Verbosity != 3 {
		t.Errorf("Run = %+v", m.Run)
	}
	if m.RootPath() != filepath.Join(m.Dir, "fixtures") {
		t.Errorf("RootPath = %q", m.RootPath())
	}

	t.Setenv(EnvVerbosity, "loud")
	if err := m.ApplyEnv(); err == nil {
		t.Error("expected error for non-numeric verbosity")
	}
}

func TestSources(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), "[project]\nname = \"demo\"\n")
	writeFile(t, filepath.Join(dir, "src", "b.tn"), "package demo\n")
	writeFile(t, filepath.Join(dir, "src", "nested", "a.tn"), "package demo\n")
	writeFile(t, filepath.Join(dir, "src", "notes.txt"), "not source")

	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	files, err := m.Sources()
	if err != nil {
		t.Fatalf("Sources: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}
	if files[0].Name != "src/b.tn" || files[1].Name != "src/nested/a.tn" {
		t.Errorf("names = %q, %q", files[0].Name, files[1].Name)
	}
}
