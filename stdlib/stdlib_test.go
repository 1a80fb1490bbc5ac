package stdlib

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/chazu/tern/artifact"
	"github.com/chazu/tern/compiler"
	"github.com/chazu/tern/loader"
	"github.com/chazu/tern/unit"
	"github.com/chazu/tern/vm"
)

func TestSourcesAreSorted(t *testing.T) {
	srcs := Sources()
	if len(srcs) == 0 {
		t.Fatal("no std sources embedded")
	}
	names := make([]string, len(srcs))
	for i, s := range srcs {
		names[i] = s.Name
	}
	if !slices.IsSorted(names) {
		t.Errorf("Sources() = %v, want sorted", names)
	}
}

func TestHashIsStable(t *testing.T) {
	a, b := Hash(), Hash()
	if a != b {
		t.Errorf("Hash() = %s then %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("len(Hash()) = %d, want 64", len(a))
	}
}

func TestBuildWritesEveryClass(t *testing.T) {
	path := filepath.Join(t.TempDir(), "std.tlib")
	if err := Build(path); err != nil {
		t.Fatalf("Build: %v", err)
	}
	art, err := artifact.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer art.Close()
	names, err := art.Names()
	if err != nil {
		t.Fatalf("Names: %v", err)
	}
	for _, want := range []string{
		"std.Namespace",
		"std.StringBuilder",
		"std.Pair",
		"std.IllegalStateException",
		"std.IllegalArgumentException",
	} {
		if !slices.Contains(names, want) {
			t.Errorf("artifact classes %v missing %s", names, want)
		}
	}
}

func TestLocateFollowsEnvironment(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.tlib")
	b := filepath.Join(dir, "b.tlib")
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	t.Setenv(EnvRuntime, a)
	if got, err := Locate(); err != nil || got != a {
		t.Fatalf("Locate = %q, %v, want %q", got, err, a)
	}
	t.Setenv(EnvRuntime, b)
	if got, err := Locate(); err != nil || got != b {
		t.Fatalf("Locate after change = %q, %v, want %q", got, err, b)
	}
	t.Setenv(EnvRuntime, filepath.Join(dir, "missing.tlib"))
	if _, err := Locate(); err == nil {
		t.Error("expected error for a missing runtime")
	}
}

func TestLocateInBuildsOnce(t *testing.T) {
	dir := t.TempDir()
	first, err := LocateIn(dir)
	if err != nil {
		t.Fatalf("LocateIn: %v", err)
	}
	info, err := os.Stat(first)
	if err != nil {
		t.Fatalf("artifact not written: %v", err)
	}
	second, err := LocateIn(dir)
	if err != nil {
		t.Fatalf("second LocateIn: %v", err)
	}
	if first != second {
		t.Errorf("LocateIn = %s then %s", first, second)
	}
	again, _ := os.Stat(second)
	if !again.ModTime().Equal(info.ModTime()) {
		t.Errorf("artifact was rebuilt")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("cache dir holds %d entries, want 1", len(entries))
	}
}

const program = `package app

fun banner(n: Int): String {
    val sb = StringBuilder()
    sb.append("[").append(repeat("=", n)).append("]")
    return sb.toString()
}

fun digits(s: String): Int {
    var sum = 0
    for (c in s) sum += digitValue(c)
    return sum
}

fun pair(): String = "" + Pair("a", StringBuilder().append(1))

fun bounds(): Long = max(3L, abs(-7L)) + min(2L, 5L)

fun mirror(s: String): String = reverse(s)

fun strict(n: Int): Int {
    check(n > 0, "n must be positive")
    return n
}
`

func compileProgram(t *testing.T) *vm.Interpreter {
	t.Helper()
	path := filepath.Join(t.TempDir(), "std.tlib")
	if err := Build(path); err != nil {
		t.Fatalf("Build: %v", err)
	}
	store := unit.NewStore()
	err := compiler.Compile([]compiler.SourceFile{{Name: "app.tn", Text: program}}, []string{path}, store)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	store.Seal()
	return vm.NewInterpreter(loader.New(store, loader.NewArtifactProvider(path), vm.HostProvider()))
}

func TestProgramsUseStd(t *testing.T) {
	in := compileProgram(t)
	facade, err := in.LinkClass("app.Namespace")
	if err != nil {
		t.Fatalf("LinkClass: %v", err)
	}
	str := "Ltern/lang/String;"
	tests := []struct {
		name string
		desc string
		args []vm.Value
		want string
	}{
		{"banner", "(I)" + str, []vm.Value{int32(3)}, "[===]"},
		{"pair", "()" + str, nil, "(a, 1)"},
		{"mirror", "(" + str + ")" + str, []vm.Value{vm.NewString("tern")}, "nret"},
		{"mirror", "(" + str + ")" + str, []vm.Value{vm.NewString("")}, ""},
	}
	for _, tt := range tests {
		got, err := in.Invoke(facade.DeclaredMethod(tt.name, tt.desc), tt.args...)
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if s, ok := got.(*vm.String); !ok || s.String() != tt.want {
			t.Errorf("%s = %v, want %q", tt.name, got, tt.want)
		}
	}

	got, err := in.Invoke(facade.DeclaredMethod("digits", "("+str+")I"), vm.NewString("239"))
	if err != nil || got != int32(14) {
		t.Errorf("digits(239) = %v, %v, want 14", got, err)
	}
	got, err = in.Invoke(facade.DeclaredMethod("bounds", "()J"))
	if err != nil || got != int64(9) {
		t.Errorf("bounds() = %v, %v, want 9", got, err)
	}
}

func TestStdExceptions(t *testing.T) {
	in := compileProgram(t)
	facade, err := in.LinkClass("app.Namespace")
	if err != nil {
		t.Fatalf("LinkClass: %v", err)
	}

	_, err = in.Invoke(facade.DeclaredMethod("strict", "(I)I"), int32(0))
	var thrown *vm.Thrown
	if !errors.As(err, &thrown) {
		t.Fatalf("strict(0) error = %v, want *vm.Thrown", err)
	}
	if thrown.ClassName() != "std.IllegalStateException" || thrown.Message() != "n must be positive" {
		t.Errorf("strict(0) threw %s %q", thrown.ClassName(), thrown.Message())
	}

	_, err = in.Invoke(facade.DeclaredMethod("digits", "(Ltern/lang/String;)I"), vm.NewString("1x"))
	if !errors.As(err, &thrown) || thrown.ClassName() != "std.IllegalArgumentException" {
		t.Fatalf("digits(1x) error = %v, want std.IllegalArgumentException", err)
	}
	if thrown.Message() != "not a digit: x" {
		t.Errorf("message = %q", thrown.Message())
	}
}
