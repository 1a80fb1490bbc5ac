package harness_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/txtar"

	"github.com/chazu/tern/compiler"
	"github.com/chazu/tern/harness"
	"github.com/chazu/tern/loader"
	"github.com/chazu/tern/stdlib"
	"github.com/chazu/tern/unit"
	"github.com/chazu/tern/vm"
)

var runtimePath string

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "tern-runtime-")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	runtimePath, err = stdlib.LocateIn(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.RemoveAll(dir)
		os.Exit(1)
	}
	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

func locateRuntime() (string, error) { return runtimePath, nil }

func newHarness() *harness.Harness {
	h := harness.New(compiler.Backend{}, harness.LocatorFunc(locateRuntime))
	h.Orchestrator.Root = "testdata"
	return h
}

const digitSum = `package digits

fun digitSum(s: String): Int {
    var sum = 0
    for (c in s) sum += c - '0'
    return sum
}
`

func TestDigitSumOfText(t *testing.T) {
	h := newHarness()
	src := harness.Inline("digits.tn", digitSum).
		WithEntry(harness.Entry("digitSum"), "239").
		Expecting(harness.Returns(14))
	v := h.BlackBox(t, src)
	assert.Equal(t, harness.Invoked, v.Stage)
	assert.Equal(t, int32(14), v.Result.Value)
	assert.Empty(t, v.Diagnostic)
}

func TestSourceFromResourceRoot(t *testing.T) {
	h := newHarness()
	src := harness.File("digits.tn").
		WithEntry(harness.Entry("digitSum"), "9876").
		Expecting(harness.Returns(30))
	h.BlackBox(t, src)

	missing := harness.File("missing.tn").Expecting(harness.CompileOnly())
	v := h.Verify(missing)
	assert.Equal(t, harness.CompileFailed, v.Kind)
	assert.ErrorIs(t, v.Err, os.ErrNotExist)
}

func TestRuntimeIsInjected(t *testing.T) {
	h := newHarness()
	require.Zero(t, h.Classpath.Len())

	src := harness.Inline("banner.tn", `package banner

fun banner(n: Int): String = StringBuilder().append("<").append(repeat("-", n)).append(">").toString()
`).WithEntry(harness.Entry("banner"), 3).Expecting(harness.Returns("<--->"))
	h.BlackBox(t, src)
	assert.Zero(t, h.Classpath.Len(), "base classpath must not change")

	cp := h.Classpath.Clone()
	u, err := h.Orchestrator.Compile(src, cp)
	require.NoError(t, err)
	assert.True(t, cp.Contains(runtimePath))
	assert.True(t, cp.Frozen())
	assert.True(t, u.Sealed())
}

func TestRuntimeAlreadyOnClasspath(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.Classpath.Add(runtimePath))
	cp := h.Classpath.Clone()
	_, err := h.Orchestrator.Compile(harness.Inline("empty.tn", "package empty\n"), cp)
	require.NoError(t, err)
	assert.Equal(t, []string{runtimePath}, cp.Entries())
}

func TestCompileErrorProducesNoUnit(t *testing.T) {
	h := newHarness()
	src := harness.Inline("bad.tn", `package bad

fun f(): Int = "not a number"
`).WithEntry(harness.Entry("f")).Expecting(harness.Returns(1))

	v := h.Verify(src)
	require.Equal(t, harness.CompileFailed, v.Kind, v.String())
	assert.Equal(t, harness.Uncompiled, v.Stage)
	assert.Nil(t, v.Unit)

	var cerr *harness.CompileError
	require.ErrorAs(t, v.Err, &cerr)
	require.Len(t, cerr.Diagnostics, 1)
	assert.Contains(t, cerr.Diagnostics[0], "bad.tn:3:")
	assert.Contains(t, cerr.Diagnostics[0], "type mismatch")

	u, err := h.Orchestrator.Compile(src, h.Classpath.Clone())
	assert.Nil(t, u)
	assert.ErrorAs(t, err, &cerr)
}

func TestMissingEntryPoint(t *testing.T) {
	h := newHarness()
	src := harness.Inline("digits.tn", digitSum).
		WithEntry(harness.Entry("digitProduct"), "239").
		Expecting(harness.Returns(54))

	v := h.Verify(src)
	require.Equal(t, harness.LinkFailed, v.Kind, v.String())
	assert.Equal(t, harness.Compiled, v.Stage)

	var nf *harness.EntryPointNotFoundError
	require.ErrorAs(t, v.Err, &nf)
	assert.False(t, nf.Ambiguous())
	var cerr *harness.CompileError
	assert.False(t, errors.As(v.Err, &cerr))
	assert.Contains(t, v.Diagnostic, "digits.Namespace", "diagnostic shows the generated code")

	v = h.Verify(src.WithEntry(harness.Entry("digitSum").In("digits.Nowhere"), "1"))
	require.Equal(t, harness.LinkFailed, v.Kind)
	assert.ErrorAs(t, v.Err, &nf)
}

func TestAmbiguousEntryPoint(t *testing.T) {
	h := newHarness()
	src := harness.Inline("show.tn", `package show

fun show(x: Int): String = "Int $x"
fun show(x: String): String = "String $x"
`)
	v := h.Verify(src.WithEntry(harness.Entry("show"), 1).Expecting(harness.NoThrow()))
	require.Equal(t, harness.LinkFailed, v.Kind)
	var nf *harness.EntryPointNotFoundError
	require.ErrorAs(t, v.Err, &nf)
	assert.True(t, nf.Ambiguous())
	assert.Len(t, nf.Candidates, 2)

	h.BlackBox(t, src.WithEntry(harness.Entry("show").WithDesc("(I)Ltern/lang/String;"), 1).
		Expecting(harness.Returns("Int 1")))
	h.BlackBox(t, src.WithEntry(harness.Entry("show").WithDesc("(Ltern/lang/String;)Ltern/lang/String;"), "a").
		Expecting(harness.Returns("String a")))
}

func TestBoxConvention(t *testing.T) {
	h := newHarness()
	v := h.BlackBox(t, harness.Box("box.tn"))
	assert.Equal(t, "OK", v.Result.Value)

	v = h.Verify(harness.Box("box_fail.tn"))
	require.Equal(t, harness.Mismatched, v.Kind, v.String())
	assert.Contains(t, v.Reason, "fail: length 4")
}

func TestSoleFunctionIsEntry(t *testing.T) {
	h := newHarness()
	one := harness.Inline("one.tn", `package one

class Helper {
    fun twice(n: Int): Int = n * 2
}

fun run(n: Int): Int = Helper().twice(n)
`)
	v := h.BlackBox(t, one.WithEntry(harness.EntryPoint{}, 21).Expecting(harness.Returns(42)))
	assert.Equal(t, "one.Namespace.run(I)I", v.Result.Method)

	v = h.Verify(one.WithEntry(harness.EntryPoint{}).Expecting(harness.NoThrow()))
	require.Equal(t, harness.LinkFailed, v.Kind)
	var nf *harness.EntryPointNotFoundError
	require.ErrorAs(t, v.Err, &nf)

	two := harness.Inline("two.tn", "package two\n\nfun a(): Int = 1\nfun b(): Int = 2\n")
	v = h.Verify(two.WithEntry(harness.EntryPoint{}).Expecting(harness.Returns(1)))
	require.Equal(t, harness.LinkFailed, v.Kind)
	require.ErrorAs(t, v.Err, &nf)
	assert.True(t, nf.Ambiguous())
	assert.Equal(t, []string{"two.Namespace.a()I", "two.Namespace.b()I"}, nf.Candidates)

	none := harness.Inline("none.tn", "package none\n\nclass Empty\n")
	v = h.Verify(none.WithEntry(harness.EntryPoint{}).Expecting(harness.NoThrow()))
	require.Equal(t, harness.LinkFailed, v.Kind)
	require.ErrorAs(t, v.Err, &nf)
	assert.False(t, nf.Ambiguous())
}

func TestUnitsAreIsolated(t *testing.T) {
	ar, err := txtar.ParseFile("testdata/isolation.txtar")
	require.NoError(t, err)
	require.Len(t, ar.Files, 2)

	h := newHarness()
	want := map[string]int32{"a.tn": 1, "b.tn": 42}
	var sessions []*harness.Session
	for _, f := range ar.Files {
		u, err := h.Orchestrator.Compile(harness.Inline(f.Name, string(f.Data)), h.Classpath.Clone())
		require.NoError(t, err, f.Name)
		require.True(t, u.Has("shared.Helper"))

		s := harness.Load(u, harness.ResolverConfig{Providers: []loader.Provider{vm.HostProvider()}})
		sessions = append(sessions, s)

		res, err := s.Invoke(harness.Entry("run"))
		require.NoError(t, err)
		require.True(t, res.Succeeded())
		assert.Equal(t, want[f.Name], res.Value, f.Name)
	}

	a, err := sessions[0].Resolver.Resolve("shared.Helper")
	require.NoError(t, err)
	b, err := sessions[1].Resolver.Resolve("shared.Helper")
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Same(t, sessions[0].Resolver, a.Resolver())
	assert.Same(t, sessions[1].Resolver, b.Resolver())
	assert.Empty(t, a.Class.Fields)
	assert.Len(t, b.Class.Fields, 1)
}

func TestUnitShadowsProvider(t *testing.T) {
	h := newHarness()
	compile := func(text string) *unit.Store {
		u, err := h.Orchestrator.Compile(harness.Inline("version.tn", text), h.Classpath.Clone())
		require.NoError(t, err)
		return u
	}
	stale := compile("package version\n\nfun version(): Int = 1\n")
	fresh := compile("package version\n\nfun version(): Int = 2\n")

	staleClasses := make(map[string][]byte)
	for name := range stale.Names() {
		data, err := stale.Get(name)
		require.NoError(t, err)
		staleClasses[name] = data
	}
	s := harness.Load(fresh, harness.ResolverConfig{Providers: []loader.Provider{
		loader.NewMapProvider("stale", staleClasses),
		vm.HostProvider(),
	}})

	res, err := s.Invoke(harness.Entry("version"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), res.Value)

	rc, err := s.Resolver.Resolve("version.Namespace")
	require.NoError(t, err)
	assert.Equal(t, loader.OriginUnit, rc.Origin)
	assert.NoError(t, s.Resolver.CheckShadowing())
	require.NoError(t, s.LinkAll())
}

func TestResolutionIsIdempotent(t *testing.T) {
	h := newHarness()
	u, err := h.Orchestrator.Compile(harness.Inline("digits.tn", digitSum), h.Classpath.Clone())
	require.NoError(t, err)
	s := harness.Load(u, harness.ResolverConfig{Providers: []loader.Provider{vm.HostProvider()}})

	first, err := s.Resolver.Resolve("digits.Namespace")
	require.NoError(t, err)

	var g errgroup.Group
	got := make([]*loader.ResolvedClass, 16)
	for i := range got {
		g.Go(func() error {
			rc, err := s.Resolver.Resolve("digits.Namespace")
			got[i] = rc
			return err
		})
	}
	require.NoError(t, g.Wait())
	for _, rc := range got {
		assert.Same(t, first, rc)
	}

	host, err := s.Resolver.Resolve(vm.StringClass)
	require.NoError(t, err)
	assert.Equal(t, loader.OriginProvider, host.Origin)
	assert.Equal(t, vm.HostProviderName, host.Source)
}

func TestRunnerRun(t *testing.T) {
	h := newHarness()
	u, err := h.Orchestrator.Compile(harness.Inline("digits.tn", digitSum), h.Classpath.Clone())
	require.NoError(t, err)
	cfg := harness.ResolverConfig{Providers: []loader.Provider{vm.HostProvider()}}

	var r harness.Runner
	first, err := r.Run(u, harness.Entry("digitSum"), []any{"12"}, cfg)
	require.NoError(t, err)
	assert.True(t, first.Succeeded())
	assert.Equal(t, int32(3), first.Value)
	assert.Equal(t, "digits.Namespace.digitSum(Ltern/lang/String;)I", first.Method)

	second, err := r.Run(u, harness.Entry("digitSum"), []any{"12"}, cfg)
	require.NoError(t, err)
	assert.NotEqual(t, first.ResolverID, second.ResolverID, "each run gets a fresh resolver")

	_, err = r.Run(u, harness.Entry("digitSum"), nil, cfg)
	var nf *harness.EntryPointNotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestRoundTripIsDeterministic(t *testing.T) {
	h := newHarness()
	src := harness.Inline("digits.tn", digitSum).
		WithEntry(harness.Entry("digitSum"), "4096").
		Expecting(harness.Returns(19))

	u1, err := h.Orchestrator.Compile(src, h.Classpath.Clone())
	require.NoError(t, err)
	u2, err := h.Orchestrator.Compile(src, h.Classpath.Clone())
	require.NoError(t, err)
	require.Equal(t, u1.Len(), u2.Len())
	for name := range u1.Names() {
		b1, _ := u1.Get(name)
		b2, err := u2.Get(name)
		require.NoError(t, err)
		assert.Equal(t, b1, b2, name)
	}

	other := harness.Inline("other.tn", "package other\n\nfun seven(): Int = 7\n").
		WithEntry(harness.Entry("seven")).
		Expecting(harness.Returns(7))
	var batch []harness.SourceUnit
	for range 6 {
		batch = append(batch, src, other)
	}
	verdicts, err := h.RunAll(context.Background(), batch)
	require.NoError(t, err)
	for i, v := range verdicts {
		assert.True(t, v.Passed(), "case %d: %s", i, v)
	}
}

func TestArgumentMarshalling(t *testing.T) {
	h := newHarness()
	src := harness.Inline("args.tn", `package args

fun describe(i: Int, l: Long, d: Double, b: Boolean, c: Char, s: String): String = "$i $l $d $b $c $s"

fun nothing(s: String): Boolean = s == null

fun initial(s: String): Char = s[0]
`)
	h.BlackBox(t, src.WithEntry(harness.Entry("describe"), 1, int64(2), 2.5, true, 'x', "ok").
		Expecting(harness.Returns("1 2 2.5 true x ok")))
	h.BlackBox(t, src.WithEntry(harness.Entry("describe"), int32(-1), 3, float32(0.5), false, "é", "").
		Expecting(harness.Returns("-1 3 0.5 false é ")))
	h.BlackBox(t, src.WithEntry(harness.Entry("nothing"), nil).Expecting(harness.Returns(true)))
	h.BlackBox(t, src.WithEntry(harness.Entry("initial"), "zed").Expecting(harness.Returns('z')))

	v := h.Verify(src.WithEntry(harness.Entry("nothing"), 5).Expecting(harness.NoThrow()))
	require.Equal(t, harness.LinkFailed, v.Kind)
	var aerr *harness.ArgumentError
	require.ErrorAs(t, v.Err, &aerr)
	assert.Equal(t, 0, aerr.Index)

	v = h.Verify(src.WithEntry(harness.Entry("describe"), 1<<40, 2, 2.5, true, 'x', "ok").Expecting(harness.NoThrow()))
	assert.Equal(t, harness.LinkFailed, v.Kind)
}

const failing = `package failing

class Oops(val code: Int) : Exception("oops $code")

fun fail(n: Int): Int {
    if (n > 2) throw Oops(n)
    return n
}

fun div(a: Int, b: Int): Int = a / b
`

func TestExpectedFailures(t *testing.T) {
	h := newHarness()
	src := harness.Inline("failing.tn", failing)

	v := h.BlackBox(t, src.WithEntry(harness.Entry("fail"), 5).Expecting(harness.Throws("failing.Oops", "oops 5")))
	require.NotNil(t, v.Result.Failure)
	assert.Equal(t, harness.FailureThrown, v.Result.Failure.Kind)
	assert.Equal(t, []string{"failing.Namespace.fail(failing.tn:6)"}, v.Result.Failure.Trace)

	h.BlackBox(t, src.WithEntry(harness.Entry("fail"), 5).Expecting(harness.Throws(vm.ExceptionClass, "")))
	h.BlackBox(t, src.WithEntry(harness.Entry("fail"), 1).Expecting(harness.Returns(1)))

	v = h.Verify(src.WithEntry(harness.Entry("fail"), 1).Expecting(harness.Throws("failing.Oops", "")))
	assert.Equal(t, harness.Mismatched, v.Kind)

	v = h.Verify(src.WithEntry(harness.Entry("fail"), 7).Expecting(harness.Returns(7)))
	assert.Equal(t, harness.RuntimeFailed, v.Kind)
	assert.False(t, v.Fatal)
	assert.Contains(t, v.Diagnostic, "failing.Oops: oops 7")
	var pf *harness.ProgramFailure
	assert.ErrorAs(t, v.Err, &pf)
}

func TestHostErrorPolicy(t *testing.T) {
	src := harness.Inline("failing.tn", failing).
		WithEntry(harness.Entry("div"), 1, 0).
		Expecting(harness.Throws(vm.ArithmeticError, "by zero"))

	h := newHarness()
	v := h.BlackBox(t, src)
	assert.Equal(t, harness.FailureHost, v.Result.Failure.Kind)

	h.HostErrors = harness.HostErrorsFatal
	v = h.Verify(src)
	require.Equal(t, harness.RuntimeFailed, v.Kind)
	assert.True(t, v.Fatal)
	assert.Nil(t, v.Result)
	var pf *harness.ProgramFailure
	require.ErrorAs(t, v.Err, &pf)
	assert.Equal(t, vm.ArithmeticError, pf.Failure.Class)
}

func TestCompileOnly(t *testing.T) {
	h := newHarness()
	v := h.BlackBox(t, harness.Inline("shapes.tn", `package shapes

open class Shape {
    open fun area(): Double = 0.0
}

class Unit2 : Shape() {
    override fun area(): Double = 1.0
}
`).Expecting(harness.CompileOnly()))
	assert.Equal(t, harness.Loaded, v.Stage)
	assert.Nil(t, v.Result)
}

func TestOutputIsCapturedPerInvocation(t *testing.T) {
	h := newHarness()
	var sink strings.Builder
	h.Stdout = &sink
	src := harness.Inline("hello.tn", `package hello

fun greet(name: String) {
    println("Hello, $name!")
}
`)
	h.BlackBox(t, src.WithEntry(harness.Entry("greet"), "Ada").Expecting(harness.NoThrow().Printing("Hello, Ada!\n")))
	v := h.Verify(src.WithEntry(harness.Entry("greet"), "Bob").Expecting(harness.NoThrow().Printing("Hello, Ada!\n")))
	assert.Equal(t, harness.Mismatched, v.Kind)
	assert.Equal(t, "Hello, Ada!\nHello, Bob!\n", sink.String())
}

func TestConcurrentOutputSharesStdout(t *testing.T) {
	h := newHarness()
	var sink bytes.Buffer
	h.Stdout = &sink
	src := harness.Inline("echo.tn", `package echo

fun echo(n: Int) {
    println("unit $n")
}
`)
	var batch []harness.SourceUnit
	for i := range 16 {
		batch = append(batch, src.WithEntry(harness.Entry("echo"), i).
			Expecting(harness.NoThrow().Printing(fmt.Sprintf("unit %d\n", i))))
	}
	verdicts, err := h.RunAll(context.Background(), batch)
	require.NoError(t, err)
	for i, v := range verdicts {
		assert.True(t, v.Passed(), "case %d: %s", i, v)
	}
	out := sink.String()
	assert.Equal(t, 16, strings.Count(out, "\n"))
	for i := range 16 {
		assert.Contains(t, out, fmt.Sprintf("unit %d\n", i))
	}
}

func TestPrograms(t *testing.T) {
	ar, err := txtar.ParseFile("testdata/programs.txtar")
	require.NoError(t, err)
	want := make(map[string]string)
	for _, f := range ar.Files {
		if name, ok := strings.CutSuffix(f.Name, ".out"); ok {
			want[name] = string(f.Data)
		}
	}

	h := newHarness()
	var srcs []harness.SourceUnit
	for _, f := range ar.Files {
		name, ok := strings.CutSuffix(f.Name, ".tn")
		if !ok {
			continue
		}
		out, ok := want[name]
		require.True(t, ok, "no %s.out", name)
		srcs = append(srcs, harness.Inline(f.Name, string(f.Data)).
			WithEntry(harness.Entry("main")).
			Expecting(harness.NoThrow().Printing(out)))
	}
	require.NotEmpty(t, srcs)

	verdicts, err := h.RunAll(context.Background(), srcs)
	require.NoError(t, err)
	for _, v := range verdicts {
		t.Run(filepath.Base(v.Source), func(t *testing.T) {
			if !v.Passed() {
				t.Fatal(v.Diagnostic)
			}
		})
	}
}
