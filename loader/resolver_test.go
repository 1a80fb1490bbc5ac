package loader

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/tern/artifact"
	"github.com/chazu/tern/classfile"
	"github.com/chazu/tern/unit"
)

// classBytes encodes a class whose answer() returns value.
func classBytes(t *testing.T, name string, value int32) []byte {
	t.Helper()
	c := classfile.NewClass(name)
	m := c.AddMethod("answer", classfile.MethodDesc(classfile.DescInt), classfile.MethodStatic)
	m.EmitI32(classfile.OpIConst, value)
	m.Emit(classfile.OpReturn)
	data, err := classfile.Marshal(c)
	require.NoError(t, err)
	return data
}

func answer(t *testing.T, rc *ResolvedClass) int32 {
	t.Helper()
	m := rc.Class.Method("answer", "()I")
	require.NotNil(t, m)
	return int32(uint32(m.Code[1])<<24 | uint32(m.Code[2])<<16 | uint32(m.Code[3])<<8 | uint32(m.Code[4]))
}

func storeWith(t *testing.T, classes map[string]int32) *unit.Store {
	t.Helper()
	s := unit.NewStore()
	for name, v := range classes {
		require.NoError(t, s.Put(name, classBytes(t, name, v)))
	}
	s.Seal()
	return s
}

func TestResolveUnitShadowsProviders(t *testing.T) {
	store := storeWith(t, map[string]int32{"demo.Helper": 1})
	lib := NewMapProvider("lib", map[string][]byte{
		"demo.Helper": classBytes(t, "demo.Helper", 2),
		"std.Pair":    classBytes(t, "std.Pair", 3),
	})
	r := New(store, lib)

	helper, err := r.Resolve("demo.Helper")
	require.NoError(t, err)
	assert.Equal(t, OriginUnit, helper.Origin)
	assert.Equal(t, int32(1), answer(t, helper))
	assert.Same(t, r, helper.Resolver())

	pair, err := r.Resolve("std.Pair")
	require.NoError(t, err)
	assert.Equal(t, OriginProvider, pair.Origin)
	assert.Equal(t, "lib", pair.Source)

	assert.NoError(t, r.CheckShadowing())
}

func TestResolveProvidersInOrder(t *testing.T) {
	first := NewMapProvider("first", map[string][]byte{"A": classBytes(t, "A", 1)})
	second := NewMapProvider("second", map[string][]byte{
		"A": classBytes(t, "A", 2),
		"B": classBytes(t, "B", 3),
	})
	r := New(nil, first, second)

	a, err := r.Resolve("A")
	require.NoError(t, err)
	assert.Equal(t, "first", a.Source)
	assert.Equal(t, int32(1), answer(t, a))

	b, err := r.Resolve("B")
	require.NoError(t, err)
	assert.Equal(t, "second", b.Source)
}

func TestResolveIsIdempotent(t *testing.T) {
	r := New(storeWith(t, map[string]int32{"A": 7}))

	var wg sync.WaitGroup
	results := make([]*ResolvedClass, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rc, err := r.Resolve("A")
			assert.NoError(t, err)
			results[i] = rc
		}(i)
	}
	wg.Wait()
	for _, rc := range results {
		assert.Same(t, results[0], rc)
	}
	assert.Len(t, r.Defined(), 1)
}

func TestResolveNotFound(t *testing.T) {
	r := New(unit.NewStore(), NewMapProvider("lib", nil))
	_, err := r.Resolve("nope.Missing")

	var cnf *ClassNotFoundError
	require.ErrorAs(t, err, &cnf)
	assert.Equal(t, []string{"unit", "lib"}, cnf.Searched)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveFormatErrors(t *testing.T) {
	lib := NewMapProvider("lib", map[string][]byte{
		"Garbage": []byte("not a class"),
		"Renamed": classBytes(t, "Other", 1),
	})
	r := New(nil, lib)

	for _, name := range []string{"Garbage", "Renamed"} {
		_, err := r.Resolve(name)
		var cfe *ClassFormatError
		assert.ErrorAs(t, err, &cfe, name)
	}
	assert.Empty(t, r.Defined())
}

type failingProvider struct{}

func (failingProvider) Name() string { return "broken" }
func (failingProvider) LoadByName(string) ([]byte, error) {
	return nil, errors.New("disk on fire")
}

func TestResolveProviderFailureIsNotNotFound(t *testing.T) {
	r := New(nil, failingProvider{}, NewMapProvider("lib", map[string][]byte{"A": classBytes(t, "A", 1)}))
	_, err := r.Resolve("A")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestArtifactProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib"+artifact.ArchiveExt)
	require.NoError(t, artifact.Write(path, storeWith(t, map[string]int32{"std.Pair": 5})))

	p := NewArtifactProvider(path)
	defer p.Close()
	names, err := p.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"std.Pair"}, names)

	r := New(nil, p)
	rc, err := r.Resolve("std.Pair")
	require.NoError(t, err)
	assert.Equal(t, int32(5), answer(t, rc))

	_, err = p.LoadByName("std.Missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreProviderServesAnotherUnit(t *testing.T) {
	older := storeWith(t, map[string]int32{"demo.Helper": 1, "demo.Util": 2})
	newer := storeWith(t, map[string]int32{"demo.Helper": 10})
	r := New(newer, NewStoreProvider("older", older))

	helper, err := r.Resolve("demo.Helper")
	require.NoError(t, err)
	assert.Equal(t, int32(10), answer(t, helper))

	util, err := r.Resolve("demo.Util")
	require.NoError(t, err)
	assert.Equal(t, "older", util.Source)
}
