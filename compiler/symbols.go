package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/chazu/tern/artifact"
	"github.com/chazu/tern/classfile"
	"github.com/chazu/tern/vm"
)

// classInfo is what the checker knows about a class: declared in source,
// provided by the host, or loaded from a classpath artifact.
type classInfo struct {
	name    string
	super   string
	flags   classfile.ClassFlags
	fields  []*fieldInfo
	methods []*funcInfo // constructors are named <init>

	decl  *ClassDecl
	scope *fileScope
	ctor  *funcInfo // primary constructor of a source class
}

func (c *classInfo) isFacade() bool { return c.flags&classfile.ClassFacade != 0 }

func (c *classInfo) field(name string) *fieldInfo {
	for _, f := range c.fields {
		if f.name == name {
			return f
		}
	}
	return nil
}

// declared returns the methods of c (not inherited) called name.
func (c *classInfo) declared(name string) []*funcInfo {
	var out []*funcInfo
	for _, m := range c.methods {
		if m.name == name {
			out = append(out, m)
		}
	}
	return out
}

type fieldInfo struct {
	owner *classInfo
	name  string
	typ   Type // empty while an initializer type is pending
	final bool

	decl      *PropDecl
	inferring bool
}

type funcInfo struct {
	owner  *classInfo
	name   string
	params []Type
	result Type // typeInferred while an expression body type is pending
	static bool

	decl  *FunDecl
	scope *fileScope
	state checkState
	body  *bodyInfo
}

type checkState int

const (
	unchecked checkState = iota
	checking
	checked
)

func (f *funcInfo) desc() string {
	params := make([]string, len(f.params))
	for i, p := range f.params {
		params[i] = string(p)
	}
	return classfile.MethodDesc(string(f.result), params...)
}

func (f *funcInfo) paramKey() string {
	var sb strings.Builder
	for _, p := range f.params {
		sb.WriteString(string(p))
	}
	return sb.String()
}

func (f *funcInfo) String() string {
	params := make([]string, len(f.params))
	for i, p := range f.params {
		params[i] = p.String()
	}
	name := f.name
	if name == classfile.ConstructorName {
		name = classfile.SimpleName(f.owner.name)
	}
	s := name + "(" + strings.Join(params, ", ") + ")"
	if known(f.result) && f.result != TypeUnit && f.name != classfile.ConstructorName {
		s += ": " + f.result.String()
	}
	return s
}

// bodyInfo summarizes a checked function body for code generation.
type bodyInfo struct {
	maxLocals  int
	terminates bool
}

// fileScope holds the names a source file can see without qualification.
type fileScope struct {
	file         *File
	pkg          string
	classImports map[string]string   // simple name -> class
	funcImports  map[string][]string // simple name -> facade classes
	stars        []string            // packages imported with *, then the defaults
}

// classTable answers class lookups for the checker: classes of the unit
// being compiled first, then host classes, then classpath entries in order.
type classTable struct {
	source   map[string]*classInfo
	external map[string]*classInfo
	host     map[string]*classfile.Class
	arts     []artifact.Artifact
	artNames []map[string]bool
	packages map[string]bool
	loadErrs []Diagnostic
}

func newClassTable(classpath []string) (*classTable, error) {
	t := &classTable{
		source:   make(map[string]*classInfo),
		external: make(map[string]*classInfo),
		host:     make(map[string]*classfile.Class),
		packages: make(map[string]bool),
	}
	for _, c := range vm.HostClasses() {
		t.host[c.Name] = c
		t.packages[classfile.PackageOf(c.Name)] = true
	}
	for _, entry := range classpath {
		art, err := artifact.Open(entry)
		if err != nil {
			t.close()
			return nil, fmt.Errorf("classpath entry %s: %w", entry, err)
		}
		names, err := art.Names()
		if err != nil {
			art.Close()
			t.close()
			return nil, fmt.Errorf("classpath entry %s: %w", entry, err)
		}
		set := make(map[string]bool, len(names))
		for _, n := range names {
			set[n] = true
			t.packages[classfile.PackageOf(n)] = true
		}
		t.arts = append(t.arts, art)
		t.artNames = append(t.artNames, set)
	}
	return t, nil
}

func (t *classTable) close() {
	for _, a := range t.arts {
		a.Close()
	}
	t.arts = nil
}

func (t *classTable) addSource(c *classInfo) {
	t.source[c.name] = c
	t.packages[classfile.PackageOf(c.name)] = true
}

func (t *classTable) hasPackage(pkg string) bool { return t.packages[pkg] }

// lookup returns the class named name, or nil.
func (t *classTable) lookup(name string) *classInfo {
	if c, ok := t.source[name]; ok {
		return c
	}
	if c, ok := t.external[name]; ok {
		return c
	}
	cf := t.host[name]
	if cf == nil {
		for i, art := range t.arts {
			if !t.artNames[i][name] {
				continue
			}
			data, err := art.Load(name)
			if err == nil {
				cf, err = classfile.Unmarshal(data)
			}
			if err != nil {
				t.loadErrs = append(t.loadErrs, Diagnostic{Message: fmt.Sprintf("cannot load %s from %s: %v", name, art.Location(), err)})
				continue
			}
			break
		}
	}
	var c *classInfo
	if cf != nil {
		c = fromClassFile(cf)
	}
	t.external[name] = c
	return c
}

func fromClassFile(cf *classfile.Class) *classInfo {
	c := &classInfo{name: cf.Name, super: cf.Super, flags: cf.Flags}
	for _, f := range cf.Fields {
		c.fields = append(c.fields, &fieldInfo{owner: c, name: f.Name, typ: Type(f.Desc), final: f.Flags&classfile.FieldFinal != 0})
	}
	for _, m := range cf.Methods {
		params, ret, err := classfile.ParseMethodDesc(m.Desc)
		if err != nil {
			continue
		}
		fn := &funcInfo{owner: c, name: m.Name, result: Type(ret), static: m.IsStatic(), state: checked}
		for _, p := range params {
			fn.params = append(fn.params, Type(p))
		}
		c.methods = append(c.methods, fn)
	}
	return c
}

// superOf returns the superclass of c, or nil for the root.
func (t *classTable) superOf(c *classInfo) *classInfo {
	if c.super == "" {
		return nil
	}
	return t.lookup(c.super)
}

// isSubclass reports whether class sub is super or inherits from it.
func (t *classTable) isSubclass(sub, super string) bool {
	c := t.lookup(sub)
	for depth := 0; c != nil && depth < 256; depth++ {
		if c.name == super {
			return true
		}
		c = t.superOf(c)
	}
	return false
}

// findField looks name up in c and its superclasses.
func (t *classTable) findField(c *classInfo, name string) *fieldInfo {
	for depth := 0; c != nil && depth < 256; depth++ {
		if f := c.field(name); f != nil {
			return f
		}
		c = t.superOf(c)
	}
	return nil
}

// instanceMethods returns the instance methods called name visible on c,
// most derived first, with overridden ones removed.
func (t *classTable) instanceMethods(c *classInfo, name string) []*funcInfo {
	var out []*funcInfo
	seen := make(map[string]bool)
	for depth := 0; c != nil && depth < 256; depth++ {
		for _, m := range c.declared(name) {
			if m.static || seen[m.paramKey()] {
				continue
			}
			seen[m.paramKey()] = true
			out = append(out, m)
		}
		c = t.superOf(c)
	}
	return out
}

// commonSuper returns the nearest common superclass of a and b.
func (t *classTable) commonSuper(a, b string) string {
	var chain []string
	for c, depth := t.lookup(a), 0; c != nil && depth < 256; c, depth = t.superOf(c), depth+1 {
		chain = append(chain, c.name)
	}
	for c, depth := t.lookup(b), 0; c != nil && depth < 256; c, depth = t.superOf(c), depth+1 {
		if slices.Contains(chain, c.name) {
			return c.name
		}
	}
	return classfile.RootClass
}
