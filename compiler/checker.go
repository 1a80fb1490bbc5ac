package compiler

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/chazu/tern/classfile"
	"github.com/chazu/tern/vm"
)

// RuntimePackage is the package of the runtime library. It is imported by
// default whenever it is on the classpath.
const RuntimePackage = "std"

// ---------------------------------------------------------------------------
// Checker results
// ---------------------------------------------------------------------------

// info records what the checker resolved, for the code generator.
type info struct {
	types      map[Expr]Type
	idents     map[*Ident]*varRef
	members    map[*MemberExpr]*memberRef
	calls      map[*CallExpr]*callRef
	locals     map[Node]*localVar
	forSlots   map[*ForStmt][2]int
	terminates map[Stmt]bool
	superCalls map[*classInfo]*funcInfo
}

func newInfo() *info {
	return &info{
		types:      make(map[Expr]Type),
		idents:     make(map[*Ident]*varRef),
		members:    make(map[*MemberExpr]*memberRef),
		calls:      make(map[*CallExpr]*callRef),
		locals:     make(map[Node]*localVar),
		forSlots:   make(map[*ForStmt][2]int),
		terminates: make(map[Stmt]bool),
		superCalls: make(map[*classInfo]*funcInfo),
	}
}

type localVar struct {
	name    string
	typ     Type
	slot    int
	mutable bool
}

// varRef is what a bare identifier denotes: a local or a property of this.
type varRef struct {
	local *localVar
	field *fieldInfo
}

type memberRef struct {
	field     *fieldInfo
	intrinsic string // "length" of a String, "code" of a Char
}

type callKind int

const (
	callStatic callKind = iota
	callVirtual
	callCtor
	callConvert
	callStringify
)

type callRef struct {
	kind         callKind
	fn           *funcInfo
	implicitThis bool
	to           Type // target of callConvert
}

// ---------------------------------------------------------------------------
// Checker
// ---------------------------------------------------------------------------

type loopCtx struct {
	broken bool
}

// funcCtx is the state of the body being checked.
type funcCtx struct {
	cls    *classInfo // nil in static code
	result Type       // typeInferred while an expression body is inferred
	inCtor bool
	scopes []map[string]*localVar
	marks  []int
	next   int
	max    int
	loops  []*loopCtx
	nested int // > 0 while operands of an enclosing expression are on the stack
}

type checker struct {
	table   *classTable
	info    *info
	errors  []Diagnostic
	classes []*classInfo // source classes and facades, in declaration order
	funcs   []*funcInfo
	scope   *fileScope
	ctx     *funcCtx
}

// check type checks files against table.
func check(files []*File, table *classTable) (*info, []*classInfo, []Diagnostic) {
	c := &checker{table: table, info: newInfo()}
	scopes := make([]*fileScope, len(files))
	for i, f := range files {
		scopes[i] = c.declare(f)
	}
	for _, s := range scopes {
		c.resolveImports(s)
	}
	for _, ci := range c.classes {
		if ci.decl != nil {
			c.resolveHeader(ci)
		}
	}
	for _, fn := range c.funcs {
		if fn.static {
			c.resolveSignature(fn)
		}
	}
	c.checkInheritance()
	c.checkDuplicates()
	for _, fn := range c.funcs {
		c.checkFunc(fn)
	}
	for _, ci := range c.classes {
		if ci.decl != nil {
			c.checkCtor(ci)
		}
	}
	c.checkOverrides()

	diags := append(c.errors, table.loadErrs...)
	return c.info, c.classes, dedupe(diags)
}

func dedupe(diags []Diagnostic) []Diagnostic {
	slices.SortStableFunc(diags, func(a, b Diagnostic) int {
		return cmp.Or(
			cmp.Compare(a.File, b.File),
			cmp.Compare(a.Pos.Line, b.Pos.Line),
			cmp.Compare(a.Pos.Column, b.Pos.Column),
		)
	})
	return slices.Compact(diags)
}

func (c *checker) errorf(n Node, format string, args ...any) {
	d := Diagnostic{Message: fmt.Sprintf(format, args...)}
	if c.scope != nil {
		d.File = c.scope.file.Name
	}
	if n != nil {
		d.Pos = n.Span().Start
	}
	c.errors = append(c.errors, d)
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

func (c *checker) declare(f *File) *fileScope {
	s := &fileScope{
		file:         f,
		pkg:          f.Package,
		classImports: make(map[string]string),
		funcImports:  make(map[string][]string),
	}
	c.scope = s
	for _, cd := range f.Classes {
		if cd.Name == classfile.FacadeName {
			c.errorf(cd, "class name %s is reserved", cd.Name)
			continue
		}
		name := classfile.Qualify(f.Package, cd.Name)
		if _, dup := c.table.source[name]; dup {
			c.errorf(cd, "redeclaration: class %s", cd.Name)
			continue
		}
		ci := &classInfo{name: name, super: classfile.RootClass, decl: cd, scope: s}
		c.table.addSource(ci)
		c.classes = append(c.classes, ci)
	}
	for _, fd := range f.Funs {
		fc := c.facade(f.Package)
		fn := &funcInfo{owner: fc, name: fd.Name, static: true, decl: fd, scope: s}
		fc.methods = append(fc.methods, fn)
		c.funcs = append(c.funcs, fn)
	}
	return s
}

// facade returns the source facade of pkg, creating it on first use.
func (c *checker) facade(pkg string) *classInfo {
	name := classfile.Qualify(pkg, classfile.FacadeName)
	if fc, ok := c.table.source[name]; ok {
		return fc
	}
	fc := &classInfo{name: name, super: classfile.RootClass, flags: classfile.ClassFacade}
	c.table.addSource(fc)
	c.classes = append(c.classes, fc)
	return fc
}

func (c *checker) resolveImports(s *fileScope) {
	c.scope = s
	for _, imp := range s.file.Imports {
		if imp.Star {
			if !c.table.hasPackage(imp.Path) {
				c.errorf(imp, "unresolved reference: %s", imp.Path)
				continue
			}
			s.stars = appendUnique(s.stars, imp.Path)
			continue
		}
		simple := classfile.SimpleName(imp.Path)
		if ci := c.table.lookup(imp.Path); ci != nil && !ci.isFacade() {
			s.classImports[simple] = imp.Path
			continue
		}
		facade := classfile.Qualify(classfile.PackageOf(imp.Path), classfile.FacadeName)
		if fc := c.table.lookup(facade); fc != nil && len(fc.declared(simple)) > 0 {
			s.funcImports[simple] = appendUnique(s.funcImports[simple], facade)
			continue
		}
		c.errorf(imp, "unresolved reference: %s", imp.Path)
	}
	s.stars = appendUnique(s.stars, vm.HostPackage)
	if c.table.hasPackage(RuntimePackage) {
		s.stars = appendUnique(s.stars, RuntimePackage)
	}
}

func appendUnique(list []string, s string) []string {
	if slices.Contains(list, s) {
		return list
	}
	return append(list, s)
}

// resolveClassName resolves a class name as written in the current file.
func (c *checker) resolveClassName(name string) string {
	isClass := func(q string) bool {
		ci := c.table.lookup(q)
		return ci != nil && !ci.isFacade()
	}
	if strings.Contains(name, ".") {
		if isClass(name) {
			return name
		}
		return ""
	}
	if q, ok := c.scope.classImports[name]; ok {
		return q
	}
	if q := classfile.Qualify(c.scope.pkg, name); isClass(q) {
		return q
	}
	for _, p := range c.scope.stars {
		if q := classfile.Qualify(p, name); isClass(q) {
			return q
		}
	}
	return ""
}

func (c *checker) resolveType(ref *TypeRef) Type {
	if ref == nil {
		return typeInvalid
	}
	if t, ok := builtinTypes[ref.Name]; ok {
		if ref.Nullable {
			c.errorf(ref, "nullable %s is not supported", ref.Name)
		}
		return t
	}
	name := c.resolveClassName(ref.Name)
	if name == "" {
		c.errorf(ref, "unresolved reference: %s", ref.Name)
		return typeInvalid
	}
	return ClassType(name)
}

func (c *checker) paramType(p *Param) Type {
	t := c.resolveType(p.Type)
	if t == TypeUnit {
		c.errorf(p, "parameter %s cannot have type Unit", p.Name)
		return typeInvalid
	}
	return t
}

func (c *checker) resolveHeader(ci *classInfo) {
	c.scope = ci.scope
	d := ci.decl
	if d.Super != nil {
		t := c.resolveType(d.Super)
		switch {
		case t == typeInvalid:
		case !t.IsRef():
			c.errorf(d.Super, "%s cannot be a supertype", t)
		case t == TypeString:
			c.errorf(d.Super, "cannot inherit from final class %s", t)
		default:
			ci.super = t.ClassName()
		}
	}
	ctor := &funcInfo{owner: ci, name: classfile.ConstructorName, result: TypeUnit, scope: ci.scope, state: checked}
	for _, p := range d.Params {
		pt := c.paramType(p)
		ctor.params = append(ctor.params, pt)
		if p.Prop == PropNone {
			continue
		}
		if ci.field(p.Name) != nil {
			c.errorf(p, "conflicting declarations: %s", p.Name)
			continue
		}
		ci.fields = append(ci.fields, &fieldInfo{owner: ci, name: p.Name, typ: pt, final: p.Prop == PropVal})
	}
	ci.ctor = ctor
	ci.methods = append(ci.methods, ctor)

	for _, m := range d.Members {
		switch m := m.(type) {
		case *PropDecl:
			if ci.field(m.Name) != nil {
				c.errorf(m, "conflicting declarations: %s", m.Name)
				continue
			}
			f := &fieldInfo{owner: ci, name: m.Name, final: !m.Mutable, decl: m}
			if m.Type != nil {
				f.typ = c.resolveType(m.Type)
				if f.typ == TypeUnit {
					c.errorf(m.Type, "property %s cannot have type Unit", m.Name)
					f.typ = typeInvalid
				}
			} else if m.Init == nil {
				f.typ = typeInvalid
			}
			ci.fields = append(ci.fields, f)
		case *FunDecl:
			fn := &funcInfo{owner: ci, name: m.Name, decl: m, scope: ci.scope}
			c.resolveSignature(fn)
			ci.methods = append(ci.methods, fn)
			c.funcs = append(c.funcs, fn)
		}
	}
}

func (c *checker) resolveSignature(fn *funcInfo) {
	c.scope = fn.scope
	d := fn.decl
	for _, p := range d.Params {
		fn.params = append(fn.params, c.paramType(p))
	}
	switch {
	case d.Result != nil:
		fn.result = c.resolveType(d.Result)
	case d.Body != nil:
		fn.result = TypeUnit
	default:
		fn.result = typeInferred
	}
}

func (c *checker) checkInheritance() {
	for _, ci := range c.classes {
		if ci.decl == nil {
			continue
		}
		c.scope = ci.scope
		seen := map[string]bool{ci.name: true}
		for s := c.table.lookup(ci.super); s != nil; s = c.table.superOf(s) {
			if seen[s.name] {
				c.errorf(ci.decl, "cyclic inheritance involving %s", classfile.SimpleName(ci.name))
				ci.super = classfile.RootClass
				break
			}
			seen[s.name] = true
		}
		sup := c.table.lookup(ci.super)
		if sup == nil {
			continue
		}
		if sup.isFacade() {
			c.errorf(ci.decl, "cannot inherit from %s", sup.name)
			ci.super = classfile.RootClass
			continue
		}
		for _, f := range ci.fields {
			if c.table.findField(sup, f.name) != nil {
				c.errorf(ci.decl, "property %s hides a property of %s", f.name, sup.name)
			}
		}
	}
}

func (c *checker) checkDuplicates() {
	for _, ci := range c.classes {
		seen := make(map[string]bool)
		for _, m := range ci.methods {
			key := m.name + "(" + m.paramKey() + ")"
			if seen[key] && m.decl != nil {
				c.scope = m.scope
				c.errorf(m.decl, "conflicting overloads: %s", m)
			}
			seen[key] = true
		}
	}
}

func (c *checker) checkOverrides() {
	for _, ci := range c.classes {
		if ci.decl == nil {
			continue
		}
		c.scope = ci.scope
		sup := c.table.superOf(ci)
		for _, m := range ci.methods {
			if m.decl == nil {
				continue
			}
			var overridden *funcInfo
			if sup != nil {
				for _, cand := range c.table.instanceMethods(sup, m.name) {
					if cand.paramKey() == m.paramKey() {
						overridden = cand
						break
					}
				}
			}
			switch {
			case overridden != nil && !m.decl.Override:
				c.errorf(m.decl, "%s hides member of supertype %s and needs the override modifier", m.name, overridden.owner.name)
			case overridden == nil && m.decl.Override:
				c.errorf(m.decl, "%s overrides nothing", m.name)
			case overridden != nil && known(m.result) && known(overridden.result) &&
				m.result != overridden.result:
				c.errorf(m.decl, "return type of %s must be %s as in the overridden member", m.name, overridden.result)
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Bodies
// ---------------------------------------------------------------------------

// enter starts checking a body. this occupies slot 0 when cls is set.
func (c *checker) enter(cls *classInfo, scope *fileScope, result Type) (restore func()) {
	savedCtx, savedScope := c.ctx, c.scope
	ctx := &funcCtx{cls: cls, result: result, scopes: []map[string]*localVar{{}}}
	if cls != nil {
		ctx.next, ctx.max = 1, 1
	}
	c.ctx, c.scope = ctx, scope
	return func() { c.ctx, c.scope = savedCtx, savedScope }
}

func (c *checker) enterCtor(ci *classInfo) (restore func()) {
	restore = c.enter(ci, ci.scope, TypeUnit)
	c.ctx.inCtor = true
	for i, p := range ci.decl.Params {
		c.declareLocal(p, p.Name, ci.ctor.params[i], false)
	}
	return restore
}

func (c *checker) pushScope() {
	c.ctx.scopes = append(c.ctx.scopes, map[string]*localVar{})
	c.ctx.marks = append(c.ctx.marks, c.ctx.next)
}

func (c *checker) popScope() {
	n := len(c.ctx.scopes)
	c.ctx.scopes = c.ctx.scopes[:n-1]
	c.ctx.next = c.ctx.marks[n-2]
	c.ctx.marks = c.ctx.marks[:n-2]
}

func (c *checker) hiddenSlot() int {
	slot := c.ctx.next
	c.ctx.next++
	c.ctx.max = max(c.ctx.max, c.ctx.next)
	return slot
}

func (c *checker) declareLocal(n Node, name string, typ Type, mutable bool) *localVar {
	top := c.ctx.scopes[len(c.ctx.scopes)-1]
	if _, dup := top[name]; dup {
		c.errorf(n, "conflicting declarations: %s", name)
	}
	lv := &localVar{name: name, typ: typ, slot: c.hiddenSlot(), mutable: mutable}
	top[name] = lv
	if n != nil {
		c.info.locals[n] = lv
	}
	return lv
}

func (c *checker) lookupLocal(name string) *localVar {
	for i := len(c.ctx.scopes) - 1; i >= 0; i-- {
		if lv, ok := c.ctx.scopes[i][name]; ok {
			return lv
		}
	}
	return nil
}

func (c *checker) checkFunc(fn *funcInfo) {
	if fn.state != unchecked {
		return
	}
	fn.state = checking
	d := fn.decl
	var cls *classInfo
	if !fn.static {
		cls = fn.owner
	}
	restore := c.enter(cls, fn.scope, fn.result)
	defer restore()

	if fn.static && d.Override {
		c.errorf(d, "modifier override is not applicable to a top-level function")
	}
	for i, p := range d.Params {
		c.declareLocal(p, p.Name, fn.params[i], false)
	}
	terminates := true
	if d.ExprBody != nil {
		t := c.expr(d.ExprBody)
		switch {
		case fn.result == typeInferred:
			fn.result = inferredResult(t)
		case fn.result != TypeUnit:
			c.expectAssignable(d.ExprBody, t, fn.result)
		}
	} else {
		terminates = c.block(d.Body)
		if !terminates && fn.result != TypeUnit && fn.result != typeInvalid {
			c.errorAt(d.Body.Span().End, "missing return in function %s returning %s", fn.name, fn.result)
		}
	}
	fn.body = &bodyInfo{maxLocals: c.ctx.max, terminates: terminates}
	fn.state = checked
}

func inferredResult(t Type) Type {
	switch t {
	case TypeNull:
		return TypeAny
	case TypeNothing:
		return TypeUnit
	}
	return t
}

func (c *checker) errorAt(pos Position, format string, args ...any) {
	d := Diagnostic{File: c.scope.file.Name, Pos: pos, Message: fmt.Sprintf(format, args...)}
	c.errors = append(c.errors, d)
}

// resultType returns the result type of fn, inferring an expression body
// on demand.
func (c *checker) resultType(fn *funcInfo, at Node) Type {
	if fn.result != typeInferred {
		return fn.result
	}
	if fn.state == checking {
		c.errorf(at, "cannot infer the type of %s recursively; declare its return type", fn.name)
		return typeInvalid
	}
	c.checkFunc(fn)
	return fn.result
}

// fieldType returns the type of f, inferring it from the initializer on
// demand.
func (c *checker) fieldType(f *fieldInfo, at Node) Type {
	if f.typ != "" || f.decl == nil {
		return f.typ
	}
	if f.inferring {
		c.errorf(at, "cannot infer the type of property %s recursively; declare its type", f.name)
		return typeInvalid
	}
	f.inferring = true
	restore := c.enterCtor(f.owner)
	t := c.expr(f.decl.Init)
	c.inferField(f, t)
	restore()
	f.inferring = false
	return f.typ
}

func (c *checker) inferField(f *fieldInfo, t Type) {
	if f.typ != "" {
		return
	}
	switch t {
	case TypeNull:
		c.errorf(f.decl, "cannot infer the type of property %s from null", f.name)
		t = typeInvalid
	case TypeUnit, TypeNothing:
		c.errorf(f.decl, "property %s cannot have type %s", f.name, t)
		t = typeInvalid
	}
	f.typ = t
}

func (c *checker) checkCtor(ci *classInfo) {
	restore := c.enterCtor(ci)
	defer restore()
	d := ci.decl

	args := c.args(d.SuperArgs)
	if sup := c.table.lookup(ci.super); sup != nil && !sup.isFacade() {
		fn := c.pickOverload(d, "constructor of "+sup.name, sup.declared(classfile.ConstructorName), args)
		if fn != nil {
			c.info.superCalls[ci] = fn
		}
	}
	for _, m := range d.Members {
		switch m := m.(type) {
		case *PropDecl:
			if m.Init == nil {
				continue
			}
			t := c.expr(m.Init)
			f := ci.field(m.Name)
			if f == nil || f.decl != m {
				continue
			}
			if f.typ == "" {
				c.inferField(f, t)
			} else {
				c.expectAssignable(m.Init, t, f.typ)
			}
		case *InitBlock:
			c.block(m.Body)
		}
	}
	ci.ctor.body = &bodyInfo{maxLocals: c.ctx.max}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// block checks b in a new scope and reports whether it never completes
// normally.
func (c *checker) block(b *Block) bool {
	c.pushScope()
	defer c.popScope()
	term := c.stmts(b.Stmts)
	if term {
		c.info.terminates[b] = true
	}
	return term
}

func (c *checker) stmts(list []Stmt) bool {
	terminated := false
	for _, s := range list {
		if c.stmt(s) {
			terminated = true
		}
	}
	return terminated
}

func (c *checker) stmt(s Stmt) bool {
	term := c.stmtTerm(s)
	if term {
		c.info.terminates[s] = true
	}
	return term
}

func (c *checker) stmtTerm(s Stmt) bool {
	switch s := s.(type) {
	case *Block:
		return c.block(s)
	case *ExprStmt:
		return c.exprStmt(s.Expr) == TypeNothing
	case *VarDecl:
		c.varDecl(s)
	case *AssignStmt:
		c.assign(s)
	case *IncDecStmt:
		t := c.assignTarget(s.Target)
		if t != typeInvalid && !t.IsNumeric() && t != TypeChar {
			c.errorf(s, "operator %s is not applicable to %s", s.Op, t)
		}
	case *WhileStmt:
		return c.while(s)
	case *ForStmt:
		c.forStmt(s)
	case *ReturnStmt:
		c.returnStmt(s)
		return true
	case *ThrowStmt:
		t := c.expr(s.Value)
		if t != typeInvalid && t != TypeNothing && !(t.IsRef() && c.table.isSubclass(t.ClassName(), vm.ExceptionClass)) {
			c.errorf(s.Value, "type mismatch: %s is not an Exception", t)
		}
		return true
	case *BranchStmt:
		if len(c.ctx.loops) == 0 {
			c.errorf(s, "%s is only allowed inside a loop", s.Tok)
		} else if s.Tok == TokenBreak {
			c.ctx.loops[len(c.ctx.loops)-1].broken = true
		}
		return true
	default:
		c.errorf(s, "unsupported statement")
	}
	return false
}

// exprStmt checks an expression whose value is discarded.
func (c *checker) exprStmt(e Expr) Type {
	var t Type
	switch e := e.(type) {
	case *IfExpr:
		t = c.ifStmt(e)
	case *TryExpr:
		t = c.tryStmt(e)
	default:
		return c.expr(e)
	}
	c.info.types[e] = t
	return t
}

func (c *checker) varDecl(s *VarDecl) {
	t := c.expr(s.Init)
	declared := t
	if s.Type != nil {
		declared = c.resolveType(s.Type)
		if declared == TypeUnit {
			c.errorf(s.Type, "variable %s cannot have type Unit", s.Name)
			declared = typeInvalid
		}
		c.expectAssignable(s.Init, t, declared)
	} else {
		switch t {
		case TypeNull:
			c.errorf(s, "cannot infer the type of %s from null; declare its type", s.Name)
			declared = typeInvalid
		case TypeUnit, TypeNothing:
			c.errorf(s, "variable %s cannot have type %s", s.Name, t)
			declared = typeInvalid
		}
	}
	c.declareLocal(s, s.Name, declared, s.Mutable)
}

func (c *checker) assign(s *AssignStmt) {
	target := c.assignTarget(s.Target)
	if id, ok := s.Target.(*Ident); !ok || s.Op != TokenAssign || c.info.idents[id] == nil || c.info.idents[id].local == nil {
		c.ctx.nested++
		defer func() { c.ctx.nested-- }()
	}
	v := c.expr(s.Value)
	if target == typeInvalid || v == typeInvalid {
		return
	}
	if s.Op == TokenAssign {
		c.expectAssignable(s.Value, v, target)
		return
	}
	op := compoundOps[s.Op]
	a, ok := arithOp(op, target, v)
	if !ok {
		c.errorf(s, "operator %s cannot be applied to %s and %s", op, target, v)
		return
	}
	if !c.assignable(a.result, target) {
		c.errorf(s, "type mismatch: %s %s %s is %s, not %s", target, op, v, a.result, target)
	}
}

// assignTarget checks the target of an assignment and returns its type.
func (c *checker) assignTarget(e Expr) Type {
	switch e := e.(type) {
	case *Ident:
		t := c.ident(e)
		ref := c.info.idents[e]
		switch {
		case ref == nil:
		case ref.local != nil && !ref.local.mutable:
			c.errorf(e, "val %s cannot be reassigned", e.Name)
		case ref.field != nil:
			c.checkFieldWrite(e, ref.field, true)
		}
		return t
	case *MemberExpr:
		t := c.member(e)
		if ref := c.info.members[e]; ref != nil {
			if ref.field == nil {
				c.errorf(e, "%s cannot be assigned", e.Name)
			} else {
				_, isThis := e.X.(*ThisExpr)
				c.checkFieldWrite(e, ref.field, isThis)
			}
		}
		return t
	}
	c.errorf(e, "invalid assignment target")
	return typeInvalid
}

func (c *checker) checkFieldWrite(at Node, f *fieldInfo, viaThis bool) {
	if !f.final {
		return
	}
	if c.ctx.inCtor && viaThis && c.ctx.cls == f.owner {
		return
	}
	c.errorf(at, "val %s cannot be reassigned", f.name)
}

func (c *checker) returnStmt(s *ReturnStmt) {
	switch c.ctx.result {
	case typeInferred:
		c.errorf(s, "return is not allowed in a function with an inferred expression body")
		if s.Value != nil {
			c.expr(s.Value)
		}
		return
	case typeInvalid:
		if s.Value != nil {
			c.expr(s.Value)
		}
		return
	}
	if c.ctx.inCtor && s.Value != nil {
		c.errorf(s, "return with a value is not allowed here")
	}
	if s.Value == nil {
		if c.ctx.result != TypeUnit {
			c.errorf(s, "missing return value of type %s", c.ctx.result)
		}
		return
	}
	t := c.expr(s.Value)
	if c.ctx.result == TypeUnit {
		if t != TypeUnit && t != typeInvalid && t != TypeNothing {
			c.errorf(s.Value, "type mismatch: a Unit function cannot return %s", t)
		}
		return
	}
	c.expectAssignable(s.Value, t, c.ctx.result)
}

func (c *checker) cond(e Expr) {
	t := c.expr(e)
	if t != typeInvalid && t != TypeBool && t != TypeNothing {
		c.errorf(e, "type mismatch: inferred type is %s but Boolean was expected", t)
	}
}

func isTrueLiteral(e Expr) bool {
	b, ok := e.(*BoolLiteral)
	return ok && b.Value
}

func (c *checker) loopBody(b *Block) (broken bool) {
	l := &loopCtx{}
	c.ctx.loops = append(c.ctx.loops, l)
	c.block(b)
	c.ctx.loops = c.ctx.loops[:len(c.ctx.loops)-1]
	return l.broken
}

func (c *checker) while(s *WhileStmt) bool {
	if s.DoWhile {
		broken := c.loopBody(s.Body)
		c.cond(s.Cond)
		return isTrueLiteral(s.Cond) && !broken
	}
	c.cond(s.Cond)
	broken := c.loopBody(s.Body)
	return isTrueLiteral(s.Cond) && !broken
}

func (c *checker) forStmt(s *ForStmt) {
	c.pushScope()
	defer c.popScope()
	var elem Type
	if s.Range == RangeNone {
		t := c.expr(s.Iter)
		if t != typeInvalid && t != TypeString {
			c.errorf(s.Iter, "for loop requires a String or an integer range, not %s", t)
		}
		c.info.forSlots[s] = [2]int{c.hiddenSlot(), c.hiddenSlot()}
		elem = TypeChar
	} else {
		a := c.expr(s.Iter)
		b := c.expr(s.End)
		switch {
		case a == typeInvalid || b == typeInvalid:
			elem = typeInvalid
		case a != b || (a != TypeInt && a != TypeLong):
			c.errorf(s.Iter, "range bounds must both be Int or both be Long, not %s and %s", a, b)
			elem = typeInvalid
		default:
			elem = a
		}
		c.info.forSlots[s] = [2]int{c.hiddenSlot(), c.hiddenSlot()}
	}
	c.declareLocal(s, s.Var, elem, false)
	c.loopBody(s.Body)
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (c *checker) expr(e Expr) Type {
	t := c.exprType(e)
	c.info.types[e] = t
	return t
}

func (c *checker) exprType(e Expr) Type {
	switch e := e.(type) {
	case *IntLiteral:
		return TypeInt
	case *LongLiteral:
		return TypeLong
	case *DoubleLiteral:
		return TypeDouble
	case *CharLiteral:
		return TypeChar
	case *BoolLiteral:
		return TypeBool
	case *NullLiteral:
		return TypeNull
	case *StringLiteral:
		return TypeString
	case *TemplateLiteral:
		c.ctx.nested++
		defer func() { c.ctx.nested-- }()
		for _, p := range e.Parts {
			t := c.expr(p)
			if t == TypeUnit || t == TypeNothing {
				c.errorf(p, "a %s value cannot be used in a string template", t)
			}
		}
		return TypeString
	case *Ident:
		return c.ident(e)
	case *ThisExpr:
		if c.ctx.cls == nil {
			c.errorf(e, "this is not defined in this context")
			return typeInvalid
		}
		return ClassType(c.ctx.cls.name)
	case *UnaryExpr:
		return c.unary(e)
	case *BinaryExpr:
		return c.binary(e)
	case *CallExpr:
		return c.call(e)
	case *MemberExpr:
		return c.member(e)
	case *IndexExpr:
		c.ctx.nested++
		x := c.expr(e.X)
		i := c.expr(e.Index)
		c.ctx.nested--
		if x != typeInvalid && x != TypeString {
			c.errorf(e.X, "indexing is not supported on %s", x)
			return typeInvalid
		}
		c.expectAssignable(e.Index, i, TypeInt)
		return TypeChar
	case *IfExpr:
		return c.ifValue(e)
	case *TryExpr:
		return c.tryValue(e)
	}
	c.errorf(e, "unsupported expression")
	return typeInvalid
}

func (c *checker) ident(e *Ident) Type {
	if lv := c.lookupLocal(e.Name); lv != nil {
		c.info.idents[e] = &varRef{local: lv}
		return lv.typ
	}
	if c.ctx.cls != nil {
		if f := c.table.findField(c.ctx.cls, e.Name); f != nil {
			c.info.idents[e] = &varRef{field: f}
			return c.fieldType(f, e)
		}
	}
	if c.resolveClassName(e.Name) != "" {
		c.errorf(e, "class %s cannot be used as a value", e.Name)
		return typeInvalid
	}
	c.errorf(e, "unresolved reference: %s", e.Name)
	return typeInvalid
}

func (c *checker) member(e *MemberExpr) Type {
	c.ctx.nested++
	x := c.expr(e.X)
	c.ctx.nested--
	switch {
	case x == typeInvalid:
		return typeInvalid
	case x == TypeString && e.Name == "length":
		c.info.members[e] = &memberRef{intrinsic: "length"}
		return TypeInt
	case x == TypeChar && e.Name == "code":
		c.info.members[e] = &memberRef{intrinsic: "code"}
		return TypeInt
	case x.IsRef():
		if cls := c.table.lookup(x.ClassName()); cls != nil {
			if f := c.table.findField(cls, e.Name); f != nil {
				c.info.members[e] = &memberRef{field: f}
				return c.fieldType(f, e)
			}
		}
	}
	c.errorf(e, "unresolved reference: %s", e.Name)
	return typeInvalid
}

func (c *checker) unary(e *UnaryExpr) Type {
	t := c.expr(e.X)
	if t == typeInvalid {
		return t
	}
	switch e.Op {
	case TokenMinus:
		if t.IsNumeric() {
			return t
		}
	case TokenBang:
		if t == TypeBool {
			return t
		}
	}
	c.errorf(e, "operator %s cannot be applied to %s", e.Op, t)
	return typeInvalid
}

func (c *checker) binary(e *BinaryExpr) Type {
	c.ctx.nested++
	x := c.expr(e.X)
	y := c.expr(e.Y)
	c.ctx.nested--
	if x == typeInvalid || y == typeInvalid {
		return typeInvalid
	}
	switch e.Op {
	case TokenAndAnd, TokenOrOr:
		if x == TypeBool && y == TypeBool {
			return TypeBool
		}
	case TokenEq, TokenNotEq, TokenLess, TokenLessEq, TokenGreater, TokenGreaterEq:
		if _, _, ok := compareOp(e.Op, x, y); ok {
			return TypeBool
		}
	default:
		if a, ok := arithOp(e.Op, x, y); ok {
			return a.result
		}
	}
	c.errorf(e, "operator %s cannot be applied to %s and %s", e.Op, x, y)
	return typeInvalid
}

// ifStmt checks an if whose value is unused.
func (c *checker) ifStmt(e *IfExpr) Type {
	c.cond(e.Cond)
	thenTerm := c.block(e.Then)
	if e.Else == nil {
		return TypeUnit
	}
	if c.block(e.Else) && thenTerm {
		return TypeNothing
	}
	return TypeUnit
}

func (c *checker) ifValue(e *IfExpr) Type {
	c.cond(e.Cond)
	if e.Else == nil {
		c.errorf(e, "if must have an else branch when used as an expression")
		c.block(e.Then)
		return typeInvalid
	}
	a := c.valueBlock(e.Then)
	b := c.valueBlock(e.Else)
	return c.join(e, a, b)
}

// valueBlock checks a block whose last statement is its value.
func (c *checker) valueBlock(b *Block) Type {
	c.pushScope()
	defer c.popScope()
	if len(b.Stmts) == 0 {
		c.errorf(b, "expected a value")
		return typeInvalid
	}
	last := len(b.Stmts) - 1
	terminated := c.stmts(b.Stmts[:last])
	s := b.Stmts[last]
	es, ok := s.(*ExprStmt)
	if !ok {
		if c.stmt(s) || terminated {
			c.info.terminates[b] = true
			return TypeNothing
		}
		c.errorf(s, "expected a value")
		return typeInvalid
	}
	t := c.expr(es.Expr)
	if t == TypeNothing {
		c.info.terminates[s] = true
	}
	if terminated || t == TypeNothing {
		c.info.terminates[b] = true
		return TypeNothing
	}
	return t
}

func (c *checker) join(at Node, a, b Type) Type {
	switch {
	case a == typeInvalid || b == typeInvalid:
		return typeInvalid
	case a == b:
		return a
	case a == TypeNothing:
		return b
	case b == TypeNothing:
		return a
	case a == TypeNull && b.IsRef():
		return b
	case b == TypeNull && a.IsRef():
		return a
	case a.IsRef() && b.IsRef():
		return ClassType(c.table.commonSuper(a.ClassName(), b.ClassName()))
	}
	c.errorf(at, "incompatible branch types %s and %s", a, b)
	return typeInvalid
}

func (c *checker) checkTryPosition(e *TryExpr) {
	if c.ctx.nested > 0 {
		c.errorf(e, "try cannot be used inside a larger expression; assign it to a variable first")
	}
}

func (c *checker) tryStmt(e *TryExpr) Type {
	c.checkTryPosition(e)
	all := c.block(e.Body)
	for _, cc := range e.Catches {
		c.pushScope()
		c.catchParam(cc)
		if !c.block(cc.Body) {
			all = false
		}
		c.popScope()
	}
	if all {
		return TypeNothing
	}
	return TypeUnit
}

func (c *checker) tryValue(e *TryExpr) Type {
	c.checkTryPosition(e)
	saved := c.ctx.nested
	c.ctx.nested = 0
	defer func() { c.ctx.nested = saved }()
	t := c.valueBlock(e.Body)
	for _, cc := range e.Catches {
		c.pushScope()
		c.catchParam(cc)
		t = c.join(cc, t, c.valueBlock(cc.Body))
		c.popScope()
	}
	return t
}

func (c *checker) catchParam(cc *CatchClause) {
	t := c.resolveType(cc.Type)
	if t != typeInvalid && !(t.IsRef() && c.table.isSubclass(t.ClassName(), vm.ExceptionClass)) {
		c.errorf(cc.Type, "catch parameter must be an Exception, not %s", t)
		t = typeInvalid
	}
	c.declareLocal(cc, cc.Name, t, false)
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func (c *checker) args(exprs []Expr) []Type {
	c.ctx.nested++
	defer func() { c.ctx.nested-- }()
	ts := make([]Type, len(exprs))
	for i, a := range exprs {
		ts[i] = c.expr(a)
	}
	return ts
}

type candLevel struct {
	fns          []*funcInfo
	implicitThis bool
}

// candidates returns the functions an unqualified call of name can reach,
// grouped by precedence.
func (c *checker) candidates(name string) []candLevel {
	var levels []candLevel
	add := func(fns []*funcInfo, this bool) {
		if len(fns) > 0 {
			levels = append(levels, candLevel{fns: fns, implicitThis: this})
		}
	}
	statics := func(facade string) []*funcInfo {
		fc := c.table.lookup(facade)
		if fc == nil || !fc.isFacade() {
			return nil
		}
		var out []*funcInfo
		for _, fn := range fc.declared(name) {
			if fn.static {
				out = append(out, fn)
			}
		}
		return out
	}
	if c.ctx.cls != nil {
		add(c.table.instanceMethods(c.ctx.cls, name), true)
	}
	add(statics(classfile.Qualify(c.scope.pkg, classfile.FacadeName)), false)
	for _, f := range c.scope.funcImports[name] {
		add(statics(f), false)
	}
	if cn := c.resolveClassName(name); cn != "" {
		add(c.table.lookup(cn).declared(classfile.ConstructorName), false)
	}
	for _, p := range c.scope.stars {
		if p != c.scope.pkg {
			add(statics(classfile.Qualify(p, classfile.FacadeName)), false)
		}
	}
	return levels
}

func (c *checker) call(e *CallExpr) Type {
	switch fun := e.Fun.(type) {
	case *Ident:
		args := c.args(e.Args)
		levels := c.candidates(fun.Name)
		if len(levels) == 0 {
			c.errorf(fun, "unresolved reference: %s", fun.Name)
			return typeInvalid
		}
		if slices.Contains(args, typeInvalid) {
			return typeInvalid
		}
		var all []*funcInfo
		for _, lv := range levels {
			all = append(all, lv.fns...)
			fn, ambiguous := c.mostSpecific(c.applicable(lv.fns, args))
			if ambiguous {
				c.errorf(fun, "overload resolution ambiguity for %s", fun.Name)
				return typeInvalid
			}
			if fn == nil {
				continue
			}
			ref := &callRef{fn: fn, implicitThis: lv.implicitThis}
			switch {
			case fn.name == classfile.ConstructorName:
				ref.kind = callCtor
			case fn.static:
				ref.kind = callStatic
			default:
				ref.kind = callVirtual
			}
			c.info.calls[e] = ref
			return c.callResult(fn, fun)
		}
		c.reportInapplicable(fun, fun.Name, all, args)
		return typeInvalid

	case *MemberExpr:
		c.ctx.nested++
		recv := c.expr(fun.X)
		c.ctx.nested--
		args := c.args(e.Args)
		if recv == typeInvalid || slices.Contains(args, typeInvalid) {
			return typeInvalid
		}
		if recv.IsPrimitive() {
			return c.primitiveCall(e, fun, recv, args)
		}
		var cands []*funcInfo
		if recv.IsRef() {
			if cls := c.table.lookup(recv.ClassName()); cls != nil {
				cands = c.table.instanceMethods(cls, fun.Name)
			}
		}
		if len(cands) == 0 {
			c.errorf(fun, "unresolved reference: %s", fun.Name)
			return typeInvalid
		}
		fn := c.pickOverload(fun, fun.Name, cands, args)
		if fn == nil {
			return typeInvalid
		}
		c.info.calls[e] = &callRef{kind: callVirtual, fn: fn}
		return c.callResult(fn, fun)
	}
	c.errorf(e.Fun, "expression cannot be called")
	return typeInvalid
}

func (c *checker) primitiveCall(e *CallExpr, fun *MemberExpr, recv Type, args []Type) Type {
	if len(args) == 0 {
		if to, ok := conversions[fun.Name]; ok && recv != TypeBool {
			c.info.calls[e] = &callRef{kind: callConvert, to: to}
			return to
		}
		if fun.Name == "toString" {
			c.info.calls[e] = &callRef{kind: callStringify}
			return TypeString
		}
	}
	c.errorf(fun, "unresolved reference: %s", fun.Name)
	return typeInvalid
}

func (c *checker) callResult(fn *funcInfo, at Node) Type {
	if fn.name == classfile.ConstructorName {
		return ClassType(fn.owner.name)
	}
	return c.resultType(fn, at)
}

// pickOverload selects the callee among cands for args, reporting an error
// when there is none or no single best one.
func (c *checker) pickOverload(at Node, what string, cands []*funcInfo, args []Type) *funcInfo {
	if slices.Contains(args, typeInvalid) {
		return nil
	}
	fn, ambiguous := c.mostSpecific(c.applicable(cands, args))
	switch {
	case ambiguous:
		c.errorf(at, "overload resolution ambiguity for %s", what)
	case fn == nil:
		c.reportInapplicable(at, what, cands, args)
	}
	return fn
}

func (c *checker) applicable(cands []*funcInfo, args []Type) []*funcInfo {
	var out []*funcInfo
	for _, fn := range cands {
		if len(fn.params) != len(args) {
			continue
		}
		ok := true
		for i, p := range fn.params {
			if !c.assignable(args[i], p) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, fn)
		}
	}
	return out
}

// mostSpecific returns the candidate whose parameters are all assignable
// to every other candidate's parameters.
func (c *checker) mostSpecific(cands []*funcInfo) (*funcInfo, bool) {
	switch len(cands) {
	case 0:
		return nil, false
	case 1:
		return cands[0], false
	}
	for _, a := range cands {
		best := true
		for _, b := range cands {
			if a != b && !c.moreSpecific(a, b) {
				best = false
				break
			}
		}
		if best {
			return a, false
		}
	}
	return nil, true
}

func (c *checker) moreSpecific(a, b *funcInfo) bool {
	for i := range a.params {
		if !c.assignable(a.params[i], b.params[i]) {
			return false
		}
	}
	return true
}

func (c *checker) reportInapplicable(at Node, what string, cands []*funcInfo, args []Type) {
	names := make([]string, len(args))
	for i, a := range args {
		names[i] = a.String()
	}
	if len(cands) == 1 {
		c.errorf(at, "%s cannot be called with arguments (%s)", cands[0], strings.Join(names, ", "))
		return
	}
	sigs := make([]string, len(cands))
	for i, fn := range cands {
		sigs[i] = fn.String()
	}
	c.errorf(at, "none of %s can be called with arguments (%s)", strings.Join(sigs, ", "), strings.Join(names, ", "))
}

// ---------------------------------------------------------------------------
// Assignability
// ---------------------------------------------------------------------------

// assignable reports whether a value of type from can be used where to is
// expected. There are no implicit numeric conversions.
func (c *checker) assignable(from, to Type) bool {
	switch {
	case from == typeInvalid || to == typeInvalid:
		return true
	case from == to, from == TypeNothing:
		return true
	case from == TypeNull:
		return to.IsRef()
	case from.IsRef() && to.IsRef():
		return c.table.isSubclass(from.ClassName(), to.ClassName())
	}
	return false
}

func (c *checker) expectAssignable(at Node, from, to Type) {
	if !c.assignable(from, to) {
		c.errorf(at, "type mismatch: inferred type is %s but %s was expected", from, to)
	}
}
