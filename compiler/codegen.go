package compiler

import (
	"fmt"

	"github.com/chazu/tern/classfile"
)

// ---------------------------------------------------------------------------
// Code generation
// ---------------------------------------------------------------------------

type loopLabels struct {
	breaks    []int
	continues []int
}

type generator struct {
	info   *info
	class  *classfile.Class
	m      *classfile.Method
	result Type
	loops  []*loopLabels
	err    error
}

// generate produces one class per source class and facade. It must only be
// called on a unit that checked without errors.
func generate(in *info, classes []*classInfo) ([]*classfile.Class, error) {
	g := &generator{info: in}
	out := make([]*classfile.Class, 0, len(classes))
	for _, ci := range classes {
		out = append(out, g.genClass(ci))
	}
	if g.err != nil {
		return nil, g.err
	}
	return out, nil
}

func (g *generator) genClass(ci *classInfo) *classfile.Class {
	cf := classfile.NewClass(ci.name)
	cf.Super = ci.super
	cf.Flags = ci.flags
	cf.SourceFile = sourceFileOf(ci)
	g.class = cf
	for _, f := range ci.fields {
		var flags classfile.FieldFlags
		if f.final {
			flags |= classfile.FieldFinal
		}
		cf.Fields = append(cf.Fields, classfile.Field{Name: f.name, Desc: string(f.typ), Flags: flags})
	}
	for _, fn := range ci.methods {
		if fn.name == classfile.ConstructorName {
			g.genCtor(ci)
		} else {
			g.genFunc(fn)
		}
	}
	return cf
}

func sourceFileOf(ci *classInfo) string {
	if ci.scope != nil {
		return ci.scope.file.Name
	}
	for _, fn := range ci.methods {
		if fn.scope != nil {
			return fn.scope.file.Name
		}
	}
	return ""
}

func (g *generator) genFunc(fn *funcInfo) {
	var flags classfile.MethodFlags
	if fn.static {
		flags |= classfile.MethodStatic
	}
	g.m = g.class.AddMethod(fn.name, fn.desc(), flags)
	g.m.MaxLocals = uint16(fn.body.maxLocals)
	g.result = fn.result
	g.loops = nil
	d := fn.decl
	g.m.MarkLine(d.Span().Start.Line)
	if d.ExprBody != nil {
		t := g.expr(d.ExprBody)
		switch {
		case t == TypeNothing:
		case fn.result == TypeUnit:
			if t.HasValue() {
				g.m.Emit(classfile.OpPop)
			}
			g.m.Emit(classfile.OpReturnVoid)
		default:
			g.m.Emit(classfile.OpReturn)
		}
		return
	}
	g.block(d.Body)
	if !fn.body.terminates {
		g.m.Emit(classfile.OpReturnVoid)
	}
}

// genCtor emits the primary constructor: the supertype constructor, then
// constructor properties, then property initializers and init blocks in
// source order.
func (g *generator) genCtor(ci *classInfo) {
	d := ci.decl
	g.m = g.class.AddMethod(classfile.ConstructorName, ci.ctor.desc(), 0)
	g.m.MaxLocals = uint16(ci.ctor.body.maxLocals)
	g.result = TypeUnit
	g.loops = nil
	g.m.MarkLine(d.Span().Start.Line)

	g.load(0)
	for _, a := range d.SuperArgs {
		g.expr(a)
	}
	sup := g.info.superCalls[ci]
	g.m.EmitU16(classfile.OpInvokeSpecial, g.class.MethodRef(sup.owner.name, sup.name, sup.desc()))

	for i, p := range d.Params {
		if p.Prop == PropNone {
			continue
		}
		f := ci.field(p.Name)
		g.load(0)
		g.load(i + 1)
		g.putField(f)
	}
	for _, m := range d.Members {
		switch m := m.(type) {
		case *PropDecl:
			if m.Init == nil {
				continue
			}
			g.m.MarkLine(m.Span().Start.Line)
			g.load(0)
			g.expr(m.Init)
			g.putField(ci.field(m.Name))
		case *InitBlock:
			g.block(m.Body)
		}
	}
	g.m.Emit(classfile.OpReturnVoid)
}

// ---------------------------------------------------------------------------
// Emit helpers
// ---------------------------------------------------------------------------

func (g *generator) load(slot int)  { g.m.EmitU16(classfile.OpLoad, uint16(slot)) }
func (g *generator) store(slot int) { g.m.EmitU16(classfile.OpStore, uint16(slot)) }

func (g *generator) getField(f *fieldInfo) {
	g.m.EmitU16(classfile.OpGetField, g.class.FieldRef(f.owner.name, f.name, string(f.typ)))
}

func (g *generator) putField(f *fieldInfo) {
	g.m.EmitU16(classfile.OpPutField, g.class.FieldRef(f.owner.name, f.name, string(f.typ)))
}

func (g *generator) invoke(op classfile.Opcode, class, name, desc string) {
	g.m.EmitU16(op, g.class.MethodRef(class, name, desc))
}

func (g *generator) stringLength() {
	g.invoke(classfile.OpInvokeVirtual, classfile.StringClass, "length", classfile.MethodDesc(classfile.DescInt))
}

func (g *generator) stringGet() {
	g.invoke(classfile.OpInvokeVirtual, classfile.StringClass, "get", classfile.MethodDesc(classfile.DescChar, classfile.DescInt))
}

func (g *generator) typed(op classfile.Opcode, t Type) {
	g.m.EmitU8(op, byte(t.Kind()))
}

// conv converts the value on top of the stack between primitive types.
func (g *generator) conv(from, to Type) {
	if from == to || !from.IsPrimitive() || !to.IsPrimitive() {
		return
	}
	g.m.EmitU16(classfile.OpConv, uint16(from.Kind())<<8|uint16(to.Kind()))
}

// one pushes the constant 1 of a numeric type.
func (g *generator) one(t Type) {
	switch t {
	case TypeLong:
		g.m.EmitU16(classfile.OpLdc, g.class.AddConstant(classfile.Constant{Kind: classfile.ConstLong, Long: 1}))
	case TypeDouble:
		g.m.EmitU16(classfile.OpLdc, g.class.AddConstant(classfile.Constant{Kind: classfile.ConstDouble, Double: 1}))
	default:
		g.m.EmitI32(classfile.OpIConst, 1)
	}
}

// step adds or subtracts one from the value on top of the stack.
func (g *generator) step(t Type, op TokenType) {
	opcode := classfile.OpAdd
	if op == TokenDecr || op == TokenMinus {
		opcode = classfile.OpSub
	}
	if t == TypeChar {
		g.conv(TypeChar, TypeInt)
		g.one(TypeInt)
		g.typed(opcode, TypeInt)
		g.conv(TypeInt, TypeChar)
		return
	}
	g.one(t)
	g.typed(opcode, t)
}

func (g *generator) jump(op classfile.Opcode) int { return g.m.EmitJump(op) }

func (g *generator) patch(placeholder int) { g.patchTo(placeholder, len(g.m.Code)) }

func (g *generator) patchTo(placeholder, target int) {
	if err := g.m.PatchJumpTo(placeholder, target); err != nil && g.err == nil {
		g.err = fmt.Errorf("%s.%s: %w", g.class.Name, g.m.Name, err)
	}
}

func (g *generator) loopBack(start int) { g.patchTo(g.jump(classfile.OpJump), start) }

func (g *generator) typeOf(e Expr) Type { return g.info.types[e] }

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (g *generator) block(b *Block) {
	for _, s := range b.Stmts {
		g.stmt(s)
		if g.info.terminates[s] {
			return
		}
	}
}

func (g *generator) stmt(s Stmt) {
	g.m.MarkLine(s.Span().Start.Line)
	switch s := s.(type) {
	case *Block:
		g.block(s)
	case *ExprStmt:
		switch e := s.Expr.(type) {
		case *IfExpr:
			g.ifStmt(e)
		case *TryExpr:
			g.try(e, false)
		default:
			if g.expr(e).HasValue() {
				g.m.Emit(classfile.OpPop)
			}
		}
	case *VarDecl:
		g.expr(s.Init)
		g.store(g.info.locals[s].slot)
	case *AssignStmt:
		g.assign(s)
	case *IncDecStmt:
		g.incDec(s)
	case *WhileStmt:
		if s.DoWhile {
			g.doWhile(s)
		} else {
			g.while(s)
		}
	case *ForStmt:
		g.forStmt(s)
	case *ReturnStmt:
		g.returnStmt(s)
	case *ThrowStmt:
		g.expr(s.Value)
		g.m.Emit(classfile.OpThrow)
	case *BranchStmt:
		l := g.loops[len(g.loops)-1]
		if s.Tok == TokenBreak {
			l.breaks = append(l.breaks, g.jump(classfile.OpJump))
		} else {
			l.continues = append(l.continues, g.jump(classfile.OpJump))
		}
	}
}

func (g *generator) returnStmt(s *ReturnStmt) {
	if s.Value == nil {
		g.m.Emit(classfile.OpReturnVoid)
		return
	}
	t := g.expr(s.Value)
	if g.result == TypeUnit {
		if t.HasValue() {
			g.m.Emit(classfile.OpPop)
		}
		g.m.Emit(classfile.OpReturnVoid)
		return
	}
	g.m.Emit(classfile.OpReturn)
}

func (g *generator) assign(s *AssignStmt) {
	switch t := s.Target.(type) {
	case *Ident:
		ref := g.info.idents[t]
		if ref.local != nil {
			if s.Op == TokenAssign {
				g.expr(s.Value)
			} else {
				g.load(ref.local.slot)
				g.arithTail(compoundOps[s.Op], ref.local.typ, s.Value)
			}
			g.store(ref.local.slot)
			return
		}
		g.load(0)
		if s.Op != TokenAssign {
			g.m.Emit(classfile.OpDup)
		}
		g.fieldAssign(ref.field, s)
	case *MemberExpr:
		g.expr(t.X)
		if s.Op != TokenAssign {
			g.m.Emit(classfile.OpDup)
		}
		g.fieldAssign(g.info.members[t].field, s)
	}
}

// fieldAssign expects the receiver on the stack, twice for compound
// assignment.
func (g *generator) fieldAssign(f *fieldInfo, s *AssignStmt) {
	if s.Op == TokenAssign {
		g.expr(s.Value)
	} else {
		g.getField(f)
		g.arithTail(compoundOps[s.Op], f.typ, s.Value)
	}
	g.putField(f)
}

func (g *generator) incDec(s *IncDecStmt) {
	switch t := s.Target.(type) {
	case *Ident:
		ref := g.info.idents[t]
		if ref.local != nil {
			g.load(ref.local.slot)
			g.step(ref.local.typ, s.Op)
			g.store(ref.local.slot)
			return
		}
		g.load(0)
		g.m.Emit(classfile.OpDup)
		g.getField(ref.field)
		g.step(ref.field.typ, s.Op)
		g.putField(ref.field)
	case *MemberExpr:
		f := g.info.members[t].field
		g.expr(t.X)
		g.m.Emit(classfile.OpDup)
		g.getField(f)
		g.step(f.typ, s.Op)
		g.putField(f)
	}
}

func (g *generator) pushLoop() *loopLabels {
	l := &loopLabels{}
	g.loops = append(g.loops, l)
	return l
}

// popLoop patches the loop's jumps and removes it.
func (g *generator) popLoop(l *loopLabels, cont, exit int) {
	for _, p := range l.continues {
		g.patchTo(p, cont)
	}
	for _, p := range l.breaks {
		g.patchTo(p, exit)
	}
	g.loops = g.loops[:len(g.loops)-1]
}

func (g *generator) while(s *WhileStmt) {
	l := g.pushLoop()
	start := len(g.m.Code)
	exit := -1
	if !isTrueLiteral(s.Cond) {
		g.expr(s.Cond)
		exit = g.jump(classfile.OpJumpFalse)
	}
	g.block(s.Body)
	g.loopBack(start)
	if exit >= 0 {
		g.patch(exit)
	}
	g.popLoop(l, start, len(g.m.Code))
}

func (g *generator) doWhile(s *WhileStmt) {
	l := g.pushLoop()
	start := len(g.m.Code)
	g.block(s.Body)
	cont := len(g.m.Code)
	if isTrueLiteral(s.Cond) {
		g.loopBack(start)
	} else {
		g.expr(s.Cond)
		g.patchTo(g.jump(classfile.OpJumpTrue), start)
	}
	g.popLoop(l, cont, len(g.m.Code))
}

func (g *generator) forStmt(s *ForStmt) {
	slots := g.info.forSlots[s]
	v := g.info.locals[s]
	if s.Range == RangeNone {
		g.forString(s, slots[0], slots[1], v.slot)
		return
	}
	counter, end := slots[0], slots[1]
	t := v.typ
	g.expr(s.Iter)
	g.store(counter)
	g.expr(s.End)
	g.store(end)

	l := g.pushLoop()
	if s.Range == RangeUntil {
		top := len(g.m.Code)
		g.load(counter)
		g.load(end)
		g.typed(classfile.OpLt, t)
		exit := g.jump(classfile.OpJumpFalse)
		g.load(counter)
		g.store(v.slot)
		g.block(s.Body)
		cont := len(g.m.Code)
		g.load(counter)
		g.step(t, TokenIncr)
		g.store(counter)
		g.loopBack(top)
		g.patch(exit)
		g.popLoop(l, cont, len(g.m.Code))
		return
	}

	// Closed ranges test for the last value before stepping so that a
	// range ending at the type's limit does not overflow.
	empty, stepOp := classfile.OpGt, TokenIncr
	if s.Range == RangeDownTo {
		empty, stepOp = classfile.OpLt, TokenDecr
	}
	g.load(counter)
	g.load(end)
	g.typed(empty, t)
	skip := g.jump(classfile.OpJumpTrue)
	top := len(g.m.Code)
	g.load(counter)
	g.store(v.slot)
	g.block(s.Body)
	cont := len(g.m.Code)
	g.load(counter)
	g.load(end)
	g.typed(classfile.OpEq, t)
	done := g.jump(classfile.OpJumpTrue)
	g.load(counter)
	g.step(t, stepOp)
	g.store(counter)
	g.loopBack(top)
	g.patch(skip)
	g.patch(done)
	g.popLoop(l, cont, len(g.m.Code))
}

func (g *generator) forString(s *ForStmt, str, index, elem int) {
	g.expr(s.Iter)
	g.store(str)
	g.m.EmitI32(classfile.OpIConst, 0)
	g.store(index)

	l := g.pushLoop()
	top := len(g.m.Code)
	g.load(index)
	g.load(str)
	g.stringLength()
	g.typed(classfile.OpLt, TypeInt)
	exit := g.jump(classfile.OpJumpFalse)
	g.load(str)
	g.load(index)
	g.stringGet()
	g.store(elem)
	g.block(s.Body)
	cont := len(g.m.Code)
	g.load(index)
	g.step(TypeInt, TokenIncr)
	g.store(index)
	g.loopBack(top)
	g.patch(exit)
	g.popLoop(l, cont, len(g.m.Code))
}

func (g *generator) ifStmt(e *IfExpr) {
	g.expr(e.Cond)
	elseJump := g.jump(classfile.OpJumpFalse)
	g.block(e.Then)
	if e.Else == nil {
		g.patch(elseJump)
		return
	}
	end := -1
	if !g.info.terminates[e.Then] {
		end = g.jump(classfile.OpJump)
	}
	g.patch(elseJump)
	g.block(e.Else)
	if end >= 0 {
		g.patch(end)
	}
}

// try emits the body followed by the catch clauses. Handlers of nested
// tries are appended first, so they take precedence.
func (g *generator) try(e *TryExpr, value bool) {
	body := func(b *Block) {
		if value {
			g.valueBlock(b)
		} else {
			g.block(b)
		}
	}
	start := len(g.m.Code)
	body(e.Body)
	end := len(g.m.Code)
	if start == end {
		return
	}
	var exits []int
	if !g.info.terminates[e.Body] {
		exits = append(exits, g.jump(classfile.OpJump))
	}
	for i, cc := range e.Catches {
		g.m.Handlers = append(g.m.Handlers, classfile.Handler{
			Start:     uint32(start),
			End:       uint32(end),
			Target:    uint32(len(g.m.Code)),
			CatchType: g.info.locals[cc].typ.ClassName(),
		})
		g.m.MarkLine(cc.Span().Start.Line)
		g.store(g.info.locals[cc].slot)
		body(cc.Body)
		if i < len(e.Catches)-1 && !g.info.terminates[cc.Body] {
			exits = append(exits, g.jump(classfile.OpJump))
		}
	}
	for _, p := range exits {
		g.patch(p)
	}
}

// valueBlock leaves the value of the block's last expression on the stack.
func (g *generator) valueBlock(b *Block) {
	last := len(b.Stmts) - 1
	for i, s := range b.Stmts {
		if i == last {
			if es, ok := s.(*ExprStmt); ok {
				g.m.MarkLine(s.Span().Start.Line)
				g.expr(es.Expr)
				return
			}
		}
		g.stmt(s)
		if g.info.terminates[s] {
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// expr emits e and returns its type.
func (g *generator) expr(e Expr) Type {
	t := g.typeOf(e)
	switch e := e.(type) {
	case *IntLiteral:
		g.m.EmitI32(classfile.OpIConst, e.Value)
	case *LongLiteral:
		g.m.EmitU16(classfile.OpLdc, g.class.AddConstant(classfile.Constant{Kind: classfile.ConstLong, Long: e.Value}))
	case *DoubleLiteral:
		g.m.EmitU16(classfile.OpLdc, g.class.AddConstant(classfile.Constant{Kind: classfile.ConstDouble, Double: e.Value}))
	case *CharLiteral:
		g.m.EmitU16(classfile.OpCConst, e.Value)
	case *BoolLiteral:
		if e.Value {
			g.m.Emit(classfile.OpTrue)
		} else {
			g.m.Emit(classfile.OpFalse)
		}
	case *NullLiteral:
		g.m.Emit(classfile.OpNull)
	case *StringLiteral:
		g.m.EmitU16(classfile.OpLdc, g.class.StringConstant(e.Value))
	case *TemplateLiteral:
		g.template(e)
	case *Ident:
		ref := g.info.idents[e]
		if ref.local != nil {
			g.load(ref.local.slot)
		} else {
			g.load(0)
			g.getField(ref.field)
		}
	case *ThisExpr:
		g.load(0)
	case *UnaryExpr:
		g.expr(e.X)
		if e.Op == TokenBang {
			g.m.Emit(classfile.OpNot)
		} else {
			g.typed(classfile.OpNeg, t)
		}
	case *BinaryExpr:
		g.binary(e)
	case *CallExpr:
		g.call(e)
	case *MemberExpr:
		ref := g.info.members[e]
		g.expr(e.X)
		switch ref.intrinsic {
		case "length":
			g.stringLength()
		case "code":
			g.conv(TypeChar, TypeInt)
		default:
			g.getField(ref.field)
		}
	case *IndexExpr:
		g.expr(e.X)
		g.expr(e.Index)
		g.stringGet()
	case *IfExpr:
		g.expr(e.Cond)
		elseJump := g.jump(classfile.OpJumpFalse)
		g.valueBlock(e.Then)
		end := -1
		if !g.info.terminates[e.Then] {
			end = g.jump(classfile.OpJump)
		}
		g.patch(elseJump)
		g.valueBlock(e.Else)
		if end >= 0 {
			g.patch(end)
		}
	case *TryExpr:
		g.try(e, true)
	}
	return t
}

func (g *generator) template(e *TemplateLiteral) {
	if len(e.Parts) == 0 {
		g.m.EmitU16(classfile.OpLdc, g.class.StringConstant(""))
		return
	}
	first := 0
	if _, ok := e.Parts[0].(*StringLiteral); ok {
		g.expr(e.Parts[0])
		first = 1
	} else {
		g.m.EmitU16(classfile.OpLdc, g.class.StringConstant(""))
	}
	for _, p := range e.Parts[first:] {
		g.stringOperand(p)
		g.m.Emit(classfile.OpConcat)
	}
}

// stringOperand emits e converted to a String.
func (g *generator) stringOperand(e Expr) {
	t := g.expr(e)
	if t != TypeString {
		g.typed(classfile.OpStringify, stringifyType(t))
	}
}

func stringifyType(t Type) Type {
	if t == TypeNull {
		return TypeAny
	}
	return t
}

func (g *generator) binary(e *BinaryExpr) {
	switch e.Op {
	case TokenAndAnd, TokenOrOr:
		g.expr(e.X)
		g.m.Emit(classfile.OpDup)
		op := classfile.OpJumpFalse
		if e.Op == TokenOrOr {
			op = classfile.OpJumpTrue
		}
		end := g.jump(op)
		g.m.Emit(classfile.OpPop)
		g.expr(e.Y)
		g.patch(end)
		return
	}
	if opcode, ok := compareOpcodes[e.Op]; ok {
		xt, yt := g.typeOf(e.X), g.typeOf(e.Y)
		operand, kind, _ := compareOp(e.Op, xt, yt)
		g.expr(e.X)
		g.conv(xt, operand)
		g.expr(e.Y)
		g.conv(yt, operand)
		g.m.EmitU8(opcode, byte(kind))
		return
	}
	xt := g.expr(e.X)
	g.arithTail(e.Op, xt, e.Y)
}

// arithTail emits "x op y" with x, of type xt, already on the stack.
func (g *generator) arithTail(op TokenType, xt Type, y Expr) {
	a, _ := arithOp(op, xt, g.typeOf(y))
	if a.concat {
		g.stringOperand(y)
		g.m.Emit(classfile.OpConcat)
		return
	}
	g.conv(xt, a.operand)
	yt := g.expr(y)
	g.conv(yt, a.operand)
	g.typed(arithOpcodes[op], a.operand)
	g.conv(a.operand, a.result)
}

func (g *generator) call(e *CallExpr) {
	ref := g.info.calls[e]
	switch ref.kind {
	case callConvert:
		from := g.expr(e.Fun.(*MemberExpr).X)
		g.conv(from, ref.to)
		return
	case callStringify:
		t := g.expr(e.Fun.(*MemberExpr).X)
		g.typed(classfile.OpStringify, t)
		return
	}

	fn := ref.fn
	switch ref.kind {
	case callCtor:
		g.m.EmitU16(classfile.OpNew, g.class.ClassRef(fn.owner.name))
		g.m.Emit(classfile.OpDup)
	case callVirtual:
		if ref.implicitThis {
			g.load(0)
		} else {
			g.expr(e.Fun.(*MemberExpr).X)
		}
	}
	for _, a := range e.Args {
		g.expr(a)
	}
	switch ref.kind {
	case callStatic:
		g.invoke(classfile.OpInvokeStatic, fn.owner.name, fn.name, fn.desc())
	case callVirtual:
		g.invoke(classfile.OpInvokeVirtual, fn.owner.name, fn.name, fn.desc())
	case callCtor:
		g.invoke(classfile.OpInvokeSpecial, fn.owner.name, fn.name, fn.desc())
	}
}
