package compiler

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for tern
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
	node() // marker method
}

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// File is one parsed source file.
type File struct {
	SpanVal Span
	Name    string // source file name, recorded in generated classes
	Package string // dotted; empty for the default package
	Imports []*Import
	Funs    []*FunDecl
	Classes []*ClassDecl
}

func (n *File) Span() Span { return n.SpanVal }
func (n *File) node()      {}

// Import is `import a.b.C` or `import a.b.*`.
type Import struct {
	SpanVal Span
	Path    string
	Star    bool
}

func (n *Import) Span() Span { return n.SpanVal }
func (n *Import) node()      {}

// TypeRef names a type in source.
type TypeRef struct {
	SpanVal  Span
	Name     string // possibly qualified
	Nullable bool
}

func (n *TypeRef) Span() Span { return n.SpanVal }
func (n *TypeRef) node()      {}

// PropKind says whether a constructor parameter also declares a property.
type PropKind int

const (
	PropNone PropKind = iota
	PropVal
	PropVar
)

// Param is a function or constructor parameter.
type Param struct {
	SpanVal Span
	Name    string
	Type    *TypeRef
	Prop    PropKind
}

func (n *Param) Span() Span { return n.SpanVal }
func (n *Param) node()      {}

// FunDecl is a top-level function or a method.
type FunDecl struct {
	SpanVal  Span
	Name     string
	Params   []*Param
	Result   *TypeRef // nil when omitted
	Body     *Block   // block body, or
	ExprBody Expr     // expression body after '='
	Override bool
}

func (n *FunDecl) Span() Span { return n.SpanVal }
func (n *FunDecl) node()      {}

// ClassDecl is a class with an optional primary constructor.
type ClassDecl struct {
	SpanVal   Span
	Name      string
	Params    []*Param // primary constructor parameters
	Super     *TypeRef // nil for the root class
	SuperArgs []Expr
	Members   []Node // *PropDecl, *FunDecl and *InitBlock in source order
}

func (n *ClassDecl) Span() Span { return n.SpanVal }
func (n *ClassDecl) node()      {}

// PropDecl is a property declared in a class body.
type PropDecl struct {
	SpanVal Span
	Name    string
	Mutable bool
	Type    *TypeRef // nil when inferred from Init
	Init    Expr
}

func (n *PropDecl) Span() Span { return n.SpanVal }
func (n *PropDecl) node()      {}

// InitBlock is an `init { }` block of a class body.
type InitBlock struct {
	SpanVal Span
	Body    *Block
}

func (n *InitBlock) Span() Span { return n.SpanVal }
func (n *InitBlock) node()      {}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// Block is a brace-delimited statement list. Single statement bodies of
// if, while and for are wrapped in a Block as well.
type Block struct {
	SpanVal Span
	Stmts   []Stmt
}

func (n *Block) Span() Span { return n.SpanVal }
func (n *Block) node()      {}
func (n *Block) stmt()      {}

// ExprStmt is an expression evaluated for its effect.
type ExprStmt struct {
	SpanVal Span
	Expr    Expr
}

func (n *ExprStmt) Span() Span { return n.SpanVal }
func (n *ExprStmt) node()      {}
func (n *ExprStmt) stmt()      {}

// VarDecl declares a local with val or var.
type VarDecl struct {
	SpanVal Span
	Name    string
	Mutable bool
	Type    *TypeRef
	Init    Expr
}

func (n *VarDecl) Span() Span { return n.SpanVal }
func (n *VarDecl) node()      {}
func (n *VarDecl) stmt()      {}

// AssignStmt is plain or compound assignment. Op is TokenAssign or one of
// the compound operator tokens.
type AssignStmt struct {
	SpanVal Span
	Target  Expr // *Ident or *MemberExpr
	Op      TokenType
	Value   Expr
}

func (n *AssignStmt) Span() Span { return n.SpanVal }
func (n *AssignStmt) node()      {}
func (n *AssignStmt) stmt()      {}

// IncDecStmt is `x++` or `x--`.
type IncDecStmt struct {
	SpanVal Span
	Target  Expr
	Op      TokenType
}

func (n *IncDecStmt) Span() Span { return n.SpanVal }
func (n *IncDecStmt) node()      {}
func (n *IncDecStmt) stmt()      {}

// WhileStmt is a while loop, or a do-while loop when DoWhile is set.
type WhileStmt struct {
	SpanVal Span
	Cond    Expr
	Body    *Block
	DoWhile bool
}

func (n *WhileStmt) Span() Span { return n.SpanVal }
func (n *WhileStmt) node()      {}
func (n *WhileStmt) stmt()      {}

// RangeKind selects the form of a for loop header.
type RangeKind int

const (
	RangeNone   RangeKind = iota // for (c in string)
	RangeClosed                  // a..b
	RangeUntil                   // a until b
	RangeDownTo                  // a downTo b
)

// ForStmt iterates a string's characters or an integer range.
type ForStmt struct {
	SpanVal Span
	Var     string
	Iter    Expr // the string, or the range start
	End     Expr // range end, nil for RangeNone
	Range   RangeKind
	Body    *Block
}

func (n *ForStmt) Span() Span { return n.SpanVal }
func (n *ForStmt) node()      {}
func (n *ForStmt) stmt()      {}

// ReturnStmt returns from the enclosing function.
type ReturnStmt struct {
	SpanVal Span
	Value   Expr // nil for a bare return
}

func (n *ReturnStmt) Span() Span { return n.SpanVal }
func (n *ReturnStmt) node()      {}
func (n *ReturnStmt) stmt()      {}

// ThrowStmt raises an exception.
type ThrowStmt struct {
	SpanVal Span
	Value   Expr
}

func (n *ThrowStmt) Span() Span { return n.SpanVal }
func (n *ThrowStmt) node()      {}
func (n *ThrowStmt) stmt()      {}

// BranchStmt is break or continue.
type BranchStmt struct {
	SpanVal Span
	Tok     TokenType
}

func (n *BranchStmt) Span() Span { return n.SpanVal }
func (n *BranchStmt) node()      {}
func (n *BranchStmt) stmt()      {}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// IntLiteral represents an Int literal.
type IntLiteral struct {
	SpanVal Span
	Value   int32
}

func (n *IntLiteral) Span() Span { return n.SpanVal }
func (n *IntLiteral) node()      {}
func (n *IntLiteral) expr()      {}

// LongLiteral represents a Long literal.
type LongLiteral struct {
	SpanVal Span
	Value   int64
}

func (n *LongLiteral) Span() Span { return n.SpanVal }
func (n *LongLiteral) node()      {}
func (n *LongLiteral) expr()      {}

// DoubleLiteral represents a Double literal.
type DoubleLiteral struct {
	SpanVal Span
	Value   float64
}

func (n *DoubleLiteral) Span() Span { return n.SpanVal }
func (n *DoubleLiteral) node()      {}
func (n *DoubleLiteral) expr()      {}

// CharLiteral represents a Char literal.
type CharLiteral struct {
	SpanVal Span
	Value   uint16
}

func (n *CharLiteral) Span() Span { return n.SpanVal }
func (n *CharLiteral) node()      {}
func (n *CharLiteral) expr()      {}

// BoolLiteral represents true or false.
type BoolLiteral struct {
	SpanVal Span
	Value   bool
}

func (n *BoolLiteral) Span() Span { return n.SpanVal }
func (n *BoolLiteral) node()      {}
func (n *BoolLiteral) expr()      {}

// NullLiteral represents null.
type NullLiteral struct {
	SpanVal Span
}

func (n *NullLiteral) Span() Span { return n.SpanVal }
func (n *NullLiteral) node()      {}
func (n *NullLiteral) expr()      {}

// StringLiteral represents a string without template parts.
type StringLiteral struct {
	SpanVal Span
	Value   string
}

func (n *StringLiteral) Span() Span { return n.SpanVal }
func (n *StringLiteral) node()      {}
func (n *StringLiteral) expr()      {}

// TemplateLiteral is a string with $name or ${expr} parts. Parts alternate
// freely between *StringLiteral and arbitrary expressions.
type TemplateLiteral struct {
	SpanVal Span
	Parts   []Expr
}

func (n *TemplateLiteral) Span() Span { return n.SpanVal }
func (n *TemplateLiteral) node()      {}
func (n *TemplateLiteral) expr()      {}

// Ident is a reference to a local, property, function or class by name.
type Ident struct {
	SpanVal Span
	Name    string
}

func (n *Ident) Span() Span { return n.SpanVal }
func (n *Ident) node()      {}
func (n *Ident) expr()      {}

// ThisExpr is `this`.
type ThisExpr struct {
	SpanVal Span
}

func (n *ThisExpr) Span() Span { return n.SpanVal }
func (n *ThisExpr) node()      {}
func (n *ThisExpr) expr()      {}

// UnaryExpr is a prefix operator application.
type UnaryExpr struct {
	SpanVal Span
	Op      TokenType
	X       Expr
}

func (n *UnaryExpr) Span() Span { return n.SpanVal }
func (n *UnaryExpr) node()      {}
func (n *UnaryExpr) expr()      {}

// BinaryExpr is an infix operator application.
type BinaryExpr struct {
	SpanVal Span
	Op      TokenType
	X, Y    Expr
}

func (n *BinaryExpr) Span() Span { return n.SpanVal }
func (n *BinaryExpr) node()      {}
func (n *BinaryExpr) expr()      {}

// CallExpr is a call of a function, method or constructor.
type CallExpr struct {
	SpanVal Span
	Fun     Expr // *Ident or *MemberExpr
	Args    []Expr
}

func (n *CallExpr) Span() Span { return n.SpanVal }
func (n *CallExpr) node()      {}
func (n *CallExpr) expr()      {}

// MemberExpr is `x.name`.
type MemberExpr struct {
	SpanVal Span
	X       Expr
	Name    string
}

func (n *MemberExpr) Span() Span { return n.SpanVal }
func (n *MemberExpr) node()      {}
func (n *MemberExpr) expr()      {}

// IndexExpr is `x[i]`.
type IndexExpr struct {
	SpanVal Span
	X       Expr
	Index   Expr
}

func (n *IndexExpr) Span() Span { return n.SpanVal }
func (n *IndexExpr) node()      {}
func (n *IndexExpr) expr()      {}

// IfExpr is if/else, used as a statement or as an expression.
type IfExpr struct {
	SpanVal Span
	Cond    Expr
	Then    *Block
	Else    *Block // nil when absent
}

func (n *IfExpr) Span() Span { return n.SpanVal }
func (n *IfExpr) node()      {}
func (n *IfExpr) expr()      {}

// CatchClause is one catch of a try.
type CatchClause struct {
	SpanVal Span
	Name    string
	Type    *TypeRef
	Body    *Block
}

func (n *CatchClause) Span() Span { return n.SpanVal }
func (n *CatchClause) node()      {}

// TryExpr is try/catch, used as a statement or as an expression.
type TryExpr struct {
	SpanVal Span
	Body    *Block
	Catches []*CatchClause
}

func (n *TryExpr) Span() Span { return n.SpanVal }
func (n *TryExpr) node()      {}
func (n *TryExpr) expr()      {}
