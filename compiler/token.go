package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the tern lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError
	TokenNewline

	// Literals
	TokenInt        // 42, 0xFF, 1_000
	TokenLong       // 42L
	TokenDouble     // 3.14, 1e10
	TokenString     // "hello $name"
	TokenChar       // 'a', '\n'
	TokenIdentifier // foo, Bar

	// Delimiters
	TokenLParen    // (
	TokenRParen    // )
	TokenLBrace    // {
	TokenRBrace    // }
	TokenLBracket  // [
	TokenRBracket  // ]
	TokenComma     // ,
	TokenDot       // .
	TokenDotDot    // ..
	TokenColon     // :
	TokenSemicolon // ;
	TokenQuestion  // ?

	// Operators
	TokenPlus      // +
	TokenMinus     // -
	TokenStar      // *
	TokenSlash     // /
	TokenPercent   // %
	TokenAssign    // =
	TokenPlusEq    // +=
	TokenMinusEq   // -=
	TokenStarEq    // *=
	TokenSlashEq   // /=
	TokenPercentEq // %=
	TokenIncr      // ++
	TokenDecr      // --
	TokenEq        // ==
	TokenNotEq     // !=
	TokenLess      // <
	TokenLessEq    // <=
	TokenGreater   // >
	TokenGreaterEq // >=
	TokenAndAnd    // &&
	TokenOrOr      // ||
	TokenBang      // !

	// Keywords
	TokenPackage
	TokenImport
	TokenFun
	TokenClass
	TokenVal
	TokenVar
	TokenIf
	TokenElse
	TokenWhile
	TokenDo
	TokenFor
	TokenIn
	TokenReturn
	TokenThrow
	TokenTry
	TokenCatch
	TokenFinally
	TokenBreak
	TokenContinue
	TokenThis
	TokenNull
	TokenTrue
	TokenFalse
	TokenInit
	TokenOverride
	TokenOpen
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenError:      "ERROR",
	TokenNewline:    "newline",
	TokenInt:        "INT",
	TokenLong:       "LONG",
	TokenDouble:     "DOUBLE",
	TokenString:     "STRING",
	TokenChar:       "CHAR",
	TokenIdentifier: "IDENTIFIER",
	TokenLParen:     "(",
	TokenRParen:     ")",
	TokenLBrace:     "{",
	TokenRBrace:     "}",
	TokenLBracket:   "[",
	TokenRBracket:   "]",
	TokenComma:      ",",
	TokenDot:        ".",
	TokenDotDot:     "..",
	TokenColon:      ":",
	TokenSemicolon:  ";",
	TokenQuestion:   "?",
	TokenPlus:       "+",
	TokenMinus:      "-",
	TokenStar:       "*",
	TokenSlash:      "/",
	TokenPercent:    "%",
	TokenAssign:     "=",
	TokenPlusEq:     "+=",
	TokenMinusEq:    "-=",
	TokenStarEq:     "*=",
	TokenSlashEq:    "/=",
	TokenPercentEq:  "%=",
	TokenIncr:       "++",
	TokenDecr:       "--",
	TokenEq:         "==",
	TokenNotEq:      "!=",
	TokenLess:       "<",
	TokenLessEq:     "<=",
	TokenGreater:    ">",
	TokenGreaterEq:  ">=",
	TokenAndAnd:     "&&",
	TokenOrOr:       "||",
	TokenBang:       "!",
	TokenPackage:    "package",
	TokenImport:     "import",
	TokenFun:        "fun",
	TokenClass:      "class",
	TokenVal:        "val",
	TokenVar:        "var",
	TokenIf:         "if",
	TokenElse:       "else",
	TokenWhile:      "while",
	TokenDo:         "do",
	TokenFor:        "for",
	TokenIn:         "in",
	TokenReturn:     "return",
	TokenThrow:      "throw",
	TokenTry:        "try",
	TokenCatch:      "catch",
	TokenFinally:    "finally",
	TokenBreak:      "break",
	TokenContinue:   "continue",
	TokenThis:       "this",
	TokenNull:       "null",
	TokenTrue:       "true",
	TokenFalse:      "false",
	TokenInit:       "init",
	TokenOverride:   "override",
	TokenOpen:       "open",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // the raw text; for strings and chars, the text between the quotes
	Pos     Position // start position
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if t.Type == TokenError {
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Reserved words mapped to their token types.
var reservedWords = map[string]TokenType{
	"package":  TokenPackage,
	"import":   TokenImport,
	"fun":      TokenFun,
	"class":    TokenClass,
	"val":      TokenVal,
	"var":      TokenVar,
	"if":       TokenIf,
	"else":     TokenElse,
	"while":    TokenWhile,
	"do":       TokenDo,
	"for":      TokenFor,
	"in":       TokenIn,
	"return":   TokenReturn,
	"throw":    TokenThrow,
	"try":      TokenTry,
	"catch":    TokenCatch,
	"finally":  TokenFinally,
	"break":    TokenBreak,
	"continue": TokenContinue,
	"this":     TokenThis,
	"null":     TokenNull,
	"true":     TokenTrue,
	"false":    TokenFalse,
	"init":     TokenInit,
	"override": TokenOverride,
	"open":     TokenOpen,
}

// IsReservedWord reports whether s is a keyword and cannot be an identifier.
func IsReservedWord(s string) bool {
	_, ok := reservedWords[s]
	return ok
}
