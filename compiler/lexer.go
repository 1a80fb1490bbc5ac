package compiler

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for tern source
// ---------------------------------------------------------------------------

// Lexer tokenizes tern source code. Newlines are significant and reported
// as TokenNewline; consecutive blank lines collapse into one token.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // line of ch (1-based)
	col     int  // column of ch (1-based)
	base    int  // offset of input within the enclosing source
	nl      bool // ch follows a newline
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return newLexerAt(input, Position{Line: 1, Column: 1})
}

// newLexerAt creates a lexer for a fragment of a larger source that starts
// at start, as used for string template expressions.
func newLexerAt(input string, start Position) *Lexer {
	l := &Lexer{
		input: input,
		line:  start.Line,
		col:   start.Column - 1,
		base:  start.Offset,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.nl {
		l.line++
		l.col = 0
		l.nl = false
	}
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = l.readPos
		l.col++
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col++
	if r == '\n' {
		l.nl = true
	}
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{
		Offset: l.base + l.pos,
		Line:   l.line,
		Column: l.col,
	}
}

// Tokenize returns all tokens of the input, ending with TokenEOF.
func (l *Lexer) Tokenize() []Token {
	var toks []Token
	for {
		tok := l.NextToken()
		if tok.Type == TokenNewline && (len(toks) == 0 || toks[len(toks)-1].Type == TokenNewline) {
			continue
		}
		toks = append(toks, tok)
		if tok.Type == TokenEOF {
			return toks
		}
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	if errTok, ok := l.skipWhitespaceAndComments(); !ok {
		return errTok
	}

	pos := l.position()
	single := func(t TokenType) Token {
		lit := string(l.ch)
		l.readChar()
		return Token{Type: t, Literal: lit, Pos: pos}
	}
	double := func(t TokenType, lit string) Token {
		l.readChar()
		l.readChar()
		return Token{Type: t, Literal: lit, Pos: pos}
	}

	switch ch := l.ch; {
	case ch == 0:
		return Token{Type: TokenEOF, Pos: pos}

	case ch == '\n':
		return single(TokenNewline)

	case ch == '(':
		return single(TokenLParen)
	case ch == ')':
		return single(TokenRParen)
	case ch == '{':
		return single(TokenLBrace)
	case ch == '}':
		return single(TokenRBrace)
	case ch == '[':
		return single(TokenLBracket)
	case ch == ']':
		return single(TokenRBracket)
	case ch == ',':
		return single(TokenComma)
	case ch == ';':
		return single(TokenSemicolon)
	case ch == ':':
		return single(TokenColon)
	case ch == '?':
		return single(TokenQuestion)

	case ch == '.':
		if l.peekChar() == '.' {
			return double(TokenDotDot, "..")
		}
		return single(TokenDot)

	case ch == '+':
		switch l.peekChar() {
		case '=':
			return double(TokenPlusEq, "+=")
		case '+':
			return double(TokenIncr, "++")
		}
		return single(TokenPlus)
	case ch == '-':
		switch l.peekChar() {
		case '=':
			return double(TokenMinusEq, "-=")
		case '-':
			return double(TokenDecr, "--")
		}
		return single(TokenMinus)
	case ch == '*':
		if l.peekChar() == '=' {
			return double(TokenStarEq, "*=")
		}
		return single(TokenStar)
	case ch == '/':
		if l.peekChar() == '=' {
			return double(TokenSlashEq, "/=")
		}
		return single(TokenSlash)
	case ch == '%':
		if l.peekChar() == '=' {
			return double(TokenPercentEq, "%=")
		}
		return single(TokenPercent)
	case ch == '=':
		if l.peekChar() == '=' {
			return double(TokenEq, "==")
		}
		return single(TokenAssign)
	case ch == '!':
		if l.peekChar() == '=' {
			return double(TokenNotEq, "!=")
		}
		return single(TokenBang)
	case ch == '<':
		if l.peekChar() == '=' {
			return double(TokenLessEq, "<=")
		}
		return single(TokenLess)
	case ch == '>':
		if l.peekChar() == '=' {
			return double(TokenGreaterEq, ">=")
		}
		return single(TokenGreater)
	case ch == '&':
		if l.peekChar() == '&' {
			return double(TokenAndAnd, "&&")
		}
	case ch == '|':
		if l.peekChar() == '|' {
			return double(TokenOrOr, "||")
		}

	case ch == '"':
		return l.readString(pos)
	case ch == '\'':
		return l.readCharLiteral(pos)

	case isDigit(ch):
		return l.readNumber(pos)

	case isIdentStart(ch):
		return l.readIdentifier(pos)
	}

	bad := l.ch
	l.readChar()
	return Token{Type: TokenError, Literal: "unexpected character " + quoteRune(bad), Pos: pos}
}

// skipWhitespaceAndComments skips blanks and comments but not newlines.
// It reports an error token for an unterminated block comment.
func (l *Lexer) skipWhitespaceAndComments() (Token, bool) {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\r':
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			pos := l.position()
			l.readChar()
			l.readChar()
			for !(l.ch == '*' && l.peekChar() == '/') {
				if l.ch == 0 {
					return Token{Type: TokenError, Literal: "unterminated comment", Pos: pos}, false
				}
				l.readChar()
			}
			l.readChar()
			l.readChar()
		default:
			return Token{}, true
		}
	}
}

// readString reads a string literal. The literal keeps escapes and template
// markers; the parser interprets them.
func (l *Lexer) readString(pos Position) Token {
	l.readChar() // opening quote
	start := l.pos
	depth := 0 // nesting of ${ ... }
	for {
		switch {
		case l.ch == 0 || l.ch == '\n':
			return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
		case l.ch == '\\':
			l.readChar()
			if l.ch == 0 || l.ch == '\n' {
				continue
			}
		case l.ch == '$' && l.peekChar() == '{':
			depth++
			l.readChar()
		case l.ch == '}' && depth > 0:
			depth--
		case l.ch == '"' && depth > 0:
			// string nested in a template expression
			inner := l.readString(l.position())
			if inner.Type == TokenError {
				return inner
			}
			continue
		case l.ch == '"':
			lit := l.input[start:l.pos]
			l.readChar()
			return Token{Type: TokenString, Literal: lit, Pos: pos}
		}
		l.readChar()
	}
}

// readCharLiteral reads a character literal.
func (l *Lexer) readCharLiteral(pos Position) Token {
	l.readChar() // opening quote
	start := l.pos
	for l.ch != '\'' {
		if l.ch == 0 || l.ch == '\n' {
			return Token{Type: TokenError, Literal: "unterminated character literal", Pos: pos}
		}
		if l.ch == '\\' {
			l.readChar()
		}
		l.readChar()
	}
	lit := l.input[start:l.pos]
	l.readChar()
	return Token{Type: TokenChar, Literal: lit, Pos: pos}
}

// readNumber reads Int, Long and Double literals. Underscores are dropped
// from the literal and the L suffix is not included.
func (l *Lexer) readNumber(pos Position) Token {
	var sb strings.Builder
	if l.ch == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X') {
		sb.WriteString("0x")
		l.readChar()
		l.readChar()
		for isHexDigit(l.ch) || l.ch == '_' {
			if l.ch != '_' {
				sb.WriteRune(l.ch)
			}
			l.readChar()
		}
		if sb.Len() == 2 {
			return Token{Type: TokenError, Literal: "malformed hexadecimal literal", Pos: pos}
		}
		return l.intSuffix(sb.String(), pos)
	}

	digits := func() {
		for isDigit(l.ch) || l.ch == '_' {
			if l.ch != '_' {
				sb.WriteRune(l.ch)
			}
			l.readChar()
		}
	}
	digits()
	isDouble := false
	if l.ch == '.' && isDigit(l.peekChar()) {
		isDouble = true
		sb.WriteRune('.')
		l.readChar()
		digits()
	}
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if isDigit(next) || next == '+' || next == '-' {
			isDouble = true
			sb.WriteRune('e')
			l.readChar()
			if l.ch == '+' || l.ch == '-' {
				sb.WriteRune(l.ch)
				l.readChar()
			}
			if !isDigit(l.ch) {
				return Token{Type: TokenError, Literal: "malformed exponent", Pos: pos}
			}
			digits()
		}
	}
	if isDouble {
		return Token{Type: TokenDouble, Literal: sb.String(), Pos: pos}
	}
	return l.intSuffix(sb.String(), pos)
}

func (l *Lexer) intSuffix(lit string, pos Position) Token {
	if l.ch == 'L' {
		l.readChar()
		return Token{Type: TokenLong, Literal: lit, Pos: pos}
	}
	if isIdentStart(l.ch) {
		return Token{Type: TokenError, Literal: "invalid suffix on number " + lit, Pos: pos}
	}
	return Token{Type: TokenInt, Literal: lit, Pos: pos}
}

// readIdentifier reads an identifier or keyword.
func (l *Lexer) readIdentifier(pos Position) Token {
	start := l.pos
	for isIdentPart(l.ch) {
		l.readChar()
	}
	lit := l.input[start:l.pos]
	if t, ok := reservedWords[lit]; ok {
		return Token{Type: t, Literal: lit, Pos: pos}
	}
	return Token{Type: TokenIdentifier, Literal: lit, Pos: pos}
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isHexDigit(r rune) bool {
	return isDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }

func isIdentPart(r rune) bool { return isIdentStart(r) || unicode.IsDigit(r) }

func quoteRune(r rune) string {
	if r == 0 {
		return "EOF"
	}
	return "'" + string(r) + "'"
}
