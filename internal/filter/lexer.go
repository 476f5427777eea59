package filter

import "strings"

// lexState tells the lexer which part of a filter it is positioned in. The
// grammar is context sensitive: the same byte means different things inside
// an attribute name, an operator and a value.
type lexState int

const (
	stateFilter lexState = iota // expecting ( or ) or EOF
	stateComp                   // just after (, expecting &, |, ! or an attribute
	stateOp                     // after an attribute, expecting an operator
	stateValue                  // after an operator, reading up to the closing )
)

// Lexer tokenizes canonical filter strings.
type Lexer struct {
	input string
	pos   int  // current position in input
	ch    byte // current character under examination
	state lexState
}

// NewLexer creates a new lexer for the input string.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	switch l.state {
	case stateComp:
		return l.lexComp()
	case stateOp:
		return l.lexOp()
	case stateValue:
		return l.lexValue()
	default:
		return l.lexFilter()
	}
}

func (l *Lexer) lexFilter() Token {
	l.skipWhitespace()
	tok := Token{Pos: l.offset()}

	switch l.ch {
	case '(':
		tok.Type = TokenLParen
		tok.Literal = "("
		l.state = stateComp
	case ')':
		tok.Type = TokenRParen
		tok.Literal = ")"
	case 0:
		if l.atEOF() {
			tok.Type = TokenEOF
			return tok
		}
		tok.Type = TokenIllegal
		tok.Literal = "\x00"
	default:
		tok.Type = TokenIllegal
		tok.Literal = string(l.ch)
	}

	l.readChar()
	return tok
}

func (l *Lexer) lexComp() Token {
	l.skipWhitespace()
	tok := Token{Pos: l.offset()}

	switch l.ch {
	case '&':
		tok.Type, tok.Literal = TokenAnd, "&"
	case '|':
		tok.Type, tok.Literal = TokenOr, "|"
	case '!':
		tok.Type, tok.Literal = TokenNot, "!"
	case '(', ')', '=', '~', '<', '>':
		tok.Type = TokenIllegal
		tok.Literal = string(l.ch)
	default:
		if l.atEOF() {
			tok.Type = TokenIllegal
			return tok
		}
		tok.Type = TokenAttr
		tok.Literal = l.readAttribute()
		l.state = stateOp
		return tok
	}

	l.state = stateFilter
	l.readChar()
	return tok
}

func (l *Lexer) lexOp() Token {
	tok := Token{Pos: l.offset()}

	switch l.ch {
	case '=':
		tok.Type, tok.Literal = TokenEq, "="
	case '~', '<', '>':
		if l.peekChar() != '=' {
			tok.Type = TokenIllegal
			tok.Literal = string(l.ch)
			l.readChar()
			return tok
		}
		switch l.ch {
		case '~':
			tok.Type, tok.Literal = TokenApprox, "~="
		case '<':
			tok.Type, tok.Literal = TokenLte, "<="
		default:
			tok.Type, tok.Literal = TokenGte, ">="
		}
		l.readChar()
	default:
		tok.Type = TokenIllegal
		tok.Literal = string(l.ch)
		l.readChar()
		return tok
	}

	l.state = stateValue
	l.readChar()
	return tok
}

// lexValue reads a value verbatim, escapes included, up to the first
// unescaped ')'. An unescaped '(' or a dangling backslash is illegal.
func (l *Lexer) lexValue() Token {
	tok := Token{Pos: l.offset()}
	start := l.offset()

	for !l.atEOF() {
		switch l.ch {
		case ')':
			tok.Type = TokenValue
			tok.Literal = l.input[start:l.offset()]
			l.state = stateFilter
			return tok
		case '(':
			tok.Type = TokenIllegal
			tok.Literal = "("
			tok.Pos = l.offset()
			return tok
		case '\\':
			l.readChar()
			if l.atEOF() {
				tok.Type = TokenIllegal
				tok.Literal = "\\"
				tok.Pos = l.offset()
				return tok
			}
		}
		l.readChar()
	}

	tok.Type = TokenIllegal
	tok.Literal = l.input[start:]
	tok.Pos = l.offset()
	return tok
}

// readChar reads the next character and advances position.
func (l *Lexer) readChar() {
	if l.pos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.pos]
	}
	l.pos++
}

// peekChar returns the next character without advancing.
func (l *Lexer) peekChar() byte {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

// offset is the index of the current character.
func (l *Lexer) offset() int {
	return l.pos - 1
}

func (l *Lexer) atEOF() bool {
	return l.offset() >= len(l.input)
}

// skipWhitespace advances past whitespace characters.
func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// readAttribute reads an attribute name up to the operator, dropping
// trailing whitespace.
func (l *Lexer) readAttribute() string {
	start := l.offset()
	for !l.atEOF() && !isAttrTerminator(l.ch) {
		l.readChar()
	}
	return strings.TrimRight(l.input[start:l.offset()], " \t\r\n")
}

func isAttrTerminator(c byte) bool {
	switch c {
	case '=', '~', '<', '>', '(', ')':
		return true
	}
	return false
}
