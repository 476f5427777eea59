package filter

import (
	"fmt"
	"strings"
)

// Parser parses filter tokens into a node tree.
type Parser struct {
	input   string
	lexer   *Lexer
	current Token
}

// NewParser creates a parser for the input.
func NewParser(input string) *Parser {
	p := &Parser{input: input, lexer: NewLexer(input)}
	p.nextToken()
	return p
}

// Parse parses the whole input as exactly one filter.
func (p *Parser) Parse() (Node, error) {
	n, err := p.parseFilter()
	if err != nil {
		return nil, err
	}
	if p.current.Type != TokenEOF {
		return nil, p.errorf(p.current.Pos, "unexpected %q after filter", p.current.Literal)
	}
	return n, nil
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.current = p.lexer.NextToken()
}

func (p *Parser) errorf(pos int, format string, args ...any) error {
	return &SyntaxError{Input: p.input, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *Parser) expect(t TokenType) error {
	if p.current.Type != t {
		if p.current.Type == TokenEOF {
			return p.errorf(p.current.Pos, "expected %q, reached end of input", t.String())
		}
		return p.errorf(p.current.Pos, "expected %q, got %q", t.String(), p.current.Literal)
	}
	p.nextToken()
	return nil
}

// parseFilter parses one parenthesized filter.
// filter = "(" ( "&" filterlist | "|" filterlist | "!" filter | item ) ")"
func (p *Parser) parseFilter() (Node, error) {
	if err := p.expect(TokenLParen); err != nil {
		return nil, err
	}

	var (
		n   Node
		err error
	)
	switch p.current.Type {
	case TokenAnd, TokenOr:
		n, err = p.parseGroup(p.current.Type)
	case TokenNot:
		p.nextToken() // consume !
		var child Node
		child, err = p.parseFilter()
		n = &NotNode{Child: child}
	case TokenAttr:
		n, err = p.parseItem()
	default:
		if p.current.Type == TokenEOF {
			return nil, p.errorf(p.current.Pos, "unexpected end of input")
		}
		return nil, p.errorf(p.current.Pos, "expected operator or attribute, got %q", p.current.Literal)
	}
	if err != nil {
		return nil, err
	}

	if err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return n, nil
}

// parseGroup parses the operands of & and |.
// filterlist = filter { filter }
func (p *Parser) parseGroup(op TokenType) (Node, error) {
	pos := p.current.Pos
	p.nextToken() // consume & or |

	var children []Node
	for p.current.Type == TokenLParen {
		child, err := p.parseFilter()
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	if len(children) == 0 {
		return nil, p.errorf(pos, "%q requires at least one operand", op.String())
	}

	if op == TokenAnd {
		return &AndNode{Children: children}, nil
	}
	return &OrNode{Children: children}, nil
}

// parseItem parses a leaf comparison.
// item = attr ( "=" | "~=" | "<=" | ">=" ) value
func (p *Parser) parseItem() (Node, error) {
	attr := p.current
	if attr.Literal == "" {
		return nil, p.errorf(attr.Pos, "missing attribute name")
	}
	p.nextToken()

	opTok := p.current
	if !opTok.Type.IsComparisonOp() {
		return nil, p.errorf(opTok.Pos, "expected comparison operator, got %q", opTok.Literal)
	}
	p.nextToken()

	valTok := p.current
	if valTok.Type != TokenValue {
		if valTok.Type == TokenIllegal && valTok.Literal == "(" {
			return nil, p.errorf(valTok.Pos, "unescaped '(' in value")
		}
		return nil, p.errorf(valTok.Pos, "unterminated value")
	}
	p.nextToken()

	switch opTok.Type {
	case TokenEq:
		return equalityNode(attr.Literal, valTok.Literal), nil
	case TokenApprox:
		return &CompareNode{Attr: attr.Literal, Op: OpApprox, Value: unescape(valTok.Literal)}, nil
	case TokenLte:
		return &CompareNode{Attr: attr.Literal, Op: OpLessOrEqual, Value: unescape(valTok.Literal)}, nil
	default:
		return &CompareNode{Attr: attr.Literal, Op: OpGreaterOrEqual, Value: unescape(valTok.Literal)}, nil
	}
}

// equalityNode decides between plain equality, presence and substring
// matching by looking at the unescaped '*' wildcards in the raw value.
func equalityNode(attr, raw string) Node {
	parts := splitWildcards(raw)
	switch {
	case len(parts) == 1:
		return &CompareNode{Attr: attr, Op: OpEqual, Value: parts[0]}
	case len(parts) == 2 && parts[0] == "" && parts[1] == "":
		return &PresentNode{Attr: attr}
	}

	n := &SubstringNode{
		Attr:    attr,
		Initial: parts[0],
		Final:   parts[len(parts)-1],
	}
	for _, s := range parts[1 : len(parts)-1] {
		if s != "" {
			n.Any = append(n.Any, s)
		}
	}
	return n
}

// splitWildcards unescapes raw and splits it on unescaped '*'. The lexer
// guarantees no dangling backslash.
func splitWildcards(raw string) []string {
	var (
		parts []string
		cur   strings.Builder
	)
	for i := 0; i < len(raw); i++ {
		switch c := raw[i]; c {
		case '\\':
			i++
			if i < len(raw) {
				cur.WriteByte(raw[i])
			}
		case '*':
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(parts, cur.String())
}

// unescape removes backslash escapes; '*' is literal outside equality.
func unescape(raw string) string {
	if !strings.Contains(raw, "\\") {
		return raw
	}
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\\' {
			i++
			if i >= len(raw) {
				break
			}
		}
		b.WriteByte(raw[i])
	}
	return b.String()
}
