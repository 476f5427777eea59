package filter

import "strings"

// Node is the interface for all compiled filter nodes.
type Node interface {
	node()
	// render appends the canonical form of the node.
	render(b *strings.Builder)
}

// Op is a leaf comparison operator.
type Op int

const (
	OpEqual Op = iota
	OpApprox
	OpLessOrEqual
	OpGreaterOrEqual
)

// String returns the operator as written in a filter.
func (o Op) String() string {
	switch o {
	case OpApprox:
		return "~="
	case OpLessOrEqual:
		return "<="
	case OpGreaterOrEqual:
		return ">="
	default:
		return "="
	}
}

// AndNode matches when every child matches.
type AndNode struct {
	Children []Node
}

// OrNode matches when any child matches.
type OrNode struct {
	Children []Node
}

// NotNode negates its child.
type NotNode struct {
	Child Node
}

// CompareNode represents "(attr op value)" with an unescaped value.
type CompareNode struct {
	Attr  string
	Op    Op
	Value string
}

// PresentNode represents "(attr=*)".
type PresentNode struct {
	Attr string
}

// SubstringNode represents "(attr=initial*any*...*final)". Initial and Final
// are empty when the pattern starts or ends with a wildcard.
type SubstringNode struct {
	Attr    string
	Initial string
	Any     []string
	Final   string
}

func (*AndNode) node()       {}
func (*OrNode) node()        {}
func (*NotNode) node()       {}
func (*CompareNode) node()   {}
func (*PresentNode) node()   {}
func (*SubstringNode) node() {}

func (n *AndNode) render(b *strings.Builder) {
	renderGroup(b, '&', n.Children)
}

func (n *OrNode) render(b *strings.Builder) {
	renderGroup(b, '|', n.Children)
}

func renderGroup(b *strings.Builder, op byte, children []Node) {
	b.WriteByte('(')
	b.WriteByte(op)
	for _, c := range children {
		c.render(b)
	}
	b.WriteByte(')')
}

func (n *NotNode) render(b *strings.Builder) {
	b.WriteString("(!")
	n.Child.render(b)
	b.WriteByte(')')
}

func (n *CompareNode) render(b *strings.Builder) {
	b.WriteByte('(')
	b.WriteString(n.Attr)
	b.WriteString(n.Op.String())
	writeEscaped(b, n.Value)
	b.WriteByte(')')
}

func (n *PresentNode) render(b *strings.Builder) {
	b.WriteByte('(')
	b.WriteString(n.Attr)
	b.WriteString("=*)")
}

func (n *SubstringNode) render(b *strings.Builder) {
	b.WriteByte('(')
	b.WriteString(n.Attr)
	b.WriteByte('=')
	writeEscaped(b, n.Initial)
	b.WriteByte('*')
	for _, s := range n.Any {
		writeEscaped(b, s)
		b.WriteByte('*')
	}
	writeEscaped(b, n.Final)
	b.WriteByte(')')
}

// Escape backslash-prefixes the characters that carry meaning inside a
// filter value: \ * ( ) and NUL.
func Escape(s string) string {
	if !strings.ContainsAny(s, "\\*()\x00") {
		return s
	}
	var b strings.Builder
	writeEscaped(&b, s)
	return b.String()
}

func writeEscaped(b *strings.Builder, s string) {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\', '*', '(', ')', 0:
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
}
