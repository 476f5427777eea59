package filter

import (
	"strings"
	"sync"
)

// Kind identifies the type of a criterion node.
type Kind int

const (
	KindEqual Kind = iota
	KindNotEqual
	KindApprox
	KindLessOrEqual
	KindGreaterOrEqual
	KindLike
	KindNot
	KindAnd
	KindOr
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindEqual:
		return "eq"
	case KindNotEqual:
		return "ne"
	case KindApprox:
		return "approx"
	case KindLessOrEqual:
		return "le"
	case KindGreaterOrEqual:
		return "ge"
	case KindLike:
		return "like"
	case KindNot:
		return "not"
	case KindAnd:
		return "and"
	case KindOr:
		return "or"
	case KindRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// MatchMode selects where wildcards are placed around a Like value.
type MatchMode int

const (
	// Anywhere matches the value anywhere: *value*.
	Anywhere MatchMode = iota
	// Start matches values beginning with the value: value*.
	Start
	// End matches values ending with the value: *value.
	End
	// Exact matches the value only: value.
	Exact
)

func (m MatchMode) String() string {
	switch m {
	case Anywhere:
		return "anywhere"
	case Start:
		return "start"
	case End:
		return "end"
	case Exact:
		return "exact"
	default:
		return "unknown"
	}
}

// Criterion is one immutable node of a filter expression tree.
type Criterion interface {
	// Kind reports the node type.
	Kind() Kind
	// Value returns the canonical filter string. It never fails.
	Value() string
	// Filter compiles the criterion into a predicate. Only raw literals can
	// fail, with an error wrapping ErrMalformed.
	Filter() (*Filter, error)
	// String is the same as Value.
	String() string

	compile() (Node, error)
}

func compileCriterion(c Criterion) (*Filter, error) {
	root, err := c.compile()
	if err != nil {
		return nil, err
	}
	return newFilter(root), nil
}

// leaf is an eq, approx, le or ge comparison.
type leaf struct {
	kind  Kind
	name  string
	value string
	text  string
}

func newLeaf(kind Kind, name, value string) *leaf {
	op := OpEqual
	switch kind {
	case KindApprox:
		op = OpApprox
	case KindLessOrEqual:
		op = OpLessOrEqual
	case KindGreaterOrEqual:
		op = OpGreaterOrEqual
	}
	var b strings.Builder
	(&CompareNode{Attr: name, Op: op, Value: value}).render(&b)
	return &leaf{kind: kind, name: name, value: value, text: b.String()}
}

func (c *leaf) Kind() Kind               { return c.kind }
func (c *leaf) Value() string            { return c.text }
func (c *leaf) String() string           { return c.text }
func (c *leaf) Filter() (*Filter, error) { return compileCriterion(c) }

func (c *leaf) compile() (Node, error) {
	switch c.kind {
	case KindApprox:
		return &CompareNode{Attr: c.name, Op: OpApprox, Value: c.value}, nil
	case KindLessOrEqual:
		return &CompareNode{Attr: c.name, Op: OpLessOrEqual, Value: c.value}, nil
	case KindGreaterOrEqual:
		return &CompareNode{Attr: c.name, Op: OpGreaterOrEqual, Value: c.value}, nil
	default:
		return &CompareNode{Attr: c.name, Op: OpEqual, Value: c.value}, nil
	}
}

// notEqual renders as the negation of an equality leaf.
type notEqual struct {
	eq   *leaf
	text string
}

func (c *notEqual) Kind() Kind               { return KindNotEqual }
func (c *notEqual) Value() string            { return c.text }
func (c *notEqual) String() string           { return c.text }
func (c *notEqual) Filter() (*Filter, error) { return compileCriterion(c) }

func (c *notEqual) compile() (Node, error) {
	child, _ := c.eq.compile()
	return &NotNode{Child: child}, nil
}

// like is an equality leaf with wildcards placed per its MatchMode.
type like struct {
	name    string
	pattern string // escaped value with wildcard markers
	text    string
}

func (c *like) Kind() Kind               { return KindLike }
func (c *like) Value() string            { return c.text }
func (c *like) String() string           { return c.text }
func (c *like) Filter() (*Filter, error) { return compileCriterion(c) }

func (c *like) compile() (Node, error) {
	return equalityNode(c.name, c.pattern), nil
}

type not struct {
	child Criterion
	text  string
}

func (c *not) Kind() Kind               { return KindNot }
func (c *not) Value() string            { return c.text }
func (c *not) String() string           { return c.text }
func (c *not) Filter() (*Filter, error) { return compileCriterion(c) }

func (c *not) compile() (Node, error) {
	child, err := c.child.compile()
	if err != nil {
		return nil, err
	}
	return &NotNode{Child: child}, nil
}

// group is an and/or over one or more children, kept in insertion order.
type group struct {
	kind     Kind
	children []Criterion
	text     string
}

func newGroup(kind Kind, children []Criterion) *group {
	op := byte('&')
	if kind == KindOr {
		op = '|'
	}
	var b strings.Builder
	b.WriteByte('(')
	b.WriteByte(op)
	for _, c := range children {
		b.WriteString(c.Value())
	}
	b.WriteByte(')')
	return &group{kind: kind, children: children, text: b.String()}
}

func (c *group) Kind() Kind               { return c.kind }
func (c *group) Value() string            { return c.text }
func (c *group) String() string           { return c.text }
func (c *group) Filter() (*Filter, error) { return compileCriterion(c) }

func (c *group) compile() (Node, error) {
	nodes := make([]Node, 0, len(c.children))
	for _, child := range c.children {
		n, err := child.compile()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if c.kind == KindOr {
		return &OrNode{Children: nodes}, nil
	}
	return &AndNode{Children: nodes}, nil
}

// raw embeds a literal filter string. It is parsed at most once, on first
// compilation.
type raw struct {
	literal string

	once sync.Once
	root Node
	err  error
}

func (c *raw) Kind() Kind               { return KindRaw }
func (c *raw) Value() string            { return c.literal }
func (c *raw) String() string           { return c.literal }
func (c *raw) Filter() (*Filter, error) { return compileCriterion(c) }

func (c *raw) compile() (Node, error) {
	c.once.Do(func() {
		c.root, c.err = NewParser(c.literal).Parse()
	})
	return c.root, c.err
}
